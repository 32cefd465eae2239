package camera

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"

	"github.jpl.nasa.gov/bdube/picamfft/picam"
)

var (
	// ErrSessionClosed is returned by every Session method after Close
	ErrSessionClosed = errors.New("camera: session is closed")

	// ErrInvalidParameter matches any *InvalidParameterError with errors.Is
	ErrInvalidParameter = errors.New("camera: invalid parameter")
)

// Rejection is one parameter the camera refused, and why
type Rejection struct {
	Parameter picam.Parameter
	Err       error
}

// InvalidParameterError lists every entry of a ParameterSet that could not be
// staged.  The other entries were staged.
type InvalidParameterError struct {
	Rejected []Rejection
}

func (e *InvalidParameterError) Error() string {
	parts := make([]string, len(e.Rejected))
	for i, r := range e.Rejected {
		parts[i] = fmt.Sprintf("%s: %v", r.Parameter, r.Err)
	}
	return "camera: invalid parameters: " + strings.Join(parts, "; ")
}

// Is matches ErrInvalidParameter and the error of any rejection
func (e *InvalidParameterError) Is(target error) bool {
	if target == ErrInvalidParameter {
		return true
	}
	for _, r := range e.Rejected {
		if errors.Is(r.Err, target) {
			return true
		}
	}
	return false
}

// CommitResult is the outcome of Session.Commit
type CommitResult struct {
	// Failed holds the parameters that were not applied, in the order the
	// rejections happened
	Failed []picam.Parameter

	// AlreadyCommitted is true when there was nothing to commit
	AlreadyCommitted bool
}

// OK is true when nothing failed
func (c CommitResult) OK() bool {
	return len(c.Failed) == 0
}

// Names returns the names of the failed parameters
func (c CommitResult) Names() []string {
	out := make([]string, len(c.Failed))
	for i, p := range c.Failed {
		out[i] = p.String()
	}
	return out
}

func (c *CommitResult) add(p picam.Parameter) {
	for _, q := range c.Failed {
		if q == p {
			return
		}
	}
	c.Failed = append(c.Failed, p)
}

// OpenOptions controls how Open finds a camera
type OpenOptions struct {
	// Serial selects a camera by serial number.  Empty opens the first
	// available camera.
	Serial string

	// Demo connects a demo camera when no camera can be found
	Demo bool

	// DemoModel is the model of the demo camera
	DemoModel picam.Model

	// DemoSerial is the serial number of the demo camera.  Empty uses Serial,
	// or a fixed number if that is empty too.
	DemoSerial string

	// DemoOptions are passed to the demo camera
	DemoOptions []picam.DemoOption

	// DiscoveryTimeout is how long to keep looking for a camera.  Zero looks
	// once.
	DiscoveryTimeout time.Duration

	// Rows and Cols crop frames to the top left of the sensor.  Zero keeps
	// the sensor's height or width; larger than the sensor fails Open.
	Rows, Cols int

	// Logger receives session events.  Nil logs nothing.
	Logger *zerolog.Logger
}

const defaultDemoSerial = "0008675309"

// Session is an open camera.  It is not safe for concurrent use.
type Session struct {
	cam        picam.Camera
	id         picam.CameraID
	rows, cols int
	rejected   []Rejection
	closed     bool
	log        zerolog.Logger
}

// Open finds and opens a camera
func Open(lib *picam.Library, opts OpenOptions) (*Session, error) {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	cam, err := discover(lib, opts, log)
	if errors.Is(err, picam.ErrDeviceNotFound) && opts.Demo {
		serial := opts.DemoSerial
		if serial == "" {
			serial = opts.Serial
		}
		if serial == "" {
			serial = defaultDemoSerial
		}
		var id picam.CameraID
		id, err = lib.ConnectDemoCamera(opts.DemoModel, serial, opts.DemoOptions...)
		if err != nil {
			return nil, fmt.Errorf("camera: connecting demo camera: %w", err)
		}
		log.Info().Str("camera", id.String()).Msg("no camera found, connected demo camera")
		cam, err = lib.OpenCamera(id)
	}
	if err != nil {
		return nil, fmt.Errorf("camera: open: %w", err)
	}
	s := &Session{cam: cam, id: cam.ID(), rows: opts.Rows, cols: opts.Cols, log: log}
	sh, sw, err := s.sensorShape()
	if err == nil && (opts.Rows < 0 || opts.Cols < 0 || opts.Rows > sh || opts.Cols > sw) {
		err = fmt.Errorf("frame shape %dx%d does not fit the %dx%d sensor", opts.Rows, opts.Cols, sh, sw)
	}
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("camera: open: %w", err)
	}
	s.log.Info().Str("camera", s.Describe()).Msg("opened camera")
	return s, nil
}

// discover opens a camera, retrying while none can be found
func discover(lib *picam.Library, opts OpenOptions, log zerolog.Logger) (picam.Camera, error) {
	var (
		cam      picam.Camera
		lastErr  error
		stopErr  error
		attempts int
	)
	op := func() error {
		attempts++
		var err error
		cam, err = openOnce(lib, opts.Serial)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, picam.ErrDeviceNotFound):
			lastErr = err
			return err
		default:
			// any other failure will not go away by waiting
			stopErr = err
			return nil
		}
	}
	if opts.DiscoveryTimeout <= 0 {
		op()
	} else {
		b := &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         time.Second,
			MaxElapsedTime:      opts.DiscoveryTimeout,
			Clock:               backoff.SystemClock,
		}
		backoff.Retry(op, b)
	}
	if stopErr != nil {
		return nil, stopErr
	}
	if cam == nil {
		log.Debug().Int("attempts", attempts).Msg("camera discovery gave up")
		return nil, lastErr
	}
	return cam, nil
}

func openOnce(lib *picam.Library, serial string) (picam.Camera, error) {
	if serial == "" {
		return lib.OpenFirstCamera()
	}
	ids, err := lib.AvailableCameraIDs()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if id.SerialNumber == serial {
			return lib.OpenCamera(id)
		}
	}
	return nil, picam.ErrDeviceNotFound
}

// WithSession opens a camera, calls fn and closes the camera on every path
func WithSession(lib *picam.Library, opts OpenOptions, fn func(*Session) error) (err error) {
	s, err := Open(lib, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// ID returns the identity of the open camera
func (s *Session) ID() picam.CameraID {
	return s.id
}

// Describe returns a readable model, serial number and sensor string
func (s *Session) Describe() string {
	return s.id.String()
}

// ParameterExists reports if the camera has the parameter
func (s *Session) ParameterExists(p picam.Parameter) bool {
	if s.closed {
		return false
	}
	return s.cam.ParameterExists(p)
}

// Configure stages every entry of ps.  Entries the camera refuses are
// collected into an *InvalidParameterError; the rest stay staged.  Nothing
// reaches the hardware until Commit.
func (s *Session) Configure(ps picam.ParameterSet) error {
	if s.closed {
		return ErrSessionClosed
	}
	var rejected []Rejection
	for _, p := range ps.Keys() {
		if err := picam.SetValue(s.cam, p, ps[p]); err != nil {
			rejected = append(rejected, Rejection{Parameter: p, Err: err})
			s.log.Debug().Str("parameter", p.String()).Err(err).Msg("parameter rejected")
			continue
		}
		s.log.Debug().Str("parameter", p.String()).Str("value", ps[p].String()).Msg("parameter staged")
	}
	s.rejected = append(s.rejected, rejected...)
	if len(rejected) > 0 {
		return &InvalidParameterError{Rejected: rejected}
	}
	return nil
}

// Commit applies the staged parameters.  The result lists the parameters
// refused while staging, then those the camera refused at commit.  Every
// other staged value is applied.
func (s *Session) Commit() (CommitResult, error) {
	if s.closed {
		return CommitResult{}, ErrSessionClosed
	}
	committed, err := s.cam.AreParametersCommitted()
	if err != nil {
		return CommitResult{}, fmt.Errorf("camera: commit: %w", err)
	}
	if committed && len(s.rejected) == 0 {
		return CommitResult{AlreadyCommitted: true}, nil
	}
	res := CommitResult{}
	for _, r := range s.rejected {
		res.add(r.Parameter)
	}
	s.rejected = nil
	if !committed {
		failed, err := s.cam.CommitParameters()
		if err != nil {
			return res, fmt.Errorf("camera: commit: %w", err)
		}
		for _, p := range failed {
			res.add(p)
		}
	}
	if res.OK() {
		s.log.Info().Msg("parameters committed")
	} else {
		s.log.Warn().Strs("failed", res.Names()).Msg("parameters committed with failures")
	}
	return res, nil
}

// ReadoutStride is the number of bytes between readouts
func (s *Session) ReadoutStride() (int, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	return s.cam.GetInteger(picam.ReadoutStride)
}

// FrameShape returns the rows and columns of one frame
func (s *Session) FrameShape() (rows, cols int, err error) {
	if s.closed {
		return 0, 0, ErrSessionClosed
	}
	sh, sw, err := s.sensorShape()
	if err != nil {
		return 0, 0, err
	}
	rows, cols = s.rows, s.cols
	if rows == 0 {
		rows = sh
	}
	if cols == 0 {
		cols = sw
	}
	return rows, cols, nil
}

// sensorShape is the active area of the sensor, which sets the readout layout
func (s *Session) sensorShape() (rows, cols int, err error) {
	if rows, err = s.cam.GetInteger(picam.SensorActiveHeight); err != nil {
		return 0, 0, err
	}
	if cols, err = s.cam.GetInteger(picam.SensorActiveWidth); err != nil {
		return 0, 0, err
	}
	return rows, cols, nil
}

// Close releases the camera.  Calls after the first do nothing.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Info().Str("camera", s.Describe()).Msg("closing camera")
	return s.cam.Close()
}
