package camera

import (
	"errors"
	"fmt"
	"time"

	"github.jpl.nasa.gov/bdube/picamfft/picam"
)

// ErrPartialCapture is reported when fewer frames arrived than requested
var ErrPartialCapture = errors.New("camera: partial capture")

// TimeoutPolicy bounds how long an acquisition may wait for frames
type TimeoutPolicy struct {
	bounded bool
	d       time.Duration
}

// NoTimeout waits as long as it takes
var NoTimeout = TimeoutPolicy{}

// Within waits at most d for all frames of one request
func Within(d time.Duration) TimeoutPolicy {
	if d < 0 {
		d = 0
	}
	return TimeoutPolicy{bounded: true, d: d}
}

// Duration returns the device timeout, picam.NoTimeout when unbounded
func (t TimeoutPolicy) Duration() time.Duration {
	if !t.bounded {
		return picam.NoTimeout
	}
	return t.d
}

func (t TimeoutPolicy) String() string {
	if !t.bounded {
		return "none"
	}
	return t.d.String()
}

// AcquisitionReport counts captured against requested frames
type AcquisitionReport struct {
	Requested int                         `json:"requested"`
	Captured  int                         `json:"captured"`
	Errors    picam.AcquisitionErrorsMask `json:"errors"`

	// Cause is the device error behind a shortfall, if any
	Cause error `json:"-"`
}

// Complete is true when every requested frame was captured
func (r AcquisitionReport) Complete() bool {
	return r.Requested > 0 && r.Captured == r.Requested
}

// Err returns nil for a complete capture and an error wrapping
// ErrPartialCapture otherwise
func (r AcquisitionReport) Err() error {
	if r.Complete() {
		return nil
	}
	if r.Cause != nil {
		return fmt.Errorf("%w: %d of %d frames (%s): %v", ErrPartialCapture, r.Captured, r.Requested, r.Errors, r.Cause)
	}
	return fmt.Errorf("%w: %d of %d frames (%s)", ErrPartialCapture, r.Captured, r.Requested, r.Errors)
}

func (r AcquisitionReport) String() string {
	return fmt.Sprintf("captured %d of %d frames, errors: %s", r.Captured, r.Requested, r.Errors)
}

// shortfall reports if err only means the device gave fewer frames
func shortfall(err error) bool {
	return errors.Is(err, picam.ErrTimeOutOccurred) || errors.Is(err, picam.ErrReadoutUnderrun)
}

// Acquire requests count frames.  A timeout or an underrun is not an error:
// the report then shows fewer frames captured than requested and the frames
// that did arrive are returned in capture order, indexed from zero.
func (s *Session) Acquire(count int, policy TimeoutPolicy) (AcquisitionReport, []Frame, error) {
	rep := AcquisitionReport{Requested: count}
	if s.closed {
		return rep, nil, ErrSessionClosed
	}
	if count <= 0 {
		return rep, nil, fmt.Errorf("camera: frame count must be positive, got %d", count)
	}
	rows, cols, err := s.FrameShape()
	if err != nil {
		return rep, nil, fmt.Errorf("camera: acquire: %w", err)
	}
	sh, pitch, err := s.sensorShape()
	if err != nil {
		return rep, nil, fmt.Errorf("camera: acquire: %w", err)
	}
	stride, err := s.ReadoutStride()
	if err != nil {
		return rep, nil, fmt.Errorf("camera: acquire: %w", err)
	}
	if stride < 2*sh*pitch {
		return rep, nil, fmt.Errorf("camera: readout stride %d is too small for a %dx%d sensor", stride, sh, pitch)
	}

	start := time.Now()
	data, mask, err := s.cam.Acquire(count, policy.Duration())
	rep.Errors = mask
	if err != nil {
		if !shortfall(err) {
			return rep, nil, fmt.Errorf("camera: acquire: %w", err)
		}
		rep.Cause = err
	}
	n := data.ReadoutCount
	if avail := len(data.InitialReadout) / stride; avail < n {
		n = avail
	}
	frames := make([]Frame, 0, n)
	for k := 0; k < n; k++ {
		f, err := frameFromReadout(k, rows, cols, pitch, data.InitialReadout[k*stride:(k+1)*stride])
		if err != nil {
			return rep, frames, err
		}
		frames = append(frames, f)
	}
	rep.Captured = len(frames)

	ev := s.log.Debug()
	if !rep.Complete() {
		ev = s.log.Warn()
	}
	ev.Int("requested", count).
		Int("captured", rep.Captured).
		Str("timeout", policy.String()).
		Dur("elapsed", time.Since(start)).
		Msg("acquired")
	return rep, frames, nil
}
