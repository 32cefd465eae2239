/*Package pipeline drives one acquisition run from camera to sinks.

A run configures and commits the camera, acquires frames with a camera.Loop,
transforms each frame and routes it to the preview, the structured record
store, the raw dump and telemetry.  Every sink is optional.
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/imgrec"
	"github.jpl.nasa.gov/bdube/picamfft/picam"
	"github.jpl.nasa.gov/bdube/picamfft/preview"
	"github.jpl.nasa.gov/bdube/picamfft/spectral"
	"github.jpl.nasa.gov/bdube/picamfft/telemetry"
	"github.jpl.nasa.gov/bdube/picamfft/util"
)

// Transform selects what, if anything, is computed from each frame
type Transform int

const (
	// None skips the spectral transform
	None Transform = iota
	// Magnitude computes the log magnitude spectrum
	Magnitude
	// RealImaginary keeps the real and imaginary planes
	RealImaginary
)

func (t Transform) String() string {
	switch t {
	case None:
		return "none"
	case Magnitude:
		return "magnitude"
	case RealImaginary:
		return "real-imaginary"
	}
	return fmt.Sprintf("Transform(%d)", int(t))
}

// ParseTransform is the inverse of Transform.String.  It also accepts the
// short forms "mag" and "ri"
func ParseTransform(s string) (Transform, error) {
	switch strings.ToLower(s) {
	case "none", "off", "":
		return None, nil
	case "magnitude", "mag":
		return Magnitude, nil
	case "real-imaginary", "realimaginary", "ri":
		return RealImaginary, nil
	}
	return None, fmt.Errorf("pipeline: unknown transform %q", s)
}

// Output selects how much of each frame is persisted
type Output int

const (
	// ROI persists Config.Region
	ROI Output = iota
	// Full persists the whole frame and spectrum
	Full
)

func (o Output) String() string {
	if o == Full {
		return "full"
	}
	return "roi"
}

// DefaultRegion is the middle ten rows of a 400 row sensor
var DefaultRegion = camera.RowBand(195, 10)

// Config parameterizes a run
type Config struct {
	// Shots is the number of frames to acquire
	Shots int

	// Mode is bulk or repeated single frame acquisition
	Mode camera.Mode

	// Timeout bounds each acquisition.  Zero waits forever.
	Timeout time.Duration

	// Transform and Center configure the spectral transform
	Transform Transform
	Center    bool

	// Output and Region choose what part of a frame is persisted
	Output Output
	Region camera.AOI

	// PersistEvery persists every n-th frame.  Zero persists none this way.
	PersistEvery int

	// PersistFrame persists the frame with this index.  Negative persists
	// none this way.
	PersistFrame int

	// Raw appends every frame to Sinks.Raw.  Bulk runs append one batch,
	// repeat runs one batch per frame.
	Raw bool

	// RateHz paces repeat mode.  Zero does not pace.
	RateHz float64

	// Parameters are staged and committed before acquiring.  Empty skips
	// configuration.
	Parameters picam.ParameterSet
}

// DefaultConfig takes 10 shots in bulk, persisting the middle rows of the
// second frame with its real and imaginary spectrum
func DefaultConfig() Config {
	return Config{
		Shots:        10,
		Mode:         camera.Bulk,
		Transform:    RealImaginary,
		Output:       ROI,
		Region:       DefaultRegion,
		PersistFrame: 1,
	}
}

// Policy converts the Timeout to a camera.TimeoutPolicy
func (c Config) Policy() camera.TimeoutPolicy {
	if c.Timeout <= 0 {
		return camera.NoTimeout
	}
	return camera.Within(c.Timeout)
}

func (c Config) persists(index int) bool {
	if index == c.PersistFrame {
		return true
	}
	return c.PersistEvery > 0 && index%c.PersistEvery == 0
}

func (c Config) region() camera.AOI {
	if c.Output == Full {
		return camera.AOI{}
	}
	return c.Region
}

// Summary describes a finished run
type Summary struct {
	RunID string

	// Commit lists the parameters the camera refused.  The run went ahead
	// with the rest.
	Commit camera.CommitResult

	Report    camera.AcquisitionReport
	Persisted []string
	RawBytes  int64
	Cancelled bool
}

// Sinks are the destinations of a run's frames.  Nil members are skipped.
type Sinks struct {
	Preview   preview.Previewer
	Records   *imgrec.Recorder
	Raw       *imgrec.RawRecorder
	Telemetry telemetry.Publisher
}

// Pipeline is one camera and its sinks
type Pipeline struct {
	Session *camera.Session
	Config  Config
	Sinks   Sinks

	// Progress, if not nil, is called after each frame is handed to the sinks
	Progress func(index, shots int)

	Logger *zerolog.Logger
}

func (p *Pipeline) logger() zerolog.Logger {
	if p.Logger != nil {
		return *p.Logger
	}
	return zerolog.Nop()
}

// Configure stages and commits Config.Parameters.  Parameters refused while
// staging or committing are listed in the result and logged; the camera keeps
// the valid subset.  Only errors talking to the camera are returned.
func (p *Pipeline) Configure() (camera.CommitResult, error) {
	if len(p.Config.Parameters) == 0 {
		return camera.CommitResult{AlreadyCommitted: true}, nil
	}
	err := p.Session.Configure(p.Config.Parameters)
	var ipe *camera.InvalidParameterError
	if err != nil && !errors.As(err, &ipe) {
		return camera.CommitResult{}, err
	}
	res, err := p.Session.Commit()
	if err != nil {
		return res, err
	}
	if !res.OK() {
		log := p.logger()
		log.Warn().Strs("failed", res.Names()).Msg("parameters refused, continuing with the rest")
	}
	return res, nil
}

// Run configures the camera, then acquires and routes Config.Shots frames.
// A partial capture is not an error; inspect Summary.Report.  A preview
// cancel stops the run without error and sets Summary.Cancelled.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	log := p.logger()
	cfg := p.Config
	sum := Summary{RunID: uuid.New().String()}
	log = log.With().Str("run", sum.RunID).Logger()
	if p.Sinks.Records != nil {
		p.Sinks.Records.RunID = sum.RunID
	}
	pub := p.Sinks.Telemetry
	if pub == nil {
		pub = telemetry.Nop{}
	}

	res, err := p.Configure()
	sum.Commit = res
	if err != nil {
		return sum, err
	}

	loop := camera.Loop{Session: p.Session, Mode: cfg.Mode}
	if cfg.RateHz > 0 {
		loop.Limiter = rate.NewLimiter(rate.Limit(cfg.RateHz), 1)
	}

	var pending []camera.Frame
	flush := func() error {
		if p.Sinks.Raw == nil || len(pending) == 0 {
			return nil
		}
		b, err := p.Sinks.Raw.Append(pending...)
		sum.RawBytes += int64(b.Bytes)
		pending = pending[:0]
		if err != nil {
			return err
		}
		log.Debug().Int("frames", b.Frames).Int("bytes", b.Bytes).Uint32("crc", b.CRC).Msg("raw dump appended")
		return nil
	}

	handoff := func(f camera.Frame) error {
		c3 := f.CenterThree()
		log.Debug().Int("frame", f.Index).Str("center", util.IntSliceToCSV(util.Uint16sToInts(c3[:]))).Msg("frame acquired")

		var spec *spectral.Spectrum
		if cfg.Transform != None {
			mode := spectral.Magnitude
			if cfg.Transform == RealImaginary {
				mode = spectral.RealImaginary
			}
			var err error
			spec, err = spectral.Transform(f, spectral.Options{Mode: mode, Center: cfg.Center})
			if err != nil {
				return err
			}
		}

		if cfg.Raw && p.Sinks.Raw != nil {
			pending = append(pending, f)
			if cfg.Mode == camera.Repeat {
				if err := flush(); err != nil {
					return err
				}
			}
		}

		if p.Sinks.Records != nil && cfg.persists(f.Index) && p.Sinks.Records.IsEnabled() {
			fn, err := p.Sinks.Records.Persist(f, spec, cfg.region())
			if err != nil {
				return err
			}
			sum.Persisted = append(sum.Persisted, fn)
			log.Info().Int("frame", f.Index).Str("file", fn).Msg("record written")
		}

		if err := pub.Frame(telemetry.Summarize(sum.RunID, f)); err != nil {
			log.Warn().Err(err).Int("frame", f.Index).Msg("telemetry not sent")
		}

		if p.Progress != nil {
			p.Progress(f.Index, cfg.Shots)
		}

		if p.Sinks.Preview != nil {
			cancel, err := p.Sinks.Preview.Preview(f, spec)
			if err != nil {
				return err
			}
			if cancel {
				sum.Cancelled = true
				log.Info().Int("frame", f.Index).Msg("preview cancelled the run")
				return camera.ErrStop
			}
		}
		return nil
	}

	log.Info().Int("shots", cfg.Shots).Str("mode", cfg.Mode.String()).Str("transform", cfg.Transform.String()).
		Str("output", cfg.Output.String()).Str("timeout", cfg.Policy().String()).Msg("starting acquisition")
	rep, err := loop.Run(ctx, cfg.Shots, cfg.Policy(), handoff)
	sum.Report = rep
	if ferr := flush(); err == nil {
		err = ferr
	}

	tr := telemetry.NewReport(sum.RunID, rep)
	tr.Persisted = len(sum.Persisted)
	tr.RawBytes = sum.RawBytes
	tr.Cancelled = sum.Cancelled
	if err != nil {
		tr.Err = err.Error()
	}
	if perr := pub.Report(tr); perr != nil {
		log.Warn().Err(perr).Msg("telemetry report not sent")
	}

	ev := log.Info()
	if !rep.Complete() && !sum.Cancelled {
		ev = log.Warn()
	}
	ev.Str("report", rep.String()).Int("persisted", len(sum.Persisted)).Int64("rawBytes", sum.RawBytes).
		Bool("cancelled", sum.Cancelled).Msg("acquisition finished")
	return sum, err
}
