package pipeline

import (
	"context"
	"errors"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
	"github.jpl.nasa.gov/bdube/picamfft/picam"
)

// ErrGatingUnsupported is returned by RunGating on a camera without an
// intensifier
var ErrGatingUnsupported = errors.New("pipeline: gating not supported by this camera")

// Common holds the settings shared by every gating mode.  Units are those
// of the camera.
type Common struct {
	TriggerFrequency float64 `yaml:"triggerfrequency"`
	IntensifierGain  int     `yaml:"intensifiergain"`
	SyncMaster2Delay float64 `yaml:"syncmaster2delay"`
}

// CommonGating triggers internally with the intensifier and SyncMaster on
func CommonGating(c Common) picam.ParameterSet {
	return picam.ParameterSet{}.
		Set(picam.TriggerFrequency, picam.Float(c.TriggerFrequency)).
		Set(picam.IntensifierGain, picam.Int(c.IntensifierGain)).
		Set(picam.TriggerSource, picam.Int(picam.TriggerSourceInternal)).
		Set(picam.SyncMaster2Delay, picam.Float(c.SyncMaster2Delay)).
		Set(picam.EnableSyncMaster, picam.Bool(true)).
		Set(picam.EnableIntensifier, picam.Bool(true))
}

// RepetitiveGating opens the same gate on every frame
func RepetitiveGating(gate, aux picam.Pulse) picam.ParameterSet {
	return picam.ParameterSet{}.
		Set(picam.GatingMode, picam.Int(picam.GatingModeRepetitive)).
		Set(picam.RepetitiveGate, picam.PulseOf(gate.Delay, gate.Width)).
		Set(picam.AuxOutput, picam.PulseOf(aux.Delay, aux.Width))
}

// SequentialGating sweeps the gate from start to end over steps frames
func SequentialGating(start, end picam.Pulse, steps, iterations int64) picam.ParameterSet {
	return picam.ParameterSet{}.
		Set(picam.GatingMode, picam.Int(picam.GatingModeSequential)).
		Set(picam.SequentialStartingGate, picam.PulseOf(start.Delay, start.Width)).
		Set(picam.SequentialEndingGate, picam.PulseOf(end.Delay, end.Width)).
		Set(picam.SequentialGateStepCount, picam.LargeInt(steps)).
		Set(picam.SequentialGateStepIterations, picam.LargeInt(iterations))
}

// DisableGating turns the SyncMaster and intensifier off and drops the gain
func DisableGating() picam.ParameterSet {
	return picam.ParameterSet{}.
		Set(picam.EnableSyncMaster, picam.Bool(false)).
		Set(picam.EnableIntensifier, picam.Bool(false)).
		Set(picam.IntensifierGain, picam.Int(1))
}

// GatingPlan is a repetitive run followed by a sequential sweep
type GatingPlan struct {
	Common Common `yaml:"common"`

	Gate            picam.Pulse `yaml:"gate"`
	Aux             picam.Pulse `yaml:"aux"`
	RepetitiveShots int         `yaml:"repetitiveshots"`

	SequenceStart picam.Pulse `yaml:"sequencestart"`
	SequenceEnd   picam.Pulse `yaml:"sequenceend"`
	SequenceSteps int64       `yaml:"sequencesteps"`
}

// DefaultGatingPlan takes one repetitive frame, then sweeps four frames
func DefaultGatingPlan() GatingPlan {
	return GatingPlan{
		Common:          Common{TriggerFrequency: 1, IntensifierGain: 20, SyncMaster2Delay: 0.1},
		Gate:            picam.Pulse{Delay: 25, Width: 25},
		Aux:             picam.Pulse{Delay: 50, Width: 25},
		RepetitiveShots: 1,
		SequenceStart:   picam.Pulse{Delay: 25000, Width: 25000},
		SequenceEnd:     picam.Pulse{Delay: 100000, Width: 100000},
		SequenceSteps:   4,
	}
}

// RunGating runs the plan's two phases on p.Session, one frame at a time,
// then disables gating.  p.Config supplies everything but the shots, mode
// and parameters.  Refused parameters are listed in each phase's Summary and
// the phase runs with the rest.  The plan stops once a phase is cancelled or
// fails.
func (p *Pipeline) RunGating(ctx context.Context, plan GatingPlan) ([]Summary, error) {
	if !p.Session.ParameterExists(picam.GatingMode) {
		return nil, ErrGatingUnsupported
	}
	base := p.Config
	defer func() { p.Config = base }()

	common := CommonGating(plan.Common)
	phases := []struct {
		shots int
		ps    picam.ParameterSet
	}{
		{plan.RepetitiveShots, RepetitiveGating(plan.Gate, plan.Aux).Merge(common)},
		{int(plan.SequenceSteps), SequentialGating(plan.SequenceStart, plan.SequenceEnd, plan.SequenceSteps, 1)},
	}

	var (
		out   []Summary
		first error
	)
	for _, ph := range phases {
		cfg := base
		cfg.Shots = ph.shots
		cfg.Mode = camera.Repeat
		cfg.Parameters = ph.ps
		p.Config = cfg
		sum, err := p.Run(ctx)
		out = append(out, sum)
		if err != nil {
			first = err
			break
		}
		if sum.Cancelled {
			break
		}
	}

	if err := p.Session.Configure(DisableGating()); err != nil && first == nil {
		first = err
	}
	if _, err := p.Session.Commit(); err != nil && first == nil {
		first = err
	}
	return out, first
}
