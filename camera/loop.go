package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
)

// ErrStop may be returned by a handoff to end a Loop early without error
var ErrStop = errors.New("camera: stop acquisition")

// Mode is an acquisition style
type Mode int

const (
	// Bulk requests every frame at once and hands off whatever arrived
	Bulk Mode = iota

	// Repeat requests one frame at a time and stops at the first miss
	Repeat
)

func (m Mode) String() string {
	switch m {
	case Bulk:
		return "bulk"
	case Repeat:
		return "repeat"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode converts "bulk" or "repeat" to a Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "bulk", "":
		return Bulk, nil
	case "repeat", "single":
		return Repeat, nil
	}
	return Bulk, fmt.Errorf("camera: unknown acquisition mode %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Loop acquires a run of frames and hands each one off in index order
type Loop struct {
	Session *Session
	Mode    Mode

	// Limiter paces the requests of Repeat mode.  Nil does not pace.
	Limiter *rate.Limiter
}

// Run acquires count frames.  Both modes give a healthy camera's frames the
// indices 0..count-1.  The returned report is never an error by itself; use
// its Err method to treat a partial capture as a failure.  A handoff error
// stops the run and is returned, except ErrStop which stops it quietly.
// Cancelling ctx stops the run between frames and returns ctx.Err().
func (l *Loop) Run(ctx context.Context, count int, policy TimeoutPolicy, handoff func(Frame) error) (AcquisitionReport, error) {
	if l.Mode == Repeat {
		return l.repeat(ctx, count, policy, handoff)
	}
	return l.bulk(ctx, count, policy, handoff)
}

func (l *Loop) bulk(ctx context.Context, count int, policy TimeoutPolicy, handoff func(Frame) error) (AcquisitionReport, error) {
	if err := ctx.Err(); err != nil {
		return AcquisitionReport{Requested: count}, err
	}
	rep, frames, err := l.Session.Acquire(count, policy)
	if err != nil {
		return rep, err
	}
	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := handoff(f); err != nil {
			return rep, stopped(err)
		}
	}
	return rep, nil
}

func (l *Loop) repeat(ctx context.Context, count int, policy TimeoutPolicy, handoff func(Frame) error) (AcquisitionReport, error) {
	rep := AcquisitionReport{Requested: count}
	if count <= 0 {
		return rep, fmt.Errorf("camera: frame count must be positive, got %d", count)
	}
	for i := 0; i < count; i++ {
		if l.Limiter != nil {
			if err := l.Limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return rep, ctx.Err()
				}
				return rep, err
			}
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		one, frames, err := l.Session.Acquire(1, policy)
		rep.Errors |= one.Errors
		if err != nil {
			return rep, err
		}
		if len(frames) == 0 {
			rep.Cause = one.Cause
			l.Session.log.Warn().Int("frame", i).Msg("frame missed, aborting remaining acquisitions")
			return rep, nil
		}
		f := frames[0]
		f.Index = i
		rep.Captured++
		if err := handoff(f); err != nil {
			return rep, stopped(err)
		}
	}
	return rep, nil
}

func stopped(err error) error {
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}
