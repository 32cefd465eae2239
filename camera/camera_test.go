package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.jpl.nasa.gov/bdube/picamfft/picam"
)

func openDemo(t *testing.T, model picam.Model, opts ...picam.DemoOption) (*picam.Library, *Session) {
	t.Helper()
	lib := picam.Initialize()
	t.Cleanup(func() { lib.Uninitialize() })
	s, err := Open(lib, OpenOptions{Demo: true, DemoModel: model, DemoOptions: opts})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return lib, s
}

func TestOpenWithoutCamera(t *testing.T) {
	lib := picam.Initialize()
	defer lib.Uninitialize()
	_, err := Open(lib, OpenOptions{})
	assert.True(t, errors.Is(err, picam.ErrDeviceNotFound))

	start := time.Now()
	_, err = Open(lib, OpenOptions{DiscoveryTimeout: 100 * time.Millisecond})
	assert.True(t, errors.Is(err, picam.ErrDeviceNotFound))
	assert.True(t, time.Since(start) >= 50*time.Millisecond, "discovery should retry")
}

func TestOpenFallsBackToDemo(t *testing.T) {
	_, s := openDemo(t, picam.ModelPixis400)
	assert.Equal(t, picam.ModelPixis400, s.ID().Model)
	assert.Equal(t, "PIXIS: 400B (SN:0008675309) [E2V 1340x400]", s.Describe())
	rows, cols, err := s.FrameShape()
	require.NoError(t, err)
	assert.Equal(t, 400, rows)
	assert.Equal(t, 1340, cols)
}

func TestOpenBySerial(t *testing.T) {
	lib := picam.Initialize()
	defer lib.Uninitialize()
	_, err := lib.ConnectDemoCamera(picam.ModelPixis100F, "A")
	require.NoError(t, err)
	_, err = lib.ConnectDemoCamera(picam.ModelPixis400, "B")
	require.NoError(t, err)

	s, err := Open(lib, OpenOptions{Serial: "B"})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "B", s.ID().SerialNumber)

	_, err = Open(lib, OpenOptions{Serial: "C"})
	assert.True(t, errors.Is(err, picam.ErrDeviceNotFound))
}

func TestSessionIsExclusive(t *testing.T) {
	lib, s := openDemo(t, picam.ModelPixis400)
	_, err := Open(lib, OpenOptions{Serial: s.ID().SerialNumber})
	assert.True(t, errors.Is(err, picam.ErrCameraAlreadyOpened))
	_, err = Open(lib, OpenOptions{Demo: true, DemoModel: picam.ModelPixis400})
	assert.True(t, errors.Is(err, picam.ErrCameraAlreadyOpened))
}

func TestCloseIsIdempotent(t *testing.T) {
	lib, s := openDemo(t, picam.ModelPixis100F)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, lib.IsOpen(s.ID().SerialNumber))

	_, _, err := s.Acquire(1, NoTimeout)
	assert.Equal(t, ErrSessionClosed, err)
	assert.Equal(t, ErrSessionClosed, s.Configure(picam.ParameterSet{}))
	_, err = s.Commit()
	assert.Equal(t, ErrSessionClosed, err)
}

func TestWithSessionCloses(t *testing.T) {
	lib := picam.Initialize()
	defer lib.Uninitialize()
	var serial string
	boom := errors.New("boom")
	err := WithSession(lib, OpenOptions{Demo: true, DemoModel: picam.ModelPixis100F}, func(s *Session) error {
		serial = s.ID().SerialNumber
		return boom
	})
	assert.Equal(t, boom, err)
	assert.False(t, lib.IsOpen(serial))
}

func TestCommitWithNothingStaged(t *testing.T) {
	_, s := openDemo(t, picam.ModelPixis400)
	require.NoError(t, s.Configure(picam.ParameterSet{}))
	res, err := s.Commit()
	require.NoError(t, err)
	assert.True(t, res.AlreadyCommitted)
	assert.Empty(t, res.Failed)
	assert.True(t, res.OK())
}

func TestCommitReportsExactlyTheRejectedSubset(t *testing.T) {
	_, s := openDemo(t, picam.ModelPIMax4)
	ps := picam.ParameterSet{}
	ps.Set(picam.AdcSpeed, picam.Float(3)).
		Set(picam.ExposureTime, picam.Float(500)).
		Set(picam.TriggerFrequency, picam.Float(10)).
		Set(picam.IntensifierGain, picam.Int(20))

	err := s.Configure(ps)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
	assert.True(t, errors.Is(err, picam.ErrInvalidParameterValue))
	var ipe *InvalidParameterError
	require.True(t, errors.As(err, &ipe))
	require.Len(t, ipe.Rejected, 1)
	assert.Equal(t, picam.AdcSpeed, ipe.Rejected[0].Parameter)

	res, err := s.Commit()
	require.NoError(t, err)
	assert.False(t, res.AlreadyCommitted)
	assert.Equal(t, []picam.Parameter{picam.AdcSpeed, picam.TriggerFrequency}, res.Failed)
	assert.Equal(t, []string{"AdcSpeed", "TriggerFrequency"}, res.Names())

	// the valid subset was applied
	res, err = s.Commit()
	require.NoError(t, err)
	assert.True(t, res.AlreadyCommitted)
}

func TestCommitOnlyStageRejections(t *testing.T) {
	_, s := openDemo(t, picam.ModelPixis400)
	ps := picam.ParameterSet{}
	ps.Set(picam.GatingMode, picam.Int(picam.GatingModeRepetitive))
	err := s.Configure(ps)
	assert.True(t, errors.Is(err, picam.ErrParameterDoesNotExist))
	res, err := s.Commit()
	require.NoError(t, err)
	assert.Equal(t, []picam.Parameter{picam.GatingMode}, res.Failed)
}

func TestAcquireScenario(t *testing.T) {
	_, s := openDemo(t, picam.ModelPixis400)
	ps := picam.ParameterSet{}
	ps.Set(picam.AdcSpeed, picam.Float(4)).Set(picam.ExposureTime, picam.Float(210))
	require.NoError(t, s.Configure(ps))
	res, err := s.Commit()
	require.NoError(t, err)
	assert.Empty(t, res.Failed)

	rep, frames, err := s.Acquire(5, NoTimeout)
	require.NoError(t, err)
	assert.True(t, rep.Complete())
	assert.NoError(t, rep.Err())
	require.Len(t, frames, 5)
	for i, f := range frames {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, 400, f.Rows)
		assert.Equal(t, 1340, f.Cols)
		assert.Len(t, f.Pix, 400*1340)
	}
}

func TestCroppedShapeKeepsRows(t *testing.T) {
	_, full := openDemo(t, picam.ModelPixis100F)
	_, ref, err := full.Acquire(1, NoTimeout)
	require.NoError(t, err)

	lib := picam.Initialize()
	defer lib.Uninitialize()
	s, err := Open(lib, OpenOptions{Demo: true, DemoModel: picam.ModelPixis100F, Rows: 50, Cols: 670})
	require.NoError(t, err)
	defer s.Close()
	rows, cols, err := s.FrameShape()
	require.NoError(t, err)
	assert.Equal(t, 50, rows)
	assert.Equal(t, 670, cols)

	_, frames, err := s.Acquire(1, NoTimeout)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	f := frames[0]
	assert.Equal(t, 50, f.Rows)
	assert.Equal(t, 670, f.Cols)
	for _, rc := range [][2]int{{0, 0}, {1, 0}, {1, 669}, {49, 333}} {
		assert.Equal(t, ref[0].At(rc[0], rc[1]), f.At(rc[0], rc[1]), "pixel %v", rc)
	}
}

func TestShapeLargerThanSensor(t *testing.T) {
	lib := picam.Initialize()
	defer lib.Uninitialize()
	_, err := Open(lib, OpenOptions{Demo: true, DemoModel: picam.ModelPixis100F, Cols: 2000})
	assert.Error(t, err)
	assert.False(t, lib.IsOpen(defaultDemoSerial), "a refused session releases the camera")
}

func TestAcquireRejectsBadCounts(t *testing.T) {
	_, s := openDemo(t, picam.ModelPixis100F)
	_, _, err := s.Acquire(0, NoTimeout)
	assert.Error(t, err)
	_, _, err = s.Acquire(-3, Within(time.Second))
	assert.Error(t, err)
}

func TestPartialCaptureIsNotFatal(t *testing.T) {
	_, s := openDemo(t, picam.ModelPixis100F, picam.WithFrameBudget(3))
	rep, frames, err := s.Acquire(5, Within(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Requested)
	assert.Equal(t, 3, rep.Captured)
	assert.Len(t, frames, 3)
	assert.Equal(t, picam.AcquisitionErrorsTimedOut, rep.Errors)
	assert.True(t, errors.Is(rep.Err(), ErrPartialCapture))
	assert.True(t, errors.Is(rep.Cause, picam.ErrTimeOutOccurred))
}

func TestFramesDoNotAlias(t *testing.T) {
	_, s := openDemo(t, picam.ModelPixis100F)
	_, first, err := s.Acquire(1, NoTimeout)
	require.NoError(t, err)
	keep := append([]uint16(nil), first[0].Pix...)
	_, _, err = s.Acquire(2, NoTimeout)
	require.NoError(t, err)
	assert.Equal(t, keep, first[0].Pix)
}

func collect(t *testing.T, mode Mode, count int, opts ...picam.DemoOption) (AcquisitionReport, []Frame) {
	t.Helper()
	_, s := openDemo(t, picam.ModelPixis100F, opts...)
	var got []Frame
	l := Loop{Session: s, Mode: mode}
	rep, err := l.Run(context.Background(), count, NoTimeout, func(f Frame) error {
		got = append(got, f)
		return nil
	})
	require.NoError(t, err)
	return rep, got
}

func TestLoopModesAgree(t *testing.T) {
	bulkRep, bulk := collect(t, Bulk, 4)
	repRep, repeat := collect(t, Repeat, 4)
	assert.True(t, bulkRep.Complete())
	assert.True(t, repRep.Complete())
	require.Len(t, bulk, 4)
	assert.Equal(t, bulk, repeat)
	for i, f := range repeat {
		assert.Equal(t, i, f.Index)
	}
}

func TestLoopShortfall(t *testing.T) {
	rep, got := collect(t, Repeat, 5, picam.WithFrameBudget(2))
	assert.Equal(t, 2, rep.Captured)
	assert.Len(t, got, 2)
	assert.True(t, errors.Is(rep.Err(), ErrPartialCapture))

	rep, got = collect(t, Bulk, 5, picam.WithFrameBudget(2))
	assert.Equal(t, 2, rep.Captured)
	assert.Len(t, got, 2)
}

func TestLoopStops(t *testing.T) {
	_, s := openDemo(t, picam.ModelPixis100F)
	calls := 0
	l := Loop{Session: s, Mode: Repeat}
	rep, err := l.Run(context.Background(), 5, NoTimeout, func(f Frame) error {
		calls++
		return ErrStop
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rep.Captured)

	boom := errors.New("disk full")
	l.Mode = Bulk
	_, err = l.Run(context.Background(), 3, NoTimeout, func(f Frame) error { return boom })
	assert.Equal(t, boom, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Mode = Repeat
	rep, err = l.Run(ctx, 3, NoTimeout, func(f Frame) error { return nil })
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 0, rep.Captured)
}

func TestBulkHandoffStopsOnCancel(t *testing.T) {
	_, s := openDemo(t, picam.ModelPixis100F)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var seen []int
	l := Loop{Session: s, Mode: Bulk}
	rep, err := l.Run(ctx, 5, NoTimeout, func(f Frame) error {
		seen = append(seen, f.Index)
		if f.Index == 1 {
			cancel()
		}
		return nil
	})
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, []int{0, 1}, seen)
	assert.Equal(t, 5, rep.Captured)
}

func TestLoopPacing(t *testing.T) {
	_, s := openDemo(t, picam.ModelPixis100F)
	l := Loop{Session: s, Mode: Repeat, Limiter: rate.NewLimiter(rate.Limit(50), 1)}
	start := time.Now()
	rep, err := l.Run(context.Background(), 3, NoTimeout, func(f Frame) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Captured)
	assert.True(t, time.Since(start) >= 30*time.Millisecond)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Repeat")
	require.NoError(t, err)
	assert.Equal(t, Repeat, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Bulk, m)
	_, err = ParseMode("burst")
	assert.Error(t, err)

	var u Mode
	require.NoError(t, u.UnmarshalText([]byte("bulk")))
	assert.Equal(t, Bulk, u)
}

func TestFrameHelpers(t *testing.T) {
	f, err := NewFrame(2, 2, 3, []uint16{1, 2, 3, 4, 5, 0x0102})
	require.NoError(t, err)
	assert.Equal(t, [3]uint16{3, 4, 5}, f.CenterThree())
	assert.Equal(t, uint16(5), f.At(1, 1))
	b := f.Bytes()
	require.Len(t, b, 12)
	assert.Equal(t, []byte{0x02, 0x01}, b[10:])

	sub, err := f.Region(AOI{Left: 1, Top: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, sub.Rows)
	assert.Equal(t, 2, sub.Cols)
	assert.Equal(t, []uint16{5, 0x0102}, sub.Pix)
	assert.Equal(t, 2, sub.Index)

	_, err = f.Region(RowBand(5, 2))
	assert.True(t, errors.Is(err, ErrEmptyFrame))

	img := f.Gray16()
	assert.Equal(t, uint16(0x0102), img.Gray16At(2, 1).Y)

	_, err = NewFrame(0, 0, 3, nil)
	assert.Equal(t, ErrEmptyFrame, err)
	_, err = NewFrame(0, 2, 2, []uint16{1})
	assert.Error(t, err)
}

func TestAOIRect(t *testing.T) {
	r := RowBand(195, 10).Rect(400, 1340)
	assert.Equal(t, 195, r.Min.Y)
	assert.Equal(t, 205, r.Max.Y)
	assert.Equal(t, 1340, r.Dx())

	r = AOI{Left: 1300, Top: 390, Width: 100, Height: 100}.Rect(400, 1340)
	assert.Equal(t, 40, r.Dx())
	assert.Equal(t, 10, r.Dy())
}
