package picam

import (
	"encoding/binary"
	"sync"
	"time"
)

// PatternFunc returns the sample at (row, col) of readout k
type PatternFunc func(row, col, k int) uint16

// DefaultPattern is a bias level with a diagonal ramp that changes per readout
func DefaultPattern(row, col, k int) uint16 {
	return uint16(600 + (col*31+row*17+k*101)%512)
}

// ZeroPattern reads out dark, bias-free frames
func ZeroPattern(row, col, k int) uint16 { return 0 }

// DemoOption configures a DemoCamera
type DemoOption func(*DemoCamera)

// WithFrameBudget limits the total readouts the camera will ever produce.
// Acquisitions beyond the budget capture only what is left.
func WithFrameBudget(n int) DemoOption {
	return func(d *DemoCamera) { d.budget = n }
}

// WithPattern sets the function used to synthesize samples
func WithPattern(fn PatternFunc) DemoOption {
	return func(d *DemoCamera) { d.pattern = fn }
}

// WithRealtime makes readouts take the committed exposure time
func WithRealtime(b bool) DemoOption {
	return func(d *DemoCamera) { d.realtime = b }
}

// DemoCamera is a software camera.  Set* stages a value; Get* returns the
// staged value if there is one, else the committed one.  Acquisitions only
// see committed values.
type DemoCamera struct {
	mu        sync.Mutex
	id        CameraID
	info      modelInfo
	committed map[Parameter]Value
	staged    map[Parameter]Value
	budget    int
	pattern   PatternFunc
	realtime  bool
	readouts  int
	closed    bool
}

// NewDemoCamera creates an open demo camera with factory defaults
func NewDemoCamera(id CameraID, opts ...DemoOption) *DemoCamera {
	info := Models[id.Model]
	d := &DemoCamera{
		id:      id,
		info:    info,
		staged:  map[Parameter]Value{},
		budget:  -1,
		pattern: DefaultPattern,
		committed: map[Parameter]Value{
			ExposureTime:         Float(100),
			AdcSpeed:             Float(2),
			AdcAnalogGain:        Int(AdcAnalogGainMedium),
			TriggerResponse:      Int(TriggerResponseNoResponse),
			TriggerDetermination: Int(TriggerDeterminationPositivePolarity),
			TriggerSource:        Int(TriggerSourceInternal),
			TriggerFrequency:     Float(1),
			ReadoutStride:        Int(info.Width * info.Height * 2),
			SensorActiveWidth:    Int(info.Width),
			SensorActiveHeight:   Int(info.Height),
		},
	}
	if info.Intensified {
		d.committed[IntensifierGain] = Int(1)
		d.committed[EnableIntensifier] = Int(0)
		d.committed[EnableSyncMaster] = Int(0)
		d.committed[SyncMaster2Delay] = Float(0)
		d.committed[GatingMode] = Int(GatingModeRepetitive)
		d.committed[RepetitiveGate] = PulseOf(0, 1)
		d.committed[AuxOutput] = PulseOf(0, 1)
		d.committed[SequentialStartingGate] = PulseOf(0, 1)
		d.committed[SequentialEndingGate] = PulseOf(0, 1)
		d.committed[SequentialGateStepCount] = LargeInt(1)
		d.committed[SequentialGateStepIterations] = LargeInt(1)
		d.committed[IntensifierStatus] = Int(IntensifierStatusPoweredOff)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ID returns the camera's identity
func (d *DemoCamera) ID() CameraID { return d.id }

// ParameterExists reports if the model has the parameter
func (d *DemoCamera) ParameterExists(p Parameter) bool {
	info, ok := Parameters[p]
	if !ok {
		return false
	}
	return !info.Gated || d.info.Intensified
}

func (d *DemoCamera) get(p Parameter, typ ValueType) (Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Value{}, ErrInvalidHandle
	}
	if !d.ParameterExists(p) {
		return Value{}, ErrParameterDoesNotExist
	}
	if Parameters[p].Type != typ {
		return Value{}, ErrParameterHasInvalidValueType
	}
	if v, ok := d.staged[p]; ok {
		return v, nil
	}
	return d.committed[p], nil
}

func (d *DemoCamera) set(p Parameter, v Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrInvalidHandle
	}
	if !d.ParameterExists(p) {
		return ErrParameterDoesNotExist
	}
	info := Parameters[p]
	if info.ReadOnly {
		return ErrParameterValueIsReadOnly
	}
	if info.Type != v.Type {
		return ErrParameterHasInvalidValueType
	}
	switch v.Type {
	case TypeInteger, TypeLargeInteger:
		if !info.Constraint.ok(float64(v.Int)) {
			return ErrInvalidParameterValue
		}
	case TypeFloatingPoint:
		if !info.Constraint.ok(v.Float) {
			return ErrInvalidParameterValue
		}
	case TypePulse:
		if v.Pulse.Delay < 0 || v.Pulse.Width <= 0 {
			return ErrInvalidParameterValue
		}
	}
	if cur, ok := d.committed[p]; ok && cur == v {
		delete(d.staged, p)
		return nil
	}
	d.staged[p] = v
	return nil
}

// GetInteger gets an integer parameter
func (d *DemoCamera) GetInteger(p Parameter) (int, error) {
	v, err := d.get(p, TypeInteger)
	return int(v.Int), err
}

// SetInteger stages an integer parameter
func (d *DemoCamera) SetInteger(p Parameter, i int) error { return d.set(p, Int(i)) }

// GetLargeInteger gets a large integer parameter
func (d *DemoCamera) GetLargeInteger(p Parameter) (int64, error) {
	v, err := d.get(p, TypeLargeInteger)
	return v.Int, err
}

// SetLargeInteger stages a large integer parameter
func (d *DemoCamera) SetLargeInteger(p Parameter, i int64) error { return d.set(p, LargeInt(i)) }

// GetFloatingPoint gets a floating point parameter
func (d *DemoCamera) GetFloatingPoint(p Parameter) (float64, error) {
	v, err := d.get(p, TypeFloatingPoint)
	return v.Float, err
}

// SetFloatingPoint stages a floating point parameter
func (d *DemoCamera) SetFloatingPoint(p Parameter, f float64) error { return d.set(p, Float(f)) }

// GetPulse gets a pulse parameter
func (d *DemoCamera) GetPulse(p Parameter) (Pulse, error) {
	v, err := d.get(p, TypePulse)
	return v.Pulse, err
}

// SetPulse stages a pulse parameter
func (d *DemoCamera) SetPulse(p Parameter, pl Pulse) error {
	return d.set(p, Value{Type: TypePulse, Pulse: pl})
}

// AreParametersCommitted is true when nothing is staged
func (d *DemoCamera) AreParametersCommitted() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false, ErrInvalidHandle
	}
	return len(d.staged) == 0, nil
}

// CommitParameters checks the staged values against each other, applies the
// consistent ones and drops the rest
func (d *DemoCamera) CommitParameters() ([]Parameter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrInvalidHandle
	}
	merged := make(map[Parameter]Value, len(d.committed)+len(d.staged))
	for k, v := range d.committed {
		merged[k] = v
	}
	for k, v := range d.staged {
		merged[k] = v
	}
	failed := d.inconsistent(merged)
	for _, p := range failed {
		delete(d.staged, p)
	}
	for k, v := range d.staged {
		d.committed[k] = v
	}
	d.staged = map[Parameter]Value{}
	if d.info.Intensified {
		status := IntensifierStatusPoweredOff
		if d.committed[EnableIntensifier].Int == 1 {
			status = IntensifierStatusPoweredOn
		}
		d.committed[IntensifierStatus] = Int(status)
	}
	return failed, nil
}

// inconsistent returns the staged parameters that break a cross-parameter
// rule.  Each rule blames the first of its parameters that is staged.
func (d *DemoCamera) inconsistent(m map[Parameter]Value) []Parameter {
	bad := []Parameter{}
	blame := func(ps ...Parameter) {
		for _, p := range ps {
			if _, staged := d.staged[p]; staged {
				bad = append(bad, p)
				return
			}
		}
	}
	// the exposure must fit inside one internal trigger period
	if m[TriggerSource].Int == TriggerSourceInternal {
		period := 1000 / m[TriggerFrequency].Float // ms
		if m[ExposureTime].Float > period {
			blame(TriggerFrequency, ExposureTime, TriggerSource)
		}
	}
	if d.info.Intensified {
		start, end := m[SequentialStartingGate].Pulse, m[SequentialEndingGate].Pulse
		if end.Delay < start.Delay {
			blame(SequentialEndingGate, SequentialStartingGate)
		}
	}
	return bad
}

// Acquire synthesizes count readouts
func (d *DemoCamera) Acquire(count int, timeout time.Duration) (AvailableData, AcquisitionErrorsMask, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data := AvailableData{}
	if d.closed {
		return data, AcquisitionErrorsNone, ErrInvalidHandle
	}
	if count <= 0 {
		return data, AcquisitionErrorsNone, ErrInvalidReadoutCount
	}
	if len(d.staged) != 0 {
		return data, AcquisitionErrorsNone, ErrParametersNotCommitted
	}
	n := count
	if d.budget >= 0 && d.budget < n {
		n = d.budget
	}
	exposure := time.Duration(d.committed[ExposureTime].Float * float64(time.Millisecond))
	var reason error
	if d.realtime && timeout >= 0 && exposure > 0 {
		fit := int(timeout / exposure)
		if fit < n {
			n = fit
			reason = ErrTimeOutOccurred
		}
	}

	w, h := d.info.Width, d.info.Height
	stride := w * h * 2
	data.InitialReadout = make([]byte, n*stride)
	for k := 0; k < n; k++ {
		if d.realtime {
			time.Sleep(exposure)
		}
		buf := data.InitialReadout[k*stride : (k+1)*stride]
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				binary.LittleEndian.PutUint16(buf[2*(r*w+c):], d.pattern(r, c, d.readouts))
			}
		}
		d.readouts++
	}
	if d.budget >= 0 {
		d.budget -= n
	}
	data.ReadoutCount = n
	if n == count {
		return data, AcquisitionErrorsNone, nil
	}
	if reason != nil || timeout >= 0 {
		return data, AcquisitionErrorsTimedOut, ErrTimeOutOccurred
	}
	return data, AcquisitionErrorsDataLost, ErrReadoutUnderrun
}

// Close closes the camera.  Later calls fail with ErrInvalidHandle.
func (d *DemoCamera) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrInvalidHandle
	}
	d.closed = true
	return nil
}
