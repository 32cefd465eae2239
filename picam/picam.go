/*Package picam describes the capability surface of a PICam-style scientific
camera library: opening cameras, getting and setting parameters, committing
them to hardware, and acquiring readouts.

The Camera interface is what the rest of the module consumes.  Library owns
process-wide state and the set of open cameras, and DemoCamera is a software
camera that implements Camera without hardware.

*/
package picam

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// NoTimeout makes Acquire block until every readout arrives
const NoTimeout time.Duration = -1

// ValueType is the storage type of a parameter value
type ValueType int

const (
	// TypeInteger is a 32-bit integer, also used for enums and booleans
	TypeInteger ValueType = iota + 1
	// TypeLargeInteger is a 64-bit integer
	TypeLargeInteger
	// TypeFloatingPoint is a double
	TypeFloatingPoint
	// TypePulse is a delay/width pair
	TypePulse
)

// Pulse is a delay and width, in whatever unit the parameter uses
type Pulse struct {
	// Delay is the time from the trigger to the start of the pulse
	Delay float64 `yaml:"delay" json:"delay"`

	// Width is the duration of the pulse
	Width float64 `yaml:"width" json:"width"`
}

// Value is a tagged parameter value.  Only the field matching Type is meaningful.
type Value struct {
	Type  ValueType
	Int   int64
	Float float64
	Pulse Pulse
}

// Int makes an integer value
func Int(i int) Value { return Value{Type: TypeInteger, Int: int64(i)} }

// Bool makes an integer value of 0 or 1
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

// LargeInt makes a large integer value
func LargeInt(i int64) Value { return Value{Type: TypeLargeInteger, Int: i} }

// Float makes a floating point value
func Float(f float64) Value { return Value{Type: TypeFloatingPoint, Float: f} }

// PulseOf makes a pulse value
func PulseOf(delay, width float64) Value {
	return Value{Type: TypePulse, Pulse: Pulse{Delay: delay, Width: width}}
}

func (v Value) String() string {
	switch v.Type {
	case TypeInteger, TypeLargeInteger:
		return fmt.Sprintf("%d", v.Int)
	case TypeFloatingPoint:
		return fmt.Sprintf("%g", v.Float)
	case TypePulse:
		return fmt.Sprintf("{delay: %g, width: %g}", v.Pulse.Delay, v.Pulse.Width)
	}
	return "<invalid>"
}

// Parameter identifies a camera parameter
type Parameter int

const (
	// ExposureTime is the exposure in milliseconds
	ExposureTime Parameter = iota + 1
	// AdcSpeed is the digitization rate in MHz
	AdcSpeed
	// AdcAnalogGain is one of the AdcAnalogGain* values
	AdcAnalogGain
	// TriggerResponse is one of the TriggerResponse* values
	TriggerResponse
	// TriggerDetermination is one of the TriggerDetermination* values
	TriggerDetermination
	// TriggerSource is one of the TriggerSource* values
	TriggerSource
	// TriggerFrequency is the internal trigger frequency in Hz
	TriggerFrequency
	// IntensifierGain is the intensifier gain, 1-100
	IntensifierGain
	// EnableIntensifier turns the intensifier on or off
	EnableIntensifier
	// EnableSyncMaster turns the SyncMaster outputs on or off
	EnableSyncMaster
	// SyncMaster2Delay is the SyncMaster2 delay in microseconds
	SyncMaster2Delay
	// GatingMode is one of the GatingMode* values
	GatingMode
	// RepetitiveGate is the gate pulse in repetitive gating
	RepetitiveGate
	// AuxOutput is the auxiliary output pulse
	AuxOutput
	// SequentialStartingGate is the first gate in sequential gating
	SequentialStartingGate
	// SequentialEndingGate is the last gate in sequential gating
	SequentialEndingGate
	// SequentialGateStepCount is the number of frames in a gating sequence
	SequentialGateStepCount
	// SequentialGateStepIterations is the number of times each step repeats
	SequentialGateStepIterations
	// ReadoutStride is the size of one readout in bytes
	ReadoutStride
	// SensorActiveWidth is the number of active columns
	SensorActiveWidth
	// SensorActiveHeight is the number of active rows
	SensorActiveHeight
	// IntensifierStatus is one of the IntensifierStatus* values
	IntensifierStatus
)

// enumerated parameter values
const (
	AdcAnalogGainLow    = 1
	AdcAnalogGainMedium = 2
	AdcAnalogGainHigh   = 3

	TriggerResponseNoResponse               = 1
	TriggerResponseReadoutPerTrigger        = 2
	TriggerResponseShiftPerTrigger          = 3
	TriggerResponseExposeDuringTriggerPulse = 4
	TriggerResponseStartOnSingleTrigger     = 5

	TriggerDeterminationPositivePolarity = 1
	TriggerDeterminationNegativePolarity = 2
	TriggerDeterminationRisingEdge       = 3
	TriggerDeterminationFallingEdge      = 4

	TriggerSourceExternal = 1
	TriggerSourceInternal = 2

	GatingModeRepetitive = 1
	GatingModeSequential = 2

	IntensifierStatusPoweredOff = 1
	IntensifierStatusPoweredOn  = 2
)

// constraint is the set of values a parameter accepts.  A nil Allowed
// with Min == Max == 0 means unconstrained.
type constraint struct {
	Min, Max float64
	Allowed  []float64
}

func (c constraint) ok(f float64) bool {
	if len(c.Allowed) > 0 {
		for _, a := range c.Allowed {
			if a == f {
				return true
			}
		}
		return false
	}
	if c.Min == 0 && c.Max == 0 {
		return true
	}
	return f >= c.Min && f <= c.Max
}

// parameterInfo describes a parameter to the demo camera and to config parsing
type parameterInfo struct {
	Name       string
	Type       ValueType
	ReadOnly   bool
	Gated      bool // only present on intensified cameras
	Constraint constraint
	Enum       EnumeratedType
}

// Parameters maps each parameter to its description
var Parameters = map[Parameter]parameterInfo{
	ExposureTime:                 {Name: "ExposureTime", Type: TypeFloatingPoint, Constraint: constraint{Min: 0, Max: 1e7}},
	AdcSpeed:                     {Name: "AdcSpeed", Type: TypeFloatingPoint, Constraint: constraint{Allowed: []float64{0.1, 1, 2, 4, 16}}},
	AdcAnalogGain:                {Name: "AdcAnalogGain", Type: TypeInteger, Constraint: constraint{Allowed: []float64{1, 2, 3}}, Enum: EnumAdcAnalogGain},
	TriggerResponse:              {Name: "TriggerResponse", Type: TypeInteger, Constraint: constraint{Min: 1, Max: 5}, Enum: EnumTriggerResponse},
	TriggerDetermination:         {Name: "TriggerDetermination", Type: TypeInteger, Constraint: constraint{Min: 1, Max: 4}, Enum: EnumTriggerDetermination},
	TriggerSource:                {Name: "TriggerSource", Type: TypeInteger, Constraint: constraint{Allowed: []float64{1, 2}}, Enum: EnumTriggerSource},
	TriggerFrequency:             {Name: "TriggerFrequency", Type: TypeFloatingPoint, Constraint: constraint{Min: 1e-3, Max: 1e6}},
	IntensifierGain:              {Name: "IntensifierGain", Type: TypeInteger, Gated: true, Constraint: constraint{Min: 1, Max: 100}},
	EnableIntensifier:            {Name: "EnableIntensifier", Type: TypeInteger, Gated: true, Constraint: constraint{Allowed: []float64{0, 1}}},
	EnableSyncMaster:             {Name: "EnableSyncMaster", Type: TypeInteger, Gated: true, Constraint: constraint{Allowed: []float64{0, 1}}},
	SyncMaster2Delay:             {Name: "SyncMaster2Delay", Type: TypeFloatingPoint, Gated: true, Constraint: constraint{Min: 0, Max: 1e6}},
	GatingMode:                   {Name: "GatingMode", Type: TypeInteger, Gated: true, Constraint: constraint{Allowed: []float64{1, 2}}, Enum: EnumGatingMode},
	RepetitiveGate:               {Name: "RepetitiveGate", Type: TypePulse, Gated: true},
	AuxOutput:                    {Name: "AuxOutput", Type: TypePulse, Gated: true},
	SequentialStartingGate:       {Name: "SequentialStartingGate", Type: TypePulse, Gated: true},
	SequentialEndingGate:         {Name: "SequentialEndingGate", Type: TypePulse, Gated: true},
	SequentialGateStepCount:      {Name: "SequentialGateStepCount", Type: TypeLargeInteger, Gated: true, Constraint: constraint{Min: 1, Max: 65535}},
	SequentialGateStepIterations: {Name: "SequentialGateStepIterations", Type: TypeLargeInteger, Gated: true, Constraint: constraint{Min: 1, Max: 65535}},
	ReadoutStride:                {Name: "ReadoutStride", Type: TypeInteger, ReadOnly: true},
	SensorActiveWidth:            {Name: "SensorActiveWidth", Type: TypeInteger, ReadOnly: true},
	SensorActiveHeight:           {Name: "SensorActiveHeight", Type: TypeInteger, ReadOnly: true},
	IntensifierStatus:            {Name: "IntensifierStatus", Type: TypeInteger, ReadOnly: true, Gated: true, Enum: EnumIntensifierStatus},
}

func (p Parameter) String() string {
	if info, ok := Parameters[p]; ok {
		return info.Name
	}
	return fmt.Sprintf("Parameter(%d)", int(p))
}

// Type returns the value type of the parameter, or 0 if it is unknown
func (p Parameter) Type() ValueType {
	return Parameters[p].Type
}

// ParameterByName looks a parameter up by name, ignoring case
func ParameterByName(name string) (Parameter, bool) {
	for p, info := range Parameters {
		if strings.EqualFold(info.Name, name) {
			return p, true
		}
	}
	return 0, false
}

// CameraID identifies one camera
type CameraID struct {
	Model        Model  `json:"model"`
	SerialNumber string `json:"serialNumber"`
	SensorName   string `json:"sensorName"`
}

func (id CameraID) String() string {
	return fmt.Sprintf("%s (SN:%s) [%s]", id.Model, id.SerialNumber, id.SensorName)
}

// AvailableData holds the readouts of one acquisition
type AvailableData struct {
	// InitialReadout is ReadoutCount readouts back to back, each ReadoutStride bytes
	InitialReadout []byte

	// ReadoutCount is the number of readouts actually captured
	ReadoutCount int
}

// Camera is an open camera.  Set* calls stage values; nothing reaches the
// hardware until CommitParameters.
type Camera interface {
	// ID returns the identity of the camera
	ID() CameraID

	// ParameterExists reports if the camera has the parameter at all
	ParameterExists(Parameter) bool

	GetInteger(Parameter) (int, error)
	SetInteger(Parameter, int) error
	GetLargeInteger(Parameter) (int64, error)
	SetLargeInteger(Parameter, int64) error
	GetFloatingPoint(Parameter) (float64, error)
	SetFloatingPoint(Parameter, float64) error
	GetPulse(Parameter) (Pulse, error)
	SetPulse(Parameter, Pulse) error

	// AreParametersCommitted is false when staged values are waiting for a commit
	AreParametersCommitted() (bool, error)

	// CommitParameters applies every valid staged value and returns the
	// parameters which failed, in the order the camera checked them
	CommitParameters() ([]Parameter, error)

	// Acquire collects count readouts.  A negative timeout waits forever.
	// When fewer readouts arrive the data holds what was captured and the
	// error explains why.
	Acquire(count int, timeout time.Duration) (AvailableData, AcquisitionErrorsMask, error)

	// Close releases the camera
	Close() error
}

// SetValue stages v on c, dispatching on the parameter's type
func SetValue(c Camera, p Parameter, v Value) error {
	info, ok := Parameters[p]
	if !ok {
		return ErrParameterDoesNotExist
	}
	if info.Type != v.Type {
		return ErrParameterHasInvalidValueType
	}
	switch v.Type {
	case TypeInteger:
		return c.SetInteger(p, int(v.Int))
	case TypeLargeInteger:
		return c.SetLargeInteger(p, v.Int)
	case TypeFloatingPoint:
		return c.SetFloatingPoint(p, v.Float)
	case TypePulse:
		return c.SetPulse(p, v.Pulse)
	}
	return ErrParameterHasInvalidValueType
}

// GetValue reads p from c, dispatching on the parameter's type
func GetValue(c Camera, p Parameter) (Value, error) {
	switch p.Type() {
	case TypeInteger:
		i, err := c.GetInteger(p)
		return Int(i), err
	case TypeLargeInteger:
		i, err := c.GetLargeInteger(p)
		return LargeInt(i), err
	case TypeFloatingPoint:
		f, err := c.GetFloatingPoint(p)
		return Float(f), err
	case TypePulse:
		pl, err := c.GetPulse(p)
		return Value{Type: TypePulse, Pulse: pl}, err
	}
	return Value{}, ErrParameterDoesNotExist
}

// ParameterSet maps parameters to the values to stage.  Setting a parameter
// twice keeps the last value.
type ParameterSet map[Parameter]Value

// Set stores v for p and returns the set, for chaining
func (ps ParameterSet) Set(p Parameter, v Value) ParameterSet {
	ps[p] = v
	return ps
}

// Keys returns the parameters in a stable order
func (ps ParameterSet) Keys() []Parameter {
	keys := make([]Parameter, 0, len(ps))
	for k := range ps {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Merge copies every entry of other into ps, overwriting duplicates
func (ps ParameterSet) Merge(other ParameterSet) ParameterSet {
	for k, v := range other {
		ps[k] = v
	}
	return ps
}

// Map converts the set to the name->value form used in config files
func (ps ParameterSet) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(ps))
	for p, v := range ps {
		switch v.Type {
		case TypeInteger, TypeLargeInteger:
			out[p.String()] = int(v.Int)
		case TypeFloatingPoint:
			out[p.String()] = v.Float
		case TypePulse:
			out[p.String()] = map[string]interface{}{"delay": v.Pulse.Delay, "width": v.Pulse.Width}
		}
	}
	return out
}
