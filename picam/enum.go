package picam

import (
	"fmt"
	"strings"
)

// EnumeratedType selects a table for EnumerationString
type EnumeratedType int

const (
	EnumError EnumeratedType = iota + 1
	EnumParameter
	EnumModel
	EnumAdcAnalogGain
	EnumTriggerResponse
	EnumTriggerDetermination
	EnumTriggerSource
	EnumGatingMode
	EnumIntensifierStatus
	EnumAcquisitionErrorsMask
)

// Model is a camera model
type Model int

const (
	// ModelPixis100F is a 1340x100 spectroscopy CCD
	ModelPixis100F Model = iota + 1
	// ModelPixis400 is a 1340x400 spectroscopy CCD
	ModelPixis400
	// ModelPIMax4 is a 1024x1024 intensified CCD capable of gating
	ModelPIMax4
)

type modelInfo struct {
	Name        string
	Width       int
	Height      int
	SensorName  string
	Intensified bool
}

// Models describes the models known to the library
var Models = map[Model]modelInfo{
	ModelPixis100F: {Name: "PIXIS: 100F", Width: 1340, Height: 100, SensorName: "E2V 1340x100"},
	ModelPixis400:  {Name: "PIXIS: 400B", Width: 1340, Height: 400, SensorName: "E2V 1340x400"},
	ModelPIMax4:    {Name: "PI-MAX4: 1024i", Width: 1024, Height: 1024, SensorName: "Kodak 1024x1024", Intensified: true},
}

func (m Model) String() string {
	if info, ok := Models[m]; ok {
		return info.Name
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

// ModelByName looks up a model by its name, ignoring case and punctuation
func ModelByName(name string) (Model, bool) {
	want := squash(name)
	for m, info := range Models {
		if squash(info.Name) == want {
			return m, true
		}
	}
	return 0, false
}

func squash(s string) string {
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, s)
}

var enumStrings = map[EnumeratedType]map[int]string{
	EnumAdcAnalogGain: {
		AdcAnalogGainLow:    "Low",
		AdcAnalogGainMedium: "Medium",
		AdcAnalogGainHigh:   "High",
	},
	EnumTriggerResponse: {
		TriggerResponseNoResponse:               "No Response",
		TriggerResponseReadoutPerTrigger:        "Readout Per Trigger",
		TriggerResponseShiftPerTrigger:          "Shift Per Trigger",
		TriggerResponseExposeDuringTriggerPulse: "Expose During Trigger Pulse",
		TriggerResponseStartOnSingleTrigger:     "Start On Single Trigger",
	},
	EnumTriggerDetermination: {
		TriggerDeterminationPositivePolarity: "Positive Polarity",
		TriggerDeterminationNegativePolarity: "Negative Polarity",
		TriggerDeterminationRisingEdge:       "Rising Edge",
		TriggerDeterminationFallingEdge:      "Falling Edge",
	},
	EnumTriggerSource: {
		TriggerSourceExternal: "External",
		TriggerSourceInternal: "Internal",
	},
	EnumGatingMode: {
		GatingModeRepetitive: "Repetitive",
		GatingModeSequential: "Sequential",
	},
	EnumIntensifierStatus: {
		IntensifierStatusPoweredOff: "Powered Off",
		IntensifierStatusPoweredOn:  "Powered On",
	},
}

// EnumerationString returns the display string for value in the table typ.
// It never talks to a camera.
func EnumerationString(typ EnumeratedType, value int) (string, error) {
	switch typ {
	case EnumError:
		if s, ok := ErrCodes[Error(value)]; ok {
			return s, nil
		}
		return "", ErrEnumerationValueNotDefined
	case EnumParameter:
		if info, ok := Parameters[Parameter(value)]; ok {
			return info.Name, nil
		}
		return "", ErrEnumerationValueNotDefined
	case EnumModel:
		if info, ok := Models[Model(value)]; ok {
			return info.Name, nil
		}
		return "", ErrEnumerationValueNotDefined
	case EnumAcquisitionErrorsMask:
		return AcquisitionErrorsMask(value).String(), nil
	}
	tbl, ok := enumStrings[typ]
	if !ok {
		return "", ErrInvalidEnumeratedType
	}
	s, ok := tbl[value]
	if !ok {
		return "", ErrEnumerationValueNotDefined
	}
	return s, nil
}

// enumValue is the inverse of EnumerationString for the value tables
func enumValue(typ EnumeratedType, s string) (int, bool) {
	want := squash(s)
	for v, name := range enumStrings[typ] {
		if squash(name) == want {
			return v, true
		}
	}
	return 0, false
}
