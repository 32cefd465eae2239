package picam

import "fmt"

// Error is a result code from the camera library.  The zero value means
// success and is never returned as an error; use Check to convert a code.
type Error int

const (
	// ErrNone is success
	ErrNone Error = iota
	// ErrUnexpectedError is a catch-all failure inside the library
	ErrUnexpectedError
	// ErrLibraryNotInitialized is returned by any call before Initialize
	ErrLibraryNotInitialized
	// ErrLibraryAlreadyInitialized is returned by a second Initialize
	ErrLibraryAlreadyInitialized
	// ErrInvalidEnumeratedType is returned when asking for a string of an unknown type
	ErrInvalidEnumeratedType
	// ErrEnumerationValueNotDefined is returned when a value has no string for its type
	ErrEnumerationValueNotDefined
	// ErrDeviceNotFound means no camera could be located
	ErrDeviceNotFound
	// ErrInvalidCameraID means the camera ID does not match a connected camera
	ErrInvalidCameraID
	// ErrCameraAlreadyOpened means the camera is owned by another handle
	ErrCameraAlreadyOpened
	// ErrInvalidHandle means the handle was closed or never opened
	ErrInvalidHandle
	// ErrInvalidDemoModel means the model cannot be simulated
	ErrInvalidDemoModel
	// ErrInvalidDemoSerialNumber means the demo serial number is empty
	ErrInvalidDemoSerialNumber
	// ErrDemoAlreadyConnected means a demo camera with this serial number exists
	ErrDemoAlreadyConnected
	// ErrParameterDoesNotExist means the camera does not have the parameter
	ErrParameterDoesNotExist
	// ErrParameterHasInvalidValueType means the value type does not match the parameter
	ErrParameterHasInvalidValueType
	// ErrParameterValueIsReadOnly means the parameter cannot be set
	ErrParameterValueIsReadOnly
	// ErrInvalidParameterValue means the value violates the parameter's constraint
	ErrInvalidParameterValue
	// ErrParametersNotCommitted means an acquisition was requested with staged changes
	ErrParametersNotCommitted
	// ErrInvalidReadoutCount means a non-positive number of readouts was requested
	ErrInvalidReadoutCount
	// ErrTimeOutOccurred means a bounded acquisition ran out of time
	ErrTimeOutOccurred
	// ErrReadoutUnderrun means the camera stopped producing readouts during an unbounded acquisition
	ErrReadoutUnderrun
	// ErrAcquisitionInProgress means the camera is busy
	ErrAcquisitionInProgress
)

// ErrCodes maps error codes to the strings the library reports for them
var ErrCodes = map[Error]string{
	ErrNone:                         "None",
	ErrUnexpectedError:              "Unexpected Error",
	ErrLibraryNotInitialized:        "Library Not Initialized",
	ErrLibraryAlreadyInitialized:    "Library Already Initialized",
	ErrInvalidEnumeratedType:        "Invalid Enumerated Type",
	ErrEnumerationValueNotDefined:   "Enumeration Value Not Defined",
	ErrDeviceNotFound:               "No Cameras Available",
	ErrInvalidCameraID:              "Invalid Camera ID",
	ErrCameraAlreadyOpened:          "Camera Already Opened",
	ErrInvalidHandle:                "Invalid Handle",
	ErrInvalidDemoModel:             "Invalid Demo Model",
	ErrInvalidDemoSerialNumber:      "Invalid Demo Serial Number",
	ErrDemoAlreadyConnected:         "Demo Already Connected",
	ErrParameterDoesNotExist:        "Parameter Does Not Exist",
	ErrParameterHasInvalidValueType: "Parameter Has Invalid Value Type",
	ErrParameterValueIsReadOnly:     "Parameter Value Is Read Only",
	ErrInvalidParameterValue:        "Invalid Parameter Value",
	ErrParametersNotCommitted:       "Parameters Not Committed",
	ErrInvalidReadoutCount:          "Invalid Readout Count",
	ErrTimeOutOccurred:              "Time Out Occurred",
	ErrReadoutUnderrun:              "Readout Underrun",
	ErrAcquisitionInProgress:        "Acquisition In Progress",
}

// Error satisfies the error interface
func (e Error) Error() string {
	if s, ok := ErrCodes[e]; ok {
		return fmt.Sprintf("%d - %s", int(e), s)
	}
	return fmt.Sprintf("%d - UNKNOWN_ERROR_CODE", int(e))
}

// Name returns the bare name of the code, without the numeric prefix
func (e Error) Name() string {
	if s, ok := ErrCodes[e]; ok {
		return s
	}
	return "Unknown Error"
}

// Check returns nil for ErrNone and the code otherwise
func Check(code Error) error {
	if code == ErrNone {
		return nil
	}
	return code
}

// AcquisitionErrorsMask is a bit field of problems seen during an acquisition
type AcquisitionErrorsMask int

const (
	// AcquisitionErrorsNone means nothing went wrong
	AcquisitionErrorsNone AcquisitionErrorsMask = 0
	// AcquisitionErrorsDataLost means readouts were dropped
	AcquisitionErrorsDataLost AcquisitionErrorsMask = 0x1
	// AcquisitionErrorsConnectionLost means the camera went away mid-acquisition
	AcquisitionErrorsConnectionLost AcquisitionErrorsMask = 0x2
	// AcquisitionErrorsTimedOut means a bounded wait expired
	AcquisitionErrorsTimedOut AcquisitionErrorsMask = 0x4
)

var maskNames = []struct {
	bit  AcquisitionErrorsMask
	name string
}{
	{AcquisitionErrorsDataLost, "Data Lost"},
	{AcquisitionErrorsConnectionLost, "Connection Lost"},
	{AcquisitionErrorsTimedOut, "Timed Out"},
}

// String lists the set bits, or "None"
func (m AcquisitionErrorsMask) String() string {
	if m == AcquisitionErrorsNone {
		return "None"
	}
	s := ""
	for _, n := range maskNames {
		if m&n.bit != 0 {
			if s != "" {
				s += " | "
			}
			s += n.name
		}
	}
	return s
}
