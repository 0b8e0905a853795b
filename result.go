package portability

import "fmt"

// Result is the status code returned by every operation of the translated
// API. The values and their meanings are fixed by the target API; backends
// report their own error conditions and the layer maps them onto the
// closest code here.
type Result int32

const (
	Success    Result = 0
	NotReady   Result = 1
	Timeout    Result = 2
	EventSet   Result = 3
	EventReset Result = 4
	Incomplete Result = 5

	ErrorOutOfHostMemory      Result = -1
	ErrorOutOfDeviceMemory    Result = -2
	ErrorInitializationFailed Result = -3
	ErrorDeviceLost           Result = -4
	ErrorMemoryMapFailed      Result = -5
	ErrorExtensionNotPresent  Result = -7
	ErrorFeatureNotPresent    Result = -8
	ErrorTooManyObjects       Result = -10
	ErrorFormatNotSupported   Result = -11
	ErrorFragmentedPool       Result = -12
	ErrorUnknown              Result = -13

	ErrorOutOfPoolMemory       Result = -1000069000
	ErrorInvalidExternalHandle Result = -1000072003
	ErrorValidationFailed      Result = -1000011001
)

func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case NotReady:
		return "NotReady"
	case Timeout:
		return "Timeout"
	case EventSet:
		return "EventSet"
	case EventReset:
		return "EventReset"
	case Incomplete:
		return "Incomplete"
	case ErrorOutOfHostMemory:
		return "ErrorOutOfHostMemory"
	case ErrorOutOfDeviceMemory:
		return "ErrorOutOfDeviceMemory"
	case ErrorInitializationFailed:
		return "ErrorInitializationFailed"
	case ErrorDeviceLost:
		return "ErrorDeviceLost"
	case ErrorMemoryMapFailed:
		return "ErrorMemoryMapFailed"
	case ErrorExtensionNotPresent:
		return "ErrorExtensionNotPresent"
	case ErrorFeatureNotPresent:
		return "ErrorFeatureNotPresent"
	case ErrorTooManyObjects:
		return "ErrorTooManyObjects"
	case ErrorFormatNotSupported:
		return "ErrorFormatNotSupported"
	case ErrorFragmentedPool:
		return "ErrorFragmentedPool"
	case ErrorUnknown:
		return "ErrorUnknown"
	case ErrorOutOfPoolMemory:
		return "ErrorOutOfPoolMemory"
	case ErrorInvalidExternalHandle:
		return "ErrorInvalidExternalHandle"
	case ErrorValidationFailed:
		return "ErrorValidationFailed"
	}
	return fmt.Sprintf("Result(%d)", int32(r))
}

// resultError wraps a non-success Result as a Go error.
type resultError struct {
	result Result
}

func (e *resultError) Error() string {
	return e.result.String()
}

// Error converts a Result into an error, returning nil for Success. The
// positive status codes (NotReady, Timeout, ...) are informational and also
// map to nil; callers that need them use the Result return directly.
func Error(r Result) error {
	if r >= 0 {
		return nil
	}
	return &resultError{result: r}
}

// AsResult recovers the Result from an error produced by this package.
// Errors from other sources map to ErrorUnknown, which is the required
// behavior for backend failures the layer has no closer code for.
func AsResult(err error) Result {
	if err == nil {
		return Success
	}
	if re, ok := err.(*resultError); ok {
		return re.result
	}
	return ErrorUnknown
}
