package pkg

import "errors"

// Engine errors.
var (
	// ErrConfig indicates a programming or configuration error, such as an
	// unsupported bus width or an unreachable clock target.
	ErrConfig = errors.New("invalid configuration")

	// ErrFatalTimeout indicates a bounded poll loop exhausted its budget.
	// The controller is considered wedged.
	ErrFatalTimeout = errors.New("fatal timeout")

	// ErrHardware indicates the controller reported an error condition in
	// its raw interrupt status.
	ErrHardware = errors.New("hardware error")

	// ErrInvalidArgument indicates a misaligned buffer, a bad transfer size
	// or an out-of-range command index.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotSupported indicates an operation the active data path cannot
	// perform, such as a write without DMA.
	ErrNotSupported = errors.New("not supported")

	// ErrHalted indicates the driver stopped after a fatal timeout.
	ErrHalted = errors.New("controller halted")
)

// Recoverable reports whether a caller may reasonably reissue the operation
// that returned err. Configuration errors and fatal timeouts are final.
func Recoverable(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrConfig),
		errors.Is(err, ErrFatalTimeout),
		errors.Is(err, ErrHalted):
		return false
	case errors.Is(err, ErrHardware),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrNotSupported):
		return true
	default:
		return false
	}
}
