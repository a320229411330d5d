package dwmmc

import (
	"fmt"
	"strings"

	"github.com/ardnew/dwmmc/dwmmc/reg"
	"github.com/ardnew/dwmmc/pkg"
)

// ErrorBit is one of the raw interrupt status conditions that fail a command.
type ErrorBit uint32

// Classified error conditions.
const (
	ErrorEndBit          ErrorBit = reg.IntEBE
	ErrorStartBit        ErrorBit = reg.IntSBE
	ErrorHardwareLock    ErrorBit = reg.IntHLE
	ErrorFIFO            ErrorBit = reg.IntFRUN
	ErrorDataTimeout     ErrorBit = reg.IntDRT
	ErrorResponseTimeout ErrorBit = reg.IntRTO
	ErrorDataCRC         ErrorBit = reg.IntDCRC
	ErrorResponseCRC     ErrorBit = reg.IntRCRC
)

// ErrorBits lists every classified condition from the highest bit down.
var ErrorBits = []ErrorBit{
	ErrorEndBit,
	ErrorStartBit,
	ErrorHardwareLock,
	ErrorFIFO,
	ErrorDataTimeout,
	ErrorResponseTimeout,
	ErrorDataCRC,
	ErrorResponseCRC,
}

// String returns the condition name.
func (b ErrorBit) String() string {
	switch b {
	case ErrorEndBit:
		return "end-bit"
	case ErrorStartBit:
		return "start-bit"
	case ErrorHardwareLock:
		return "hardware-lock"
	case ErrorFIFO:
		return "fifo-overrun"
	case ErrorDataTimeout:
		return "data-timeout"
	case ErrorResponseTimeout:
		return "response-timeout"
	case ErrorDataCRC:
		return "data-crc"
	case ErrorResponseCRC:
		return "response-crc"
	default:
		return fmt.Sprintf("ErrorBit(0x%x)", uint32(b))
	}
}

// HardwareError reports a command that completed with error conditions in
// RINTSTS. Status is the raw register value as read.
type HardwareError struct {
	Command uint8
	Status  uint32
}

// Error implements error.
func (e *HardwareError) Error() string {
	names := make([]string, 0, len(ErrorBits))
	for _, b := range e.Bits() {
		names = append(names, b.String())
	}
	return fmt.Sprintf("%v: CMD%d RINTSTS 0x%08x [%s]",
		pkg.ErrHardware, e.Command, e.Status, strings.Join(names, ","))
}

// Is matches [pkg.ErrHardware].
func (e *HardwareError) Is(target error) bool {
	return target == pkg.ErrHardware
}

// Bits returns the classified conditions present in Status.
func (e *HardwareError) Bits() []ErrorBit {
	var out []ErrorBit
	for _, b := range ErrorBits {
		if e.Has(b) {
			out = append(out, b)
		}
	}
	return out
}

// Has reports whether bit is set in Status.
func (e *HardwareError) Has(bit ErrorBit) bool {
	return e.Status&uint32(bit) != 0
}

// Timeout reports whether the card failed to answer or to send data.
func (e *HardwareError) Timeout() bool {
	return e.Has(ErrorResponseTimeout) || e.Has(ErrorDataTimeout)
}
