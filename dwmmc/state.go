package dwmmc

import "fmt"

// State is the command execution state of a controller.
type State uint8

// Execution states. Idle is both the initial state and the state after a
// successful or hardware-failed command; Halted follows a fatal timeout and
// is final.
const (
	StateIdle State = iota
	StateBusyWait
	StateIssue
	StatePollCompletion
	StateReadResponse
	StateHalted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateBusyWait:
		return "BusyWait"
	case StateIssue:
		return "Issue"
	case StatePollCompletion:
		return "PollCompletion"
	case StateReadResponse:
		return "ReadResponse"
	case StateHalted:
		return "Halted"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}
