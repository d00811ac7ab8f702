package core

// StepStatus is the outcome of a step or flow. The zero value is pending.
type StepStatus int

const (
	StatusPending StepStatus = iota // not run yet
	StatusPassed
	StatusFailed  // expected element/text/image never showed up
	StatusErrored // device command failed or step was invalid
	StatusSkipped // an earlier step failed
	StatusWarned  // optional step failed
)

var stepStatusNames = [...]string{
	StatusPending: "pending",
	StatusPassed:  "passed",
	StatusFailed:  "failed",
	StatusErrored: "errored",
	StatusSkipped: "skipped",
	StatusWarned:  "warned",
}

func (s StepStatus) String() string {
	if s < 0 || int(s) >= len(stepStatusNames) {
		return "unknown"
	}
	return stepStatusNames[s]
}

// MarshalText renders the status by name in JSON reports.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsSuccess reports passed or warned.
func (s StepStatus) IsSuccess() bool {
	return s == StatusPassed || s == StatusWarned
}

// IsFailure reports failed or errored; both stop a flow.
func (s StepStatus) IsFailure() bool {
	return s == StatusFailed || s == StatusErrored
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategoryAssertion                       // Element, text or image not found
	ErrCategoryTimeout                         // Retry budget exhausted
	ErrCategoryConnection                      // adb unreachable or shell command failed
	ErrCategoryApp                             // App missing or failed to launch
	ErrCategoryConfig                          // Invalid configuration, missing required field
	ErrCategoryParse                           // Malformed hierarchy, bounds or selector
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryApp:
		return "app"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryParse:
		return "parse"
	default:
		return "unknown"
	}
}

// MarshalText renders the category by name in JSON reports.
func (c ErrorCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
