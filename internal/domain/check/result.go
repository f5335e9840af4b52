package check

import "fmt"

// Status is the verdict of a single rule.
type Status string

const (
	StatusPass    Status = "pass"
	StatusWarn    Status = "warn"
	StatusFail    Status = "fail"
	StatusUnknown Status = "unknown"
)

// Result represents the outcome of evaluating one rule.
type Result struct {
	RuleID  RuleID `json:"rule_id"`
	Title   string `json:"title"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Valid reports whether s is one of the four defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPass, StatusWarn, StatusFail, StatusUnknown:
		return true
	}
	return false
}

func newResult(id RuleID, status Status, format string, args ...any) Result {
	return Result{
		RuleID:  id,
		Title:   id.Title(),
		Status:  status,
		Message: fmt.Sprintf(format, args...),
	}
}

func pass(id RuleID, format string, args ...any) Result {
	return newResult(id, StatusPass, format, args...)
}

func warn(id RuleID, format string, args ...any) Result {
	return newResult(id, StatusWarn, format, args...)
}

func fail(id RuleID, format string, args ...any) Result {
	return newResult(id, StatusFail, format, args...)
}

func unknown(id RuleID, format string, args ...any) Result {
	return newResult(id, StatusUnknown, format, args...)
}
