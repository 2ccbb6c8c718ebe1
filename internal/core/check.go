package core

import "fmt"

// Finding is one diagnostic produced by a check.
type Finding struct {
	Check      string `json:"check"`
	CWE        string `json:"cwe,omitempty"`
	Message    string `json:"message"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	Severity   string `json:"severity"`
	Confidence string `json:"confidence"`
}

// Check is a named analysis run over one parsed unit.
type Check interface {
	Name() string
	Description() string
	Run(ctx *AnalysisContext) ([]Finding, error)
}

// Severity levels
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Confidence levels
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// CWE IDs used by the shipped checks.
const (
	CWE193 = "CWE-193" // Off-by-one Error
	CWE125 = "CWE-125" // Out-of-bounds Read
	CWE787 = "CWE-787" // Out-of-bounds Write
)

// ErrorWrapper tags an error with the check that produced it.
type ErrorWrapper struct {
	CheckName string
	Err       error
}

func (e *ErrorWrapper) Error() string {
	return fmt.Sprintf("check %s: %v", e.CheckName, e.Err)
}

func (e *ErrorWrapper) Unwrap() error { return e.Err }

// WrapError wraps a check error.
func WrapError(c Check, err error) error {
	return &ErrorWrapper{CheckName: c.Name(), Err: err}
}
