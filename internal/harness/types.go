package harness

import (
	"github.com/roach88/sheetmyself/internal/sheet"
)

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Op      string `json:"op"`
	Target  string `json:"target,omitempty"`
	Outcome string `json:"outcome"` // "ok" or an error code
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Document is the final document.
	Document *sheet.Document `json:"-"`

	// Refs maps scenario refs to the ids created for them.
	Refs map[string]sheet.SheetID `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Refs:   map[string]sheet.SheetID{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step outcome.
func (r *Result) AddTrace(step int, op, target, outcome string) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Op: op, Target: target, Outcome: outcome})
}
