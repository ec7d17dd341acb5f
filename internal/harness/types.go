package harness

import (
	"github.com/roach88/flexstream/internal/lazy"
	"github.com/roach88/flexstream/internal/scheduler"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Errors contains one message per failed check.
	Errors []string `json:"errors,omitempty"`

	Level lazy.Level `json:"level"`

	Report scheduler.Report `json:"report"`

	// Values are the published values as read back from the store.
	Values map[string]any `json:"values"`

	// RootPasses is the number of calls made on the input dataset.
	RootPasses int `json:"root_passes"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}, Values: map[string]any{}}
}

// AddError records a failed check and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
