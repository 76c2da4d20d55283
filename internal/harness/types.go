package harness

import "github.com/roach88/inlinesql/internal/ir"

// CallEvent records one function call made by a scenario.
type CallEvent struct {
	Seq      int64          `json:"seq"`
	Function string         `json:"function"`
	Args     map[string]any `json:"args,omitempty"`

	// Result is the normalized return value: nil, an int64 row count, a
	// column map, or a list of column maps.
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CompiledFunction is the compile outcome of one function.
type CompiledFunction struct {
	Function    string
	Plan        *ir.ExecutionPlan
	Diagnostics ir.Diagnostics
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Functions lists compile outcomes in spec order.
	Functions []CompiledFunction `json:"-"`

	// Trace lists setup and flow calls in order.
	Trace []CallEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []CallEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddCall appends a call to the trace, numbering it.
func (r *Result) AddCall(ev CallEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// Function returns the compile outcome of the named function.
func (r *Result) Function(name string) (CompiledFunction, bool) {
	for _, fn := range r.Functions {
		if fn.Function == name {
			return fn, true
		}
	}
	return CompiledFunction{}, false
}
