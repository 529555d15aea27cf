package harness

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	Step          int    `json:"step"`
	Op            string `json:"op"`
	Slot          uint64 `json:"slot"`
	Outcome       string `json:"outcome"` // "ok", "noop" or the error code
	DirectoryCode string `json:"directory_code,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	Record        string `json:"record,omitempty"`
	Table         string `json:"table,omitempty"`
	Added         int    `json:"added,omitempty"`
	Total         uint64 `json:"total,omitempty"`
	ReadyAt       uint64 `json:"ready_at,omitempty"`
	Reclaimed     uint64 `json:"reclaimed,omitempty"`
	Event         string `json:"event,omitempty"`
	EventSeq      int64  `json:"event_seq,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step had its expected outcome and all assertions held.
	Pass bool `json:"pass"`

	// Trace contains one entry per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step outcome to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
