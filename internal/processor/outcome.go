package processor

// Outcome is the result of one processor invocation. It is immutable once
// produced; the chain records it and merges Context into the run's
// processing context.
type Outcome struct {
	// Success reports whether the step achieved its purpose. A false
	// value does not halt the chain.
	Success bool

	// Message is a human-readable summary of what happened.
	Message string

	// Stats carries numeric or structural facts about the run
	// (byte counts, ratios, timings).
	Stats map[string]any

	// Context is the delta merged into the run's processing context
	// after the step completes.
	Context map[string]any
}

// Succeeded returns a successful outcome with the given message.
func Succeeded(message string) *Outcome {
	return &Outcome{Success: true, Message: message}
}

// Failed returns a failed outcome with the given message.
func Failed(message string) *Outcome {
	return &Outcome{Success: false, Message: message}
}

// WithStat returns the outcome with a stat added, for call chaining.
func (o *Outcome) WithStat(key string, value any) *Outcome {
	if o.Stats == nil {
		o.Stats = make(map[string]any)
	}
	o.Stats[key] = value
	return o
}

// WithContext returns the outcome with a context-delta entry added.
func (o *Outcome) WithContext(key string, value any) *Outcome {
	if o.Context == nil {
		o.Context = make(map[string]any)
	}
	o.Context[key] = value
	return o
}
