package skills

import (
	"encoding/json"
	"time"
)

// ExecutionContext is supplied by the caller and passed unchanged to every
// hook and composite child of an execution.
type ExecutionContext struct {
	Task        string         `json:"task"`
	Variables   map[string]any `json:"variables,omitempty"`
	Constraints []string       `json:"constraints,omitempty"`
}

// HasConstraint reports whether the context carries the constraint tag
func (c ExecutionContext) HasConstraint(tag string) bool {
	for _, t := range c.Constraints {
		if t == tag {
			return true
		}
	}
	return false
}

// HookOutcome records one hook invocation within a chain
type HookOutcome struct {
	Name     string        `json:"name"`
	Ran      bool          `json:"ran"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    *Error        `json:"error,omitempty"`
}

// HookExecutionResult aggregates the outcomes of one hook chain
type HookExecutionResult struct {
	Trigger       HookTrigger   `json:"trigger"`
	Success       bool          `json:"success"`
	ShouldAbort   bool          `json:"should_abort"`
	Hooks         []HookOutcome `json:"hooks,omitempty"`
	TotalDuration time.Duration `json:"total_duration"`
}

// Executed returns the names of hooks that ran
func (r HookExecutionResult) Executed() []string {
	var names []string
	for _, h := range r.Hooks {
		if h.Ran {
			names = append(names, h.Name)
		}
	}
	return names
}

// Failed returns the names of hooks that ran and failed
func (r HookExecutionResult) Failed() []string {
	var names []string
	for _, h := range r.Hooks {
		if h.Ran && !h.Success {
			names = append(names, h.Name)
		}
	}
	return names
}

// SkillResult is the uniform outcome of an execution. Error is set iff
// Success is false. Results are values and are never modified after return.
type SkillResult struct {
	ExecutionID string                `json:"execution_id"`
	SkillName   string                `json:"skill_name"`
	Success     bool                  `json:"success"`
	Data        any                   `json:"data,omitempty"`
	Error       *Error                `json:"error,omitempty"`
	Duration    time.Duration         `json:"duration"`
	Attempts    int                   `json:"attempts"`
	Timestamp   time.Time             `json:"timestamp"`
	Hooks       []HookExecutionResult `json:"hooks,omitempty"`
}

// Err returns the result error as an error value, nil on success
func (r SkillResult) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// MarshalJSON renders durations in milliseconds for readability
func (r SkillResult) MarshalJSON() ([]byte, error) {
	type alias SkillResult
	return json.Marshal(struct {
		alias
		DurationMS int64 `json:"duration_ms"`
	}{
		alias:      alias(r),
		DurationMS: r.Duration.Milliseconds(),
	})
}
