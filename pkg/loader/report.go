package loader

import (
	"github.com/hashicorp/go-multierror"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
)

// LoadedSkill is a document that resulted in a registered skill
type LoadedSkill struct {
	Name   string            `json:"name"`
	Path   string            `json:"path"`
	Source skills.SourceKind `json:"source"`
	// Unchanged is set when an identical document was already registered
	Unchanged bool `json:"unchanged,omitempty"`
}

// SkippedDocument is a document that was not registered
type SkippedDocument struct {
	Path   string            `json:"path"`
	Source skills.SourceKind `json:"source"`
	Reason string            `json:"reason"`
}

// LoadReport accounts for every document a load saw. Each document appears
// exactly once across Loaded and Skipped; documents skipped because of an
// error also contribute their error to Errors.
type LoadReport struct {
	Loaded  []LoadedSkill     `json:"loaded"`
	Skipped []SkippedDocument `json:"skipped"`
	Errors  []error           `json:"-"`
	Notes   []string          `json:"notes,omitempty"`
}

// Documents returns the number of documents accounted for
func (r *LoadReport) Documents() int {
	return len(r.Loaded) + len(r.Skipped)
}

// Err aggregates every document error, or returns nil
func (r *LoadReport) Err() error {
	var result *multierror.Error
	for _, err := range r.Errors {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Merge appends the entries of other to r
func (r *LoadReport) Merge(other *LoadReport) {
	if other == nil {
		return
	}
	r.Loaded = append(r.Loaded, other.Loaded...)
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Errors = append(r.Errors, other.Errors...)
	r.Notes = append(r.Notes, other.Notes...)
}

// ErrorMessages returns the error strings, for serialisation
func (r *LoadReport) ErrorMessages() []string {
	msgs := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		msgs[i] = err.Error()
	}
	return msgs
}

func (r *LoadReport) skip(path string, source skills.SourceKind, reason string) {
	r.Skipped = append(r.Skipped, SkippedDocument{Path: path, Source: source, Reason: reason})
}

func (r *LoadReport) fail(path string, source skills.SourceKind, err error) {
	r.skip(path, source, err.Error())
	r.Errors = append(r.Errors, err)
}
