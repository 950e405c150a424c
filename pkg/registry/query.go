package registry

import (
	"sort"
	"strings"

	"github.com/jingkaihe/skillrt/pkg/types/skills"
)

// Get returns the named skill or a NotFoundError
func (r *Registry) Get(name string) (*skills.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, skills.NewError(skills.ErrNotFound, name, "skill is not registered")
	}
	return e.skill.Clone(), nil
}

// Exists reports whether a skill with the name is registered
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[name]
	return ok
}

// Provenance returns where the named skill was loaded from
func (r *Registry) Provenance(name string) (skills.Provenance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return skills.Provenance{}, false
	}
	return e.provenance, true
}

// Len returns the number of registered skills
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// List returns every skill in registration order
func (r *Registry) List() []*skills.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]*skills.Skill, len(entries))
	for i, e := range entries {
		out[i] = e.skill.Clone()
	}
	return out
}

// Names returns every skill name in registration order
func (r *Registry) Names() []string {
	list := r.List()
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Name
	}
	return names
}

func (r *Registry) resolve(names []string) []*skills.Skill {
	out := make([]*skills.Skill, 0, len(names))
	for _, n := range names {
		out = append(out, r.entries[n].skill.Clone())
	}
	return out
}

// FindByCategory returns skills of the category in registration order
func (r *Registry) FindByCategory(category string) []*skills.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(r.byCategory[category])
}

// FindByTag returns skills carrying the tag, compared case-insensitively
func (r *Registry) FindByTag(tag string) []*skills.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(r.byTag[strings.ToLower(tag)])
}

// FindByExecutionKind returns skills using the backend kind
func (r *Registry) FindByExecutionKind(kind skills.ExecutionKind) []*skills.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(r.byKind[kind])
}

// FindForDomain returns skills with a tag containing domain as a
// case-insensitive substring, e.g. "front" matches "frontend".
func (r *Registry) FindForDomain(domain string) []*skills.Skill {
	domain = strings.ToLower(domain)
	var out []*skills.Skill
	for _, s := range r.List() {
		for _, tag := range s.Metadata.Tags {
			if strings.Contains(strings.ToLower(tag), domain) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Stats summarises the catalog for observability
type Stats struct {
	Total            int                          `json:"total"`
	ByCategory       map[string]int               `json:"by_category"`
	ByKind           map[skills.ExecutionKind]int `json:"by_kind"`
	Tags             int                          `json:"tags"`
	AvgParameters    float64                      `json:"avg_parameters"`
	WithDependencies int                          `json:"with_dependencies"`
	WithHooks        int                          `json:"with_hooks"`
}

// Stats computes catalog statistics
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{
		Total:      len(r.entries),
		ByCategory: make(map[string]int, len(r.byCategory)),
		ByKind:     make(map[skills.ExecutionKind]int, len(r.byKind)),
		Tags:       len(r.byTag),
	}
	for c, names := range r.byCategory {
		st.ByCategory[c] = len(names)
	}
	for k, names := range r.byKind {
		st.ByKind[k] = len(names)
	}

	params := 0
	for _, e := range r.entries {
		params += len(e.skill.Parameters)
		if len(e.skill.Dependencies) > 0 {
			st.WithDependencies++
		}
		if !e.skill.Hooks.Empty() {
			st.WithHooks++
		}
	}
	if st.Total > 0 {
		st.AvgParameters = float64(params) / float64(st.Total)
	}
	return st
}
