// Package registry holds the in-memory catalog of validated skills. It enforces
// name uniqueness, reference existence and acyclicity of the combined
// dependency, hook and composite graph at registration time, and answers the
// read queries used by the executor and catalog surfaces.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/jingkaihe/skillrt/pkg/types/skills"
)

type entry struct {
	skill      *skills.Skill
	provenance skills.Provenance
	seq        uint64
}

// Registry is a catalog of skills. The zero value is not usable; create
// instances with New. Reads may run concurrently; registration is serialised.
// The registry owns its skills: Register stores a copy of its input and every
// read returns a copy.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq uint64

	byCategory map[string][]string
	byTag      map[string][]string
	byKind     map[skills.ExecutionKind][]string
}

// New creates an empty registry
func New() *Registry {
	r := &Registry{}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.entries = make(map[string]*entry)
	r.byCategory = make(map[string][]string)
	r.byTag = make(map[string][]string)
	r.byKind = make(map[skills.ExecutionKind][]string)
	r.nextSeq = 0
}

// Reset removes every registered skill
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

// RegisterOption configures a single registration
type RegisterOption func(*registerOptions)

type registerOptions struct {
	replace    bool
	provenance skills.Provenance
}

// WithReplace allows the registration to replace an existing skill of the same name
func WithReplace() RegisterOption {
	return func(o *registerOptions) {
		o.replace = true
	}
}

// WithProvenance records where the skill came from
func WithProvenance(p skills.Provenance) RegisterOption {
	return func(o *registerOptions) {
		o.provenance = p
	}
}

func prepare(skill *skills.Skill) (*skills.Skill, error) {
	if skill == nil {
		return nil, skills.NewError(skills.ErrValidation, "", "skill is nil")
	}
	cp := skill.Clone()
	cp.ApplyDefaults()
	if err := ValidateSkill(cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// Register validates and adds a single skill. Every reference must already be
// registered. On failure the registry is left unchanged.
func (r *Registry) Register(skill *skills.Skill, opts ...RegisterOption) error {
	o := &registerOptions{}
	for _, opt := range opts {
		opt(o)
	}

	s, err := prepare(skill)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[s.Name]; exists && !o.replace {
		return skills.NewError(skills.ErrValidation, s.Name, "a skill with this name is already registered")
	}

	staged := map[string]*skills.Skill{s.Name: s}
	if missing := r.missingRefs(s, staged); len(missing) > 0 {
		return skills.NewError(skills.ErrValidation, s.Name, "unresolved references: %s", strings.Join(missing, ", "))
	}
	if cycle := findCycle(s.Name, r.overlay(staged)); cycle != nil {
		return skills.NewError(skills.ErrValidation, s.Name, "reference cycle: %s", strings.Join(cycle, " -> "))
	}

	r.commit(s, o.provenance)
	return nil
}

// BatchItem is one candidate of a two-phase batch registration
type BatchItem struct {
	Skill      *skills.Skill
	Provenance skills.Provenance
	Replace    bool
}

// RegisterBatch registers a set of skills whose references may point at each
// other in any order. Every candidate is validated on its own first; the
// survivors are then checked as a graph together with the registered skills.
// Only offending candidates are rejected. The returned slice is aligned with
// items and holds nil for every candidate that was registered.
func (r *Registry) RegisterBatch(items []BatchItem) []error {
	errs := make([]error, len(items))
	prepared := make([]*skills.Skill, len(items))
	counts := make(map[string]int)
	for i, item := range items {
		s, err := prepare(item.Skill)
		if err != nil {
			errs[i] = err
			continue
		}
		prepared[i] = s
		counts[s.Name]++
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make(map[string]*skills.Skill)
	index := make(map[string]int)
	for i, s := range prepared {
		if s == nil {
			continue
		}
		if counts[s.Name] > 1 {
			errs[i] = skills.NewError(skills.ErrValidation, s.Name, "skill is defined more than once in the batch")
			continue
		}
		if _, exists := r.entries[s.Name]; exists && !items[i].Replace {
			errs[i] = skills.NewError(skills.ErrValidation, s.Name, "a skill with this name is already registered")
			continue
		}
		staged[s.Name] = s
		index[s.Name] = i
	}

	reject := func(name string, err error) {
		errs[index[name]] = err
		delete(staged, name)
	}

	for changed := true; changed; {
		changed = false

		for i, s := range prepared {
			if s == nil || staged[s.Name] != s || index[s.Name] != i {
				continue
			}
			if missing := r.missingRefs(s, staged); len(missing) > 0 {
				reject(s.Name, skills.NewError(skills.ErrValidation, s.Name, "unresolved references: %s", strings.Join(missing, ", ")))
				changed = true
			}
		}
		if changed {
			continue
		}

		adj := r.overlay(staged)
		for i, s := range prepared {
			if s == nil || staged[s.Name] != s || index[s.Name] != i {
				continue
			}
			cycle := findCycle(s.Name, adj)
			if cycle == nil {
				continue
			}
			for _, name := range cycle {
				if _, ok := staged[name]; ok {
					reject(name, skills.NewError(skills.ErrValidation, name, "reference cycle: %s", strings.Join(cycle, " -> ")))
				}
			}
			changed = true
			break
		}
	}

	for i, s := range prepared {
		if s != nil && staged[s.Name] == s && index[s.Name] == i {
			r.commit(s, items[i].Provenance)
		}
	}
	return errs
}

// missingRefs lists references of s that resolve neither to a staged nor to a
// registered skill. Callers must hold the lock.
func (r *Registry) missingRefs(s *skills.Skill, staged map[string]*skills.Skill) []string {
	var missing []string
	for _, ref := range s.References() {
		if _, ok := staged[ref]; ok {
			continue
		}
		if _, ok := r.entries[ref]; ok {
			continue
		}
		missing = append(missing, ref)
	}
	return missing
}

// overlay views the registry with staged skills shadowing registered ones.
// Callers must hold the lock.
func (r *Registry) overlay(staged map[string]*skills.Skill) adjacency {
	return func(name string) ([]string, bool) {
		if s, ok := staged[name]; ok {
			return s.References(), true
		}
		if e, ok := r.entries[name]; ok {
			return e.skill.References(), true
		}
		return nil, false
	}
}

// commit stores s, keeping the original position of a replaced skill in every
// index. Callers must hold the lock.
func (r *Registry) commit(s *skills.Skill, p skills.Provenance) {
	seq := r.nextSeq
	if old, ok := r.entries[s.Name]; ok {
		seq = old.seq
		r.unindex(old.skill)
	} else {
		r.nextSeq++
	}

	r.entries[s.Name] = &entry{skill: s, provenance: p, seq: seq}
	r.index(s)
}

func (r *Registry) index(s *skills.Skill) {
	r.byCategory[s.Category] = r.insertOrdered(r.byCategory[s.Category], s.Name)
	r.byKind[s.Execution.Kind] = r.insertOrdered(r.byKind[s.Execution.Kind], s.Name)
	for _, tag := range uniqueTags(s) {
		r.byTag[tag] = r.insertOrdered(r.byTag[tag], s.Name)
	}
}

func (r *Registry) unindex(s *skills.Skill) {
	r.byCategory[s.Category] = remove(r.byCategory[s.Category], s.Name)
	if len(r.byCategory[s.Category]) == 0 {
		delete(r.byCategory, s.Category)
	}
	r.byKind[s.Execution.Kind] = remove(r.byKind[s.Execution.Kind], s.Name)
	if len(r.byKind[s.Execution.Kind]) == 0 {
		delete(r.byKind, s.Execution.Kind)
	}
	for _, tag := range uniqueTags(s) {
		r.byTag[tag] = remove(r.byTag[tag], s.Name)
		if len(r.byTag[tag]) == 0 {
			delete(r.byTag, tag)
		}
	}
}

func uniqueTags(s *skills.Skill) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, t := range s.Metadata.Tags {
		t = strings.ToLower(t)
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	return tags
}

// insertOrdered inserts name keeping the list sorted by registration sequence
func (r *Registry) insertOrdered(list []string, name string) []string {
	seq := r.entries[name].seq
	i := sort.Search(len(list), func(i int) bool {
		return r.entries[list[i]].seq > seq
	})
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = name
	return list
}

func remove(list []string, name string) []string {
	for i, n := range list {
		if n == name {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// Unregister removes a skill. A skill still referenced by another registered
// skill cannot be removed.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return skills.NewError(skills.ErrNotFound, name, "skill is not registered")
	}

	var dependents []string
	for other, oe := range r.entries {
		if other == name {
			continue
		}
		for _, ref := range oe.skill.References() {
			if ref == name {
				dependents = append(dependents, other)
				break
			}
		}
	}
	if len(dependents) > 0 {
		sort.Strings(dependents)
		return skills.NewError(skills.ErrValidation, name, "still referenced by %s", strings.Join(dependents, ", "))
	}

	r.unindex(e.skill)
	delete(r.entries, name)
	return nil
}
