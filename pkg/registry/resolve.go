package registry

import (
	"sort"
	"strings"

	"github.com/jingkaihe/skillrt/pkg/types/skills"
)

// GraphInfo summarises a dependency graph. Edges point from a dependency to
// the skill that needs it.
type GraphInfo struct {
	TotalSkills       int      `json:"total_skills"`
	TotalDependencies int      `json:"total_dependencies"`
	AvgDependencies   float64  `json:"avg_dependencies"`
	Density           float64  `json:"density"`
	EntryPoints       []string `json:"entry_points"`
	ExitPoints        []string `json:"exit_points"`
	MaxDepth          int      `json:"max_depth"`
}

// Resolution is the execution plan of a set of skills. Every skill appears
// after all of its dependencies in ExecutionOrder, and skills sharing a
// ParallelGroups entry do not depend on each other.
type Resolution struct {
	ExecutionOrder []string            `json:"execution_order"`
	ParallelGroups [][]string          `json:"parallel_groups"`
	Levels         int                 `json:"dependency_levels"`
	Dependencies   map[string][]string `json:"skill_dependencies"`
	Graph          GraphInfo           `json:"graph_info"`
}

// Resolve orders a closed set of skills by their dependencies. Every
// dependency must be part of the set. Groups are sorted by name, so the plan
// is deterministic.
func Resolve(list []*skills.Skill) (*Resolution, error) {
	deps := make(map[string][]string, len(list))
	for _, s := range list {
		deps[s.Name] = uniqueStrings(s.Dependencies)
	}

	missing := make(map[string]bool)
	for _, s := range list {
		for _, d := range deps[s.Name] {
			if _, ok := deps[d]; !ok {
				missing[d] = true
			}
		}
	}
	if len(missing) > 0 {
		return nil, skills.NewError(skills.ErrValidation, "", "missing dependencies: %s", strings.Join(sortedKeys(missing), ", "))
	}

	dependents := make(map[string][]string, len(deps))
	remaining := make(map[string]int, len(deps))
	edges := 0
	for name, ds := range deps {
		remaining[name] = len(ds)
		edges += len(ds)
		for _, d := range ds {
			dependents[d] = append(dependents[d], name)
		}
	}

	var level []string
	for name, n := range remaining {
		if n == 0 {
			level = append(level, name)
		}
	}

	res := &Resolution{Dependencies: deps}
	placed := 0
	for len(level) > 0 {
		sort.Strings(level)
		res.ParallelGroups = append(res.ParallelGroups, level)
		res.ExecutionOrder = append(res.ExecutionOrder, level...)
		placed += len(level)

		var next []string
		for _, name := range level {
			for _, dependent := range dependents[name] {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		level = next
	}

	if placed < len(deps) {
		var stuck []string
		for name, n := range remaining {
			if n > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		adj := func(name string) ([]string, bool) {
			ds, ok := deps[name]
			return ds, ok
		}
		cycle := findCycle(stuck[0], adj)
		if cycle == nil {
			cycle = stuck
		}
		return nil, skills.NewError(skills.ErrValidation, "", "circular dependencies: %s", strings.Join(cycle, " -> "))
	}

	res.Levels = len(res.ParallelGroups)
	res.Graph = graphInfo(deps, dependents, edges, res.Levels)
	return res, nil
}

func graphInfo(deps, dependents map[string][]string, edges, levels int) GraphInfo {
	n := len(deps)
	info := GraphInfo{
		TotalSkills:       n,
		TotalDependencies: edges,
		EntryPoints:       []string{},
		ExitPoints:        []string{},
	}
	if n > 0 {
		info.AvgDependencies = float64(edges) / float64(n)
		info.MaxDepth = levels - 1
	}
	if n > 1 {
		info.Density = float64(edges) / float64(n*(n-1))
	}
	for name, ds := range deps {
		if len(ds) == 0 {
			info.EntryPoints = append(info.EntryPoints, name)
		}
		if len(dependents[name]) == 0 {
			info.ExitPoints = append(info.ExitPoints, name)
		}
	}
	sort.Strings(info.EntryPoints)
	sort.Strings(info.ExitPoints)
	return info
}

// closure returns the named skills and everything they depend on,
// transitively. Callers must hold the read lock.
func (r *Registry) closure(names []string) ([]*skills.Skill, error) {
	seen := make(map[string]bool)
	var out []*skills.Skill

	var walk func(name string) error
	walk = func(name string) error {
		if seen[name] {
			return nil
		}
		e, ok := r.entries[name]
		if !ok {
			return skills.NewError(skills.ErrNotFound, name, "skill is not registered")
		}
		seen[name] = true
		out = append(out, e.skill)
		for _, d := range e.skill.Dependencies {
			if err := walk(d); err != nil {
				return err
			}
		}
		return nil
	}

	for _, name := range names {
		if err := walk(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ResolveNames plans the named skills together with their transitive
// dependencies
func (r *Registry) ResolveNames(names ...string) (*Resolution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list, err := r.closure(names)
	if err != nil {
		return nil, err
	}
	return Resolve(list)
}

// ExecutionOrder returns the named skills and their transitive dependencies
// with every dependency before the skills that need it
func (r *Registry) ExecutionOrder(names ...string) ([]string, error) {
	res, err := r.ResolveNames(names...)
	if err != nil {
		return nil, err
	}
	return res.ExecutionOrder, nil
}

// ParallelGroups groups the named skills and their transitive dependencies
// by dependency level. Groups run in order; members of a group may run
// concurrently.
func (r *Registry) ParallelGroups(names ...string) ([][]string, error) {
	res, err := r.ResolveNames(names...)
	if err != nil {
		return nil, err
	}
	return res.ParallelGroups, nil
}

// DependencyAnalysis describes where one skill sits in the catalog's
// dependency graph
type DependencyAnalysis struct {
	Skill      string   `json:"skill_name"`
	Direct     []string `json:"direct_dependencies"`
	All        []string `json:"all_dependencies"`
	Dependents []string `json:"dependents"`
	EntryPoint bool     `json:"is_entry_point"`
	ExitPoint  bool     `json:"is_exit_point"`
}

// Analyze reports the direct and transitive dependencies of a skill and every
// skill that depends on it, directly or not
func (r *Registry) Analyze(name string) (*DependencyAnalysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, skills.NewError(skills.ErrNotFound, name, "skill is not registered")
	}

	list, err := r.closure([]string{name})
	if err != nil {
		return nil, err
	}
	all := make(map[string]bool, len(list))
	for _, s := range list {
		if s.Name != name {
			all[s.Name] = true
		}
	}

	dependents := make(map[string][]string)
	for n, other := range r.entries {
		for _, d := range uniqueStrings(other.skill.Dependencies) {
			dependents[d] = append(dependents[d], n)
		}
	}
	users := make(map[string]bool)
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, d := range dependents[current] {
			if !users[d] {
				users[d] = true
				queue = append(queue, d)
			}
		}
	}

	direct := uniqueStrings(e.skill.Dependencies)
	return &DependencyAnalysis{
		Skill:      name,
		Direct:     direct,
		All:        sortedKeys(all),
		Dependents: sortedKeys(users),
		EntryPoint: len(direct) == 0,
		ExitPoint:  len(dependents[name]) == 0,
	}, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
