// Package discovery enumerates skill sources in a fixed precedence order,
// resolves name conflicts between them and keeps a registry in sync with
// what it finds.
package discovery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jingkaihe/skillrt/pkg/loader"
	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/registry"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/pkg/errors"
)

// sourceRank orders source kinds from lowest to highest precedence
var sourceRank = map[skills.SourceKind]int{
	skills.SourceBuiltin: 0,
	skills.SourceProject: 1,
	skills.SourceUser:    2,
	skills.SourceAdapter: 3,
}

// Engine discovers skills and registers the winners of every name conflict
type Engine struct {
	mu sync.Mutex

	registry *registry.Registry
	loader   *loader.Loader

	builtin     fs.FS
	projectDir  string
	userDir     string
	adapterDirs []string
	adapters    []Adapter
	tools       ToolLister
	exclude     []string

	// owned holds the names the last discovery registered
	owned map[string]bool
}

// Option is a function that configures an Engine
type Option func(*Engine) error

// WithBuiltin sets the bundled skill tree
func WithBuiltin(fsys fs.FS) Option {
	return func(e *Engine) error {
		e.builtin = fsys
		return nil
	}
}

// WithProjectDir sets the project-local skill directory
func WithProjectDir(dir string) Option {
	return func(e *Engine) error {
		e.projectDir = dir
		return nil
	}
}

// WithUserDir sets the user-global skill directory
func WithUserDir(dir string) Option {
	return func(e *Engine) error {
		e.userDir = dir
		return nil
	}
}

// WithDefaultDirs uses ./.skillrt/skills and ~/.skillrt/skills
func WithDefaultDirs() Option {
	return func(e *Engine) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		e.projectDir = filepath.Join(".", ".skillrt", "skills")
		e.userDir = filepath.Join(homeDir, ".skillrt", "skills")
		return nil
	}
}

// WithAdapterDirs sets the directories adapters scan for manifests
func WithAdapterDirs(dirs ...string) Option {
	return func(e *Engine) error {
		e.adapterDirs = dirs
		return nil
	}
}

// WithAdapters sets the manifest adapters
func WithAdapters(adapters ...Adapter) Option {
	return func(e *Engine) error {
		e.adapters = adapters
		return nil
	}
}

// WithToolLister generates mcp_<server>_<tool> skills from the listed MCP tools
func WithToolLister(l ToolLister) Option {
	return func(e *Engine) error {
		e.tools = l
		return nil
	}
}

// WithExclude skips documents matching any of the glob patterns
func WithExclude(patterns ...string) Option {
	return func(e *Engine) error {
		e.exclude = append(e.exclude, patterns...)
		return nil
	}
}

// New creates a discovery engine populating reg. Without options the default
// directories are used.
func New(reg *registry.Registry, opts ...Option) (*Engine, error) {
	e := &Engine{
		registry: reg,
		owned:    make(map[string]bool),
	}

	if len(opts) == 0 {
		opts = []Option{WithDefaultDirs()}
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	l, err := loader.New(reg, loader.WithExclude(e.exclude...))
	if err != nil {
		return nil, err
	}
	e.loader = l
	return e, nil
}

// Loader returns the loader the engine registers through
func (e *Engine) Loader() *loader.Loader {
	return e.loader
}

// Dirs returns the skill and adapter directories the engine reads
func (e *Engine) Dirs() []string {
	var dirs []string
	for _, d := range []string{e.projectDir, e.userDir} {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return append(dirs, e.adapterDirs...)
}

func (e *Engine) sources() []loader.Source {
	var sources []loader.Source
	if e.builtin != nil {
		sources = append(sources, loader.Source{Kind: skills.SourceBuiltin, FS: e.builtin, Name: "builtin"})
	}
	if e.projectDir != "" {
		sources = append(sources, loader.DirSource(skills.SourceProject, e.projectDir))
	}
	if e.userDir != "" {
		sources = append(sources, loader.DirSource(skills.SourceUser, e.userDir))
	}
	return sources
}

// Discover reads every source, keeps the highest precedence document for each
// name and registers the winners. Skills registered by an earlier discovery
// that are no longer found are unregistered.
func (e *Engine) Discover(ctx context.Context) *loader.LoadReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	log := logger.G(ctx)
	report := &loader.LoadReport{}
	var order []string
	winners := make(map[string]loader.Candidate)

	consider := func(c loader.Candidate) {
		name := c.Skill.Name
		prev, exists := winners[name]
		if !exists {
			winners[name] = c
			order = append(order, name)
			return
		}

		if sourceRank[c.Provenance.Source] == sourceRank[prev.Provenance.Source] {
			err := skills.NewError(skills.ErrValidation, name, "also defined in %s", prev.Provenance.Path)
			report.Skipped = append(report.Skipped, loader.SkippedDocument{Path: c.Provenance.Path, Source: c.Provenance.Source, Reason: err.Error()})
			report.Errors = append(report.Errors, err)
			return
		}

		winner, loser := c, prev
		if sourceRank[c.Provenance.Source] < sourceRank[prev.Provenance.Source] {
			winner, loser = prev, c
		}
		winners[name] = winner
		report.Skipped = append(report.Skipped, loader.SkippedDocument{
			Path:   loser.Provenance.Path,
			Source: loser.Provenance.Source,
			Reason: "shadowed by " + string(winner.Provenance.Source) + " skill at " + winner.Provenance.Path,
		})
		report.Notes = append(report.Notes, "skill "+name+" from "+string(winner.Provenance.Source)+" overrides "+string(loser.Provenance.Source))
		log.WithField("skill", name).
			WithField("winner", winner.Provenance.Path).
			WithField("shadowed", loser.Provenance.Path).
			Info("skill name conflict resolved by precedence")
	}

	for _, src := range e.sources() {
		candidates, r := e.loader.Collect(ctx, src)
		report.Merge(r)
		for _, c := range candidates {
			consider(c)
		}
	}

	for _, dir := range e.adapterDirs {
		for _, a := range e.adapters {
			candidates, err := a.Discover(ctx, dir)
			if err != nil {
				log.WithError(err).WithField("adapter", a.Name()).WithField("dir", dir).Warn("adapter discovery failed")
				report.Errors = append(report.Errors, err)
				continue
			}
			for _, c := range candidates {
				consider(c)
			}
		}
	}

	if e.tools != nil {
		tools, err := e.tools.ListRemoteTools(ctx)
		if err != nil {
			log.WithError(err).Warn("failed to list MCP tools")
			report.Errors = append(report.Errors, skills.WrapError(err, skills.ErrMCPExecution, "", "failed to list MCP tools"))
		}
		for _, c := range mcpCandidates(tools) {
			consider(c)
		}
	}

	candidates := make([]loader.Candidate, 0, len(order))
	for _, name := range order {
		c := winners[name]
		c.Replace = true
		candidates = append(candidates, c)
	}

	before := len(report.Loaded)
	e.loader.Register(ctx, candidates, report)

	found := make(map[string]bool, len(report.Loaded)-before)
	for _, l := range report.Loaded[before:] {
		found[l.Name] = true
	}
	e.removeStale(ctx, found, report)
	e.owned = found

	log.WithField("loaded", len(report.Loaded)).
		WithField("skipped", len(report.Skipped)).
		WithField("errors", len(report.Errors)).
		Info("skill discovery completed")
	return report
}

// removeStale unregisters skills found by the previous discovery but not this
// one. Dependents are removed before the skills they reference.
func (e *Engine) removeStale(ctx context.Context, found map[string]bool, report *loader.LoadReport) {
	var stale []string
	for name := range e.owned {
		if !found[name] {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)

	for progress := true; progress && len(stale) > 0; {
		progress = false
		var remaining []string
		for _, name := range stale {
			if err := e.registry.Unregister(name); err != nil && !skills.IsKind(err, skills.ErrNotFound) {
				remaining = append(remaining, name)
				continue
			}
			progress = true
			logger.G(ctx).WithField("skill", name).Info("removed skill no longer present in any source")
		}
		stale = remaining
	}

	for _, name := range stale {
		report.Notes = append(report.Notes, "skill "+name+" is no longer discovered but is still referenced, keeping it")
		found[name] = true
	}
}
