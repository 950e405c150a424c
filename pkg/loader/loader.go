// Package loader reads declarative skill documents from filesystem trees,
// validates them and registers them in a batch, reporting per-document
// failures without aborting the batch.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/registry"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Source is a tree of skill documents
type Source struct {
	Kind skills.SourceKind
	FS   fs.FS
	// Root is the directory FS was opened on. It is empty for embedded trees.
	Root string
	// Name labels documents of embedded trees in provenance paths
	Name string
}

// DirSource opens a directory as a document source
func DirSource(kind skills.SourceKind, dir string) Source {
	return Source{Kind: kind, FS: os.DirFS(dir), Root: dir}
}

func (s Source) displayPath(rel string) string {
	if s.Root != "" {
		return filepath.Join(s.Root, filepath.FromSlash(rel))
	}
	name := s.Name
	if name == "" {
		name = string(s.Kind)
	}
	return name + ":" + rel
}

// Candidate is a parsed, schema-valid document waiting for registration
type Candidate struct {
	Skill      *skills.Skill
	Provenance skills.Provenance
	// Replace allows the candidate to replace a registered skill of the same name
	Replace bool
}

// Loader turns document sources into registered skills
type Loader struct {
	registry *registry.Registry
	skip     *skipMatcher
	exclude  []string
}

// Option configures a Loader
type Option func(*Loader) error

// WithExclude skips documents whose source-relative path matches any of the
// glob patterns, e.g. "drafts/**"
func WithExclude(patterns ...string) Option {
	return func(l *Loader) error {
		l.exclude = append(l.exclude, patterns...)
		return nil
	}
}

// New creates a loader registering into reg
func New(reg *registry.Registry, opts ...Option) (*Loader, error) {
	l := &Loader{registry: reg}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	skip, err := newSkipMatcher(l.exclude)
	if err != nil {
		return nil, err
	}
	l.skip = skip
	return l, nil
}

// Registry returns the registry the loader registers into
func (l *Loader) Registry() *registry.Registry {
	return l.registry
}

// Load collects every document of the sources and registers them as one batch
func (l *Loader) Load(ctx context.Context, sources ...Source) *LoadReport {
	report := &LoadReport{}
	var candidates []Candidate
	for _, src := range sources {
		c, r := l.Collect(ctx, src)
		candidates = append(candidates, c...)
		report.Merge(r)
	}
	l.Register(ctx, candidates, report)
	return report
}

// Collect reads and validates the documents of one source without registering
// them. Skipped and failed documents are recorded in the returned report.
func (l *Loader) Collect(ctx context.Context, src Source) ([]Candidate, *LoadReport) {
	log := logger.G(ctx).WithField("source", src.displayPath(""))
	report := &LoadReport{}

	if src.FS == nil {
		return nil, report
	}
	if src.Root != "" {
		if _, err := os.Stat(src.Root); err != nil {
			log.WithError(err).Debug("skill source is not readable, skipping")
			return nil, report
		}
	}

	matches, err := doublestar.Glob(src.FS, "**/*", doublestar.WithFilesOnly())
	if err != nil {
		report.Errors = append(report.Errors, skills.WrapError(err, skills.ErrFile, src.displayPath(""), "failed to enumerate documents"))
		return nil, report
	}
	sort.Strings(matches)

	var candidates []Candidate
	for _, rel := range matches {
		if !isDocument(rel) {
			continue
		}
		p := src.displayPath(rel)
		if err := ctx.Err(); err != nil {
			report.fail(p, src.Kind, skills.WrapError(err, skills.ErrFile, p, "load cancelled"))
			continue
		}
		if reason := l.skip.reason(rel); reason != "" {
			log.WithField("path", p).WithField("reason", reason).Debug("skipping document")
			report.skip(p, src.Kind, reason)
			continue
		}

		c, err := l.readDocument(src, rel)
		if err != nil {
			log.WithField("path", p).WithError(err).Warn("failed to load skill document")
			report.fail(p, src.Kind, err)
			continue
		}
		candidates = append(candidates, *c)
	}
	return candidates, report
}

// Register registers candidates as one batch and records the outcome of each
// in report. A candidate identical to the registered document from the same
// path is a no-op, and a changed document from the same path replaces it.
func (l *Loader) Register(ctx context.Context, candidates []Candidate, report *LoadReport) {
	log := logger.G(ctx)

	items := make([]registry.BatchItem, 0, len(candidates))
	pending := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if prov, ok := l.registry.Provenance(c.Skill.Name); ok && prov.Path == c.Provenance.Path {
			if prov.Digest == c.Provenance.Digest {
				report.Loaded = append(report.Loaded, loaded(c, true))
				continue
			}
			c.Replace = true
		}
		items = append(items, registry.BatchItem{Skill: c.Skill, Provenance: c.Provenance, Replace: c.Replace})
		pending = append(pending, c)
	}
	if len(items) == 0 {
		return
	}

	errs := l.registry.RegisterBatch(items)
	for i, err := range errs {
		c := pending[i]
		entry := log.WithFields(logrus.Fields{"skill": c.Skill.Name, "path": c.Provenance.Path})
		if err != nil {
			entry.WithError(err).Warn("failed to register skill")
			report.fail(c.Provenance.Path, c.Provenance.Source, err)
			continue
		}
		entry.Debug("registered skill")
		report.Loaded = append(report.Loaded, loaded(c, false))
	}
}

func loaded(c Candidate, unchanged bool) LoadedSkill {
	return LoadedSkill{
		Name:      c.Skill.Name,
		Path:      c.Provenance.Path,
		Source:    c.Provenance.Source,
		Unchanged: unchanged,
	}
}

// LoadPath loads a single document file or a directory tree
func (l *Loader) LoadPath(ctx context.Context, p string) *LoadReport {
	info, err := os.Stat(p)
	if err != nil {
		report := &LoadReport{}
		report.fail(p, skills.SourceDirect, skills.WrapError(err, skills.ErrFile, p, "failed to stat path"))
		return report
	}
	if info.IsDir() {
		return l.Load(ctx, DirSource(skills.SourceDirect, p))
	}
	return l.loadFile(ctx, p, skills.SourceDirect, false)
}

// Reload re-reads one document file and replaces the skill it defines. The
// skill keeps the source kind it was originally discovered under.
func (l *Loader) Reload(ctx context.Context, p string) *LoadReport {
	kind := skills.SourceDirect
	clean := filepath.Clean(p)
	for _, name := range l.registry.Names() {
		if prov, ok := l.registry.Provenance(name); ok && prov.Path == clean {
			kind = prov.Source
			break
		}
	}
	return l.loadFile(ctx, clean, kind, true)
}

func (l *Loader) loadFile(ctx context.Context, p string, kind skills.SourceKind, replace bool) *LoadReport {
	report := &LoadReport{}
	dir, base := filepath.Dir(p), filepath.Base(p)
	src := DirSource(kind, dir)

	if !isDocument(base) {
		report.skip(p, kind, "not a skill document")
		return report
	}
	if reason := l.skip.reason(base); reason != "" {
		report.skip(p, kind, reason)
		return report
	}

	c, err := l.readDocument(src, base)
	if err != nil {
		logger.G(ctx).WithField("path", p).WithError(err).Warn("failed to load skill document")
		report.fail(p, kind, err)
		return report
	}
	c.Replace = replace
	l.Register(ctx, []Candidate{*c}, report)
	return report
}

func (l *Loader) readDocument(src Source, rel string) (*Candidate, error) {
	p := src.displayPath(rel)

	content, err := fs.ReadFile(src.FS, rel)
	if err != nil {
		return nil, skills.WrapError(err, skills.ErrFile, p, "failed to read document")
	}

	skill, err := ParseDocument(rel, content)
	if err != nil {
		if e, ok := skills.AsError(err); ok && e.Skill == "" {
			e.Skill = p
		}
		return nil, err
	}

	sum := sha256.Sum256(content)
	return &Candidate{
		Skill: skill,
		Provenance: skills.Provenance{
			Source: src.Kind,
			Path:   p,
			Digest: hex.EncodeToString(sum[:]),
		},
	}, nil
}

// ParseDocument parses, schema-validates and decodes one skill document. The
// format is chosen from the file name: SKILL.md front matter, JSON, or YAML.
func ParseDocument(name string, content []byte) (*skills.Skill, error) {
	doc, err := decodeTree(name, content)
	if err != nil {
		return nil, skills.WrapError(err, skills.ErrParse, "", "malformed document")
	}

	issues, err := registry.ValidateDocument(doc)
	if err != nil {
		return nil, skills.WrapError(err, skills.ErrValidation, "", "schema validation could not run")
	}
	if len(issues) > 0 {
		return nil, skills.NewError(skills.ErrValidation, "", "schema: %s", registry.JoinIssues(issues))
	}

	skill, err := decodeSkill(doc)
	if err != nil {
		return nil, skills.WrapError(err, skills.ErrParse, "", "document does not match the skill shape")
	}
	skill.ApplyDefaults()
	return skill, nil
}

func decodeTree(name string, content []byte) (map[string]any, error) {
	var raw any
	switch {
	case path.Base(name) == skillMarkdownFile:
		return parseMarkdown(content)
	case strings.EqualFold(path.Ext(name), ".json"):
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, errors.Wrap(err, "invalid JSON")
		}
	default:
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, errors.Wrap(err, "invalid YAML")
		}
	}

	if raw == nil {
		return nil, errors.New("document is empty")
	}
	doc, ok := registry.Normalize(raw).(map[string]any)
	if !ok {
		return nil, errors.Errorf("document must be a mapping, got %T", raw)
	}
	return doc, nil
}
