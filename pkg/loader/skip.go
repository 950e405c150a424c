package loader

import (
	"path"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// defaultSkipPatterns are matched against a file's base name
var defaultSkipPatterns = []string{"README*", "LICENSE*", "CHANGELOG*"}

type skipMatcher struct {
	names   []namedGlob
	exclude []namedGlob
}

type namedGlob struct {
	pattern string
	glob    glob.Glob
}

func newSkipMatcher(exclude []string) (*skipMatcher, error) {
	m := &skipMatcher{}
	for _, p := range defaultSkipPatterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid skip pattern %q", p)
		}
		m.names = append(m.names, namedGlob{pattern: p, glob: g})
	}
	for _, p := range exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Wrapf(err, "invalid exclude pattern %q", p)
		}
		m.exclude = append(m.exclude, namedGlob{pattern: p, glob: g})
	}
	return m, nil
}

// reason returns why rel should be skipped, or "" when it should be loaded.
// rel is a slash separated path relative to the source root.
func (m *skipMatcher) reason(rel string) string {
	for _, segment := range strings.Split(rel, "/") {
		if strings.HasPrefix(segment, ".") {
			return "hidden path"
		}
	}

	base := path.Base(rel)
	for _, g := range m.names {
		if g.glob.Match(base) {
			return "matches skip pattern " + g.pattern
		}
	}
	for _, g := range m.exclude {
		if g.glob.Match(rel) {
			return "matches exclude pattern " + g.pattern
		}
	}
	return ""
}

// isDocument reports whether rel names a file the loader reads at all
func isDocument(rel string) bool {
	base := path.Base(rel)
	if base == skillMarkdownFile {
		return true
	}
	switch strings.ToLower(path.Ext(base)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
