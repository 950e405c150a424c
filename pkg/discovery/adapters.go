package discovery

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jingkaihe/skillrt/pkg/loader"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
)

const (
	adapterAuthor   = "DiscoveryEngine"
	adapterVersion  = "1.0.0"
	adapterCategory = "utility"
	adapterTimeout  = 600 * time.Second
)

// Adapter converts an external manifest found in a directory into SCRIPT skills
type Adapter interface {
	Name() string
	// Discover returns the skills generated from dir. A directory without a
	// manifest yields no candidates and no error.
	Discover(ctx context.Context, dir string) ([]loader.Candidate, error)
}

// AdapterByName returns the built-in adapter with the given name
func AdapterByName(name string) (Adapter, bool) {
	switch name {
	case "npm":
		return NPMAdapter{}, true
	case "make":
		return MakeAdapter{}, true
	}
	return nil, false
}

var (
	nonNameChars = regexp.MustCompile(`[^a-z0-9_]+`)
	shellSafe    = regexp.MustCompile(`^[A-Za-z0-9_./:@%+=-]+$`)
)

// sanitizeName turns an arbitrary script or target name into a skill name part
func sanitizeName(s string) string {
	s = nonNameChars.ReplaceAllString(strings.ToLower(s), "_")
	return strings.Trim(s, "_")
}

// shellQuote quotes s for sh unless it only holds safe characters
func shellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func workingDirParameter(what string) skills.Parameter {
	return skills.Parameter{
		Name:        "working_dir",
		Type:        skills.TypeString,
		Description: "Working directory to execute " + what + " in",
	}
}

func readManifest(path string) ([]byte, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(content)
	return content, hex.EncodeToString(sum[:]), nil
}

func absDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

func candidate(s *skills.Skill, manifest, digest string) loader.Candidate {
	s.ApplyDefaults()
	return loader.Candidate{
		Skill: s,
		Provenance: skills.Provenance{
			Source: skills.SourceAdapter,
			Path:   manifest,
			Digest: digest,
		},
	}
}

// NPMAdapter turns package.json scripts into npm_<name> skills
type NPMAdapter struct{}

// Name returns the adapter name
func (NPMAdapter) Name() string { return "npm" }

// Discover reads dir/package.json
func (NPMAdapter) Discover(_ context.Context, dir string) ([]loader.Candidate, error) {
	manifest := filepath.Join(absDir(dir), "package.json")
	content, digest, err := readManifest(manifest)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, skills.WrapError(err, skills.ErrFile, manifest, "failed to read package.json")
	}

	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(content, &pkg); err != nil {
		return nil, skills.WrapError(err, skills.ErrParse, manifest, "invalid package.json")
	}

	names := make([]string, 0, len(pkg.Scripts))
	for name := range pkg.Scripts {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []loader.Candidate
	for _, script := range names {
		part := sanitizeName(script)
		if part == "" {
			continue
		}
		command := pkg.Scripts[script]
		if len(command) > 100 {
			command = command[:100] + "..."
		}

		s := &skills.Skill{
			Name:        "npm_" + part,
			Version:     adapterVersion,
			Description: fmt.Sprintf("Execute npm script: %s (%s)", script, command),
			Category:    adapterCategory,
			Parameters:  []skills.Parameter{workingDirParameter("script")},
			Execution: skills.Execution{
				Kind:       skills.KindScript,
				Script:     "npm run " + shellQuote(script),
				WorkingDir: filepath.Dir(manifest),
				Timeout:    skills.Duration(adapterTimeout),
			},
			Metadata: skills.Metadata{
				Author:        adapterAuthor,
				AutoGenerated: true,
				Tags:          []string{"npm", "build", "scripts", script},
			},
		}
		out = append(out, candidate(s, manifest, digest))
	}
	return out, nil
}

// MakeAdapter turns Makefile targets into make_<target> skills
type MakeAdapter struct{}

// Name returns the adapter name
func (MakeAdapter) Name() string { return "make" }

var makefileNames = []string{"GNUmakefile", "makefile", "Makefile"}

// Discover reads the first makefile found in dir, in the order make itself uses
func (MakeAdapter) Discover(_ context.Context, dir string) ([]loader.Candidate, error) {
	dir = absDir(dir)
	for _, name := range makefileNames {
		manifest := filepath.Join(dir, name)
		content, digest, err := readManifest(manifest)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, skills.WrapError(err, skills.ErrFile, manifest, "failed to read makefile")
		}

		var out []loader.Candidate
		for _, t := range parseMakefile(content) {
			part := sanitizeName(t.name)
			if part == "" {
				continue
			}
			desc := "Execute Makefile target: " + t.name
			if t.comment != "" {
				desc = t.comment + " (make " + t.name + ")"
			}

			s := &skills.Skill{
				Name:        "make_" + part,
				Version:     adapterVersion,
				Description: desc,
				Category:    adapterCategory,
				Parameters:  []skills.Parameter{workingDirParameter("make")},
				Execution: skills.Execution{
					Kind:       skills.KindScript,
					Script:     "make " + shellQuote(t.name),
					WorkingDir: dir,
					Timeout:    skills.Duration(adapterTimeout),
				},
				Metadata: skills.Metadata{
					Author:        adapterAuthor,
					AutoGenerated: true,
					Tags:          []string{"make", "build", "targets", t.name},
				},
			}
			out = append(out, candidate(s, manifest, digest))
		}
		return out, nil
	}
	return nil, nil
}

type makeTarget struct {
	name    string
	comment string
}

var targetLine = regexp.MustCompile(`^([A-Za-z0-9_][A-Za-z0-9_.-]*)\s*:(.*)$`)

// parseMakefile extracts explicit targets in declaration order, with the
// comment directly above each one. Special targets, pattern rules, recipe
// lines and := / ::= assignments are ignored.
func parseMakefile(content []byte) []makeTarget {
	var targets []makeTarget
	seen := make(map[string]bool)
	comment := ""

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "\t") {
			continue
		}
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			comment = ""
			continue
		}
		if strings.HasPrefix(stripped, "#") {
			text := strings.TrimSpace(strings.TrimLeft(stripped, "#"))
			if text != strings.ToUpper(text) {
				comment = text
			}
			continue
		}

		m := targetLine.FindStringSubmatch(stripped)
		if m == nil || strings.HasPrefix(m[2], "=") || strings.HasPrefix(m[2], ":=") {
			comment = ""
			continue
		}
		name := m[1]
		if !seen[name] {
			seen[name] = true
			targets = append(targets, makeTarget{name: name, comment: comment})
		}
		comment = ""
	}
	return targets
}

// ToolLister lists the tools of every configured MCP server
type ToolLister interface {
	ListRemoteTools(ctx context.Context) ([]skills.RemoteTool, error)
}

// mcpCandidates turns remote tools into mcp_<server>_<tool> skills
func mcpCandidates(tools []skills.RemoteTool) []loader.Candidate {
	var out []loader.Candidate
	for _, t := range tools {
		server, tool := sanitizeName(t.Server), sanitizeName(t.Name)
		if server == "" || tool == "" {
			continue
		}
		desc := t.Description
		if desc == "" {
			desc = fmt.Sprintf("Call MCP tool %s on server %s", t.Name, t.Server)
		}

		s := &skills.Skill{
			Name:        "mcp_" + server + "_" + tool,
			Version:     adapterVersion,
			Description: desc,
			Category:    "tools",
			Parameters:  t.Parameters,
			Execution: skills.Execution{
				Kind:      skills.KindMCP,
				MCPServer: t.Server,
				MCPTool:   t.Name,
			},
			Metadata: skills.Metadata{
				Author:        adapterAuthor,
				AutoGenerated: true,
				Tags:          []string{"mcp", t.Server, t.Name},
			},
		}
		raw, _ := json.Marshal(t)
		sum := sha256.Sum256(raw)
		out = append(out, candidate(s, "mcp://"+t.Server+"/"+t.Name, hex.EncodeToString(sum[:])))
	}
	return out
}
