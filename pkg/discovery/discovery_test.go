package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jingkaihe/skillrt/pkg/loader"
	"github.com/jingkaihe/skillrt/pkg/registry"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skillDoc(name, description string) string {
	return fmt.Sprintf(`name: %s
version: 1.0.0
description: %s
execution:
  type: script
  script: echo %s
`, name, description, name)
}

func writeSkill(t *testing.T, dir, file, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestNewDiscovery(t *testing.T) {
	t.Run("with default dirs", func(t *testing.T) {
		e, err := New(registry.New())
		require.NoError(t, err)
		assert.Len(t, e.Dirs(), 2)
		assert.Equal(t, filepath.Join(".skillrt", "skills"), e.projectDir)
	})

	t.Run("with custom dirs", func(t *testing.T) {
		e, err := New(registry.New(), WithProjectDir("/tmp/p"), WithUserDir("/tmp/u"), WithAdapterDirs("/tmp/a"))
		require.NoError(t, err)
		assert.Equal(t, []string{"/tmp/p", "/tmp/u", "/tmp/a"}, e.Dirs())
	})

	t.Run("invalid exclude pattern", func(t *testing.T) {
		_, err := New(registry.New(), WithExclude("[unclosed"))
		assert.Error(t, err)
	})
}

func TestUserGlobalBeatsProjectLocal(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "project")
	user := filepath.Join(root, "user")
	writeSkill(t, project, "build.yaml", skillDoc("build", "project build"))
	userPath := writeSkill(t, user, "build.yaml", skillDoc("build", "user build"))

	reg := registry.New()
	e, err := New(reg, WithProjectDir(project), WithUserDir(user))
	require.NoError(t, err)

	report := e.Discover(context.Background())
	require.NoError(t, report.Err())

	assert.Equal(t, 1, reg.Len())
	got, err := reg.Get("build")
	require.NoError(t, err)
	assert.Equal(t, "user build", got.Description)

	prov, _ := reg.Provenance("build")
	assert.Equal(t, userPath, prov.Path)
	assert.Equal(t, skills.SourceUser, prov.Source)

	assert.Equal(t, 2, report.Documents())
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0].Reason, "shadowed by user")
	require.Len(t, report.Notes, 1)
	assert.Contains(t, report.Notes[0], "overrides project")
}

func TestPrecedenceOrder(t *testing.T) {
	root := t.TempDir()
	builtin := fstest.MapFS{
		"echo.yaml":  {Data: []byte(skillDoc("echo", "builtin echo"))},
		"other.yaml": {Data: []byte(skillDoc("other", "builtin other"))},
	}
	project := filepath.Join(root, "project")
	writeSkill(t, project, "echo.yaml", skillDoc("echo", "project echo"))

	adapterDir := filepath.Join(root, "app")
	writeSkill(t, adapterDir, "package.json", `{"scripts": {"other": "node other.js"}}`)
	writeSkill(t, project, "npm_other.yaml", skillDoc("npm_other", "project npm"))

	reg := registry.New()
	e, err := New(reg,
		WithBuiltin(builtin),
		WithProjectDir(project),
		WithAdapterDirs(adapterDir),
		WithAdapters(NPMAdapter{}),
	)
	require.NoError(t, err)

	report := e.Discover(context.Background())
	require.NoError(t, report.Err())

	echo, _ := reg.Get("echo")
	assert.Equal(t, "project echo", echo.Description)
	other, _ := reg.Get("other")
	assert.Equal(t, "builtin other", other.Description)
	npm, _ := reg.Get("npm_other")
	assert.Equal(t, "npm run other", npm.Execution.Script)
	assert.Len(t, report.Skipped, 2)
}

func TestSameSourceDuplicateIsAnError(t *testing.T) {
	project := t.TempDir()
	writeSkill(t, project, "a.yaml", skillDoc("dup", "first"))
	writeSkill(t, project, "b.yaml", skillDoc("dup", "second"))

	reg := registry.New()
	e, err := New(reg, WithProjectDir(project))
	require.NoError(t, err)

	report := e.Discover(context.Background())
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Error(), "also defined in")
	got, _ := reg.Get("dup")
	assert.Equal(t, "first", got.Description)
	assert.Equal(t, 2, report.Documents())
}

func TestRediscoverIsIdempotentAndRemovesStale(t *testing.T) {
	project := t.TempDir()
	writeSkill(t, project, "keep.yaml", skillDoc("keep", "kept"))
	gone := writeSkill(t, project, "gone.yaml", skillDoc("gone", "removed later"))

	reg := registry.New()
	e, err := New(reg, WithProjectDir(project))
	require.NoError(t, err)
	require.NoError(t, e.Discover(context.Background()).Err())
	assert.Equal(t, 2, reg.Len())

	report := e.Discover(context.Background())
	require.NoError(t, report.Err())
	for _, l := range report.Loaded {
		assert.True(t, l.Unchanged, l.Name)
	}

	require.NoError(t, os.Remove(gone))
	report = e.Discover(context.Background())
	require.NoError(t, report.Err())
	assert.Equal(t, []string{"keep"}, reg.Names())
}

func TestRediscoverKeepsStaleSkillStillReferenced(t *testing.T) {
	project := t.TempDir()
	base := writeSkill(t, project, "base.yaml", skillDoc("base", "base"))

	reg := registry.New()
	e, err := New(reg, WithProjectDir(project))
	require.NoError(t, err)
	require.NoError(t, e.Discover(context.Background()).Err())

	user := withHook(skillDoc("user", "uses base"), "base")
	require.NoError(t, reg.Register(mustParse(t, user)))

	require.NoError(t, os.Remove(base))
	report := e.Discover(context.Background())
	assert.True(t, reg.Exists("base"))
	require.NotEmpty(t, report.Notes)
	assert.Contains(t, report.Notes[len(report.Notes)-1], "still referenced")
}

func withHook(doc, pre string) string {
	return doc + "hooks:\n  pre: [" + pre + "]\n"
}

func mustParse(t *testing.T, doc string) *skills.Skill {
	t.Helper()
	s, err := loader.ParseDocument("doc.yaml", []byte(doc))
	require.NoError(t, err)
	return s
}

func TestNPMAdapter(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "package.json", `{
  "name": "app",
  "scripts": {
    "build": "tsc -p .",
    "test:unit": "jest --silent",
    "???": "echo nothing"
  }
}`)

	candidates, err := NPMAdapter{}.Discover(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	build := candidates[0].Skill
	assert.Equal(t, "npm_build", build.Name)
	assert.Equal(t, "npm run build", build.Execution.Script)
	assert.Equal(t, skills.Duration(600*time.Second), build.Execution.Timeout)
	assert.Equal(t, "utility", build.Category)
	assert.Equal(t, []string{"npm", "build", "scripts", "build"}, build.Metadata.Tags)
	assert.Equal(t, "DiscoveryEngine", build.Metadata.Author)
	assert.True(t, build.Metadata.AutoGenerated)
	assert.Equal(t, dir, build.Execution.WorkingDir)
	require.Len(t, build.Parameters, 1)
	assert.Equal(t, "working_dir", build.Parameters[0].Name)
	assert.False(t, build.Parameters[0].Required)
	assert.Equal(t, "Execute npm script: build (tsc -p .)", build.Description)

	unit := candidates[1]
	assert.Equal(t, "npm_test_unit", unit.Skill.Name)
	assert.Equal(t, "npm run test:unit", unit.Skill.Execution.Script)
	assert.Equal(t, skills.SourceAdapter, unit.Provenance.Source)
	assert.Equal(t, filepath.Join(dir, "package.json"), unit.Provenance.Path)

	for _, c := range candidates {
		assert.NoError(t, registry.ValidateSkill(c.Skill))
	}
}

func TestNPMAdapterMissingAndInvalid(t *testing.T) {
	dir := t.TempDir()
	candidates, err := NPMAdapter{}.Discover(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	writeSkill(t, dir, "package.json", "{not json")
	_, err = NPMAdapter{}.Discover(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, skills.IsKind(err, skills.ErrParse))
}

func TestParseMakefile(t *testing.T) {
	content := `# Build configuration
VERSION := 1.0
CC ::= gcc
FLAGS = -O2

.PHONY: build test

# Build the binary
build: deps
	go build ./...

# SECTION HEADER
test:
	go test ./...

%.o: %.c
	$(CC) -c $<

deps:
	go mod download
build: extra
`
	targets := parseMakefile([]byte(content))
	require.Len(t, targets, 3)
	assert.Equal(t, makeTarget{name: "build", comment: "Build the binary"}, targets[0])
	assert.Equal(t, makeTarget{name: "test"}, targets[1])
	assert.Equal(t, makeTarget{name: "deps"}, targets[2])
}

func TestMakeAdapter(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "Makefile", "# Compile everything\nbuild-all:\n\tmake -C src\n")

	candidates, err := MakeAdapter{}.Discover(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	s := candidates[0].Skill
	assert.Equal(t, "make_build_all", s.Name)
	assert.Equal(t, "make build-all", s.Execution.Script)
	assert.Equal(t, "Compile everything (make build-all)", s.Description)
	assert.Equal(t, []string{"make", "build", "targets", "build-all"}, s.Metadata.Tags)
	assert.NoError(t, registry.ValidateSkill(s))
}

func TestAdapterByName(t *testing.T) {
	a, ok := AdapterByName("npm")
	require.True(t, ok)
	assert.Equal(t, "npm", a.Name())
	_, ok = AdapterByName("cargo")
	assert.False(t, ok)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "build", shellQuote("build"))
	assert.Equal(t, "'a b'", shellQuote("a b"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

type fakeLister struct {
	tools []skills.RemoteTool
	err   error
}

func (f fakeLister) ListRemoteTools(context.Context) ([]skills.RemoteTool, error) {
	return f.tools, f.err
}

func TestToolListerGeneratesMCPSkills(t *testing.T) {
	reg := registry.New()
	e, err := New(reg, WithToolLister(fakeLister{tools: []skills.RemoteTool{
		{
			Server:      "files",
			Name:        "read-file",
			Description: "Read a file",
			Parameters:  []skills.Parameter{{Name: "path", Type: skills.TypeString, Required: true}},
		},
	}}))
	require.NoError(t, err)

	report := e.Discover(context.Background())
	require.NoError(t, report.Err())

	s, err := reg.Get("mcp_files_read_file")
	require.NoError(t, err)
	assert.Equal(t, skills.KindMCP, s.Execution.Kind)
	assert.Equal(t, "files", s.Execution.MCPServer)
	assert.Equal(t, "read-file", s.Execution.MCPTool)
	assert.Equal(t, "tools", s.Category)
}

func TestWatchRediscovers(t *testing.T) {
	project := t.TempDir()
	writeSkill(t, project, "first.yaml", skillDoc("first", "first"))

	reg := registry.New()
	e, err := New(reg, WithProjectDir(project))
	require.NoError(t, err)
	require.NoError(t, e.Discover(context.Background()).Err())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reports := make(chan *loader.LoadReport, 4)
	done := make(chan error, 1)
	go func() {
		done <- e.Watch(ctx, 50*time.Millisecond, func(r *loader.LoadReport) { reports <- r })
	}()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	writeSkill(t, project, "second.yaml", skillDoc("second", "second"))

	select {
	case r := <-reports:
		require.NoError(t, r.Err())
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not rediscover after a change")
	}
	assert.True(t, reg.Exists("second"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}
