package registry

import (
	"testing"

	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nativeSkill(name string) *skills.Skill {
	return &skills.Skill{
		Name:        name,
		Version:     "1.0.0",
		Description: "test skill " + name,
		Execution: skills.Execution{
			Kind:   skills.KindNative,
			Module: "test",
			Method: name,
		},
	}
}

func withPre(s *skills.Skill, pre ...string) *skills.Skill {
	s.Hooks.Pre = pre
	return s
}

func withTags(s *skills.Skill, tags ...string) *skills.Skill {
	s.Metadata.Tags = tags
	return s
}

func TestRegisterAppliesDefaults(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(nativeSkill("echo")))

	got, err := r.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, skills.DefaultCategory, got.Category)
	assert.Equal(t, skills.Duration(skills.DefaultTimeout), got.Execution.Timeout)
}

func TestRegisterDoesNotAliasInput(t *testing.T) {
	r := New()
	in := nativeSkill("echo")
	require.NoError(t, r.Register(in))

	assert.Empty(t, in.Category)
}

func TestRegisteredSkillIsolated(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(nativeSkill("b")))

	in := withPre(nativeSkill("a"), "b")
	in.Parameters = []skills.Parameter{{Name: "opts", Type: skills.TypeObject, Default: map[string]any{"level": "info"}}}
	in.Metadata.Annotations = map[string]any{"owner": "platform"}
	require.NoError(t, r.Register(in))

	in.Hooks.Pre[0] = "a"
	in.Parameters[0].Default.(map[string]any)["level"] = "debug"
	in.Metadata.Annotations["owner"] = "someone"

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got.Hooks.Pre)
	assert.Equal(t, map[string]any{"level": "info"}, got.Parameters[0].Default)
	assert.Equal(t, "platform", got.Metadata.Annotations["owner"])

	got.Hooks.Pre[0] = "a"
	got.Dependencies = append(got.Dependencies, "a")
	for _, s := range r.List() {
		s.Metadata.Tags = append(s.Metadata.Tags, "mutated")
	}

	again, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, again.Hooks.Pre)
	assert.Empty(t, again.Dependencies)
	assert.Empty(t, again.Metadata.Tags)
	assert.Empty(t, r.FindByTag("mutated"))
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(nativeSkill("echo")))

	err := r.Register(nativeSkill("echo"))
	require.Error(t, err)
	assert.True(t, skills.IsKind(err, skills.ErrValidation))
	assert.Contains(t, err.Error(), "already registered")
	assert.Equal(t, 1, r.Len())
}

func TestRegisterReplaceKeepsPosition(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(nativeSkill("first")))
	require.NoError(t, r.Register(withTags(nativeSkill("second"), "old")))
	require.NoError(t, r.Register(nativeSkill("third")))

	replacement := withTags(nativeSkill("second"), "new")
	replacement.Description = "replaced"
	require.NoError(t, r.Register(replacement, WithReplace(), WithProvenance(skills.Provenance{Source: skills.SourceUser, Path: "/x.yaml"})))

	assert.Equal(t, []string{"first", "second", "third"}, r.Names())
	got, err := r.Get("second")
	require.NoError(t, err)
	assert.Equal(t, "replaced", got.Description)
	assert.Empty(t, r.FindByTag("old"))
	assert.Len(t, r.FindByTag("new"), 1)

	p, ok := r.Provenance("second")
	require.True(t, ok)
	assert.Equal(t, skills.SourceUser, p.Source)
}

func TestRegisterMissingReference(t *testing.T) {
	r := New()
	s := nativeSkill("deploy")
	s.Dependencies = []string{"build"}

	err := r.Register(s)
	require.Error(t, err)
	assert.True(t, skills.IsKind(err, skills.ErrValidation))
	assert.Contains(t, err.Error(), "build")
	assert.False(t, r.Exists("deploy"))
}

func TestRegisterRejectsHookCycle(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(nativeSkill("b")))
	require.NoError(t, r.Register(withPre(nativeSkill("a"), "b")))

	// replacing b so that it points back at a closes the cycle
	err := r.Register(withPre(nativeSkill("b"), "a"), WithReplace())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reference cycle")
	assert.Contains(t, err.Error(), "b -> a -> b")

	got, err := r.Get("b")
	require.NoError(t, err)
	assert.Empty(t, got.Hooks.Pre, "failed registration must leave the registry unchanged")
}

func TestRegisterRejectsSelfReference(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(nativeSkill("loop")))

	err := r.Register(withPre(nativeSkill("loop"), "loop"), WithReplace())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop -> loop")
}

func TestRegisterBatchForwardReferences(t *testing.T) {
	r := New()
	composite := nativeSkill("pipeline")
	composite.Execution = skills.Execution{
		Kind:   skills.KindComposite,
		Skills: []skills.ChildRef{{Name: "lint"}, {Name: "test"}},
	}

	errs := r.RegisterBatch([]BatchItem{
		{Skill: composite},
		{Skill: nativeSkill("lint")},
		{Skill: withPre(nativeSkill("test"), "lint")},
	})
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, []string{"pipeline", "lint", "test"}, r.Names())

	got, err := r.Get("pipeline")
	require.NoError(t, err)
	assert.Equal(t, skills.PolicySequentialAll, got.Execution.Policy)
}

func TestRegisterBatchRejectsOnlyOffenders(t *testing.T) {
	r := New()
	dangling := nativeSkill("dangling")
	dangling.Dependencies = []string{"nowhere"}
	invalid := nativeSkill("Invalid-Skill-Name")
	// depends on dangling, so it must fall once dangling is rejected
	downstream := withPre(nativeSkill("downstream"), "dangling")

	errs := r.RegisterBatch([]BatchItem{
		{Skill: nativeSkill("ok_one")},
		{Skill: withPre(nativeSkill("cycle_a"), "cycle_b")},
		{Skill: withPre(nativeSkill("cycle_b"), "cycle_a")},
		{Skill: dangling},
		{Skill: invalid},
		{Skill: downstream},
		{Skill: nativeSkill("ok_two")},
	})
	require.Len(t, errs, 7)

	assert.NoError(t, errs[0])
	assert.ErrorContains(t, errs[1], "reference cycle")
	assert.ErrorContains(t, errs[2], "reference cycle")
	assert.ErrorContains(t, errs[3], "nowhere")
	assert.ErrorContains(t, errs[4], "schema")
	assert.ErrorContains(t, errs[5], "dangling")
	assert.NoError(t, errs[6])

	assert.Equal(t, []string{"ok_one", "ok_two"}, r.Names())
}

func TestRegisterBatchDuplicateNames(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(nativeSkill("existing")))

	errs := r.RegisterBatch([]BatchItem{
		{Skill: nativeSkill("twice")},
		{Skill: nativeSkill("twice")},
		{Skill: nativeSkill("existing")},
		{Skill: nativeSkill("existing"), Replace: true},
	})
	assert.ErrorContains(t, errs[0], "more than once")
	assert.ErrorContains(t, errs[1], "more than once")
	assert.ErrorContains(t, errs[2], "more than once")
	assert.ErrorContains(t, errs[3], "more than once")
	assert.False(t, r.Exists("twice"))

	errs = r.RegisterBatch([]BatchItem{
		{Skill: nativeSkill("existing")},
	})
	assert.ErrorContains(t, errs[0], "already registered")

	errs = r.RegisterBatch([]BatchItem{
		{Skill: nativeSkill("existing"), Replace: true},
	})
	assert.NoError(t, errs[0])
}

func TestValidateSkillSchemaIssues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*skills.Skill)
		want   string
	}{
		{
			name:   "bad name",
			mutate: func(s *skills.Skill) { s.Name = "Invalid-Skill-Name" },
			want:   "/name",
		},
		{
			name:   "missing description",
			mutate: func(s *skills.Skill) { s.Description = "" },
			want:   "/description",
		},
		{
			name:   "native without method",
			mutate: func(s *skills.Skill) { s.Execution.Method = "" },
			want:   "method",
		},
		{
			name:   "bad parameter type",
			mutate: func(s *skills.Skill) { s.Parameters = []skills.Parameter{{Name: "x", Type: "uuid"}} },
			want:   "/parameters/0/type",
		},
		{
			name:   "bad hook name",
			mutate: func(s *skills.Skill) { s.Hooks.Pre = []string{"Not Valid"} },
			want:   "/hooks/pre/0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := nativeSkill("valid_name")
			s.ApplyDefaults()
			tt.mutate(s)

			err := ValidateSkill(s)
			require.Error(t, err)
			assert.True(t, skills.IsKind(err, skills.ErrValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateDocumentTimeout(t *testing.T) {
	doc := map[string]any{
		"name":        "slow",
		"version":     "1.0.0",
		"description": "slow skill",
		"execution": map[string]any{
			"type":    "script",
			"script":  "sleep 1",
			"timeout": "not_a_number",
		},
	}
	issues, err := ValidateDocument(doc)
	require.NoError(t, err)
	require.NotEmpty(t, issues)
	assert.Equal(t, "/execution/timeout", issues[0].Path)

	doc["execution"].(map[string]any)["timeout"] = 30
	issues, err = ValidateDocument(doc)
	require.NoError(t, err)
	assert.Empty(t, issues)

	doc["execution"].(map[string]any)["timeout"] = "1m30s"
	issues, err = ValidateDocument(doc)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestValidateDocumentYAMLMaps(t *testing.T) {
	doc := map[string]any{
		"name":        "yaml_skill",
		"version":     "1.0.0",
		"description": "decoded from yaml",
		"execution": map[any]any{
			"type":   "native",
			"module": "m",
			"method": "f",
		},
	}
	issues, err := ValidateDocument(doc)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestValidateSemantics(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*skills.Skill)
		want   string
	}{
		{
			name:   "not semver",
			mutate: func(s *skills.Skill) { s.Version = "latest" },
			want:   "semantic version",
		},
		{
			name: "duplicate parameter",
			mutate: func(s *skills.Skill) {
				s.Parameters = []skills.Parameter{{Name: "x", Type: skills.TypeString}, {Name: "x", Type: skills.TypeString}}
			},
			want: "more than once",
		},
		{
			name: "required with default",
			mutate: func(s *skills.Skill) {
				s.Parameters = []skills.Parameter{{Name: "x", Type: skills.TypeString, Required: true, Default: "a"}}
			},
			want: "must not declare a default",
		},
		{
			name: "default of wrong type",
			mutate: func(s *skills.Skill) {
				s.Parameters = []skills.Parameter{{Name: "x", Type: skills.TypeInteger, Default: "five"}}
			},
			want: "does not match type",
		},
		{
			name: "invalid pattern",
			mutate: func(s *skills.Skill) {
				s.Parameters = []skills.Parameter{{Name: "x", Type: skills.TypeString, Validation: "("}}
			},
			want: "invalid validation pattern",
		},
		{
			name: "default violates pattern",
			mutate: func(s *skills.Skill) {
				s.Parameters = []skills.Parameter{{Name: "x", Type: skills.TypeString, Default: "abc", Validation: "^[0-9]+$"}}
			},
			want: "validation pattern",
		},
		{
			name:   "negative retry",
			mutate: func(s *skills.Skill) { s.Execution.Retry = -1 },
			want:   "retry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := nativeSkill("semantic")
			s.ApplyDefaults()
			tt.mutate(s)

			err := ValidateSkill(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("v1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v.String())

	_, err = ParseVersion("one")
	assert.Error(t, err)
}

func TestQueries(t *testing.T) {
	r := New()

	build := withTags(nativeSkill("build"), "Frontend", "ci")
	build.Category = "build"
	script := withTags(nativeSkill("lint"), "frontend")
	script.Category = "build"
	script.Execution = skills.Execution{Kind: skills.KindScript, Script: "eslint ."}
	deploy := withTags(nativeSkill("deploy"), "backend")
	deploy.Dependencies = []string{"build"}
	deploy.Hooks.Post = []string{"lint"}
	deploy.Parameters = []skills.Parameter{
		{Name: "env", Type: skills.TypeString, Required: true},
		{Name: "dry_run", Type: skills.TypeBoolean, Default: false},
	}

	require.NoError(t, r.Register(build))
	require.NoError(t, r.Register(script))
	require.NoError(t, r.Register(deploy))

	names := func(list []*skills.Skill) []string {
		out := make([]string, len(list))
		for i, s := range list {
			out[i] = s.Name
		}
		return out
	}

	assert.Equal(t, []string{"build", "lint"}, names(r.FindByCategory("build")))
	assert.Equal(t, []string{"deploy"}, names(r.FindByCategory(skills.DefaultCategory)))
	assert.Empty(t, r.FindByCategory("missing"))

	assert.Equal(t, []string{"build", "lint"}, names(r.FindByTag("FRONTEND")))
	assert.Equal(t, []string{"lint"}, names(r.FindByExecutionKind(skills.KindScript)))
	assert.Equal(t, []string{"build", "deploy"}, names(r.FindByExecutionKind(skills.KindNative)))
	assert.Equal(t, []string{"build", "lint"}, names(r.FindForDomain("front")))
	assert.Equal(t, []string{"build", "lint", "deploy"}, names(r.FindForDomain("END")))

	_, err := r.Get("missing")
	require.Error(t, err)
	assert.True(t, skills.IsKind(err, skills.ErrNotFound))

	st := r.Stats()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.ByCategory["build"])
	assert.Equal(t, 1, st.ByKind[skills.KindScript])
	assert.Equal(t, 3, st.Tags)
	assert.InDelta(t, 2.0/3.0, st.AvgParameters, 0.0001)
	assert.Equal(t, 1, st.WithDependencies)
	assert.Equal(t, 1, st.WithHooks)
}

func TestUnregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(withTags(nativeSkill("base"), "core")))
	require.NoError(t, r.Register(withPre(nativeSkill("user"), "base")))

	err := r.Unregister("base")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still referenced by user")

	require.NoError(t, r.Unregister("user"))
	require.NoError(t, r.Unregister("base"))
	assert.Empty(t, r.FindByTag("core"))
	assert.Zero(t, r.Len())

	err = r.Unregister("base")
	assert.True(t, skills.IsKind(err, skills.ErrNotFound))
}

func TestReset(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(nativeSkill("one")))
	r.Reset()

	assert.Zero(t, r.Len())
	assert.Empty(t, r.List())
	require.NoError(t, r.Register(nativeSkill("one")))
}

func TestFindCycle(t *testing.T) {
	graph := map[string][]string{
		"a": {"b"},
		"b": {"c", "ghost"},
		"c": {"a"},
		"d": {"a"},
	}
	adj := func(name string) ([]string, bool) {
		refs, ok := graph[name]
		return refs, ok
	}

	assert.Equal(t, []string{"a", "b", "c", "a"}, findCycle("a", adj))
	assert.Equal(t, []string{"a", "b", "c", "a"}, findCycle("d", adj))

	graph["c"] = nil
	assert.Nil(t, findCycle("a", adj))
}
