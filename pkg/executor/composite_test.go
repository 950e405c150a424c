package executor

import (
	"context"
	"testing"
	"time"

	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func composite(name string, policy skills.CompositePolicy, children ...skills.ChildRef) *skills.Skill {
	return &skills.Skill{
		Name:        name,
		Version:     "1.0.0",
		Description: "composite " + name,
		Execution:   skills.Execution{Kind: skills.KindComposite, Policy: policy, Skills: children},
	}
}

func child(name string) skills.ChildRef {
	return skills.ChildRef{Name: name}
}

func output(t *testing.T, result skills.SkillResult) *CompositeOutput {
	out, ok := result.Data.(*CompositeOutput)
	require.True(t, ok, "composite data is %T", result.Data)
	return out
}

func TestSequentialAllStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	f.native("lint", nil)
	f.native("test", fails)
	f.native("build", nil)
	f.register(composite("ci", skills.PolicySequentialAll, child("lint"), child("test"), child("build")))

	result := f.run("ci", nil)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, skills.ErrCompositeExecution, result.Error.Kind)
	assert.True(t, skills.IsKind(result.Err(), skills.ErrNativeExecution))
	assert.Equal(t, []string{"lint", "test"}, f.called())

	out := output(t, result)
	assert.Equal(t, 3, out.TotalSkills)
	assert.Equal(t, 2, out.ExecutedSkills)
	assert.Equal(t, 1, out.SuccessfulSkills)
	assert.Equal(t, []string{"test"}, out.FailedSkills)
}

func TestSequentialAllContinueOnFailure(t *testing.T) {
	f := newFixture(t)
	f.native("lint", fails)
	f.native("build", nil)
	f.register(composite("ci", skills.PolicySequentialAll,
		skills.ChildRef{Name: "lint", OnFailure: skills.OnFailureContinue},
		child("build"),
	))

	result := f.run("ci", nil)
	require.True(t, result.Success, "%v", result.Error)
	assert.Equal(t, []string{"lint", "build"}, f.called())

	out := output(t, result)
	assert.Equal(t, 2, out.ExecutedSkills)
	assert.Equal(t, []string{"lint"}, out.FailedSkills)
}

func TestFirstSuccessStopsAtFirstSuccess(t *testing.T) {
	f := newFixture(t)
	f.native("primary", fails)
	f.native("secondary", nil)
	f.native("tertiary", nil)
	f.register(composite("fetch", skills.PolicyFirstSuccess, child("primary"), child("secondary"), child("tertiary")))

	result := f.run("fetch", nil)
	require.True(t, result.Success, "%v", result.Error)
	assert.Equal(t, []string{"primary", "secondary"}, f.called())
	assert.Equal(t, 2, output(t, result).ExecutedSkills)
}

func TestFirstSuccessAllFail(t *testing.T) {
	f := newFixture(t)
	f.native("primary", fails)
	f.native("secondary", fails)
	f.register(composite("fetch", skills.PolicyFirstSuccess, child("primary"), child("secondary")))

	result := f.run("fetch", nil)
	assert.False(t, result.Success)
	assert.Equal(t, skills.ErrCompositeExecution, result.Error.Kind)
	assert.Contains(t, result.Error.Error(), "no child succeeded")
	assert.Equal(t, []string{"primary", "secondary"}, f.called())
}

func TestParallelAllAggregatesFailures(t *testing.T) {
	f := newFixture(t)
	f.native("unit", nil)
	f.native("lint", fails)
	f.native("e2e", fails)
	f.register(composite("checks", skills.PolicyParallelAll, child("unit"), child("lint"), child("e2e")))

	result := f.run("checks", nil)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, skills.ErrCompositeExecution, result.Error.Kind)
	assert.Contains(t, result.Error.Error(), "2 of 3 children failed")
	assert.ElementsMatch(t, []string{"unit", "lint", "e2e"}, f.called())

	out := output(t, result)
	assert.Equal(t, 3, out.ExecutedSkills)
	assert.Equal(t, []string{"lint", "e2e"}, out.FailedSkills, "results keep declared order")
	assert.Equal(t, "unit", out.Results[0].SkillName)
}

func TestParallelAllRunsConcurrently(t *testing.T) {
	f := newFixture(t)
	slow := func(ctx context.Context, _ map[string]any, _ skills.ExecutionContext) (any, error) {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil, nil
	}
	f.native("a", slow)
	f.native("b", slow)
	f.native("c", slow)
	f.register(composite("all", skills.PolicyParallelAll, child("a"), child("b"), child("c")))

	start := time.Now()
	result := f.run("all", nil)
	require.True(t, result.Success, "%v", result.Error)
	assert.Less(t, time.Since(start), 550*time.Millisecond)
}

func TestCompositeChildParameters(t *testing.T) {
	f := newFixture(t)
	got := make(map[string]map[string]any)
	capture := func(name string) func(context.Context, map[string]any, skills.ExecutionContext) (any, error) {
		return func(_ context.Context, params map[string]any, _ skills.ExecutionContext) (any, error) {
			got[name] = params
			return nil, nil
		}
	}
	f.native("build", capture("build"), withParams(skills.Parameter{Name: "target", Type: skills.TypeString}))
	f.native("publish", capture("publish"), withParams(
		skills.Parameter{Name: "target", Type: skills.TypeString},
		skills.Parameter{Name: "channel", Type: skills.TypeString},
	))
	release := composite("release", skills.PolicySequentialAll,
		child("build"),
		skills.ChildRef{Name: "publish", Parameters: map[string]any{"channel": "stable"}},
	)
	release.Parameters = []skills.Parameter{
		{Name: "target", Type: skills.TypeString},
		{Name: "dry_run", Type: skills.TypeBoolean},
	}
	f.register(release)

	result := f.run("release", map[string]any{"target": "linux", "dry_run": true})
	require.True(t, result.Success, "%v", result.Error)
	assert.Equal(t, map[string]any{"target": "linux"}, got["build"])
	assert.Equal(t, map[string]any{"target": "linux", "channel": "stable"}, got["publish"])
}

func TestCompositeTimeoutCancelsChildren(t *testing.T) {
	f := newFixture(t)
	f.native("slow", func(ctx context.Context, _ map[string]any, _ skills.ExecutionContext) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	all := composite("all", skills.PolicyParallelAll, child("slow"))
	all.Execution.Timeout = skills.Duration(100 * time.Millisecond)
	f.register(all)

	start := time.Now()
	result := f.run("all", nil)
	assert.False(t, result.Success)
	assert.Equal(t, skills.ErrSkillTimeout, result.Error.Kind)
	assert.Less(t, time.Since(start), time.Second)
}
