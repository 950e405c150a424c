package hooks

import (
	"context"
	"testing"

	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/stretchr/testify/assert"
)

func TestStack(t *testing.T) {
	ctx := context.Background()
	_, ok := Top(ctx)
	assert.False(t, ok)
	assert.Zero(t, Depth(ctx))
	assert.Nil(t, Stack(ctx))

	root := Push(ctx, "deploy", skills.TriggerBody)
	left := Push(root, "build", skills.TriggerComposite)
	right := Push(root, "check", skills.TriggerPre)

	top, ok := Top(left)
	assert.True(t, ok)
	assert.Equal(t, Frame{Skill: "build", Trigger: skills.TriggerComposite}, top)
	assert.Equal(t, 2, Depth(left))

	assert.Equal(t, []Frame{
		{Skill: "deploy", Trigger: skills.TriggerBody},
		{Skill: "check", Trigger: skills.TriggerPre},
	}, Stack(right))

	assert.True(t, InFlight(left, "deploy"))
	assert.True(t, InFlight(left, "build"))
	assert.False(t, InFlight(left, "check"))
	assert.False(t, InFlight(root, "build"))
}

func TestCyclePath(t *testing.T) {
	ctx := Push(context.Background(), "outer", skills.TriggerBody)
	ctx = Push(ctx, "a", skills.TriggerPre)
	ctx = Push(ctx, "b", skills.TriggerPre)

	assert.Equal(t, "a -> b -> a", cyclePath(ctx, "a"))
}
