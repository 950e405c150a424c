package hooks

import (
	"context"
	"strings"

	"github.com/jingkaihe/skillrt/pkg/types/skills"
)

// Frame is one in-flight skill on an execution stack, labelled with why it runs
type Frame struct {
	Skill   string             `json:"skill"`
	Trigger skills.HookTrigger `json:"trigger"`
}

// stack is an immutable linked list so that concurrent composite branches
// can extend the same parent without copying or locking.
type stack struct {
	frame  Frame
	parent *stack
	depth  int
}

type stackKey struct{}

func stackFrom(ctx context.Context) *stack {
	s, _ := ctx.Value(stackKey{}).(*stack)
	return s
}

// Push returns a context whose execution stack has skill on top
func Push(ctx context.Context, skill string, trigger skills.HookTrigger) context.Context {
	parent := stackFrom(ctx)
	depth := 1
	if parent != nil {
		depth = parent.depth + 1
	}
	return context.WithValue(ctx, stackKey{}, &stack{
		frame:  Frame{Skill: skill, Trigger: trigger},
		parent: parent,
		depth:  depth,
	})
}

// Top returns the innermost frame
func Top(ctx context.Context) (Frame, bool) {
	s := stackFrom(ctx)
	if s == nil {
		return Frame{}, false
	}
	return s.frame, true
}

// Depth returns the number of frames on the stack
func Depth(ctx context.Context) int {
	if s := stackFrom(ctx); s != nil {
		return s.depth
	}
	return 0
}

// InFlight reports whether skill is anywhere on the stack
func InFlight(ctx context.Context, skill string) bool {
	for s := stackFrom(ctx); s != nil; s = s.parent {
		if s.frame.Skill == skill {
			return true
		}
	}
	return false
}

// Stack returns the frames from outermost to innermost
func Stack(ctx context.Context) []Frame {
	s := stackFrom(ctx)
	if s == nil {
		return nil
	}
	frames := make([]Frame, s.depth)
	for i := s.depth - 1; s != nil; s, i = s.parent, i-1 {
		frames[i] = s.frame
	}
	return frames
}

// cyclePath renders the stack from the first frame running skill, followed by
// skill again, for example "a -> b -> a".
func cyclePath(ctx context.Context, skill string) string {
	frames := Stack(ctx)
	start := 0
	for i, f := range frames {
		if f.Skill == skill {
			start = i
			break
		}
	}
	names := make([]string, 0, len(frames)-start+1)
	for _, f := range frames[start:] {
		names = append(names, f.Skill)
	}
	return strings.Join(append(names, skill), " -> ")
}
