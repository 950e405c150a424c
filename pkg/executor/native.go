package executor

import (
	"context"

	"github.com/jingkaihe/skillrt/pkg/types/skills"
)

func (e *Executor) runNative(ctx context.Context, skill *skills.Skill, params map[string]any, execCtx skills.ExecutionContext) (any, error) {
	key := skill.Execution.SymbolKey()
	fn, ok := e.natives.Lookup(key)
	if !ok {
		return nil, skills.NewError(skills.ErrNativeExecution, skill.Name, "native symbol %s is not registered", key)
	}

	data, err := await(ctx, func() (any, error) {
		return fn(ctx, params, execCtx)
	})
	if err != nil {
		return nil, skills.WrapError(err, skills.ErrNativeExecution, skill.Name, "%s failed", key)
	}
	return data, nil
}
