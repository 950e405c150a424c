package executor

import (
	"context"

	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/pkg/errors"
)

func (e *Executor) runMCP(ctx context.Context, skill *skills.Skill, params map[string]any) (any, error) {
	server, tool := skill.Execution.MCPServer, skill.Execution.MCPTool
	if e.tools == nil {
		return nil, skills.WrapError(errors.New("no MCP client configured"), skills.ErrMCPExecution, skill.Name, "cannot call %s/%s", server, tool)
	}

	data, err := await(ctx, func() (any, error) {
		return e.tools.CallTool(ctx, server, tool, params)
	})
	if err != nil {
		if skills.IsKind(err, skills.ErrMCPExecution) {
			return nil, err
		}
		return nil, skills.WrapError(err, skills.ErrMCPExecution, skill.Name, "call to %s/%s failed", server, tool)
	}
	return data, nil
}
