// Package hooks runs the PRE, POST and ERROR hook chains around a skill body.
// Every hook is itself a skill, executed through a Runner so that it gets the
// same validation, retries and hooks as a top-level call.
package hooks

import (
	"context"
	"time"

	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/telemetry"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// Runner executes a skill by name. The executor satisfies it.
type Runner interface {
	Execute(ctx context.Context, name string, params map[string]any, execCtx skills.ExecutionContext) skills.SkillResult
}

// Resolver looks up registered skills. The registry satisfies it.
type Resolver interface {
	Get(name string) (*skills.Skill, error)
}

// Manager runs hook chains
type Manager struct {
	resolver Resolver
	runner   Runner
}

// NewManager creates a hook manager. The runner may be set later with
// SetRunner when it is built on top of the manager.
func NewManager(resolver Resolver, runner Runner) *Manager {
	return &Manager{resolver: resolver, runner: runner}
}

// SetRunner sets the runner hooks execute through
func (m *Manager) SetRunner(runner Runner) {
	m.runner = runner
}

// Run executes parent's hook chain for trigger in declared order.
//
// A failed PRE hook stops the chain, sets ShouldAbort and is returned as a
// HookExecutionError wrapping the hook's own error. POST and ERROR failures
// are recorded in the result and logged, and Run returns nil for them.
func (m *Manager) Run(ctx context.Context, trigger skills.HookTrigger, parent *skills.Skill, params map[string]any, execCtx skills.ExecutionContext) (skills.HookExecutionResult, error) {
	names := parent.Hooks.ForTrigger(trigger)
	result := skills.HookExecutionResult{Trigger: trigger, Success: true}
	if len(names) == 0 {
		return result, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "hooks."+string(trigger),
		attribute.String("skill.name", parent.Name),
		attribute.String("hook.trigger", string(trigger)),
		attribute.Int("hook.count", len(names)),
	)
	defer span.End()

	log := logger.G(ctx).WithField("skill", parent.Name).WithField("trigger", string(trigger))
	start := time.Now()

	for i, name := range names {
		outcome := m.runOne(ctx, trigger, name, params, execCtx)
		result.Hooks = append(result.Hooks, outcome)
		if outcome.Success {
			continue
		}

		result.Success = false
		switch trigger {
		case skills.TriggerPre:
			for _, skipped := range names[i+1:] {
				result.Hooks = append(result.Hooks, skills.HookOutcome{Name: skipped})
			}
			result.ShouldAbort = true
			result.TotalDuration = time.Since(start)
			log.WithField("hook", name).WithError(outcome.Error).Warn("pre hook failed, aborting execution")
			telemetry.RecordError(ctx, outcome.Error)
			return result, skills.WrapError(outcome.Error, skills.ErrHookExecution, parent.Name, "pre hook %s failed", name)
		case skills.TriggerPost:
			log.WithField("hook", name).WithError(outcome.Error).Warn("post hook failed")
		default:
			log.WithField("hook", name).WithError(outcome.Error).Error("error hook failed")
		}
	}
	result.TotalDuration = time.Since(start)
	return result, nil
}

func (m *Manager) runOne(ctx context.Context, trigger skills.HookTrigger, name string, params map[string]any, execCtx skills.ExecutionContext) skills.HookOutcome {
	outcome := skills.HookOutcome{Name: name}

	if InFlight(ctx, name) {
		outcome.Error = skills.NewError(skills.ErrCircularHook, name, "hook cycle: %s", cyclePath(ctx, name))
		return outcome
	}

	hook, err := m.resolver.Get(name)
	if err != nil {
		outcome.Error = skills.Structured(err, skills.ErrNotFound, name)
		return outcome
	}
	if m.runner == nil {
		outcome.Error = skills.WrapError(errors.New("no runner configured"), skills.ErrHookExecution, name, "cannot run hook")
		return outcome
	}

	timeout := hook.Execution.Timeout.Std()
	if timeout <= 0 {
		timeout = skills.DefaultTimeout
	}
	hookCtx, cancel := context.WithTimeout(Push(ctx, name, trigger), timeout)
	defer cancel()

	logger.G(ctx).WithField("hook", name).WithField("trigger", string(trigger)).Debug("running hook")
	start := time.Now()
	res := m.runner.Execute(hookCtx, name, paramsFor(hook, params), execCtx)
	outcome.Ran = true
	outcome.Duration = time.Since(start)
	outcome.Success = res.Success
	if res.Success {
		return outcome
	}

	if errors.Is(hookCtx.Err(), context.DeadlineExceeded) || skills.IsKind(res.Err(), skills.ErrSkillTimeout) {
		outcome.Error = skills.WrapError(res.Err(), skills.ErrHookTimeout, name, "hook exceeded its timeout of %s", timeout)
		return outcome
	}
	outcome.Error = res.Error
	if outcome.Error == nil {
		outcome.Error = skills.NewError(skills.ErrHookExecution, name, "hook failed without an error")
	}
	return outcome
}

// paramsFor passes a hook the parent's parameters it declares itself
func paramsFor(hook *skills.Skill, params map[string]any) map[string]any {
	out := make(map[string]any)
	for _, p := range hook.Parameters {
		if v, ok := params[p.Name]; ok {
			out[p.Name] = v
		}
	}
	return out
}
