package executor

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/jingkaihe/skillrt/pkg/hooks"
	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
)

// CompositeOutput is the data of a COMPOSITE execution. Results are in
// declared child order and only hold the children that ran.
type CompositeOutput struct {
	Policy           skills.CompositePolicy `json:"policy"`
	TotalSkills      int                    `json:"total_skills"`
	ExecutedSkills   int                    `json:"executed_skills"`
	SuccessfulSkills int                    `json:"successful_skills"`
	FailedSkills     []string               `json:"failed_skills"`
	Results          []skills.SkillResult   `json:"results"`
}

func (o *CompositeOutput) add(r skills.SkillResult) {
	o.Results = append(o.Results, r)
	o.ExecutedSkills++
	if r.Success {
		o.SuccessfulSkills++
	} else {
		o.FailedSkills = append(o.FailedSkills, r.SkillName)
	}
}

func (e *Executor) runComposite(ctx context.Context, skill *skills.Skill, params map[string]any, execCtx skills.ExecutionContext) (any, error) {
	children := skill.Execution.Skills
	out := &CompositeOutput{
		Policy:       skill.Execution.Policy,
		TotalSkills:  len(children),
		FailedSkills: []string{},
	}
	log := logger.G(ctx).WithField("policy", string(out.Policy)).WithField("children", len(children))
	log.Debug("running composite")

	var err error
	switch out.Policy {
	case skills.PolicyFirstSuccess:
		err = e.firstSuccess(ctx, skill, children, params, execCtx, out)
	case skills.PolicyParallelAll:
		err = e.parallelAll(ctx, skill, children, params, execCtx, out)
	default:
		err = e.sequentialAll(ctx, skill, children, params, execCtx, out)
	}

	log.WithField("executed", out.ExecutedSkills).
		WithField("succeeded", out.SuccessfulSkills).
		Info("composite completed")
	return out, err
}

// sequentialAll stops at the first failing child unless that child is
// declared with on_failure: continue, in which case its failure is tolerated.
func (e *Executor) sequentialAll(ctx context.Context, skill *skills.Skill, children []skills.ChildRef, params map[string]any, execCtx skills.ExecutionContext, out *CompositeOutput) error {
	for _, child := range children {
		r := e.runChild(ctx, child, params, execCtx)
		out.add(r)
		if r.Success {
			continue
		}
		if child.OnFailure == skills.OnFailureContinue {
			logger.G(ctx).WithField("child", child.Name).WithError(r.Error).Warn("composite child failed, continuing")
			continue
		}
		return skills.WrapError(r.Error, skills.ErrCompositeExecution, skill.Name, "child %s failed", child.Name)
	}
	return nil
}

func (e *Executor) firstSuccess(ctx context.Context, skill *skills.Skill, children []skills.ChildRef, params map[string]any, execCtx skills.ExecutionContext, out *CompositeOutput) error {
	var failures *multierror.Error
	for _, child := range children {
		r := e.runChild(ctx, child, params, execCtx)
		out.add(r)
		if r.Success {
			return nil
		}
		failures = multierror.Append(failures, r.Error)
		if ctx.Err() != nil {
			break
		}
	}
	return skills.WrapError(failures.ErrorOrNil(), skills.ErrCompositeExecution, skill.Name, "no child succeeded")
}

func (e *Executor) parallelAll(ctx context.Context, skill *skills.Skill, children []skills.ChildRef, params map[string]any, execCtx skills.ExecutionContext, out *CompositeOutput) error {
	results := make([]skills.SkillResult, len(children))
	var wg sync.WaitGroup
	for i, child := range children {
		wg.Add(1)
		go func(i int, child skills.ChildRef) {
			defer wg.Done()
			results[i] = e.runChild(ctx, child, params, execCtx)
		}(i, child)
	}
	wg.Wait()

	var failures *multierror.Error
	for _, r := range results {
		out.add(r)
		if !r.Success {
			failures = multierror.Append(failures, r.Error)
		}
	}
	if failures == nil {
		return nil
	}
	return skills.WrapError(failures.ErrorOrNil(), skills.ErrCompositeExecution, skill.Name, "%d of %d children failed", len(failures.Errors), len(children))
}

// runChild executes one child with the parent's parameters it declares,
// overlaid with the child's fixed overrides.
func (e *Executor) runChild(ctx context.Context, child skills.ChildRef, params map[string]any, execCtx skills.ExecutionContext) skills.SkillResult {
	if hooks.InFlight(ctx, child.Name) {
		err := skills.NewError(skills.ErrCircularHook, child.Name, "skill is already running in this execution")
		return skills.SkillResult{SkillName: child.Name, Error: err}
	}

	childParams := make(map[string]any)
	if target, err := e.resolver.Get(child.Name); err == nil {
		for _, p := range target.Parameters {
			if v, ok := params[p.Name]; ok {
				childParams[p.Name] = v
			}
		}
	}
	for k, v := range child.Parameters {
		childParams[k] = v
	}

	return e.Execute(hooks.Push(ctx, child.Name, skills.TriggerComposite), child.Name, childParams, execCtx)
}
