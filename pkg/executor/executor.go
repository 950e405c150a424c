// Package executor runs registered skills. An execution validates its
// parameters, runs the PRE hooks, dispatches the body to the backend for its
// execution kind with timeout and retry, then runs the POST or ERROR hooks.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jingkaihe/skillrt/pkg/hooks"
	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/native"
	"github.com/jingkaihe/skillrt/pkg/telemetry"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultRetryBaseDelay is the wait before the first retry; it doubles on every subsequent one
	DefaultRetryBaseDelay = time.Second
	// DefaultRetryMaxDelay caps the wait between two attempts
	DefaultRetryMaxDelay = 30 * time.Second
)

// ToolCaller invokes a tool on a configured MCP server
type ToolCaller interface {
	CallTool(ctx context.Context, server, tool string, args map[string]any) (any, error)
}

// Recorder receives the result of every top-level execution
type Recorder interface {
	Record(ctx context.Context, result skills.SkillResult) error
}

// Executor dispatches skills to their backends. It is safe for concurrent use.
type Executor struct {
	resolver hooks.Resolver
	hooks    *hooks.Manager
	natives  *native.Table
	tools    ToolCaller
	recorder Recorder

	baseDelay      time.Duration
	maxDelay       time.Duration
	defaultTimeout time.Duration
	shell          string
}

// Option is a function that configures an Executor
type Option func(*Executor) error

// WithNatives sets the symbol table NATIVE skills are resolved against
func WithNatives(t *native.Table) Option {
	return func(e *Executor) error {
		e.natives = t
		return nil
	}
}

// WithToolCaller sets the client MCP skills are sent to
func WithToolCaller(c ToolCaller) Option {
	return func(e *Executor) error {
		e.tools = c
		return nil
	}
}

// WithRecorder sets where top-level results are recorded
func WithRecorder(r Recorder) Option {
	return func(e *Executor) error {
		e.recorder = r
		return nil
	}
}

// WithRetryDelays sets the exponential backoff between attempts
func WithRetryDelays(base, maxDelay time.Duration) Option {
	return func(e *Executor) error {
		if base < 0 || maxDelay < 0 {
			return errors.New("retry delays must not be negative")
		}
		e.baseDelay = base
		e.maxDelay = maxDelay
		return nil
	}
}

// WithDefaultTimeout sets the timeout used for skills that carry none
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) error {
		if d <= 0 {
			return errors.New("default timeout must be greater than zero")
		}
		e.defaultTimeout = d
		return nil
	}
}

// WithShell sets the shell inline SCRIPT bodies run under
func WithShell(shell string) Option {
	return func(e *Executor) error {
		e.shell = shell
		return nil
	}
}

// New creates an executor resolving skills through resolver
func New(resolver hooks.Resolver, opts ...Option) (*Executor, error) {
	e := &Executor{
		resolver:       resolver,
		natives:        native.NewTable(),
		baseDelay:      DefaultRetryBaseDelay,
		maxDelay:       DefaultRetryMaxDelay,
		defaultTimeout: skills.DefaultTimeout,
		shell:          "/bin/sh",
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.hooks = hooks.NewManager(resolver, e)
	return e, nil
}

// Natives returns the executor's symbol table
func (e *Executor) Natives() *native.Table {
	return e.natives
}

// NewExecutionID returns an identifier of the form exec_<8 hex digits>
func NewExecutionID() string {
	return "exec_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Execute runs the named skill. It never returns an error; failures are
// reported in the result.
func (e *Executor) Execute(ctx context.Context, name string, params map[string]any, execCtx skills.ExecutionContext) skills.SkillResult {
	start := time.Now()
	id := NewExecutionID()
	topLevel := hooks.Depth(ctx) == 0

	ctx = logger.WithFields(ctx, logrus.Fields{"skill": name, "execution_id": id})
	ctx, span := telemetry.StartSpan(ctx, "skill.execute",
		attribute.String("skill.name", name),
		attribute.String("skill.execution_id", id),
	)
	defer span.End()

	result := e.execute(ctx, name, params, execCtx)
	result.ExecutionID = id
	result.SkillName = name
	result.Timestamp = start
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("skill.attempts", result.Attempts),
		attribute.Bool("skill.success", result.Success),
	)
	log := logger.G(ctx).WithField("duration_ms", result.Duration.Milliseconds()).WithField("attempts", result.Attempts)
	if result.Success {
		log.Info("skill execution succeeded")
	} else {
		telemetry.RecordError(ctx, result.Error)
		log.WithError(result.Error).Warn("skill execution failed")
	}

	if topLevel && e.recorder != nil {
		if err := e.recorder.Record(ctx, result); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to record execution")
		}
	}
	return result
}

func (e *Executor) execute(ctx context.Context, name string, params map[string]any, execCtx skills.ExecutionContext) skills.SkillResult {
	var result skills.SkillResult
	fail := func(err error) skills.SkillResult {
		result.Success = false
		result.Error = skills.Structured(err, skills.ErrSkillExecution, name)
		return result
	}

	skill, err := e.resolver.Get(name)
	if err != nil {
		return fail(skills.WrapError(err, skills.ErrSkillExecution, name, "cannot resolve skill"))
	}
	telemetry.SetAttributes(ctx, attribute.String("skill.kind", string(skill.Execution.Kind)))

	values, err := ValidateParameters(skill, params)
	if err != nil {
		return fail(err)
	}

	if top, ok := hooks.Top(ctx); !ok || top.Skill != name {
		ctx = hooks.Push(ctx, name, skills.TriggerBody)
	}
	logger.G(ctx).WithField("kind", skill.Execution.Kind).
		WithField("parameters", logger.Redact(values)).
		Info("executing skill")

	pre, err := e.hooks.Run(ctx, skills.TriggerPre, skill, values, execCtx)
	result.Hooks = appendHooks(result.Hooks, pre)
	if err != nil {
		return fail(err)
	}

	data, attempts, err := e.dispatchWithRetry(ctx, skill, values, execCtx)
	result.Attempts = attempts
	result.Data = data
	if err != nil {
		failure, _ := e.hooks.Run(ctx, skills.TriggerError, skill, values, execCtx)
		result.Hooks = appendHooks(result.Hooks, failure)
		return fail(err)
	}

	post, _ := e.hooks.Run(ctx, skills.TriggerPost, skill, values, execCtx)
	result.Hooks = appendHooks(result.Hooks, post)
	result.Success = true
	return result
}

func appendHooks(list []skills.HookExecutionResult, r skills.HookExecutionResult) []skills.HookExecutionResult {
	if len(r.Hooks) == 0 {
		return list
	}
	return append(list, r)
}

// dispatch runs one attempt of the body under the skill's timeout
func (e *Executor) dispatch(ctx context.Context, skill *skills.Skill, params map[string]any, execCtx skills.ExecutionContext) (any, error) {
	timeout := skill.Execution.Timeout.Std()
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		data any
		err  error
	)
	switch skill.Execution.Kind {
	case skills.KindNative:
		data, err = e.runNative(attemptCtx, skill, params, execCtx)
	case skills.KindScript:
		data, err = e.runScript(attemptCtx, skill, params)
	case skills.KindMCP:
		data, err = e.runMCP(attemptCtx, skill, params)
	case skills.KindComposite:
		data, err = e.runComposite(attemptCtx, skill, params, execCtx)
	default:
		return nil, skills.NewError(skills.ErrValidation, skill.Name, "unknown execution type %q", skill.Execution.Kind)
	}

	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return data, skills.WrapError(err, skills.ErrSkillTimeout, skill.Name, "execution exceeded its timeout of %s", timeout)
	}
	return data, err
}

// await runs fn in its own goroutine and returns when it finishes or ctx is
// done, whichever comes first. A panic in fn is returned as an error.
func await(ctx context.Context, fn func() (any, error)) (any, error) {
	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errors.Errorf("panic: %v", r)}
			}
		}()
		data, err := fn()
		done <- outcome{data: data, err: err}
	}()

	select {
	case o := <-done:
		return o.data, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
