// Package runtime assembles a ready-to-use skill runtime from configuration:
// registry, discovery sources, native symbols, MCP clients, execution history
// and the executor on top of them.
package runtime

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jingkaihe/skillrt/pkg/builtin"
	"github.com/jingkaihe/skillrt/pkg/config"
	"github.com/jingkaihe/skillrt/pkg/discovery"
	"github.com/jingkaihe/skillrt/pkg/executor"
	"github.com/jingkaihe/skillrt/pkg/loader"
	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/mcp"
	"github.com/jingkaihe/skillrt/pkg/native"
	"github.com/jingkaihe/skillrt/pkg/performance"
	"github.com/jingkaihe/skillrt/pkg/registry"
	"github.com/jingkaihe/skillrt/pkg/telemetry"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/jingkaihe/skillrt/pkg/version"
	"github.com/pkg/errors"
)

// Runtime owns every component of a configured skill runtime
type Runtime struct {
	Config    *config.Config
	Registry  *registry.Registry
	Natives   *native.Table
	Discovery *discovery.Engine
	Executor  *executor.Executor
	// MCP is nil when no servers are configured
	MCP *mcp.Manager
	// History is nil when history is disabled
	History *performance.Store

	shutdownTracing telemetry.ShutdownFunc
}

// Option customises a Runtime before its components are created
type Option func(*options)

type options struct {
	natives map[string]native.Func
	mcp     *mcp.Manager
}

// WithNative registers an additional native function
func WithNative(key string, fn native.Func) Option {
	return func(o *options) {
		if o.natives == nil {
			o.natives = make(map[string]native.Func)
		}
		o.natives[key] = fn
	}
}

// WithMCPManager uses m instead of building one from the configured servers
func WithMCPManager(m *mcp.Manager) Option {
	return func(o *options) {
		o.mcp = m
	}
}

// New builds a runtime from cfg. Skills are not discovered until Discover is
// called. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Runtime, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{
		Config:   cfg,
		Registry: registry.New(),
		Natives:  native.NewTable(),
	}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	tracing := cfg.Tracing
	tracing.ServiceVersion = version.Get().Version
	if rt.shutdownTracing, err = telemetry.InitTracer(ctx, tracing); err != nil {
		return nil, errors.Wrap(err, "failed to initialize tracing")
	}

	if cfg.Skills.Builtin {
		if err = builtin.Register(rt.Natives); err != nil {
			return nil, err
		}
	}
	for key, fn := range o.natives {
		if err = rt.Natives.Register(key, fn); err != nil {
			return nil, err
		}
	}

	if rt.MCP, err = newMCPManager(ctx, cfg, o.mcp); err != nil {
		return nil, err
	}

	if cfg.History.Enabled {
		if rt.History, err = performance.Open(ctx, cfg.History.Path); err != nil {
			return nil, err
		}
	}

	discoveryOpts, err := discoveryOptions(cfg)
	if err != nil {
		return nil, err
	}
	if rt.MCP != nil {
		discoveryOpts = append(discoveryOpts, discovery.WithToolLister(rt.MCP))
	}
	if rt.Discovery, err = discovery.New(rt.Registry, discoveryOpts...); err != nil {
		return nil, errors.Wrap(err, "failed to create discovery engine")
	}

	execOpts := []executor.Option{
		executor.WithNatives(rt.Natives),
		executor.WithRetryDelays(cfg.Executor.RetryBaseDelay, cfg.Executor.RetryMaxDelay),
		executor.WithDefaultTimeout(cfg.Executor.DefaultTimeout),
	}
	if rt.MCP != nil {
		execOpts = append(execOpts, executor.WithToolCaller(rt.MCP))
	}
	if rt.History != nil {
		execOpts = append(execOpts, executor.WithRecorder(rt.History))
	}
	if rt.Executor, err = executor.New(rt.Registry, execOpts...); err != nil {
		return nil, errors.Wrap(err, "failed to create executor")
	}

	logger.G(ctx).WithField("natives", len(rt.Natives.Keys())).
		WithField("mcp_servers", len(cfg.MCP.Servers)).
		WithField("history", rt.History != nil).
		Debug("skill runtime initialized")
	return rt, nil
}

func newMCPManager(ctx context.Context, cfg *config.Config, given *mcp.Manager) (*mcp.Manager, error) {
	m := given
	if m == nil {
		if len(cfg.MCP.Servers) == 0 {
			return nil, nil
		}
		var err error
		if m, err = mcp.NewManager(cfg.MCP.Servers); err != nil {
			return nil, errors.Wrap(err, "failed to create MCP manager")
		}
	}
	if err := m.Initialize(ctx); err != nil {
		logger.G(ctx).WithError(err).Warn("some MCP servers failed to initialize")
	}
	return m, nil
}

func discoveryOptions(cfg *config.Config) ([]discovery.Option, error) {
	opts := []discovery.Option{
		discovery.WithProjectDir(cfg.Skills.ProjectDir),
		discovery.WithUserDir(cfg.Skills.UserDir),
		discovery.WithExclude(cfg.Skills.Exclude...),
	}
	if cfg.Skills.Builtin {
		opts = append(opts, discovery.WithBuiltin(builtin.FS()))
	}

	var adapters []discovery.Adapter
	for _, name := range cfg.Skills.Adapters {
		a, ok := discovery.AdapterByName(name)
		if !ok {
			return nil, errors.Errorf("unknown skill adapter %q", name)
		}
		adapters = append(adapters, a)
	}
	if len(adapters) > 0 {
		opts = append(opts, discovery.WithAdapters(adapters...), discovery.WithAdapterDirs(cfg.Skills.AdapterDirs...))
	}
	return opts, nil
}

// Discover loads every configured source into the registry
func (rt *Runtime) Discover(ctx context.Context) *loader.LoadReport {
	return rt.Discovery.Discover(ctx)
}

// Execute runs a skill
func (rt *Runtime) Execute(ctx context.Context, name string, params map[string]any, execCtx skills.ExecutionContext) skills.SkillResult {
	return rt.Executor.Execute(ctx, name, params, execCtx)
}

// Watch rediscovers on every change to a skill or adapter directory until ctx
// is cancelled
func (rt *Runtime) Watch(ctx context.Context, debounce time.Duration, onChange func(*loader.LoadReport)) error {
	return rt.Discovery.Watch(ctx, debounce, onChange)
}

// Close shuts down MCP clients, the history database and tracing
func (rt *Runtime) Close() error {
	var result *multierror.Error
	if rt.MCP != nil {
		if err := rt.MCP.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "failed to close MCP clients"))
		}
	}
	if rt.History != nil {
		if err := rt.History.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "failed to close history database"))
		}
	}
	if rt.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.shutdownTracing(ctx); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "failed to shut down tracing"))
		}
	}
	return result.ErrorOrNil()
}
