// Package mcp connects to Model Context Protocol servers. The Manager backs
// MCP skills: it calls their tools and lists the tools of every server so
// discovery can generate a skill for each one.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/jingkaihe/skillrt/pkg/version"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"
)

// ServerType is the transport used to reach a server
type ServerType string

// Server types
const (
	ServerTypeStdio ServerType = "stdio"
	ServerTypeSSE   ServerType = "sse"
)

// ServerConfig describes how to reach one MCP server
type ServerConfig struct {
	Type          ServerType        `mapstructure:"type" json:"type"`
	Command       string            `mapstructure:"command" json:"command,omitempty"`
	Args          []string          `mapstructure:"args" json:"args,omitempty"`
	Envs          map[string]string `mapstructure:"envs" json:"envs,omitempty"`
	BaseURL       string            `mapstructure:"base_url" json:"base_url,omitempty"`
	Headers       map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	ToolWhiteList []string          `mapstructure:"tool_white_list" json:"tool_white_list,omitempty"`
}

// NewClient creates an unstarted client for cfg. The type is inferred from
// the fields when omitted.
func NewClient(cfg ServerConfig) (*client.Client, error) {
	if cfg.Type == "" {
		switch {
		case cfg.BaseURL != "":
			cfg.Type = ServerTypeSSE
		case cfg.Command != "":
			cfg.Type = ServerTypeStdio
		default:
			return nil, errors.New("server type is required")
		}
	}

	switch cfg.Type {
	case ServerTypeStdio:
		if cfg.Command == "" {
			return nil, errors.New("command is required for stdio server")
		}
		env := make([]string, 0, len(cfg.Envs))
		for k, v := range cfg.Envs {
			env = append(env, k+"="+v)
		}
		return client.NewClient(transport.NewStdio(cfg.Command, env, cfg.Args...)), nil
	case ServerTypeSSE:
		if cfg.BaseURL == "" {
			return nil, errors.New("base_url is required for sse server")
		}
		tp, err := transport.NewSSE(cfg.BaseURL, transport.WithHeaders(cfg.Headers))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create sse transport")
		}
		return client.NewClient(tp), nil
	default:
		return nil, errors.Errorf("invalid server type %q", cfg.Type)
	}
}

// Manager owns one client per configured server. Clients are started with a
// context that lives as long as the Manager, so a cancelled request never
// takes a server process down with it.
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*serverState
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// serverState tracks the startup of one client. mu serialises the startup
// I/O of this server only.
type serverState struct {
	mu        sync.Mutex
	client    *client.Client
	whiteList []string
	started   bool
	ready     bool
}

// NewManager creates clients for every server. Nothing is started until
// Initialize or the first call that needs a server.
func NewManager(servers map[string]ServerConfig) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		servers: make(map[string]*serverState),
		ctx:     ctx,
		cancel:  cancel,
	}
	for name, cfg := range servers {
		c, err := NewClient(cfg)
		if err != nil {
			cancel()
			return nil, errors.Wrapf(err, "mcp server %s", name)
		}
		m.AddClient(name, c, cfg.ToolWhiteList...)
	}
	return m, nil
}

// AddClient registers an already constructed client under name. An empty
// white list exposes every tool of the server.
func (m *Manager) AddClient(name string, c *client.Client, whiteList ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[name] = &serverState{client: c, whiteList: whiteList}
}

// Servers returns the configured server names in sorted order
func (m *Manager) Servers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Initialize starts every client not yet started and performs the MCP
// handshake. A server that fails does not prevent the others from starting.
func (m *Manager) Initialize(ctx context.Context) error {
	var result *multierror.Error
	for _, name := range m.Servers() {
		if _, err := m.client(ctx, name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (m *Manager) lookup(name string) (*serverState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, skills.NewError(skills.ErrMCPExecution, "", "mcp manager is closed")
	}
	srv, ok := m.servers[name]
	if !ok {
		return nil, skills.NewError(skills.ErrMCPExecution, "", "mcp server %s is not configured", name)
	}
	return srv, nil
}

// client returns the named client, starting it and performing the handshake
// first if needed. The transport is started with the Manager's context; ctx
// only bounds the handshake.
func (m *Manager) client(ctx context.Context, name string) (*client.Client, error) {
	srv, err := m.lookup(name)
	if err != nil {
		return nil, err
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.ready {
		return srv.client, nil
	}

	log := logger.G(ctx).WithField("server", name)
	log.Debug("initializing mcp client")

	if !srv.started {
		if err := srv.client.Start(m.ctx); err != nil {
			return nil, errors.Wrapf(err, "failed to start mcp server %s", name)
		}
		srv.started = true
	}

	req := mcp.InitializeRequest{}
	req.Params.ClientInfo = mcp.Implementation{
		Name:    "skillrt",
		Version: version.Version,
	}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	if _, err := srv.client.Initialize(ctx, req); err != nil {
		return nil, errors.Wrapf(err, "failed to initialize mcp server %s", name)
	}
	srv.ready = true
	log.Info("initialized mcp client")
	return srv.client, nil
}

func (m *Manager) allowed(server, tool string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	srv, ok := m.servers[server]
	if !ok {
		return true
	}
	return len(srv.whiteList) == 0 || slices.Contains(srv.whiteList, tool)
}

// ListTools returns the white-listed tools of one server
func (m *Manager) ListTools(ctx context.Context, server string) ([]mcp.Tool, error) {
	c, err := m.client(ctx, server)
	if err != nil {
		return nil, err
	}
	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list tools of mcp server %s", server)
	}
	var tools []mcp.Tool
	for _, t := range res.Tools {
		if m.allowed(server, t.Name) {
			tools = append(tools, t)
		}
	}
	return tools, nil
}

// ListRemoteTools lists the tools of every server. Servers that fail are
// skipped and reported together in the returned error.
func (m *Manager) ListRemoteTools(ctx context.Context) ([]skills.RemoteTool, error) {
	var (
		out    []skills.RemoteTool
		result *multierror.Error
	)
	for _, server := range m.Servers() {
		tools, err := m.ListTools(ctx, server)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("server", server).Warn("failed to list mcp tools")
			result = multierror.Append(result, err)
			continue
		}
		for _, t := range tools {
			out = append(out, skills.RemoteTool{
				Server:      server,
				Name:        t.Name,
				Description: t.Description,
				Parameters:  Parameters(t.InputSchema),
			})
		}
	}
	return out, result.ErrorOrNil()
}

// ToolOutput is the data of a successful tool call
type ToolOutput struct {
	Text    string        `json:"text"`
	Content []mcp.Content `json:"content,omitempty"`
}

// CallTool invokes tool on server. Transport failures and results flagged as
// errors by the server are both MCPExecutionErrors.
func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]any) (any, error) {
	if !m.allowed(server, tool) {
		return nil, skills.NewError(skills.ErrMCPExecution, "", "tool %s is not allowed on mcp server %s", tool, server)
	}
	c, err := m.client(ctx, server)
	if err != nil {
		return nil, skills.Structured(err, skills.ErrMCPExecution, "")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	res, err := c.CallTool(ctx, req)
	if err != nil {
		return nil, skills.WrapError(err, skills.ErrMCPExecution, "", "call to %s/%s failed", server, tool)
	}

	text := contentText(res.Content)
	if res.IsError {
		return nil, skills.NewError(skills.ErrMCPExecution, "", "tool %s/%s returned an error: %s", server, tool, text)
	}
	return ToolOutput{Text: text, Content: res.Content}, nil
}

func contentText(content []mcp.Content) string {
	var b strings.Builder
	for _, c := range content {
		if t, ok := c.(mcp.TextContent); ok {
			b.WriteString(t.Text)
			continue
		}
		raw, err := json.Marshal(c)
		if err != nil {
			fmt.Fprintf(&b, "%v", c)
			continue
		}
		b.Write(raw)
	}
	return b.String()
}

// Close stops every client. Servers still starting are cancelled first.
func (m *Manager) Close() error {
	m.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	var result *multierror.Error
	for name, srv := range m.servers {
		srv.mu.Lock()
		if srv.started {
			if err := srv.client.Close(); err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "failed to close mcp server %s", name))
			}
		}
		srv.started, srv.ready = false, false
		srv.mu.Unlock()
	}
	return result.ErrorOrNil()
}

// Parameters converts a tool input schema into skill parameters, sorted by name
func Parameters(schema mcp.ToolInputSchema) []skills.Parameter {
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]skills.Parameter, 0, len(names))
	for _, name := range names {
		p := skills.Parameter{
			Name:     name,
			Type:     skills.TypeString,
			Required: slices.Contains(schema.Required, name),
		}
		if prop, ok := schema.Properties[name].(map[string]any); ok {
			if t, ok := prop["type"].(string); ok && skills.ParameterType(t).Valid() {
				p.Type = skills.ParameterType(t)
			}
			if d, ok := prop["description"].(string); ok {
				p.Description = d
			}
		}
		params = append(params, p)
	}
	return params
}
