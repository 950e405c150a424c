// Package skills defines the document model shared by the registry, loader,
// hook manager and executor: skills, their parameters and execution specs,
// execution contexts and results, and the structured error taxonomy.
package skills

import (
	"encoding/json"
	"strings"
	"time"
)

// ExecutionKind identifies the backend that runs a skill body
type ExecutionKind string

// Execution kinds form a closed set; the executor dispatches over them with a switch
const (
	KindNative    ExecutionKind = "native"
	KindScript    ExecutionKind = "script"
	KindMCP       ExecutionKind = "mcp"
	KindComposite ExecutionKind = "composite"
)

// ExecutionKinds lists every supported execution kind
var ExecutionKinds = []ExecutionKind{KindNative, KindScript, KindMCP, KindComposite}

// Valid reports whether k is one of the supported execution kinds
func (k ExecutionKind) Valid() bool {
	for _, kind := range ExecutionKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// CompositePolicy controls how a composite skill combines its children
type CompositePolicy string

// Composite policies
const (
	PolicySequentialAll CompositePolicy = "sequential_all"
	PolicyFirstSuccess  CompositePolicy = "first_success"
	PolicyParallelAll   CompositePolicy = "parallel_all"
)

// HookTrigger names a hook chain, or the reason a skill is on the execution stack
type HookTrigger string

// Hook triggers. TriggerBody and TriggerComposite never appear in documents;
// they label execution stack frames for top-level calls and composite children.
const (
	TriggerPre       HookTrigger = "pre"
	TriggerPost      HookTrigger = "post"
	TriggerError     HookTrigger = "error"
	TriggerBody      HookTrigger = "body"
	TriggerComposite HookTrigger = "composite"
)

const (
	// DefaultCategory is assigned to skills that declare no category
	DefaultCategory = "other"
	// DefaultTimeout is assigned to executions that declare no timeout
	DefaultTimeout = 300 * time.Second
)

// Duration is a time.Duration that documents may spell either as a number of
// seconds or as a Go duration string such as "1m30s".
type Duration time.Duration

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the Go duration string form of d
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON encodes d as a duration string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts either a duration string or a number of seconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parameter declares one named input of a skill
type Parameter struct {
	Name        string        `json:"name" yaml:"name"`
	Type        ParameterType `json:"type" yaml:"type"`
	Required    bool          `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any           `json:"default,omitempty" yaml:"default,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	// Validation is an optional regular expression applied to string values
	Validation string `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// MarshalJSON omits the default only when none is declared, so false, 0 and
// "" defaults survive encoding.
func (p Parameter) MarshalJSON() ([]byte, error) {
	type plain Parameter
	out := struct {
		plain
		Default *any `json:"default,omitempty"`
	}{plain: plain(p)}
	if p.Default != nil {
		out.Default = &p.Default
	}
	return json.Marshal(out)
}

// ChildFailureAction decides whether a failed sequential child stops the composite
type ChildFailureAction string

// Child failure actions
const (
	OnFailureHalt     ChildFailureAction = "halt"
	OnFailureContinue ChildFailureAction = "continue"
)

// ChildRef references a composite child, optionally with fixed parameter overrides.
// In documents a child may be written as a bare name.
type ChildRef struct {
	Name       string         `json:"name" yaml:"name"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	// OnFailure only applies to the sequential_all policy and defaults to halt
	OnFailure ChildFailureAction `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
}

// Execution is the tagged union describing how a skill body runs. Kind selects
// which of the backend-specific fields are meaningful.
type Execution struct {
	Kind ExecutionKind `json:"type" yaml:"type"`

	// native
	Module string `json:"module,omitempty" yaml:"module,omitempty"`
	Class  string `json:"class,omitempty" yaml:"class,omitempty"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// script
	Script     string            `json:"script,omitempty" yaml:"script,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`
	Env        map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// mcp
	MCPServer string `json:"mcp_server,omitempty" yaml:"mcp_server,omitempty"`
	MCPTool   string `json:"mcp_tool,omitempty" yaml:"mcp_tool,omitempty"`

	// composite
	Skills []ChildRef      `json:"skills,omitempty" yaml:"skills,omitempty"`
	Policy CompositePolicy `json:"policy,omitempty" yaml:"policy,omitempty"`

	Timeout Duration `json:"timeout" yaml:"timeout"`
	Retry   int      `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// SymbolKey returns the native symbol table key, module.class.method with an
// empty class omitted.
func (e Execution) SymbolKey() string {
	return SymbolKey(e.Module, e.Class, e.Method)
}

// SymbolKey joins a native reference into its symbol table key
func SymbolKey(module, class, method string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{module, class, method} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Hooks lists the skills to run around a skill body, in execution order
type Hooks struct {
	Pre   []string `json:"pre,omitempty" yaml:"pre,omitempty"`
	Post  []string `json:"post,omitempty" yaml:"post,omitempty"`
	Error []string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ForTrigger returns the hook chain for the given trigger
func (h Hooks) ForTrigger(trigger HookTrigger) []string {
	switch trigger {
	case TriggerPre:
		return h.Pre
	case TriggerPost:
		return h.Post
	case TriggerError:
		return h.Error
	default:
		return nil
	}
}

// Empty reports whether no hooks are declared
func (h Hooks) Empty() bool {
	return len(h.Pre) == 0 && len(h.Post) == 0 && len(h.Error) == 0
}

// Metadata carries descriptive annotations that never affect execution
type Metadata struct {
	Tags          []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Author        string         `json:"author,omitempty" yaml:"author,omitempty"`
	Created       string         `json:"created,omitempty" yaml:"created,omitempty"`
	Updated       string         `json:"updated,omitempty" yaml:"updated,omitempty"`
	AutoGenerated bool           `json:"auto_generated,omitempty" yaml:"auto_generated,omitempty"`
	Annotations   map[string]any `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// Skill is a named, versioned unit of executable capability. A Skill is never
// mutated once registered; updating one means registering a replacement.
type Skill struct {
	Name         string      `json:"name" yaml:"name"`
	Version      string      `json:"version" yaml:"version"`
	Description  string      `json:"description" yaml:"description"`
	Category     string      `json:"category,omitempty" yaml:"category,omitempty"`
	Parameters   []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Dependencies []string    `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Execution    Execution   `json:"execution" yaml:"execution"`
	Hooks        Hooks       `json:"hooks,omitempty" yaml:"hooks,omitempty"`
	Metadata     Metadata    `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ApplyDefaults fills the category and timeout when a document omits them
func (s *Skill) ApplyDefaults() {
	if s.Category == "" {
		s.Category = DefaultCategory
	}
	if s.Execution.Timeout <= 0 {
		s.Execution.Timeout = Duration(DefaultTimeout)
	}
	if s.Execution.Kind == KindComposite && s.Execution.Policy == "" {
		s.Execution.Policy = PolicySequentialAll
	}
}

// Parameter looks up a declared parameter by name
func (s *Skill) Parameter(name string) (*Parameter, bool) {
	for i := range s.Parameters {
		if s.Parameters[i].Name == name {
			return &s.Parameters[i], true
		}
	}
	return nil, false
}

// ChildNames returns the composite children in declared order
func (s *Skill) ChildNames() []string {
	names := make([]string, 0, len(s.Execution.Skills))
	for _, c := range s.Execution.Skills {
		names = append(names, c.Name)
	}
	return names
}

// References returns every skill name this skill points at: dependencies,
// hooks of all triggers and composite children, deduplicated in that order.
func (s *Skill) References() []string {
	seen := make(map[string]bool)
	var refs []string
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				refs = append(refs, n)
			}
		}
	}
	add(s.Dependencies)
	add(s.Hooks.Pre)
	add(s.Hooks.Post)
	add(s.Hooks.Error)
	add(s.ChildNames())
	return refs
}

// HasTag reports whether the skill carries the tag, ignoring case
func (s *Skill) HasTag(tag string) bool {
	for _, t := range s.Metadata.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// SourceKind identifies where a skill document came from
type SourceKind string

// Source kinds in ascending discovery precedence
const (
	SourceBuiltin SourceKind = "builtin"
	SourceProject SourceKind = "project"
	SourceUser    SourceKind = "user"
	SourceAdapter SourceKind = "adapter"
	// SourceDirect marks documents loaded explicitly rather than via discovery
	SourceDirect SourceKind = "direct"
)

// Provenance records where a registered skill was read from
type Provenance struct {
	Source SourceKind `json:"source"`
	Path   string     `json:"path,omitempty"`
	// Digest is a content hash of the originating document
	Digest string `json:"digest,omitempty"`
}

// RemoteTool describes a tool exposed by a configured MCP server
type RemoteTool struct {
	Server      string
	Name        string
	Description string
	Parameters  []Parameter
}

// Clone returns a deep copy of s. Slices, maps and nested parameter values
// share no memory with the receiver.
func (s *Skill) Clone() *Skill {
	if s == nil {
		return nil
	}
	cp := *s

	if s.Parameters != nil {
		cp.Parameters = make([]Parameter, len(s.Parameters))
		for i, p := range s.Parameters {
			p.Default = cloneValue(p.Default)
			cp.Parameters[i] = p
		}
	}
	cp.Dependencies = cloneStrings(s.Dependencies)

	cp.Execution.Env = cloneStringMap(s.Execution.Env)
	if s.Execution.Skills != nil {
		cp.Execution.Skills = make([]ChildRef, len(s.Execution.Skills))
		for i, c := range s.Execution.Skills {
			c.Parameters = cloneMap(c.Parameters)
			cp.Execution.Skills[i] = c
		}
	}

	cp.Hooks = Hooks{
		Pre:   cloneStrings(s.Hooks.Pre),
		Post:  cloneStrings(s.Hooks.Post),
		Error: cloneStrings(s.Hooks.Error),
	}
	cp.Metadata.Tags = cloneStrings(s.Metadata.Tags)
	cp.Metadata.Annotations = cloneMap(s.Metadata.Annotations)
	return &cp
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the container shapes documents decode into. Scalars are
// returned as is.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return cloneStrings(t)
	case map[string]string:
		return cloneStringMap(t)
	default:
		return v
	}
}
