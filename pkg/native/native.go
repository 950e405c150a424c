// Package native holds the symbol table NATIVE skills dispatch through.
// A skill's execution module, class and method join into a key such as
// "builtin.text.echo" that must be registered before the skill can run.
package native

import (
	"context"
	"sort"
	"sync"

	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/pkg/errors"
)

// Func is a native skill body. It receives the validated parameters and the
// caller's execution context, and must return promptly once ctx is done.
type Func func(ctx context.Context, params map[string]any, execCtx skills.ExecutionContext) (any, error)

// Table maps symbol keys to native functions
type Table struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewTable returns an empty symbol table
func NewTable() *Table {
	return &Table{funcs: make(map[string]Func)}
}

// Register adds fn under key. Registering the same key twice is an error.
func (t *Table) Register(key string, fn Func) error {
	if key == "" {
		return errors.New("native symbol key must not be empty")
	}
	if fn == nil {
		return errors.Errorf("native symbol %s has no function", key)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.funcs[key]; exists {
		return errors.Errorf("native symbol %s is already registered", key)
	}
	t.funcs[key] = fn
	return nil
}

// MustRegister is like Register but panics on error
func (t *Table) MustRegister(key string, fn Func) {
	if err := t.Register(key, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the function registered under key
func (t *Table) Lookup(key string) (Func, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.funcs[key]
	return fn, ok
}

// Keys returns every registered key in sorted order
func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.funcs))
	for k := range t.funcs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
