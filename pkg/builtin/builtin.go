// Package builtin bundles the skills shipped with skillrt: their documents,
// loaded as the lowest precedence discovery source, and the native functions
// those documents reference.
package builtin

import (
	"context"
	"embed"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/native"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//go:embed skills/*.yaml
var documents embed.FS

// FS returns the bundled skill documents
func FS() fs.FS {
	sub, err := fs.Sub(documents, "skills")
	if err != nil {
		panic(err)
	}
	return sub
}

// Symbols maps every native key the bundled documents use to its function
var Symbols = map[string]native.Func{
	"builtin.text.echo":   Echo,
	"builtin.time.sleep":  Sleep,
	"builtin.env.require": RequireEnv,
	"builtin.log.notify":  Notify,
}

// Register adds the bundled native functions to t
func Register(t *native.Table) error {
	for key, fn := range Symbols {
		if err := t.Register(key, fn); err != nil {
			return err
		}
	}
	return nil
}

// Echo returns the message parameter
func Echo(_ context.Context, params map[string]any, _ skills.ExecutionContext) (any, error) {
	return params["message"], nil
}

// Sleep waits for the seconds parameter or until ctx is done
func Sleep(ctx context.Context, params map[string]any, _ skills.ExecutionContext) (any, error) {
	d, err := skills.ParseDuration(params["seconds"])
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(d.Std())
	defer timer.Stop()
	select {
	case <-timer.C:
		return map[string]any{"slept": d.String()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequireEnv fails when any of the named environment variables is unset or empty
func RequireEnv(_ context.Context, params map[string]any, _ skills.ExecutionContext) (any, error) {
	names, ok := skills.AsSlice(params["variables"])
	if !ok {
		return nil, skills.NewError(skills.ErrParameterValidation, "require_env", "variables must be an array, got %T", params["variables"])
	}
	var missing []string
	for _, n := range names {
		name, ok := n.(string)
		if !ok {
			return nil, errors.Errorf("variable name %v is not a string", n)
		}
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}
	return map[string]any{"checked": len(names)}, nil
}

// Notify logs the message parameter at the requested level, tagged with the task
func Notify(ctx context.Context, params map[string]any, execCtx skills.ExecutionContext) (any, error) {
	message, _ := params["message"].(string)
	level, err := logrus.ParseLevel(stringOr(params["level"], "info"))
	if err != nil {
		return nil, err
	}
	logger.G(ctx).WithField("task", execCtx.Task).Log(level, message)
	return map[string]any{"message": message, "level": level.String()}, nil
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
