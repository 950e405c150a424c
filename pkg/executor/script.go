package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/osutil"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/pkg/errors"
)

const (
	// WorkingDirParameter overrides the directory a SCRIPT skill runs in. It
	// is consumed by the executor and never passed to the script.
	WorkingDirParameter = "working_dir"
	// ParamEnvPrefix prefixes the environment variables carrying parameters
	ParamEnvPrefix = "SKILL_PARAM_"

	maxErrorOutput = 500
)

// ScriptOutput is the data of a SCRIPT execution
type ScriptOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// runScript runs the script body in its own process group. A body naming an
// executable file is run directly with the parameters as arguments; anything
// else runs under the shell with the arguments as positional parameters.
func (e *Executor) runScript(ctx context.Context, skill *skills.Skill, params map[string]any) (any, error) {
	exe := skill.Execution
	dir := exe.WorkingDir
	if _, declared := skill.Parameter(WorkingDirParameter); declared {
		if v, ok := params[WorkingDirParameter].(string); ok && v != "" {
			dir = v
		}
	}

	args := scriptArgs(skill, params)
	var cmd *exec.Cmd
	if path, ok := executablePath(dir, exe.Script); ok {
		cmd = exec.CommandContext(ctx, path, args...)
	} else {
		cmd = exec.CommandContext(ctx, e.shell, append([]string{"-c", exe.Script, skill.Name}, args...)...)
	}
	cmd.Dir = dir
	cmd.Env = scriptEnv(skill, params)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	osutil.SetProcessGroup(cmd)
	osutil.SetProcessGroupKill(cmd)
	cmd.WaitDelay = osutil.GracefulShutdownDelay + 500*time.Millisecond

	logger.G(ctx).WithField("dir", dir).WithField("args_count", len(args)).Debug("starting script")
	err := cmd.Run()
	out := ScriptOutput{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() != nil && cmd.Process != nil {
		if osutil.GroupAlive(cmd.Process.Pid) {
			logger.G(ctx).WithField("pid", cmd.Process.Pid).Warn("script process group still running after cancellation")
		}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return out, skills.NewError(skills.ErrScriptExecution, skill.Name, "script exited with status %d%s", out.ExitCode, stderrTail(out.Stderr))
		}
		return out, skills.WrapError(err, skills.ErrScriptExecution, skill.Name, "script failed")
	}
	return out, nil
}

// resolveIn returns path as an absolute path, relative paths taken from dir
func resolveIn(dir, path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// executablePath reports whether script is a bare path to an executable file
func executablePath(dir, script string) (string, bool) {
	if strings.ContainsAny(script, " \t\n;|&$`'\"<>") {
		return "", false
	}
	path := resolveIn(dir, script)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		return "", false
	}
	return path, true
}

func stderrTail(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return ""
	}
	if len(stderr) > maxErrorOutput {
		stderr = "..." + stderr[len(stderr)-maxErrorOutput:]
	}
	return ": " + stderr
}

// scriptArgs renders parameters in declaration order as --kebab-name value.
// A true boolean is a bare flag and a false one is omitted.
func scriptArgs(skill *skills.Skill, params map[string]any) []string {
	var args []string
	for _, p := range skill.Parameters {
		v, ok := params[p.Name]
		if !ok || p.Name == WorkingDirParameter {
			continue
		}
		flag := "--" + strings.ReplaceAll(p.Name, "_", "-")
		if b, isBool := v.(bool); isBool {
			if b {
				args = append(args, flag)
			}
			continue
		}
		args = append(args, flag, formatValue(v))
	}
	return args
}

func scriptEnv(skill *skills.Skill, params map[string]any) []string {
	env := os.Environ()
	for k, v := range skill.Execution.Env {
		env = append(env, k+"="+v)
	}
	for _, p := range skill.Parameters {
		v, ok := params[p.Name]
		if !ok || p.Name == WorkingDirParameter {
			continue
		}
		env = append(env, ParamEnvPrefix+strings.ToUpper(p.Name)+"="+formatValue(v))
	}
	return env
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool, int, int64, json.Number:
		return fmt.Sprint(val)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
