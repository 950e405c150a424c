package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jingkaihe/skillrt/pkg/executor"
	"github.com/jingkaihe/skillrt/pkg/mcp"
	"github.com/jingkaihe/skillrt/pkg/presenter"
	skillruntime "github.com/jingkaihe/skillrt/pkg/runtime"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run NAME",
	Short: "Execute a skill",
	Long: `Execute a skill with the given parameters.

Parameters are passed as --param key=value. Values of parameters the skill
declares as strings are taken verbatim. Other values that parse as JSON
(numbers, booleans, arrays, objects) keep their JSON type, anything else is
a string. --params-json supplies a whole object and is applied first.

Examples:
  skillrt run echo --param message=hello
  skillrt run sleep --param seconds=1.5
  skillrt run deploy --params-json '{"targets": ["a", "b"]}' --constraint safe`,
	Args: cobra.ExactArgs(1),
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *skillruntime.Runtime) error {
		ctx := cmd.Context()

		paramsJSON, _ := cmd.Flags().GetString("params-json")
		paramPairs, _ := cmd.Flags().GetStringArray("param")
		// an unknown skill is reported by Execute
		skill, _ := rt.Registry.Get(args[0])
		params, err := parseParams(paramsJSON, paramPairs, skill)
		if err != nil {
			return err
		}

		execCtx, err := getExecutionContextFromFlags(cmd)
		if err != nil {
			return err
		}

		result := rt.Execute(ctx, args[0], params, execCtx)

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal result")
			}
			fmt.Println(string(out))
		} else {
			presenter.Result(result)
			if result.Success && result.Data != nil {
				fmt.Println(formatData(result.Data))
			}
		}

		if !result.Success {
			return errAlreadyReported
		}
		return nil
	}),
}

// parseParams merges a JSON object with key=value pairs. Pairs win. skill may
// be nil, in which case no parameter is treated as a declared string.
func parseParams(paramsJSON string, pairs []string, skill *skills.Skill) (map[string]any, error) {
	params := make(map[string]any)
	if strings.TrimSpace(paramsJSON) != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			return nil, errors.Wrap(err, "--params-json must be a JSON object")
		}
	}

	for _, pair := range pairs {
		key, raw, err := splitPair(pair)
		if err != nil {
			return nil, errors.Wrap(err, "invalid --param")
		}
		if skill != nil {
			if p, ok := skill.Parameter(key); ok && p.Type == skills.TypeString {
				params[key] = raw
				continue
			}
		}
		params[key] = decodeValue(raw)
	}
	return params, nil
}

// parseKeyValues parses key=value pairs, decoding each value as JSON when
// possible
func parseKeyValues(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, err := splitPair(pair)
		if err != nil {
			return nil, err
		}
		values[key] = decodeValue(raw)
	}
	return values, nil
}

func splitPair(pair string) (string, string, error) {
	key, raw, ok := strings.Cut(pair, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", errors.Errorf("expected key=value, got %q", pair)
	}
	return key, raw, nil
}

func decodeValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func getExecutionContextFromFlags(cmd *cobra.Command) (skills.ExecutionContext, error) {
	var execCtx skills.ExecutionContext
	execCtx.Task, _ = cmd.Flags().GetString("task")
	execCtx.Constraints, _ = cmd.Flags().GetStringSlice("constraint")

	vars, _ := cmd.Flags().GetStringArray("var")
	if len(vars) > 0 {
		values, err := parseKeyValues(vars)
		if err != nil {
			return execCtx, errors.Wrap(err, "invalid --var")
		}
		execCtx.Variables = values
	}
	return execCtx, nil
}

// formatData renders skill output for the terminal. Strings, script stdout
// and MCP text print as is, everything else as indented JSON.
func formatData(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case executor.ScriptOutput:
		return strings.TrimRight(v.Stdout, "\n")
	case mcp.ToolOutput:
		return v.Text
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprint(data)
	}
	return string(out)
}

func init() {
	runCmd.Flags().StringArrayP("param", "p", nil, "Skill parameter as key=value (repeatable)")
	runCmd.Flags().String("params-json", "", "Skill parameters as a JSON object")
	runCmd.Flags().String("task", "", "Task description passed to the execution context")
	runCmd.Flags().StringSlice("constraint", nil, "Execution constraint tag (repeatable)")
	runCmd.Flags().StringArray("var", nil, "Execution context variable as key=value (repeatable)")
	runCmd.Flags().Bool("json", false, "Output the result in JSON format")
}
