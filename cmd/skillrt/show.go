package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jingkaihe/skillrt/pkg/presenter"
	skillruntime "github.com/jingkaihe/skillrt/pkg/runtime"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show the definition of a skill",
	Args:  cobra.ExactArgs(1),
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *skillruntime.Runtime) error {
		skill, err := rt.Registry.Get(args[0])
		if err != nil {
			return err
		}
		prov, _ := rt.Registry.Provenance(skill.Name)

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			out, err := json.MarshalIndent(map[string]any{
				"skill":      skill,
				"provenance": prov,
			}, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal skill")
			}
			fmt.Println(string(out))
			return nil
		}

		printSkill(skill, prov)
		return nil
	}),
}

func printSkill(s *skills.Skill, prov skills.Provenance) {
	presenter.Section(s.Name + " " + s.Version)
	fmt.Println(s.Description)
	fmt.Println()

	rows := [][]string{
		{"Category", valueOr(s.Category, "-")},
		{"Kind", string(s.Execution.Kind)},
		{"Target", executionTarget(s)},
		{"Timeout", s.Execution.Timeout.String()},
		{"Retries", fmt.Sprint(s.Execution.Retry)},
		{"Source", string(prov.Source)},
		{"Path", valueOr(prov.Path, "-")},
	}
	if len(s.Dependencies) > 0 {
		rows = append(rows, []string{"Dependencies", strings.Join(s.Dependencies, ", ")})
	}
	if len(s.Metadata.Tags) > 0 {
		rows = append(rows, []string{"Tags", strings.Join(s.Metadata.Tags, ", ")})
	}
	presenter.Table([]string{"FIELD", "VALUE"}, rows)

	if len(s.Parameters) > 0 {
		fmt.Println()
		params := make([][]string, 0, len(s.Parameters))
		for _, p := range s.Parameters {
			def := "-"
			if p.Default != nil {
				def = fmt.Sprint(p.Default)
			}
			params = append(params, []string{p.Name, string(p.Type), fmt.Sprint(p.Required), def, p.Description})
		}
		presenter.Table([]string{"PARAMETER", "TYPE", "REQUIRED", "DEFAULT", "DESCRIPTION"}, params)
	}

	if !s.Hooks.Empty() {
		fmt.Println()
		var hooks [][]string
		for _, trigger := range []skills.HookTrigger{skills.TriggerPre, skills.TriggerPost, skills.TriggerError} {
			if names := s.Hooks.ForTrigger(trigger); len(names) > 0 {
				hooks = append(hooks, []string{string(trigger), strings.Join(names, ", ")})
			}
		}
		presenter.Table([]string{"HOOK", "SKILLS"}, hooks)
	}
}

func executionTarget(s *skills.Skill) string {
	e := s.Execution
	switch e.Kind {
	case skills.KindNative:
		return e.SymbolKey()
	case skills.KindScript:
		return e.Script
	case skills.KindMCP:
		return e.MCPServer + "/" + e.MCPTool
	case skills.KindComposite:
		return fmt.Sprintf("%s of %s", e.Policy, strings.Join(s.ChildNames(), ", "))
	}
	return "-"
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func init() {
	showCmd.Flags().Bool("json", false, "Output in JSON format")
}
