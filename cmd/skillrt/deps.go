package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jingkaihe/skillrt/pkg/presenter"
	"github.com/jingkaihe/skillrt/pkg/registry"
	skillruntime "github.com/jingkaihe/skillrt/pkg/runtime"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var depsCmd = &cobra.Command{
	Use:   "deps NAME...",
	Short: "Show the dependency plan of skills",
	Long: `Show the order in which the named skills and their transitive dependencies
must run, and which of them can run concurrently. With a single name the
skill's place in the catalog's dependency graph is shown as well.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *skillruntime.Runtime) error {
		plan, err := rt.Registry.ResolveNames(args...)
		if err != nil {
			return err
		}
		var analysis *registry.DependencyAnalysis
		if len(args) == 1 {
			if analysis, err = rt.Registry.Analyze(args[0]); err != nil {
				return err
			}
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			out, err := json.MarshalIndent(map[string]any{
				"plan":     plan,
				"analysis": analysis,
			}, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal dependency plan")
			}
			fmt.Println(string(out))
			return nil
		}

		printPlan(plan)
		if analysis != nil {
			fmt.Println()
			printAnalysis(analysis)
		}
		return nil
	}),
}

func printPlan(plan *registry.Resolution) {
	presenter.Section("Execution Plan")
	presenter.Table([]string{"LEVEL", "SKILLS"}, groupRows(plan.ParallelGroups))
	fmt.Println()
	presenter.Info(fmt.Sprintf("Order: %s", strings.Join(plan.ExecutionOrder, " -> ")))
	presenter.Info(fmt.Sprintf("%d skills, %d dependencies, %d levels", plan.Graph.TotalSkills, plan.Graph.TotalDependencies, plan.Levels))
}

func printAnalysis(a *registry.DependencyAnalysis) {
	presenter.Section("Dependencies of " + a.Skill)
	presenter.Table([]string{"FIELD", "VALUE"}, [][]string{
		{"Direct", listOrDash(a.Direct)},
		{"Transitive", listOrDash(a.All)},
		{"Used by", listOrDash(a.Dependents)},
		{"Entry point", fmt.Sprint(a.EntryPoint)},
		{"Exit point", fmt.Sprint(a.ExitPoint)},
	})
}

// groupRows numbers parallel groups from zero
func groupRows(groups [][]string) [][]string {
	rows := make([][]string, len(groups))
	for i, g := range groups {
		rows[i] = []string{fmt.Sprint(i), strings.Join(g, ", ")}
	}
	return rows
}

func listOrDash(names []string) string {
	return valueOr(strings.Join(names, ", "), "-")
}

func init() {
	depsCmd.Flags().Bool("json", false, "Output in JSON format")
}
