package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jingkaihe/skillrt/pkg/presenter"
	skillruntime "github.com/jingkaihe/skillrt/pkg/runtime"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *skillruntime.Runtime) error {
		stats := rt.Registry.Stats()

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			out, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal stats")
			}
			fmt.Println(string(out))
			return nil
		}

		presenter.Section("Skill Catalog")
		presenter.Table([]string{"METRIC", "VALUE"}, [][]string{
			{"Skills", fmt.Sprint(stats.Total)},
			{"Distinct tags", fmt.Sprint(stats.Tags)},
			{"Average parameters", fmt.Sprintf("%.2f", stats.AvgParameters)},
			{"With dependencies", fmt.Sprint(stats.WithDependencies)},
			{"With hooks", fmt.Sprint(stats.WithHooks)},
		})

		fmt.Println()
		presenter.Table([]string{"CATEGORY", "SKILLS"}, countRows(stats.ByCategory))

		byKind := make(map[string]int, len(stats.ByKind))
		for k, n := range stats.ByKind {
			byKind[string(k)] = n
		}
		fmt.Println()
		presenter.Table([]string{"KIND", "SKILLS"}, countRows(byKind))
		return nil
	}),
}

// countRows turns a count map into rows sorted by key
func countRows(counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, fmt.Sprint(counts[k])}
	}
	return rows
}

func init() {
	statsCmd.Flags().Bool("json", false, "Output in JSON format")
}
