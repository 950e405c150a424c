package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jingkaihe/skillrt/pkg/performance"
	"github.com/jingkaihe/skillrt/pkg/presenter"
	skillruntime "github.com/jingkaihe/skillrt/pkg/runtime"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded skill executions",
	Long: `Commands for the execution history. Every top-level execution is recorded
in ~/.skillrt/history.db unless history is disabled.`,
}

// historyStore returns the runtime's store or an error when history is off
func historyStore(rt *skillruntime.Runtime) (*performance.Store, error) {
	if rt.History == nil {
		return nil, errors.New("execution history is disabled")
	}
	return rt.History, nil
}

var historyReportCmd = &cobra.Command{
	Use:   "report [NAME]",
	Short: "Show performance reports",
	Long: `Show the performance report of one skill, or of every recorded skill
ordered by average duration. Reports include bottlenecks and
recommendations derived from the recorded executions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *skillruntime.Runtime) error {
		ctx := cmd.Context()
		store, err := historyStore(rt)
		if err != nil {
			return err
		}

		var reports []performance.Report
		if len(args) == 1 {
			r, err := store.Report(ctx, args[0])
			if err != nil {
				return err
			}
			reports = []performance.Report{*r}
		} else if reports, err = store.Reports(ctx); err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return printJSON(reports)
		}
		if len(reports) == 0 {
			presenter.Info("No executions recorded")
			return nil
		}

		rows := make([][]string, 0, len(reports))
		for _, r := range reports {
			rows = append(rows, []string{
				r.SkillName,
				fmt.Sprint(r.TotalExecutions),
				fmt.Sprintf("%.1f%%", r.SuccessRate*100),
				presenter.FormatDuration(r.AvgDuration),
				presenter.FormatDuration(r.MinDuration),
				presenter.FormatDuration(r.MaxDuration),
				r.LastRun.Local().Format(time.DateTime),
			})
		}
		presenter.Table([]string{"SKILL", "RUNS", "SUCCESS", "AVG", "MIN", "MAX", "LAST RUN"}, rows)

		for _, r := range reports {
			if len(r.Bottlenecks) == 0 && len(r.Recommendations) == 0 {
				continue
			}
			fmt.Println()
			presenter.Section(r.SkillName)
			for _, b := range r.Bottlenecks {
				presenter.Warning(b)
			}
			for _, rec := range r.Recommendations {
				presenter.Info(rec)
			}
		}
		return nil
	}),
}

var historyRecentCmd = &cobra.Command{
	Use:   "recent [NAME]",
	Short: "List the most recent executions",
	Args:  cobra.MaximumNArgs(1),
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *skillruntime.Runtime) error {
		ctx := cmd.Context()
		store, err := historyStore(rt)
		if err != nil {
			return err
		}

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		limit, _ := cmd.Flags().GetInt("limit")
		executions, err := store.Recent(ctx, name, limit)
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return printJSON(executions)
		}
		if len(executions) == 0 {
			presenter.Info("No executions recorded")
			return nil
		}

		rows := make([][]string, 0, len(executions))
		for _, e := range executions {
			status := "ok"
			if !e.Success {
				status = strings.ToLower(string(e.ErrorKind))
			}
			rows = append(rows, []string{
				e.ExecutedAt.Local().Format(time.DateTime),
				e.SkillName,
				status,
				presenter.FormatDuration(e.Duration),
				fmt.Sprint(e.Attempts),
				e.ExecutionID,
			})
		}
		presenter.Table([]string{"WHEN", "SKILL", "STATUS", "DURATION", "ATTEMPTS", "EXECUTION ID"}, rows)
		return nil
	}),
}

var historySlowestCmd = &cobra.Command{
	Use:   "slowest",
	Short: "List the skills with the highest average duration",
	RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *skillruntime.Runtime) error {
		ctx := cmd.Context()
		store, err := historyStore(rt)
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		reports, err := store.Slowest(ctx, limit)
		if err != nil {
			return err
		}
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return printJSON(reports)
		}
		if len(reports) == 0 {
			presenter.Info("No executions recorded")
			return nil
		}

		rows := make([][]string, 0, len(reports))
		for i, r := range reports {
			rows = append(rows, []string{fmt.Sprint(i + 1), r.SkillName, presenter.FormatDuration(r.AvgDuration), fmt.Sprint(r.TotalExecutions)})
		}
		presenter.Table([]string{"#", "SKILL", "AVG", "RUNS"}, rows)
		return nil
	}),
}

var historyClearCmd = &cobra.Command{
	Use:   "clear [NAME]",
	Short: "Delete recorded executions",
	Long:  `Delete the recorded executions of one skill, or all of them when no name is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *skillruntime.Runtime) error {
		ctx := cmd.Context()
		store, err := historyStore(rt)
		if err != nil {
			return err
		}

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		n, err := store.Clear(ctx, name)
		if err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Deleted %d executions", n))
		return nil
	}),
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal output")
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	historyReportCmd.Flags().Bool("json", false, "Output in JSON format")
	historyRecentCmd.Flags().Int("limit", 20, "Maximum number of executions to list")
	historyRecentCmd.Flags().Bool("json", false, "Output in JSON format")
	historySlowestCmd.Flags().Int("limit", 5, "Number of skills to list")
	historySlowestCmd.Flags().Bool("json", false, "Output in JSON format")

	historyCmd.AddCommand(historyReportCmd)
	historyCmd.AddCommand(historyRecentCmd)
	historyCmd.AddCommand(historySlowestCmd)
	historyCmd.AddCommand(historyClearCmd)
}
