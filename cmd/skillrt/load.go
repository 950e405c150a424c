package main

import (
	"encoding/json"
	"fmt"

	"github.com/jingkaihe/skillrt/pkg/loader"
	"github.com/jingkaihe/skillrt/pkg/presenter"
	skillruntime "github.com/jingkaihe/skillrt/pkg/runtime"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load [PATH...]",
	Short: "Load skill documents and report the outcome",
	Long: `Load skill documents from files or directories on top of the discovered
skills and report which documents were registered, which were skipped and
why. Without a path the discovery result itself is reported.

The command exits non-zero if any document failed to load, which makes it
usable as a lint step for skill repositories.`,
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *skillruntime.Runtime) error {
		ctx := cmd.Context()

		var report *loader.LoadReport
		if len(args) == 0 {
			report = rt.Discover(ctx)
		} else {
			report = &loader.LoadReport{}
			for _, p := range args {
				report.Merge(rt.Discovery.Loader().LoadPath(ctx, p))
			}
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			out, err := json.MarshalIndent(struct {
				*loader.LoadReport
				Errors []string `json:"errors"`
			}{report, report.ErrorMessages()}, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal load report")
			}
			fmt.Println(string(out))
		} else {
			printReport(report)
		}

		if len(report.Errors) > 0 {
			return errAlreadyReported
		}
		return nil
	}),
}

// printReport renders a load report. Skipped documents that failed with an
// error are printed as errors, the rest as warnings.
func printReport(report *loader.LoadReport) {
	if len(report.Loaded) > 0 {
		rows := make([][]string, 0, len(report.Loaded))
		for _, l := range report.Loaded {
			state := "loaded"
			if l.Unchanged {
				state = "unchanged"
			}
			rows = append(rows, []string{l.Name, string(l.Source), state, l.Path})
		}
		presenter.Table([]string{"SKILL", "SOURCE", "STATE", "PATH"}, rows)
	}

	failed := make(map[string]bool, len(report.Errors))
	for _, err := range report.Errors {
		failed[err.Error()] = true
		presenter.Error(err, "")
	}
	for _, s := range report.Skipped {
		if !failed[s.Reason] {
			presenter.Warning(fmt.Sprintf("skipped %s: %s", s.Path, s.Reason))
		}
	}
	for _, note := range report.Notes {
		presenter.Info(note)
	}

	summary := fmt.Sprintf("%d loaded, %d skipped, %d errors", len(report.Loaded), len(report.Skipped), len(report.Errors))
	if len(report.Errors) > 0 {
		presenter.Warning(summary)
		return
	}
	presenter.Success(summary)
}

func init() {
	loadCmd.Flags().Bool("json", false, "Output the report in JSON format")
}
