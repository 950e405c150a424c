package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jingkaihe/skillrt/pkg/discovery"
	"github.com/jingkaihe/skillrt/pkg/loader"
	"github.com/jingkaihe/skillrt/pkg/presenter"
	skillruntime "github.com/jingkaihe/skillrt/pkg/runtime"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload skills whenever their sources change",
	Long: `Watch the project, user and adapter directories and rediscover skills
whenever a document or manifest changes. Each rediscovery prints its load
report. Press Ctrl+C to stop.`,
	RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *skillruntime.Runtime) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		debounce, _ := cmd.Flags().GetDuration("debounce")
		presenter.Info("Watching " + strings.Join(rt.Discovery.Dirs(), ", ") + " (press Ctrl+C to stop)")

		return rt.Watch(ctx, debounce, func(report *loader.LoadReport) {
			presenter.Separator()
			presenter.Info("Skills changed at " + time.Now().Format(time.TimeOnly))
			printReport(report)
		})
	}),
}

func init() {
	watchCmd.Flags().Duration("debounce", discovery.DefaultDebounce, "Time to wait for changes to settle before reloading")
}
