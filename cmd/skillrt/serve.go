package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/jingkaihe/skillrt/pkg/discovery"
	"github.com/jingkaihe/skillrt/pkg/loader"
	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/presenter"
	skillruntime "github.com/jingkaihe/skillrt/pkg/runtime"
	"github.com/jingkaihe/skillrt/pkg/server"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the skill catalog and executor over HTTP",
	Long: `Start a local HTTP server exposing the skill catalog, skill execution and
the execution history as a JSON API:

  GET  /api/skills                  list skills (category, tag, kind, domain filters)
  GET  /api/skills/{name}           show one skill
  POST /api/skills/{name}/execute   execute a skill
  GET  /api/stats                   catalog statistics
  GET  /api/performance[/{name}]    performance reports

With --watch the catalog is reloaded whenever skill sources change.

The server listens on 127.0.0.1:8040 by default.`,
	RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *skillruntime.Runtime) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		s, err := newSkillServer(rt)
		if err != nil {
			return err
		}

		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			go func() {
				err := rt.Watch(ctx, discovery.DefaultDebounce, func(report *loader.LoadReport) {
					logger.G(ctx).WithField("loaded", len(report.Loaded)).
						WithField("errors", len(report.Errors)).
						Info("skill catalog reloaded")
				})
				if err != nil {
					logger.G(ctx).WithError(err).Error("skill watcher stopped")
				}
			}()
		}

		presenter.Info("Press Ctrl+C to stop the server")
		if err := s.Start(ctx); err != nil {
			return errors.Wrap(err, "skill API server failed")
		}
		presenter.Info("Skill API server stopped")
		return nil
	}),
}

// newSkillServer builds the API server on top of rt. The performance
// endpoints are disabled when history is.
func newSkillServer(rt *skillruntime.Runtime) (*server.Server, error) {
	var reporter server.Reporter
	if rt.History != nil {
		reporter = rt.History
	}
	cfg := server.Config{
		Host: rt.Config.Server.Host,
		Port: rt.Config.Server.Port,
	}
	return server.New(cfg, rt.Registry, rt, reporter)
}

func init() {
	serveCmd.Flags().String("host", "", "Host to bind the API server to")
	serveCmd.Flags().Int("port", 0, "Port to bind the API server to")
	serveCmd.Flags().Bool("watch", false, "Reload skills when their sources change")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
