package main

import (
	"context"
	"os"

	"github.com/jingkaihe/skillrt/pkg/config"
	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/presenter"
	skillruntime "github.com/jingkaihe/skillrt/pkg/runtime"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errAlreadyReported is returned by commands that printed their own failure
var errAlreadyReported = errors.New("failure already reported")

func init() {
	// Defaults, SKILLRT_* environment variables and ~/.skillrt/config.yaml
	if err := config.Init(viper.GetViper()); err != nil {
		logger.G(context.Background()).WithError(err).Warn("failed to read config file")
	}
}

var rootCmd = &cobra.Command{
	Use:   "skillrt",
	Short: "Discover, inspect and execute skills",
	Long: `skillrt is a runtime for declarative skills. It discovers skill documents
from bundled, project and user directories, adapts package.json scripts,
Makefile targets and MCP tools into skills, and executes them with
parameter validation, hooks, retries and timeouts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := logger.SetLogLevel(viper.GetString("log_level")); err != nil {
			return errors.Wrap(err, "invalid log level")
		}
		logger.SetLogFormat(viper.GetString("log_format"))

		quiet, _ := cmd.Flags().GetBool("quiet")
		presenter.SetQuiet(quiet)
		return nil
	},
}

// loadConfig decodes the merged viper settings
func loadConfig() (*config.Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user home directory")
	}
	return config.Load(viper.GetViper(), home)
}

// openRuntime builds a runtime from the loaded configuration. Skills are
// discovered by the caller.
func openRuntime(ctx context.Context) (*skillruntime.Runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	rt, err := skillruntime.New(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize skill runtime")
	}
	return rt, nil
}

func main() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace)")
	flags.String("log-format", "text", "Log format (text or json)")
	flags.BoolP("quiet", "q", false, "Only print errors and command output")
	flags.String("project-dir", "", "Project skill directory (default ./.skillrt/skills)")
	flags.String("user-dir", "", "User skill directory (default ~/.skillrt/skills)")
	flags.Bool("builtin", true, "Load the bundled skills")
	flags.StringSlice("adapters", nil, "Manifest adapters to run (npm, make)")
	flags.Bool("history", true, "Record executions in the history database")

	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))
	viper.BindPFlag("skills.project_dir", flags.Lookup("project-dir"))
	viper.BindPFlag("skills.user_dir", flags.Lookup("user-dir"))
	viper.BindPFlag("skills.builtin", flags.Lookup("builtin"))
	viper.BindPFlag("skills.adapters", flags.Lookup("adapters"))
	viper.BindPFlag("history.enabled", flags.Lookup("history"))

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errAlreadyReported) {
			presenter.Error(err, "")
		}
		os.Exit(1)
	}
}
