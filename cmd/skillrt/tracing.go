package main

import (
	"context"

	"github.com/jingkaihe/skillrt/pkg/logger"
	skillruntime "github.com/jingkaihe/skillrt/pkg/runtime"
	"github.com/jingkaihe/skillrt/pkg/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
)

type runtimeRunFunc func(cmd *cobra.Command, args []string, rt *skillruntime.Runtime) error

// withRuntime opens a runtime, discovers skills and runs fn inside a
// cli.command span. The runtime is closed afterwards, flushing spans.
func withRuntime(fn runtimeRunFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := rt.Close(); err != nil {
				logger.G(ctx).WithError(err).Warn("failed to close skill runtime")
			}
		}()

		attrs := []attribute.KeyValue{
			attribute.String("command.name", cmd.Name()),
			attribute.String("command.path", cmd.CommandPath()),
			attribute.Int("args.count", len(args)),
		}
		cmd.Flags().Visit(func(flag *pflag.Flag) {
			if !logger.IsSensitiveKey(flag.Name) {
				attrs = append(attrs, attribute.String("flag."+flag.Name, flag.Value.String()))
			}
		})

		return telemetry.WithSpan(ctx, "cli.command", func(ctx context.Context) error {
			report := rt.Discover(ctx)
			telemetry.SetAttributes(ctx,
				attribute.Int("skills.loaded", len(report.Loaded)),
				attribute.Int("skills.errors", len(report.Errors)),
			)
			cmd.SetContext(ctx)
			return fn(cmd, args, rt)
		}, attrs...)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("tracing-enabled", false, "Enable OpenTelemetry tracing")
	rootCmd.PersistentFlags().String("tracing-sampler", "ratio", "Tracing sampler type (always, never, ratio)")
	rootCmd.PersistentFlags().Float64("tracing-ratio", 1, "Sampling ratio when using ratio sampler")

	viper.BindPFlag("tracing.enabled", rootCmd.PersistentFlags().Lookup("tracing-enabled"))
	viper.BindPFlag("tracing.sampler", rootCmd.PersistentFlags().Lookup("tracing-sampler"))
	viper.BindPFlag("tracing.ratio", rootCmd.PersistentFlags().Lookup("tracing-ratio"))
}
