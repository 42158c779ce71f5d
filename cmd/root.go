package cmd

import (
	"github.com/spf13/cobra"

	"github.com/wanderlist/imagebackfill/cmd/config"
	"github.com/wanderlist/imagebackfill/cmd/notify"
	"github.com/wanderlist/imagebackfill/cmd/run"
	"github.com/wanderlist/imagebackfill/cmd/serve"
	"github.com/wanderlist/imagebackfill/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "imagebackfill",
		Short:         "Backfill entity images from an image search provider",
		Version:       ctx.Build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate(ctx.Build.String() + "\n")

	setupFlags(rootCmd, ctx)

	rootCmd.AddCommand(
		run.Command(ctx),
		serve.Command(ctx),
		notify.Command(ctx),
		config.Command(ctx),
	)

	// Settings are loaded after flag parsing so --config and overrides apply.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return ctx.Load(cmd.Flags())
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
// Flags listed in conf.FlagKeys override the matching settings when set.
func setupFlags(rootCmd *cobra.Command, ctx *app.Context) {
	rootCmd.PersistentFlags().StringVarP(&ctx.ConfigFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/imagebackfill, /etc/imagebackfill)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}
