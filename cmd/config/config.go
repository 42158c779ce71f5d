package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wanderlist/imagebackfill/internal/app"
	"github.com/wanderlist/imagebackfill/internal/conf"
)

// Command creates the config command, which prints the effective settings
// with credentials masked and lists requirements that are still missing.
func Command(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := ctx.Settings
			out, err := settings.Redacted()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)

			if missing := conf.Missing(settings.Requirements()); len(missing) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "\nmissing:")
				for _, m := range missing {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", m)
				}
			}
			return nil
		},
	}
}
