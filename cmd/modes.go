package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/reddit-collector/internal/app"
)

// newModeCmd builds the subcommand that runs mode.
func newModeCmd(mode app.Mode, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runner.Execute(cmd.Context(), mode)
		},
	}
}
