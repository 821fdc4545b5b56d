package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCheckProxiesCmd creates the 'check-proxies' subcommand. It probes the
// configured candidates, blacklists the ones that fail and prints the usable
// pool.
func newCheckProxiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-proxies",
		Short: "Probes the configured proxies and prints the usable ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			validator, err := newValidator(app.Config, app.Logger)
			if err != nil {
				return err
			}
			usable, err := validator.Validate(cmd.Context(), candidates(app.Config.Proxy))
			for _, p := range usable {
				fmt.Fprintln(cmd.OutOrStdout(), p.Redacted())
			}
			if err != nil {
				return fmt.Errorf("validate proxies: %w", err)
			}
			return nil
		},
	}
}
