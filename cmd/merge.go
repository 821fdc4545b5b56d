package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/id/uuid"
)

// newMergeCmd creates the 'merge' subcommand. It assembles one month from
// the content checkpoints already on disk and delivers it to the sinks, for
// periods whose collect run stopped short of merging.
func newMergeCmd() *cobra.Command {
	flags := &runFlags{}
	var month string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merges one month of content checkpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if month == "" {
				return errors.New("--month is required")
			}
			m, err := time.Parse("2006-01", month)
			if err != nil {
				return fmt.Errorf("parse --month: %w", err)
			}
			sel, err := flags.apply(app.Config.Run).Selection()
			if err != nil {
				return err
			}
			st, err := openStores(app.Config.Paths, app.Logger)
			if err != nil {
				return err
			}
			res, err := st.Assembler.Merge(cmd.Context(), sel.Label(), m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %s %s: %d records -> %s\n",
				res.Label, res.Month.Format("2006-01"), res.Count, res.Path)

			runID, err := uuid.New().NewRunID()
			if err != nil {
				return err
			}
			outputs, closeSinks, err := buildSinks(cmd.Context(), app.Config.Sinks, uuid.Format(runID), st, app.Logger)
			defer closeSinks()
			if err != nil {
				return err
			}
			var errs []error
			for _, s := range outputs {
				if err := s.Deliver(cmd.Context(), res); err != nil {
					app.Logger.Error("sink delivery failed", zap.String("sink", s.Name()), zap.Error(err))
					errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringSliceVar(&flags.press, "press", nil, "publisher name; repeat for a batch")
	cmd.Flags().StringVar(&month, "month", "", "month to merge (YYYY-MM)")
	return cmd
}
