package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/news-harvester/internal/checkpoint"
	"github.com/JakeFAU/news-harvester/internal/dispatcher"
	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/schedule"
)

// newPlanCmd creates the 'plan' subcommand. It prints the periods and
// windows a collect run would process and where each one stands, without
// touching the network.
func newPlanCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Shows the windows a collect run would process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			req, err := resolveRequest(app.Config, flags)
			if err != nil {
				return err
			}
			st, err := openStores(app.Config.Paths, app.Logger)
			if err != nil {
				return err
			}
			plan, err := dispatcher.Plan(req.Range, app.Config.Crawl.WindowDays)
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), req.Selection.Label(), plan, candidates(app.Config.Proxy), st)
		},
	}
	flags.bind(cmd)
	return cmd
}

func printPlan(w io.Writer, label string, plan []dispatcher.Period, proxies []harvest.Proxy, st stores) error {
	for _, p := range plan {
		merged, err := st.Assembler.Merged(label, p.Range.Begin)
		if err != nil {
			return err
		}
		shards, parallelism, err := schedule.Assign(p.Windows, proxies)
		if err != nil {
			return err
		}
		state := "pending"
		if merged {
			state = "merged"
		}
		fmt.Fprintf(w, "%s %s windows=%d parallelism=%d %s\n",
			label, p.Range.Begin.Format("2006-01"), len(p.Windows), parallelism, state)
		if merged {
			continue
		}
		for _, s := range shards {
			phase, err := windowState(st.Checkpoints, checkpoint.Key{Label: label, Window: s.Window})
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  %s slot=%d %s\n", s.Window.Key(), s.Slot, phase)
		}
	}
	return nil
}

func windowState(store *checkpoint.Store, key checkpoint.Key) (string, error) {
	if key.Window.Inverted() {
		return "inverted", nil
	}
	done, err := store.Exists(key, harvest.PhaseContent)
	if err != nil {
		return "", err
	}
	if done {
		return "done", nil
	}
	found, err := store.Exists(key, harvest.PhaseIdentifiers)
	if err != nil {
		return "", err
	}
	if found {
		return "discovered", nil
	}
	return "pending", nil
}
