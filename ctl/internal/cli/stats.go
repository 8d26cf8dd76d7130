package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rulstack/rulstack/ctl/internal/remote"
	"github.com/rulstack/rulstack/ctl/internal/scrape"
)

func newStatsCmd(o *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise prediction activity from the server's /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			c := remote.NewHTTPClient(o.v.GetString("server"), o.v.GetDuration("timeout"))
			s, err := scrape.Fetch(cmd.Context(), c.HTTP(), c.MetricsURL())
			if err != nil {
				return fmt.Errorf("scrape %s: %w", c.MetricsURL(), err)
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			return printStats(cmd, s)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text | json")
	return cmd
}

func printStats(cmd *cobra.Command, s scrape.Stats) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	model := s.Model
	if model == "" {
		model = "unknown"
	}
	fmt.Fprintf(w, "Model:\t%s (%s scaler)\n", model, s.Scaler)
	fmt.Fprintf(w, "Predictions:\t%.0f (%.0f ok)\n", s.Total(""), s.Total("ok"))
	fmt.Fprintf(w, "Last RUL:\t%.2f\n", s.LastRUL)
	fmt.Fprintf(w, "Stream clients:\t%.0f\n", s.StreamClients)
	if s.ArtifactChanges > 0 {
		fmt.Fprintf(w, "Artifact changes:\t%.0f (restart the server to serve them)\n", s.ArtifactChanges)
	}

	if ts := s.Transports(); len(ts) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "TRANSPORT\tOK\tINVALID\tERROR\tMEAN LATENCY")
		for _, t := range ts {
			byOutcome := s.Predictions[t]
			fmt.Fprintf(w, "%s\t%.0f\t%.0f\t%.0f\t%s\n",
				t, byOutcome["ok"], byOutcome["invalid"], byOutcome["error"], s.MeanLatency[t])
		}
	}
	return w.Flush()
}
