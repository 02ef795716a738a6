package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TimeWtr/plc_bridge/domain"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "plcbridge",
	Short: "Bridge between the scheduling system and line controllers",
	Long: `plcbridge merges exported batch files into the job queue, advances
jobs on controller events and answers the scheduling and packaging
controllers with fixed-width job messages.

Examples:
  plcbridge serve -c config.yaml     # listen for controllers and ingest batches
  plcbridge ingest -c config.yaml    # run one reconciliation pass
  plcbridge advance -c config.yaml   # run one job change
  plcbridge jobs -c config.yaml      # print the job queue`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run controller listeners and the ingestion loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath, verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.bridge().Run(ctx)
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Reconcile the pending batch file once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath, verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		report, found, err := a.ingestor.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintln(cmd.OutOrStdout(), "no batch file")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"rows=%d inserted=%d updated=%d unchanged=%d protected=%d skipped=%d purged=%d shifted=%d\n",
			report.Rows, report.Inserted, report.Updated, report.Unchanged,
			report.Protected, report.Skipped, report.Purged, report.Shifted)
		return nil
	},
}

var advanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Run one job change without a controller",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath, verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		tr, err := a.lifecycle.Advance(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if tr.Current != nil {
			fmt.Fprintf(out, "current: %s\n", tr.Current.JobID)
		}
		if tr.Next != nil {
			fmt.Fprintf(out, "next:    %s\n", tr.Next.JobID)
		}
		for _, id := range tr.Retired {
			fmt.Fprintf(out, "done:    %s\n", id)
		}
		return nil
	},
}

var (
	jobsJSON     bool
	jobsFinished bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Print the job queue or the finished job records",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath, verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		if jobsFinished {
			return printFinished(cmd, a)
		}

		jobs, err := a.store.Load(cmd.Context())
		if err != nil {
			return err
		}
		if jobsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(jobs)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tJOB\tSTATUS\tMATERIAL")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.ScheduleIndex, j.JobID, j.Status, j.Get(domain.FieldMaterialID))
		}
		return w.Flush()
	},
}

func printFinished(cmd *cobra.Command, a *app) error {
	records, err := a.finished.List(cmd.Context())
	if err != nil {
		return err
	}
	if jobsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTART\tEND\tFINISHED\tBOXES\tREJECTS")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
			r.JobID, r.StartTime, r.EndTime, r.FinishedCartons, r.BoxQtyActual, r.RejectQty)
	}
	return w.Flush()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	jobsCmd.Flags().BoolVar(&jobsJSON, "json", false, "print as JSON")
	jobsCmd.Flags().BoolVar(&jobsFinished, "finished", false, "print finished job records")

	rootCmd.AddCommand(serveCmd, ingestCmd, advanceCmd, jobsCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
