package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/FairForge/warmstandby/internal/database"
	"github.com/FairForge/warmstandby/internal/ha"
)

func newReportCmd(opts *globalOptions) *cobra.Command {
	var (
		since  time.Duration
		domain string
		output string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize RTO/RPO compliance of stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if !cfg.Database.Enabled() {
				return fmt.Errorf("report needs a database: run history is only kept in memory otherwise")
			}
			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			base, perDomain := cfg.Targets()
			tracker, err := ha.NewRTORPOTrackerWithDomains(base, perDomain)
			if err != nil {
				return err
			}

			r, err := buildReport(cmd.Context(), database.NewRunStore(db), tracker, domain, time.Now().Add(-since))
			if err != nil {
				return err
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			return r.print(cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&since, "since", 30*24*time.Hour, "Report period ending now")
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "Only report this domain")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	return cmd
}

type report struct {
	SLA    ha.SLAReport          `json:"sla"`
	Runs   map[ha.RunStatus]int  `json:"runs"`
	States []database.StateStats `json:"states"`
}

// runSource lists stored runs. database.RunStore implements it.
type runSource interface {
	ListRuns(ctx context.Context, domain string, limit int) ([]*ha.Run, error)
	History() *database.StepHistory
}

func buildReport(ctx context.Context, store runSource, tracker *ha.RTORPOTracker, domain string, from time.Time) (*report, error) {
	runs, err := store.ListRuns(ctx, domain, 0)
	if err != nil {
		return nil, err
	}

	r := &report{Runs: make(map[ha.RunStatus]int)}
	for _, run := range runs {
		if run.StartedAt.Before(from) {
			continue
		}
		r.Runs[run.Status]++
		tracker.RecordRun(run)
	}
	r.SLA = tracker.GenerateSLAReport(from, time.Now())

	r.States, err = store.History().StateDurations(ctx, domain, from)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *report) print(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "Period\t%s .. %s\n", r.SLA.PeriodStart.Format(time.RFC3339), r.SLA.PeriodEnd.Format(time.RFC3339))
	fmt.Fprintf(w, "Tier\t%s (RTO %s, RPO %s)\n", r.SLA.Tier, r.SLA.RTOTarget, r.SLA.RPOTarget)
	fmt.Fprintf(w, "Failovers\t%d\n", r.SLA.TotalIncidents)
	fmt.Fprintf(w, "RTO compliance\t%.1f%%\n", r.SLA.RTOCompliancePercent)
	fmt.Fprintf(w, "RPO compliance\t%.1f%%\n", r.SLA.RPOCompliancePercent)
	fmt.Fprintf(w, "Average recovery\t%s\n", r.SLA.AverageRecoveryTime.Round(time.Second))
	for _, status := range []ha.RunStatus{ha.RunStatusSucceeded, ha.RunStatusDegraded, ha.RunStatusFailed, ha.RunStatusTimedOut, ha.RunStatusNoop} {
		if n := r.Runs[status]; n > 0 {
			fmt.Fprintf(w, "Runs %s\t%d\n", status, n)
		}
	}

	if len(r.States) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "STATE\tCOUNT\tFAILURES\tAVG\tMAX")
		for _, s := range r.States {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", s.State, s.Count, s.Failures,
				s.Average.Round(time.Second), s.Max.Round(time.Second))
		}
	}
	return w.Flush()
}
