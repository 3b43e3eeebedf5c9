package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FairForge/warmstandby/internal/ha"
)

func newFailoverCmd(opts *globalOptions) *cobra.Command {
	var (
		domain string
		reason string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "failover",
		Short: "Run one failover for a domain and wait for it to finish",
		Long: `Failover runs the failover state machine once for the given domain. The
primary is probed first; a healthy primary ends the run without changes unless
--force is given. The command exits non-zero when the run fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.domain(domain)
			if err != nil {
				return err
			}
			return runFailover(ctx, cmd, a, d, ha.TriggerRequest{
				Reason:      reason,
				TriggeredBy: "cli",
				Force:       force,
			})
		},
	}
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "Failover domain name")
	cmd.Flags().StringVar(&reason, "reason", "manual failover", "Reason recorded on the run")
	cmd.Flags().BoolVar(&force, "force", false, "Fail over even when the primary is healthy")
	_ = cmd.MarkFlagRequired("domain")
	return cmd
}

func runFailover(ctx context.Context, cmd *cobra.Command, a *app, d ha.FailoverDomain, req ha.TriggerRequest) error {
	run, err := a.dr.Execute(ctx, d, req)
	if run == nil {
		return err
	}

	a.logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Duration("duration", run.Duration()),
	)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(run); encErr != nil {
		return encErr
	}

	if err != nil {
		return fmt.Errorf("run %s %s: %w", run.ID, run.Status, err)
	}
	return nil
}
