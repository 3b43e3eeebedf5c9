package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/FairForge/warmstandby/internal/ha"
)

func newCheckCmd(opts *globalOptions) *cobra.Command {
	var domain string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe the primary and secondary endpoints once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			domains := a.cfg.ToDomains()
			if domain != "" {
				d, err := a.domain(domain)
				if err != nil {
					return err
				}
				domains = []ha.FailoverDomain{d}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DOMAIN\tROLE\tTARGET\tHEALTHY\tLATENCY\tERROR")

			unhealthy := 0
			for _, d := range domains {
				for _, probe := range []struct{ role, target string }{
					{"primary", d.PrimaryTarget},
					{"secondary", d.SecondaryTarget},
				} {
					if probe.target == "" {
						continue
					}
					r := a.health.Check(cmd.Context(), probe.target)
					if !r.Healthy && probe.role == "primary" {
						unhealthy++
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
						d.Name, probe.role, probe.target, r.Healthy, r.Latency.Round(time.Millisecond), r.Error)
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if unhealthy > 0 {
				return fmt.Errorf("%d primary endpoint(s) unhealthy", unhealthy)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "Only check this domain")
	return cmd
}
