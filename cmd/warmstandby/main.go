// Command warmstandby monitors a primary region and fails over to a warm
// standby region when it goes down.
//
// Usage:
//
//	warmstandby serve  --config warmstandby.yaml    Run the monitor and admin API
//	warmstandby failover --domain app               Run one failover now
//	warmstandby check                               Probe primaries and secondaries
//	warmstandby report --since 720h                 RTO/RPO report of stored runs
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set by -ldflags "-X main.version=..."
var version = "dev"

type globalOptions struct {
	configPath string
	logLevel   string
}

func main() {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "warmstandby",
		Short:         "Warm standby failover orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `warmstandby watches the primary region of each failover domain and, when it
fails, promotes the database replica, scales the standby service, repoints DNS
and notifies operators.`,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("WARMSTANDBY_CONFIG"), "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newFailoverCmd(opts),
		newCheckCmd(opts),
		newReportCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "warmstandby %s\n", version)
		},
	}
}
