package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "reconcile",
		Short:         "Reconcile completed M-Pesa payments against gateway confirmations",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (defaults to CONFIG_PATH or ./configs/payment.yaml)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", formatJSON, "Output format (json, yaml)")

	rootCmd.AddCommand(runCmd(opts))
	rootCmd.AddCommand(reportCmd(opts))
	rootCmd.AddCommand(discrepanciesCmd(opts))
	return rootCmd
}
