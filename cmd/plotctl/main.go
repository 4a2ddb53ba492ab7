package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "plotctl",
	Short: "plotctl - run and inspect sandboxed visualization scripts",
	Long: `plotctl drives the plotbox pipeline from the command line.

It can check a script against the keyword filter, run it through the
configured container backend and list the runs recorded in the ledger.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: ./config.yaml or ./config/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
