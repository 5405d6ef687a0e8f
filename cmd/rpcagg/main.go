package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rpcagg",
		Short:         "Multi-provider RPC aggregation for settlement domains.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String(flagDomains, "", "path to the domains YAML file (default $DOMAINS_FILE or domains.yaml)")
	cmd.AddCommand(ServeCmd(), StatusCmd())
	return cmd
}
