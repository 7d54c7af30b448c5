package main

import (
	"fmt"

	"github.com/aretw0/autotron"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of autotron",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "autotron version %s\n", autotron.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
