package cmd

import (
	"fmt"
	"os"

	"github.com/shannn1/echolab-final/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "echolab",
	Short: "EchoLab is a collaborative AI music backend.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
