package cmd

import (
	"github.com/shannn1/echolab-final/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the EchoLab HTTP server",
	Long:  `Start the EchoLab backend: REST API, generation gateway and room relay.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
