package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"binderd/internal/ipc"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of binderctl and of the running daemon",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("binderctl version %s\n", Version)

		client := ipc.NewClient(ipc.ClientConfig{
			SocketPath:    socketPath(cmd),
			ClientName:    "binderctl",
			ClientVersion: Version,
		})
		if err := client.Connect(); err != nil {
			fmt.Println("binderd not running")
			return
		}
		defer client.Close()
		fmt.Printf("binderd version %s\n", client.ServerVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
