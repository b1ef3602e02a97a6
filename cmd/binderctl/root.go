package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"binderd/internal/config"
	"binderd/internal/ipc"
)

var rootCmd = &cobra.Command{
	Use:   "binderctl",
	Short: "binderctl controls a running binderd daemon",
	Long: `binderctl inspects and changes the state of binderd: the active profile,
its binds and macro hotkeys, and the expansion switch.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "binderd configuration file (default "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().String("socket", "", "daemon socket (default from the configuration)")
	rootCmd.PersistentFlags().Bool("json", false, "print JSON instead of text")
}

// socketPath resolves the daemon socket from the flags and the configuration.
func socketPath(cmd *cobra.Command) string {
	if s, _ := cmd.Flags().GetString("socket"); s != "" {
		return config.ExpandPath(s)
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using the default socket\n", err)
		return config.DefaultSocketPath()
	}
	return config.ExpandPath(cfg.IPC.SocketPath)
}

// connect dials the daemon or exits.
func connect(cmd *cobra.Command) *ipc.IPCClient {
	client := ipc.NewClient(ipc.ClientConfig{
		SocketPath:    socketPath(cmd),
		ClientName:    "binderctl",
		ClientVersion: Version,
	})
	if err := client.Connect(); err != nil {
		if errors.Is(err, ipc.ErrDaemonNotRunning) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintln(os.Stderr, "Start the daemon with: binderd run")
			os.Exit(1)
		}
		exitf("cannot connect to daemon: %v", err)
	}
	return client
}

func jsonMode(cmd *cobra.Command) bool {
	on, _ := cmd.Flags().GetBool("json")
	return on
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exitf("encode output: %v", err)
	}
	fmt.Println(string(data))
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
