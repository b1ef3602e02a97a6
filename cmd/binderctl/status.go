package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon, engine and profile state",
	Run: func(cmd *cobra.Command, args []string) {
		client := connect(cmd)
		defer client.Close()

		status, err := client.Status()
		if err != nil {
			exitf("status: %v", err)
		}
		if jsonMode(cmd) {
			printJSON(status)
			return
		}

		fmt.Printf("binderd %s (pid %d)\n", status.Version, status.PID)
		fmt.Printf("  Uptime     %s\n", status.Uptime.Round(time.Second))
		fmt.Printf("  Socket     %s\n", status.SocketPath)
		fmt.Printf("  Database   %s\n", status.DatabasePath)
		fmt.Println()
		fmt.Printf("  Expansion  %s\n", onOff(status.Enabled))
		fmt.Printf("  Engine     %s\n", onOff(status.EngineRunning))
		if !status.KeyboardAvailable {
			fmt.Printf("  Keyboard   unavailable: %s\n", status.KeyboardReason)
		}
		if status.MacroRunning {
			fmt.Println("  Macro      running")
		}
		fmt.Printf("  Profile    %s (%s)\n", status.ProfileName, status.ProfileID)
		fmt.Printf("  Binds      %d\n", status.Binds)
		fmt.Printf("  Macros     %d\n", status.Hotkeys)

		if len(status.Metrics) > 0 {
			names := make([]string, 0, len(status.Metrics))
			for name := range status.Metrics {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Println()
			fmt.Println("Metrics:")
			for _, name := range names {
				fmt.Printf("  %-40s %g\n", name, status.Metrics[name])
			}
		}
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle text expansion",
	Run: func(cmd *cobra.Command, args []string) {
		setEnabled(cmd, nil)
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn text expansion on",
	Run: func(cmd *cobra.Command, args []string) {
		on := true
		setEnabled(cmd, &on)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn text expansion off",
	Run: func(cmd *cobra.Command, args []string) {
		off := false
		setEnabled(cmd, &off)
	},
}

func setEnabled(cmd *cobra.Command, enabled *bool) {
	client := connect(cmd)
	defer client.Close()

	state, err := client.SetEnabled(enabled)
	if err != nil {
		exitf("%v", err)
	}
	if jsonMode(cmd) {
		printJSON(map[string]bool{"enabled": state})
		return
	}
	fmt.Printf("Expansion %s\n", onOff(state))
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the active profile from the store",
	Run: func(cmd *cobra.Command, args []string) {
		client := connect(cmd)
		defer client.Close()

		resp, err := client.Reload()
		if err != nil {
			exitf("reload: %v", err)
		}
		if jsonMode(cmd) {
			printJSON(resp)
			return
		}
		fmt.Printf("Loaded profile %s: %d binds, %d macros\n", resp.ProfileName, resp.Binds, resp.Hotkeys)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(reloadCmd)
}
