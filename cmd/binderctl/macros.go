package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"binderd/internal/macro"
)

var hotkeysCmd = &cobra.Command{
	Use:   "hotkeys",
	Short: "List the macro hotkeys of a profile",
	Run: func(cmd *cobra.Command, args []string) {
		profile, _ := cmd.Flags().GetString("profile")

		client := connect(cmd)
		defer client.Close()

		resp, err := client.ListHotkeys(profile)
		if err != nil {
			exitf("list hotkeys: %v", err)
		}
		if jsonMode(cmd) {
			printJSON(resp)
			return
		}
		if len(resp.Hotkeys) == 0 {
			fmt.Println("No macros.")
			return
		}
		for _, h := range resp.Hotkeys {
			fmt.Printf("%-36s  %-16s  %-20s  %d steps\n", h.ID, h.Hotkey, h.Title, len(h.Steps))
		}
	},
}

var addHotkeyCmd = &cobra.Command{
	Use:   "add-hotkey <combo> [steps.json]",
	Short: "Add a macro hotkey to a profile",
	Long: `Add a macro hotkey. The combination is "+"-joined, for example ctrl+alt+1.
Steps are read as a JSON array from the file (- reads stdin), or given with --text.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		profile, _ := cmd.Flags().GetString("profile")
		title, _ := cmd.Flags().GetString("title")

		var file string
		if len(args) == 2 {
			file = args[1]
		}
		steps := readSteps(cmd, file)
		if title == "" {
			title = args[0]
		}

		client := connect(cmd)
		defer client.Close()

		resp, err := client.AddHotkey(profile, macro.Hotkey{Title: title, Hotkey: args[0], Steps: steps})
		if err != nil {
			exitf("add hotkey: %v", err)
		}
		if jsonMode(cmd) {
			printJSON(resp)
			return
		}
		fmt.Printf("Added macro %s on %s (%s)\n", resp.Hotkey.Title, resp.Hotkey.Hotkey, resp.Hotkey.ID)
		if resp.Duplicate {
			fmt.Printf("Warning: another macro already uses %s\n", resp.Hotkey.Hotkey)
		}
	},
}

var rmHotkeyCmd = &cobra.Command{
	Use:   "rm-hotkey <hotkey-id>...",
	Short: "Remove macro hotkeys from a profile",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		profile, _ := cmd.Flags().GetString("profile")

		client := connect(cmd)
		defer client.Close()

		failed := false
		for _, id := range args {
			if err := client.DeleteHotkey(profile, id); err != nil {
				fmt.Printf("Error removing %s: %v\n", id, err)
				failed = true
				continue
			}
			fmt.Printf("Removed macro %s\n", id)
		}
		if failed {
			exitf("some macros were not removed")
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run <hotkey-id>",
	Short: "Run the macro of a hotkey of the active profile",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := connect(cmd)
		defer client.Close()

		started, err := client.RunHotkey(args[0])
		if err != nil {
			exitf("run: %v", err)
		}
		reportStarted(cmd, started)
	},
}

var testStepsCmd = &cobra.Command{
	Use:   "test [steps.json]",
	Short: "Run ad-hoc macro steps from a JSON array (- reads stdin)",
	Long: `Run macro steps without saving them. Steps are read as a JSON array:

  [{"type": "type_text", "value": "hello"}, {"type": "press_enter"}]

With --text the steps are a single type_text step.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		title, _ := cmd.Flags().GetString("title")

		var file string
		if len(args) == 1 {
			file = args[0]
		}
		steps := readSteps(cmd, file)

		client := connect(cmd)
		defer client.Close()

		started, err := client.TestSteps(title, steps)
		if err != nil {
			exitf("test: %v", err)
		}
		reportStarted(cmd, started)
	},
}

// readSteps returns the steps given with --text or read from file.
func readSteps(cmd *cobra.Command, file string) []macro.Step {
	text, _ := cmd.Flags().GetString("text")
	if text != "" {
		return []macro.Step{{Type: macro.TypeText, Value: text}}
	}
	if file == "" {
		exitf("give a steps file or --text")
	}

	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		exitf("read %s: %v", file, err)
	}
	var steps []macro.Step
	if err := json.Unmarshal(data, &steps); err != nil {
		exitf("decode steps: %v", err)
	}
	return steps
}

func reportStarted(cmd *cobra.Command, started bool) {
	if jsonMode(cmd) {
		printJSON(map[string]bool{"started": started})
		return
	}
	if started {
		fmt.Println("Macro started.")
		return
	}
	fmt.Println("Macro not started: expansion is off or another macro is running.")
}

func stepTypes() string {
	names := make([]string, len(macro.StepTypes))
	for i, t := range macro.StepTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func init() {
	for _, c := range []*cobra.Command{hotkeysCmd, addHotkeyCmd, rmHotkeyCmd} {
		c.Flags().StringP("profile", "p", "", "profile id (default the active profile)")
	}
	for _, c := range []*cobra.Command{addHotkeyCmd, testStepsCmd} {
		c.Flags().String("text", "", "type this text")
		c.Flags().String("title", "", "macro title")
		c.Long += "\n\nStep types: " + stepTypes() + "."
	}

	rootCmd.AddCommand(hotkeysCmd)
	rootCmd.AddCommand(addHotkeyCmd)
	rootCmd.AddCommand(rmHotkeyCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(testStepsCmd)
}
