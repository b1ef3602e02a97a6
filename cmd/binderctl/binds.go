package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"binderd/internal/bind"
)

var bindsCmd = &cobra.Command{
	Use:   "binds",
	Short: "List the binds of a profile",
	Run: func(cmd *cobra.Command, args []string) {
		profile, _ := cmd.Flags().GetString("profile")

		client := connect(cmd)
		defer client.Close()

		resp, err := client.ListBinds(profile)
		if err != nil {
			exitf("list binds: %v", err)
		}
		if jsonMode(cmd) {
			printJSON(resp)
			return
		}
		if len(resp.Binds) == 0 {
			fmt.Println("No binds.")
			return
		}
		for _, b := range resp.Binds {
			fmt.Printf("%-36s  %-12s  %-8s  %s\n", b.ID, b.Trigger, b.Type, preview(b.Content))
		}
	},
}

var addBindCmd = &cobra.Command{
	Use:   "add-bind <trigger> <content>",
	Short: "Add a bind to a profile",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		profile, _ := cmd.Flags().GetString("profile")
		title, _ := cmd.Flags().GetString("title")
		category, _ := cmd.Flags().GetString("category")
		typeName, _ := cmd.Flags().GetString("type")
		keepTrigger, _ := cmd.Flags().GetBool("keep-trigger")
		caseSensitive, _ := cmd.Flags().GetBool("case-sensitive")
		anywhere, _ := cmd.Flags().GetBool("anywhere")
		cursorBack, _ := cmd.Flags().GetInt("cursor-back")

		typ, err := bind.ParseType(typeName)
		if err != nil {
			exitf("%v", err)
		}
		if title == "" {
			title = args[0]
		}
		b := bind.New(title, category, args[0], typ, args[1])
		b.Options.DeleteTrigger = !keepTrigger
		b.Options.CaseSensitive = caseSensitive
		b.Options.OnlyPrefix = !anywhere
		b.CursorBack = cursorBack

		client := connect(cmd)
		defer client.Close()

		resp, err := client.AddBind(profile, b)
		if err != nil {
			exitf("add bind: %v", err)
		}
		if jsonMode(cmd) {
			printJSON(resp)
			return
		}
		fmt.Printf("Added bind %s (%s)\n", resp.Bind.Trigger, resp.Bind.ID)
		if resp.Duplicate {
			fmt.Printf("Warning: another bind already uses the trigger %q\n", resp.Bind.Trigger)
		}
	},
}

var rmBindCmd = &cobra.Command{
	Use:   "rm-bind <bind-id>...",
	Short: "Remove binds from a profile",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		profile, _ := cmd.Flags().GetString("profile")

		client := connect(cmd)
		defer client.Close()

		failed := false
		for _, id := range args {
			if err := client.DeleteBind(profile, id); err != nil {
				fmt.Printf("Error removing %s: %v\n", id, err)
				failed = true
				continue
			}
			fmt.Printf("Removed bind %s\n", id)
		}
		if failed {
			exitf("some binds were not removed")
		}
	},
}

// preview shortens content to one line.
func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", `\n`)
	r := []rune(s)
	if len(r) > 48 {
		return string(r[:47]) + "…"
	}
	return s
}

func init() {
	for _, c := range []*cobra.Command{bindsCmd, addBindCmd, rmBindCmd} {
		c.Flags().StringP("profile", "p", "", "profile id (default the active profile)")
	}

	addBindCmd.Flags().String("title", "", "bind title (default the trigger)")
	addBindCmd.Flags().String("category", "", "bind category")
	addBindCmd.Flags().StringP("type", "t", string(bind.Text), "bind type: Text, Command or Multi")
	addBindCmd.Flags().Bool("keep-trigger", false, "leave the typed trigger in place")
	addBindCmd.Flags().Bool("case-sensitive", false, "match the trigger case-sensitively")
	addBindCmd.Flags().Bool("anywhere", false, "match without the trigger prefix")
	addBindCmd.Flags().Int("cursor-back", 0, "move the cursor left after expanding")

	rootCmd.AddCommand(bindsCmd)
	rootCmd.AddCommand(addBindCmd)
	rootCmd.AddCommand(rmBindCmd)
}
