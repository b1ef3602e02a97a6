package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:     "profiles",
	Aliases: []string{"ls"},
	Short:   "List stored profiles",
	Run: func(cmd *cobra.Command, args []string) {
		client := connect(cmd)
		defer client.Close()

		profiles, err := client.ListProfiles()
		if err != nil {
			exitf("list profiles: %v", err)
		}
		if jsonMode(cmd) {
			printJSON(profiles)
			return
		}
		for _, p := range profiles {
			mark := " "
			if p.Active {
				mark = "*"
			}
			fmt.Printf("%s %-36s  %-20s  %3d binds  %3d macros\n", mark, p.ID, p.Name, p.Binds, p.Hotkeys)
		}
	},
}

var useCmd = &cobra.Command{
	Use:   "use [profile-id]",
	Short: "Activate a profile, or the next one when no id is given",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}

		client := connect(cmd)
		defer client.Close()

		resp, err := client.SwitchProfile(id)
		if err != nil {
			exitf("switch profile: %v", err)
		}
		if jsonMode(cmd) {
			printJSON(resp)
			return
		}
		fmt.Printf("Active profile: %s (%s)\n", resp.Name, resp.ID)
	},
}

var addProfileCmd = &cobra.Command{
	Use:   "add-profile <name>",
	Short: "Create an empty profile",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := connect(cmd)
		defer client.Close()

		resp, err := client.AddProfile(args[0])
		if err != nil {
			exitf("add profile: %v", err)
		}
		if jsonMode(cmd) {
			printJSON(resp)
			return
		}
		fmt.Printf("Created profile %s (%s)\n", resp.Name, resp.ID)
	},
}

var renameProfileCmd = &cobra.Command{
	Use:   "rename-profile <profile-id> <name>",
	Short: "Rename a profile",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		client := connect(cmd)
		defer client.Close()

		resp, err := client.RenameProfile(args[0], args[1])
		if err != nil {
			exitf("rename profile: %v", err)
		}
		if jsonMode(cmd) {
			printJSON(resp)
			return
		}
		fmt.Printf("Renamed profile %s to %s\n", resp.ID, resp.Name)
	},
}

var rmProfileCmd = &cobra.Command{
	Use:   "rm-profile <profile-id>",
	Short: "Delete a profile with its binds and macros",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := connect(cmd)
		defer client.Close()

		active, err := client.DeleteProfile(args[0])
		if err != nil {
			exitf("delete profile: %v", err)
		}
		if jsonMode(cmd) {
			printJSON(active)
			return
		}
		fmt.Printf("Deleted profile %s\n", args[0])
		fmt.Printf("Active profile: %s (%s)\n", active.Name, active.ID)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [profile-id]",
	Short: "Write a profile as JSON",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		output, _ := cmd.Flags().GetString("output")

		client := connect(cmd)
		defer client.Close()

		doc, err := client.ExportProfile(id)
		if err != nil {
			exitf("export: %v", err)
		}
		if output == "" || output == "-" {
			fmt.Println(string(doc))
			return
		}
		if err := os.WriteFile(output, append(doc, '\n'), 0600); err != nil {
			exitf("write %s: %v", output, err)
		}
		fmt.Fprintf(os.Stderr, "Exported to %s\n", output)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a profile exported with binderctl export (- reads stdin)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		activate, _ := cmd.Flags().GetBool("activate")

		var doc []byte
		var err error
		if args[0] == "-" {
			doc, err = io.ReadAll(os.Stdin)
		} else {
			doc, err = os.ReadFile(args[0])
		}
		if err != nil {
			exitf("read %s: %v", args[0], err)
		}

		client := connect(cmd)
		defer client.Close()

		resp, err := client.ImportProfile(doc, name, activate)
		if err != nil {
			exitf("import: %v", err)
		}
		if jsonMode(cmd) {
			printJSON(resp)
			return
		}
		fmt.Printf("Imported %s: %d binds, %d macros (id %s)\n", resp.Name, resp.Binds, resp.Hotkeys, resp.ID)
		if activate {
			fmt.Println("Profile activated.")
		}
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	importCmd.Flags().String("name", "", "name of the new profile (default the exported name)")
	importCmd.Flags().Bool("activate", false, "make the imported profile active")

	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(useCmd)
	rootCmd.AddCommand(addProfileCmd)
	rootCmd.AddCommand(renameProfileCmd)
	rootCmd.AddCommand(rmProfileCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
