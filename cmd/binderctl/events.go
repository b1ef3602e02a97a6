package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"binderd/internal/engine"
	"binderd/internal/ipc"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the newest logged engine events",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		client := connect(cmd)
		defer client.Close()

		events, err := client.RecentEvents(limit)
		if err != nil {
			exitf("events: %v", err)
		}
		if jsonMode(cmd) {
			printJSON(events)
			return
		}
		for _, ev := range events {
			fmt.Println(formatEngineEvent(ev))
		}
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		names, _ := cmd.Flags().GetStringSlice("type")
		types, err := parseEventTypes(names)
		if err != nil {
			exitf("%v", err)
		}

		client := connect(cmd)
		defer client.Close()

		if err := client.Subscribe(types...); err != nil {
			exitf("subscribe: %v", err)
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)

		asJSON := jsonMode(cmd)
		events := client.Events()
		for {
			select {
			case <-sig:
				client.Unsubscribe()
				return
			case ev, ok := <-events:
				if !ok {
					fmt.Fprintln(os.Stderr, "Connection to daemon closed.")
					return
				}
				if asJSON {
					data, _ := json.Marshal(ev)
					fmt.Println(string(data))
					continue
				}
				fmt.Println(formatEvent(ev))
				if ev.Type == ipc.EventDaemonShutdown {
					return
				}
			}
		}
	},
}

func parseEventTypes(names []string) ([]ipc.EventType, error) {
	var types []ipc.EventType
	for _, name := range names {
		found := false
		for _, t := range ipc.AllEvents {
			if t.String() == name {
				types = append(types, t)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown event type %q (valid: %s)", name, eventTypeNames())
		}
	}
	return types, nil
}

func eventTypeNames() string {
	names := make([]string, len(ipc.AllEvents))
	for i, t := range ipc.AllEvents {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}

func formatEvent(ev *ipc.Event) string {
	ts := ev.Timestamp.Local().Format(time.TimeOnly)
	switch {
	case ev.Engine != nil:
		return formatEngineEvent(*ev.Engine)
	case ev.Enabled != nil:
		return fmt.Sprintf("%s  %-16s  expansion %s", ts, ev.Type, onOff(*ev.Enabled))
	case ev.Message != "":
		return fmt.Sprintf("%s  %-16s  %s", ts, ev.Type, ev.Message)
	default:
		return fmt.Sprintf("%s  %-16s  %s", ts, ev.Type, ev.ProfileName)
	}
}

func formatEngineEvent(ev engine.Event) string {
	keys := make([]string, 0, len(ev.Meta))
	for k := range ev.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-16s  %-7s", ev.Time.Local().Format(time.TimeOnly), ev.Type, ev.Entity)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, ev.Meta[k])
	}
	return b.String()
}

func init() {
	eventsCmd.Flags().IntP("limit", "n", 50, "number of events")
	watchCmd.Flags().StringSlice("type", nil, "event types to stream (default all): "+eventTypeNames())

	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(watchCmd)
}
