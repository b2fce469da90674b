package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/firmd/internal/events"
)

var (
	eventsKinds []string
	eventsJSON  bool
)

func init() {
	eventsCmd.Flags().StringSliceVar(&eventsKinds, "kinds", nil, "record kinds to follow, e.g. case,task (default all readable)")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "print one JSON object per event")
}

// eventsCmd follows record change events
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow record changes for an organization",
	Long: `Open the firmd websocket stream and print every record change the
identity may read, until interrupted or the server shuts down.

Examples:
  firmctl events --org acme --user u1
  firmctl events --org acme --user u1 --kinds case,task --json`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	if err := requireIdentity(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	return apiClient().Stream(cmd.Context(), eventsKinds, func(ev events.Event) error {
		if eventsJSON {
			return enc.Encode(ev)
		}
		_, err := fmt.Fprintf(out, "%s  %-8s %-8s %s\n",
			ev.At.Local().Format("15:04:05"), ev.Action, strings.ToLower(ev.Kind), ev.RecordID)
		return err
	})
}
