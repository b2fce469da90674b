// Package main implements firmctl, the command-line companion to firmd.
//
// It talks to a running firmd server (health, report, monitor, events) and ships
// two standalone developer tools: a TODO scanner and a latency analyzer.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/firmd/internal/client"
	"github.com/fyrsmithlabs/firmd/internal/logging"
)

var (
	// serverURL is the base URL of the firmd HTTP server
	serverURL string
	// identity is sent with every API request
	orgID, userID, roles string
	// verbose enables debug logging on stderr
	verbose bool
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "firmctl",
	Short: "CLI for firmd and firm developer tooling",
	Long: `firmctl is a command-line interface for the firmd server.

It checks server health, fetches business reports, runs a live dashboard,
follows record changes, scans source trees for TODO comments and
summarizes latency samples.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("FIRMCTL_SERVER", "http://localhost:9191"), "firmd server URL")
	rootCmd.PersistentFlags().StringVar(&orgID, "org", os.Getenv("FIRMCTL_ORG"), "organization id sent as X-Org-ID")
	rootCmd.PersistentFlags().StringVar(&userID, "user", envOr("FIRMCTL_USER", os.Getenv("USER")), "user id sent as X-User-ID")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
	rootCmd.PersistentFlags().StringVar(&roles, "roles", envOr("FIRMCTL_ROLES", "partner"), "comma-separated roles sent as X-Roles")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(todosCmd)
	rootCmd.AddCommand(perfCmd)
	rootCmd.AddCommand(eventsCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check firmd server health",
	Long: `Check the health status of the firmd HTTP server.

Examples:
  # Check health
  firmctl health

  # Check health on a different server
  firmctl health --server http://localhost:8080`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newLogger returns the stderr console logger; warnings only unless
// --verbose is set.
func newLogger() (*logging.Logger, error) {
	return logging.NewLogger(logging.CLIConfig(verbose), nil)
}

// apiClient builds a client from the persistent flags.
func apiClient() *client.Client {
	return client.New(serverURL, client.Identity{OrgID: orgID, UserID: userID, Roles: roles})
}

// requireIdentity fails early when /api/v1 calls would be rejected.
func requireIdentity() error {
	if orgID == "" || userID == "" {
		return fmt.Errorf("--org and --user are required (or set FIRMCTL_ORG and FIRMCTL_USER)")
	}
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	h, err := apiClient().Health(cmd.Context())
	out := cmd.OutOrStdout()
	if h.Status != "" {
		fmt.Fprintf(out, "Server Status: %s\n", h.Status)
		fmt.Fprintf(out, "Server URL: %s\n", serverURL)
		for _, name := range sortedKeys(h.Checks) {
			fmt.Fprintf(out, "  %-10s %s\n", name, h.Checks[name])
		}
	}
	return err
}
