// Package cli implements the gosky CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/goskyapi/gosky/bsky"
	"github.com/spf13/cobra"
)

var dbPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "gosky",
	Short: "Bluesky client with durable sessions and call logging",
	Long:  "A Bluesky / AT Protocol client. Sessions, the API call log, and write-op rate accounting live in a local SQLite database.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $BSKY_SQLITE_FILENAME or ~/.gosky/gosky.db)")
}

func openClient() (*bsky.Client, error) {
	cfg := bsky.ConfigFromEnv()
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return bsky.New(cfg)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
