package cli

import (
	"encoding/json"
	"fmt"

	"github.com/goskyapi/gosky/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent API call log entries",
		Run:   runLog,
	}

	cmd.Flags().IntP("limit", "n", 20, "Number of entries")
	cmd.Flags().StringP("endpoint", "e", "", "Filter by endpoint")

	RootCmd.AddCommand(cmd)
}

func runLog(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	endpoint, _ := cmd.Flags().GetString("endpoint")

	c, err := openClient()
	if err != nil {
		exitErr("open client", err)
	}
	defer c.Close()

	logs, err := c.Store().ListCallLogs(cmd.Context(), store.CallLogParams{
		Endpoint: endpoint,
		Limit:    limit,
	})
	if err != nil {
		exitErr("log", err)
	}

	for _, l := range logs {
		b, _ := json.Marshal(l)
		fmt.Println(string(b))
	}
}
