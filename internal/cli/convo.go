package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "convo",
		Short: "Fetch new conversation log entries",
		Long:  "Fetch chat conversation log entries newer than the last recorded cursor.",
		Run:   runConvo,
	}

	RootCmd.AddCommand(cmd)
}

func runConvo(cmd *cobra.Command, args []string) {
	c, err := openClient()
	if err != nil {
		exitErr("open client", err)
	}
	defer c.Close()

	resp, err := c.GetConvoLogs(cmd.Context())
	if err != nil {
		exitErr("convo", err)
	}

	for _, entry := range resp.Collection("logs") {
		b, _ := json.Marshal(entry)
		fmt.Println(string(b))
	}
}
