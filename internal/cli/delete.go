package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "delete <collection> <rkey>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		Run:   runDelete,
	}

	RootCmd.AddCommand(cmd)
}

func runDelete(cmd *cobra.Command, args []string) {
	c, err := openClient()
	if err != nil {
		exitErr("open client", err)
	}
	defer c.Close()

	resp, err := c.DeleteRecord(cmd.Context(), args[0], args[1])
	if err != nil {
		exitErr("delete", err)
	}

	b, _ := json.Marshal(resp.Map())
	fmt.Println(string(b))
}
