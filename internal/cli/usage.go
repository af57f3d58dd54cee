package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type windowUsage struct {
	WindowHours int   `json:"window_hours"`
	PointsUsed  int64 `json:"points_used"`
	Budget      int64 `json:"budget"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show write-op point usage for both rate windows",
		Run:   runUsage,
	}

	RootCmd.AddCommand(cmd)
}

func runUsage(cmd *cobra.Command, args []string) {
	c, err := openClient()
	if err != nil {
		exitErr("open client", err)
	}
	defer c.Close()

	if err := c.Session().LoadOrCreate(cmd.Context(), c); err != nil {
		exitErr("usage", err)
	}

	var windows []windowUsage
	for _, hours := range []int{1, 24} {
		used, budget, err := c.WriteOpsUsage(cmd.Context(), hours)
		if err != nil {
			exitErr("usage", err)
		}
		windows = append(windows, windowUsage{WindowHours: hours, PointsUsed: used, Budget: budget})
	}

	b, _ := json.MarshalIndent(windows, "", "  ")
	fmt.Println(string(b))
}
