package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "profile <actor>",
		Short: "Look up a user profile",
		Long:  "Look up a profile by handle or did. Results are cached in the local database.",
		Args:  cobra.ExactArgs(1),
		Run:   runProfile,
	}

	cmd.Flags().Bool("remote", false, "Bypass the local cache")

	RootCmd.AddCommand(cmd)
}

func runProfile(cmd *cobra.Command, args []string) {
	forceRemote, _ := cmd.Flags().GetBool("remote")

	c, err := openClient()
	if err != nil {
		exitErr("open client", err)
	}
	defer c.Close()

	profile, err := c.GetUserProfile(cmd.Context(), args[0], forceRemote)
	if err != nil {
		exitErr("profile", err)
	}

	b, _ := json.Marshal(profile)
	fmt.Println(string(b))
}
