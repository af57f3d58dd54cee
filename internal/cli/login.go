package cli

import (
	"fmt"

	"github.com/goskyapi/gosky/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Create a fresh session",
		Long:  "Force a fresh password-grant login, superseding any cached session.",
		Run:   runLogin,
	}

	RootCmd.AddCommand(cmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	c, err := openClient()
	if err != nil {
		exitErr("open client", err)
	}
	defer c.Close()

	if err := c.Session().Create(cmd.Context(), c, model.CreateMethodLogin); err != nil {
		exitErr("login", err)
	}
	fmt.Println(c.Session().DID())
}
