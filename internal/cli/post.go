package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goskyapi/gosky/bsky"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "post [text]",
		Short: "Create a post",
		Long:  "Create a feed post. Text can be a positional arg or piped via stdin.",
		Run:   runPost,
	}

	RootCmd.AddCommand(cmd)
}

func runPost(cmd *cobra.Command, args []string) {
	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			text = string(b)
		}
	}

	if strings.TrimSpace(text) == "" {
		exitErr("post", fmt.Errorf("text is required (positional arg or stdin)"))
	}

	c, err := openClient()
	if err != nil {
		exitErr("open client", err)
	}
	defer c.Close()

	resp, err := c.CreatePost(cmd.Context(), bsky.NewPost(strings.TrimSpace(text)))
	if err != nil {
		exitErr("post", err)
	}

	b, _ := json.Marshal(resp.Map())
	fmt.Println(string(b))
}
