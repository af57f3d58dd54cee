package main

import (
	"os"

	"github.com/goskyapi/gosky/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
