package main

import (
	"os"

	"github.com/astro-dev-lab/tablekit/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
