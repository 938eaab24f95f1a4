package main

import (
	"os"

	"github.com/pershow/cardagent/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
