package main

import (
	"os"

	"github.com/iasted/iasted/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
