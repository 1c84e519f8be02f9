package main

import (
	"os"

	"github.com/crechebooks/crechebooks/cmd/crechebooks/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
