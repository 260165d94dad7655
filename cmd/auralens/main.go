package main

import (
	"os"

	"github.com/auralens/auralens/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
