package main

import (
	"os"

	"taskgate/internal/cli"
)

var version = "0.1.0-dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
