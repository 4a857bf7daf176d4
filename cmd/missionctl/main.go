package main

import (
	"os"

	"github.com/Dicklesworthstone/missionctl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
