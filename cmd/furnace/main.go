package main

import (
	"os"

	"github.com/forge/furnace-sub000/cmd/furnace/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
