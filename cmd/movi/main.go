package main

import (
	"os"

	"github.com/movi-dev/movi/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
