package main

import (
	"os"

	"github.com/Iron-Ham/afkcode/internal/cmd"
)

func main() {
	// Interrupts are handled per command: run finishes the current turn on
	// the first one and exits with 130 on a second within 5 seconds.
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
