// Command doorpanel emulates the door controls of a GT8-100D/2S-M tram
// against a running Zusi simulator.
package main

import (
	"log/slog"
	"os"
)

func main() {
	cmd := rootCommand()
	cmd.AddCommand(replayCommand())
	cmd.AddCommand(configCommand())

	if err := cmd.Execute(); err != nil {
		slog.Error("doorpanel failed", "error", err)
		os.Exit(1)
	}
}
