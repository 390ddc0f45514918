package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/gops/agent"
	"github.com/joho/godotenv"

	"antbot/internal/cli"
)

func main() {
	_ = godotenv.Load()

	if os.Getenv("ANTBOT_GOPS") != "" {
		if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
			slog.Warn("gops agent failed to start", "error", err)
		}
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
