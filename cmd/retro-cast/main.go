// Command retro-cast drives a single always-on media player like a
// broadcast head-end: epoch-deterministic channels, scheduled programming
// with interstitials, parental lockout, and Emergency Alert preemption.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/retrocast/retro-cast/internal/config"
	"github.com/retrocast/retro-cast/internal/supervisor"
)

func main() {
	envFile := flag.String("env", ".env", "env file to load before reading config")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Printf("env file %s: %v", *envFile, err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := supervisor.Run(ctx, cfg); err != nil {
		log.Printf("retro-cast: %v", err)
		os.Exit(1)
	}
}
