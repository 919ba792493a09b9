package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eshaffer321/ledger-balancer/internal/cli"
	"github.com/eshaffer321/ledger-balancer/internal/infrastructure/config"
)

func main() {
	flags, err := cli.ParseServeFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if err := config.LoadDotEnv(flags.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", flags.EnvFile, err)
		os.Exit(1)
	}
	cfg := config.LoadOrEnv_WithPath(flags.ConfigPath)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.RunServe(ctx, cfg, flags, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
