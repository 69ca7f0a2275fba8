package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ksm-android/resultmail/pkg/resultmail/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := cmd.DefaultConfig()
	cfg.Context = ctx
	root := cmd.NewRootCommand(cfg)
	if err := root.Execute(); err != nil {
		stop()
		os.Exit(1)
	}
}
