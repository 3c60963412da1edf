package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"training-orchestrator/config"
	"training-orchestrator/training"
	"training-orchestrator/worker"
)

func main() {
	workdir := flag.String("workdir", "", "job working directory containing config.json")
	flag.Parse()
	if *workdir == "" {
		log.Fatal("--workdir is required")
	}

	cfg := config.Load()
	trainer := training.New(cfg.TrainerCommand, cfg.Device)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := worker.New(*workdir, trainer).Run(ctx); err != nil {
		log.Printf("Worker failed: %v", err)
		os.Exit(1)
	}
}
