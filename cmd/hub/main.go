package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ulikoehler/Multiverse/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var endpoint string
	if len(os.Args) > 1 {
		endpoint = os.Args[1]
	}

	cfg := app.Config{
		RendezvousEndpoint: endpoint,
		JSONLogPath:        os.Getenv("MULTIVERSE_JSON_LOG_PATH"),
	}
	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
