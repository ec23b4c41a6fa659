package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/akulikov/securetext/internal/client/cli"
	"github.com/akulikov/securetext/internal/client/config"
	"github.com/akulikov/securetext/internal/logging"
)

func main() {
	cfg := config.LoadConfig()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	defer app.Close(ctx)

	app.Run(ctx)
}
