package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/m1tka051209/marketgram-client/internal/buildinfo"
	"github.com/m1tka051209/marketgram-client/internal/client/cli"
	"github.com/m1tka051209/marketgram-client/internal/client/config"
	"github.com/m1tka051209/marketgram-client/internal/logging"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger := logging.NewDefault()

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)
}
