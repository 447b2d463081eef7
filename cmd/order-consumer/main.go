package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/ticketing-system/internal/config"
	"github.com/iliyamo/ticketing-system/internal/logging"
	"github.com/iliyamo/ticketing-system/internal/queue"
)

func main() {
	_ = godotenv.Load()

	app, qc, err := config.LoadQueue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(logging.Options{Service: "order-consumer", Env: app.Env, Level: app.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := queue.NewConsumer(qc.URL, qc.Queue, qc.LogDir, log)
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("order consumer stopped")
	}
	log.Info().Msg("order consumer stopped")
}
