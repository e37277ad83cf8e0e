// Command notifier consumes appointment events and appends one line per
// event to the appointment log.
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/queue"
)

func main() {
	_ = godotenv.Load()

	nc := config.LoadNotifier()
	cfg := queue.ConsumerConfig{URL: nc.AMQPURL, Exchange: queue.Exchange, Queue: nc.Queue, LogPath: nc.LogPath}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := queue.NewEventLog(cfg.LogPath)
	log.Printf("notifier: consuming %s from %s into %s", cfg.Queue, cfg.Exchange, cfg.LogPath)
	if err := queue.Run(ctx, cfg, events.Handle); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("notifier: %v", err)
	}
	log.Printf("notifier: stopped")
}
