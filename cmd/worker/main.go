package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/bootstrap"
	infraRedis "github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/infrastructure/redis"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/repository/postgres"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "amazonpay-gateway-worker", "amazonpay_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	eventRepo := postgres.NewEventRepository(app.Pool)

	workerCfg := app.Config.Worker
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.ReferenceEventStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group (may already exist)")
	}

	app.Logger.Info().
		Str("stream", infraRedis.ReferenceEventStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for messages...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runJournalWriter(gCtx, app, consumer, eventRepo)
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

// runJournalWriter drains the reference-event stream into the durable
// journal. The journal insert is keyed on the stream message ID, so a
// crash between insert and ack costs a redelivery, never a duplicate
// row.
func runJournalWriter(
	ctx context.Context,
	app *bootstrap.App,
	consumer *infraRedis.StreamConsumer,
	eventRepo *postgres.EventRepository,
) error {
	logger := app.Logger
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		streams, err := consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error().Err(err).Msg("Failed to read from stream")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				start := time.Now()
				entry, err := journalEntryFromMessage(msg.ID, msg.Values)
				if err != nil {
					// Unparseable messages are acked and dropped; they
					// can never succeed on redelivery.
					logger.Error().Err(err).Str("message_id", msg.ID).Msg("Invalid stream message")
					consumer.Ack(ctx, msg.ID)
					app.Metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.ReferenceEventStream, "invalid").Inc()
					continue
				}

				if err := eventRepo.Append(ctx, entry); err != nil {
					logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to append journal entry")
					app.Metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.ReferenceEventStream, "error").Inc()
					continue
				}

				consumer.Ack(ctx, msg.ID)
				app.Metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.ReferenceEventStream, "success").Inc()
				app.Metrics.WorkerProcessingDuration.WithLabelValues(infraRedis.ReferenceEventStream).Observe(time.Since(start).Seconds())
			}
		}
	}
}

func journalEntryFromMessage(messageID string, values map[string]any) (postgres.JournalEntry, error) {
	entry := postgres.JournalEntry{MessageID: messageID}

	str := func(key string) (string, error) {
		v, ok := values[key].(string)
		if !ok || v == "" {
			return "", fmt.Errorf("stream message missing %q", key)
		}
		return v, nil
	}

	var err error
	if entry.OrderID, err = str("order_id"); err != nil {
		return entry, err
	}
	if entry.Entity, err = str("entity"); err != nil {
		return entry, err
	}
	if entry.EntityID, err = str("entity_id"); err != nil {
		return entry, err
	}
	if entry.State, err = str("state"); err != nil {
		return entry, err
	}
	if entry.Source, err = str("source"); err != nil {
		return entry, err
	}

	observedAt, err := str("observed_at")
	if err != nil {
		return entry, err
	}
	entry.ObservedAt, err = time.Parse(time.RFC3339Nano, observedAt)
	if err != nil {
		return entry, fmt.Errorf("parse observed_at: %w", err)
	}
	return entry, nil
}
