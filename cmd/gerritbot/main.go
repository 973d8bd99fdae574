package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/gerritbridge/project/internal/app/bridge"
	"github.com/gerritbridge/project/internal/app/roster"
	"github.com/gerritbridge/project/internal/contracts"
	"github.com/gerritbridge/project/internal/gerrit"
	"github.com/gerritbridge/project/internal/platform/dbpool"
	"github.com/gerritbridge/project/internal/platform/env"
	"github.com/gerritbridge/project/internal/platform/metrics"
	"github.com/gerritbridge/project/internal/platform/natsutil"
	"github.com/gerritbridge/project/internal/spark"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	gerritAddr := env.String("GERRIT_ADDR", env.DefaultGerritAddr)
	gerritUser := env.String("GERRIT_USER", "gerritbot")
	keyPath := env.String("GERRIT_PRIVATE_KEY", "")
	sparkURL := env.String("SPARK_API_URL", env.DefaultSparkAPIURL)
	sparkToken := env.String("SPARK_BOT_TOKEN", "")
	webhookURL := env.String("SPARK_WEBHOOK_URL", "")
	natsURL := env.String("NATS_URL", env.DefaultNATSURL)
	pgURL := env.String("DATABASE_URL", "")
	metricsAddr := env.String("METRICS_ADDR", ":9090")

	if keyPath == "" {
		log.Fatal("GERRIT_PRIVATE_KEY is required")
	}
	if sparkToken == "" {
		log.Fatal("SPARK_BOT_TOKEN is required")
	}

	chat, err := spark.NewClient(sparkURL, sparkToken)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("spark bot id: %s", chat.BotID)
	if webhookURL != "" {
		if err := chat.ReplaceWebhook(webhookURL); err != nil {
			log.Fatal(err)
		}
		log.Printf("registered spark webhook: %s", webhookURL)
	}

	go runMetricsServer(metricsAddr)

	repo, cleanup := newRoster(ctx, pgURL)
	defer cleanup()

	service := bridge.NewService(chat, repo, chat.BotID)

	client, err := natsutil.ConnectJetStreamWithRetry(natsURL, env.Duration("NATS_CONNECT_TIMEOUT", 90*time.Second))
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	sub, err := client.JS.QueueSubscribe(
		"chat.inbound.>", "gerritbot",
		func(msg *nats.Msg) {
			var inbound contracts.InboundMessage
			if err := json.Unmarshal(msg.Data, &inbound); err != nil {
				log.Printf("discarding invalid inbound message: %v", err)
				_ = msg.Term()
				return
			}

			handleCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := service.HandleMessage(handleCtx, inbound); err != nil {
				log.Printf("inbound message failed: %v", err)
				_ = msg.Nak()
				return
			}
			_ = msg.Ack()
		}, nats.ManualAck())
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("listening for chat commands on subject: %s", sub.Subject)

	// Two independent connections: the feed holds its channel open forever,
	// the command runner execs one query at a time. First-connect failures
	// are fatal; only reconnection retries.
	streamConn, err := gerrit.Connect(gerritAddr, gerritUser, keyPath)
	if err != nil {
		log.Fatal(err)
	}
	commandConn, err := gerrit.Connect(gerritAddr, gerritUser, keyPath)
	if err != nil {
		log.Fatal(err)
	}

	stream := gerrit.ExtendedEvents(streamConn, commandConn, bridge.NeedsInfo)
	for ev := range stream.C() {
		if err := service.HandleEvent(ctx, ev); err != nil {
			log.Printf("event for change %s not relayed: %v", ev.Change.ID, err)
		}
	}
	log.Fatalf("gerrit event stream ended: %v", stream.Err())
}

// runMetricsServer exposes the bridge counters. The process has no other
// HTTP surface, so this gets its own listener.
func runMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.DefaultHandler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("metrics endpoint listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("metrics server failed: %v", err)
	}
}

// newRoster picks Postgres when DATABASE_URL is set and falls back to the
// in-memory roster otherwise. The fallback loses subscriptions on restart.
func newRoster(ctx context.Context, pgURL string) (roster.Repository, func()) {
	if pgURL == "" {
		log.Printf("DATABASE_URL not set, subscriptions will not survive restarts")
		return roster.NewMemoryRepository(), func() {}
	}

	pool, err := dbpool.New(ctx, pgURL)
	if err != nil {
		log.Fatal(err)
	}
	repo := roster.NewPostgresRepository(pool)
	if err := waitForRosterSchema(ctx, repo, 30*time.Second); err != nil {
		log.Fatal(err)
	}
	return repo, pool.Close
}

func waitForRosterSchema(ctx context.Context, repo *roster.PostgresRepository, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = repo.EnsureSchema(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		log.Printf("waiting for roster schema readiness: %v", lastErr)
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}
