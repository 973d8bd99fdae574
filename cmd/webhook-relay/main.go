package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gerritbridge/project/internal/app/webhookrelay"
	"github.com/gerritbridge/project/internal/platform/env"
	"github.com/gerritbridge/project/internal/platform/natsutil"
)

func main() {
	_ = godotenv.Load()
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listenAddr := env.String("WEBHOOK_RELAY_ADDR", env.DefaultWebhookAddr)
	natsURL := env.String("NATS_URL", env.DefaultNATSURL)
	botID := env.String("SPARK_BOT_ID", "")
	shutdownTimeout := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	client, err := natsutil.ConnectJetStreamWithRetry(natsURL, env.Duration("NATS_CONNECT_TIMEOUT", 90*time.Second))
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	publisher := natsutil.JetStreamPublisher{JS: client.JS}
	handler := webhookrelay.NewHandler(publisher.Publish, botID)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("webhook relay listening on %s", listenAddr)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Fatal(err)
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("webhook relay graceful shutdown failed: %v", err)
	}
}
