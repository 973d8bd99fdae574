// Package webhookrelay accepts Spark webhook posts over HTTP and publishes
// them to the inbound message queue for the bridge to consume.
package webhookrelay

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nuid"

	"github.com/gerritbridge/project/internal/contracts"
	"github.com/gerritbridge/project/internal/messaging"
	"github.com/gerritbridge/project/internal/platform/metrics"
	"github.com/gerritbridge/project/internal/spark"
)

var webhookPosts = metrics.NewCounterVec(metrics.Opts{
	Name: "relay_webhook_posts_total",
	Help: "Webhook posts received, by outcome.",
}, []string{"outcome"})

func init() {
	metrics.Default.MustRegister(webhookPosts)
}

type PublishFunc func(subject string, payload []byte) error

type Handler struct {
	Publish PublishFunc
	NewID   func() string
	Now     func() time.Time

	// BotID, when set, drops the bot's own messages at the edge.
	BotID string
}

func NewHandler(publish PublishFunc, botID string) *Handler {
	return &Handler{
		Publish: publish,
		NewID:   nuid.Next,
		Now:     func() time.Time { return time.Now().UTC() },
		BotID:   botID,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.DefaultHandler())
	r.Post("/spark/webhook", h.handleWebhook)
	return r
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var post spark.WebhookPost
	if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
		webhookPosts.Inc("malformed")
		http.Error(w, "invalid webhook payload", http.StatusBadRequest)
		return
	}
	if post.Resource != "messages" || post.Event != "created" {
		webhookPosts.Inc("ignored")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if h.BotID != "" && post.Data.PersonID == h.BotID {
		webhookPosts.Inc("own_message")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	envelope := contracts.InboundMessage{
		DeliveryID:  h.NewID(),
		MessageID:   post.Data.ID,
		PersonID:    post.Data.PersonID,
		PersonEmail: post.Data.PersonEmail,
		RoomID:      post.Data.RoomID,
		ReceivedAt:  h.Now(),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		webhookPosts.Inc("error")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.Publish(messaging.InboundSubject, payload); err != nil {
		webhookPosts.Inc("error")
		log.Printf("could not publish inbound message: %v", err)
		http.Error(w, "publish failed", http.StatusServiceUnavailable)
		return
	}

	webhookPosts.Inc("accepted")
	w.WriteHeader(http.StatusAccepted)
}
