// Package natsutil connects the bridge processes to the JetStream broker
// that carries inbound chat traffic from the webhook relay to the bot.
package natsutil

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gerritbridge/project/internal/messaging"
)

// clientName labels our connections in the NATS server's monitoring output.
const clientName = "gerritbridge"

type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
}

// ConnectJetStream establishes a connection and makes sure the inbound chat
// stream exists before anyone publishes or subscribes. Once connected, the
// client reconnects on its own for the life of the process; only the first
// connect can fail here.
func ConnectJetStream(url string) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	if err := messaging.EnsureStreams(js); err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, JS: js}, nil
}

// ConnectJetStreamWithRetry keeps dialing until the broker is reachable or
// the timeout elapses. Used at startup, where the broker may come up after
// the bridge does.
func ConnectJetStreamWithRetry(url string, timeout time.Duration) (*Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ConnectJetStream(url)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}
	return nil, fmt.Errorf("connect jetstream timeout after %s: %w", timeout, lastErr)
}

func (c *Client) Close() {
	if c == nil || c.Conn == nil {
		return
	}
	_ = c.Conn.Drain()
	c.Conn.Close()
}

// Publisher is the send-only slice of JetStream the webhook relay handler
// depends on, so tests can swap in a recording implementation.
type Publisher interface {
	Publish(subject string, payload []byte) error
}

type JetStreamPublisher struct {
	JS nats.JetStreamContext
}

func (p JetStreamPublisher) Publish(subject string, payload []byte) error {
	_, err := p.JS.Publish(subject, payload)
	return err
}
