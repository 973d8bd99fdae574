package messaging

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const (
	inboundStream = "CHAT_INBOUND"

	// InboundSubject carries chat messages received by the webhook relay
	// and consumed by the bridge.
	InboundSubject = "chat.inbound.message"
)

// EnsureStreams creates (or validates) the stream backing chat.inbound.>.
func EnsureStreams(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(inboundStream); err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			if _, addErr := js.AddStream(&nats.StreamConfig{
				Name:      inboundStream,
				Subjects:  []string{"chat.inbound.>"},
				Retention: nats.LimitsPolicy,
				Storage:   nats.FileStorage,
				Replicas:  1,
			}); addErr != nil {
				return addErr
			}
		} else {
			return err
		}
	}
	return nil
}
