package contracts

import "time"

// InboundMessage is the queue envelope published by webhook-relay and
// consumed by the bridge. It carries only a reference to the chat message;
// the bridge fetches the text through the chat API, since webhook posts do
// not include it.
type InboundMessage struct {
	DeliveryID  string    `json:"delivery_id"`
	MessageID   string    `json:"message_id"`
	PersonID    string    `json:"person_id"`
	PersonEmail string    `json:"person_email"`
	RoomID      string    `json:"room_id"`
	ReceivedAt  time.Time `json:"received_at"`
}
