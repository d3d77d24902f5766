// Package bridge is the transport boundary of the sender core. A Bridge
// moves opaque frames to and from the receiver process; delivery and
// ordering guarantees belong to the implementation, not to the callers.
package bridge

import "encoding/json"

// Payload is one outbound frame. RequestID is the correlation id the
// reply feed will echo; it is assigned by the envelope router, never by
// the caller.
type Payload struct {
	SenderID      string          `json:"senderId,omitempty"`
	DestinationID string          `json:"destinationId,omitempty"`
	Namespace     string          `json:"namespace"`
	RequestID     uint64          `json:"requestId,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// Message is an inbound broadcast frame, demultiplexed by namespace.
type Message struct {
	Namespace string
	Data      json.RawMessage
}

// Reply is an inbound frame carrying a correlation id. Err is non-nil
// when the bridge itself failed to deliver the request.
type Reply struct {
	RequestID uint64
	Data      json.RawMessage
	Err       error
}

type Bridge interface {
	// SendToReceiver hands a frame to the transport. Fire and forget:
	// an error means the frame never left the process.
	SendToReceiver(p Payload) error
	// Messages is the broadcast feed. Closed when the bridge shuts down.
	Messages() <-chan Message
	// Replies is the correlated feed. Closed when the bridge shuts down.
	Replies() <-chan Reply
}
