package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// expires timestamps are extended ISO-8601 in UTC with a Z suffix
const expiresLayout = "2006-01-02T15:04:05.000000Z"

// Envelope is the routing and identity metadata carried by the first chunk
// of every message.
type Envelope struct {
	Id                string   `json:"id"`
	MessageType       string   `json:"message_type"`
	Targets           []string `json:"targets"`
	Expires           string   `json:"expires"`
	Sender            string   `json:"sender"`
	DestinationReport bool     `json:"destination_report,omitempty"`
}

// NewEnvelope builds the envelope for an outbound message: a fresh message
// id and an expiry of now plus the given timeout. Targets must be non-empty
// and a message type is required; a negative timeout means expire now.
func NewEnvelope(sender string, targets []string, messageType string, timeout time.Duration, destinationReport bool) (Envelope, error) {
	if len(targets) == 0 {
		return Envelope{}, fmt.Errorf("cannot create an envelope without targets")
	}
	if messageType == "" {
		return Envelope{}, fmt.Errorf("cannot create an envelope without a message type")
	}

	if timeout < 0 {
		timeout = 0
	}

	return Envelope{
		Id:                uuid.New().String(),
		MessageType:       messageType,
		Targets:           targets,
		Expires:           time.Now().UTC().Add(timeout).Format(expiresLayout),
		Sender:            sender,
		DestinationReport: destinationReport,
	}, nil
}

// ExpiresAt parses the envelope's expiry timestamp.
func (e Envelope) ExpiresAt() (time.Time, error) {
	return time.Parse(expiresLayout, e.Expires)
}

// Chunk serializes the envelope into its envelope chunk.
func (e Envelope) Chunk() (MessageChunk, error) {
	content, err := json.Marshal(e)
	if err != nil {
		return MessageChunk{}, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return NewMessageChunk(EnvelopeChunk, content), nil
}
