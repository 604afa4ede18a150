package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sarameisburger/go-pcp-client/validator"
)

// A Message is an ordered aggregate of chunks: exactly one envelope first,
// at most one data chunk, then zero or more debug chunks.
type Message struct {
	envelope MessageChunk
	data     *MessageChunk
	debug    []MessageChunk
}

// NewMessage starts a message from its envelope chunk.
func NewMessage(envelope MessageChunk) (*Message, error) {
	if envelope.Descriptor != EnvelopeChunk {
		return nil, fmt.Errorf("message must start with an envelope chunk, got a %s chunk", envelope.Descriptor)
	}
	if len(envelope.Content) == 0 {
		return nil, fmt.Errorf("message envelope cannot be empty")
	}

	return &Message{envelope: envelope}, nil
}

// FromBytes decodes a raw wire frame into a message, enforcing the chunk
// ordering invariants.
func FromBytes(raw []byte) (*Message, error) {
	chunks, err := DecodeChunks(raw)
	if err != nil {
		return nil, err
	}

	if len(chunks) == 0 {
		return nil, &MalformedFrameError{Reason: "message has no chunks"}
	}
	if chunks[0].Descriptor != EnvelopeChunk || len(chunks[0].Content) == 0 {
		return nil, &MalformedFrameError{Reason: "first chunk must be a non-empty envelope"}
	}

	msg := &Message{envelope: chunks[0]}

	for _, chunk := range chunks[1:] {
		switch chunk.Descriptor {
		case EnvelopeChunk:
			return nil, &MalformedFrameError{Reason: "message has more than one envelope chunk"}
		case DataChunk:
			if msg.data != nil {
				return nil, &MalformedFrameError{Reason: "message has more than one data chunk"}
			}
			if len(msg.debug) > 0 {
				return nil, &MalformedFrameError{Reason: "data chunk must precede debug chunks"}
			}
			data := chunk
			msg.data = &data
		case DebugChunk:
			msg.debug = append(msg.debug, chunk)
		}
	}

	return msg, nil
}

// SetDataChunk attaches the message's data chunk, replacing any previous one.
func (m *Message) SetDataChunk(chunk MessageChunk) error {
	if chunk.Descriptor != DataChunk {
		return fmt.Errorf("expected a data chunk, got a %s chunk", chunk.Descriptor)
	}
	m.data = &chunk
	return nil
}

// AddDebugChunk appends a debug chunk to the message.
func (m *Message) AddDebugChunk(chunk MessageChunk) error {
	if chunk.Descriptor != DebugChunk {
		return fmt.Errorf("expected a debug chunk, got a %s chunk", chunk.Descriptor)
	}
	m.debug = append(m.debug, chunk)
	return nil
}

func (m *Message) Envelope() MessageChunk {
	return m.envelope
}

func (m *Message) Data() (MessageChunk, bool) {
	if m.data == nil {
		return MessageChunk{}, false
	}
	return *m.data, true
}

func (m *Message) Debug() []MessageChunk {
	return m.debug
}

// Serialize concatenates the chunks in wire order.
func (m *Message) Serialize() []byte {
	size := chunkHeaderSize + len(m.envelope.Content)
	if m.data != nil {
		size += chunkHeaderSize + len(m.data.Content)
	}
	for _, d := range m.debug {
		size += chunkHeaderSize + len(d.Content)
	}

	buffer := make([]byte, 0, size)
	buffer = m.envelope.encodeOn(buffer)
	if m.data != nil {
		buffer = m.data.encodeOn(buffer)
	}
	for _, d := range m.debug {
		buffer = d.encodeOn(buffer)
	}
	return buffer
}

func (m *Message) String() string {
	parts := []string{m.envelope.String()}
	if m.data != nil {
		parts = append(parts, m.data.String())
	}
	for _, d := range m.debug {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, "\n")
}

// ParsedChunks is the validated in-memory view of an inbound message that
// gets handed to message callbacks.
type ParsedChunks struct {
	Envelope Envelope

	HasData    bool
	DataType   validator.ContentType
	Data       json.RawMessage
	BinaryData []byte

	Debug []json.RawMessage
}

// ParsedChunks validates the message against the registered schemas and
// returns its decoded view. The envelope is checked against the envelope
// schema, the data chunk against the schema named by the envelope's
// message_type, and each debug chunk against the debug schema.
func (m *Message) ParsedChunks(v *validator.Validator) (*ParsedChunks, error) {
	if err := v.Validate(EnvelopeSchemaName, m.envelope.Content); err != nil {
		return nil, &InvalidEnvelopeError{Reason: err.Error()}
	}

	var envelope Envelope
	if err := json.Unmarshal(m.envelope.Content, &envelope); err != nil {
		return nil, &InvalidEnvelopeError{Reason: err.Error()}
	}

	contentType, err := v.ContentType(envelope.MessageType)
	if err != nil {
		// surfaces the validator's SchemaNotFoundError
		return nil, err
	}

	parsed := &ParsedChunks{
		Envelope: envelope,
		DataType: contentType,
	}

	if m.data != nil {
		parsed.HasData = true

		switch contentType {
		case validator.ContentTypeJson:
			if !json.Valid(m.data.Content) {
				return nil, &DataParseError{Reason: fmt.Sprintf("data chunk of a %s message is not valid JSON", envelope.MessageType)}
			}
			if err := v.Validate(envelope.MessageType, m.data.Content); err != nil {
				return nil, &InvalidDataError{SchemaName: envelope.MessageType, Reason: err.Error()}
			}
			parsed.Data = json.RawMessage(m.data.Content)
		case validator.ContentTypeBinary:
			parsed.BinaryData = m.data.Content
		}
	}

	for _, debug := range m.debug {
		if err := v.Validate(DebugSchemaName, debug.Content); err != nil {
			return nil, &InvalidDataError{SchemaName: DebugSchemaName, Reason: err.Error()}
		}
		parsed.Debug = append(parsed.Debug, json.RawMessage(debug.Content))
	}

	return parsed, nil
}
