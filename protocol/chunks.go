/*
The protocol package implements the PCP wire format: length-prefixed message
chunks, the multi-chunk message aggregate, envelope construction, and the
parsing/validation of inbound messages into their in-memory view.
*/
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// The different categories of chunks a message is assembled from
type ChunkDescriptor byte

const (
	EnvelopeChunk ChunkDescriptor = 0x01
	DataChunk     ChunkDescriptor = 0x02
	DebugChunk    ChunkDescriptor = 0x03
)

func (d ChunkDescriptor) String() string {
	switch d {
	case EnvelopeChunk:
		return "envelope"
	case DataChunk:
		return "data"
	case DebugChunk:
		return "debug"
	default:
		return fmt.Sprintf("unknown (0x%02x)", byte(d))
	}
}

func (d ChunkDescriptor) known() bool {
	return d == EnvelopeChunk || d == DataChunk || d == DebugChunk
}

// chunk header: 1 descriptor byte plus 4 big-endian size bytes
const chunkHeaderSize = 5

// A MessageChunk is one framed unit on the wire. The size field of the wire
// layout is derived from Content, so the two can never disagree.
type MessageChunk struct {
	Descriptor ChunkDescriptor
	Content    []byte
}

func NewMessageChunk(descriptor ChunkDescriptor, content []byte) MessageChunk {
	return MessageChunk{
		Descriptor: descriptor,
		Content:    content,
	}
}

// Equals compares descriptor, size, and content
func (c MessageChunk) Equals(other MessageChunk) bool {
	return c.Descriptor == other.Descriptor && bytes.Equal(c.Content, other.Content)
}

func (c MessageChunk) Size() uint32 {
	return uint32(len(c.Content))
}

// Encode writes the chunk in its wire form:
// descriptor (1 byte) || size (4 bytes, big-endian) || content (size bytes)
func (c MessageChunk) Encode() []byte {
	buffer := make([]byte, 0, chunkHeaderSize+len(c.Content))
	return c.encodeOn(buffer)
}

func (c MessageChunk) encodeOn(buffer []byte) []byte {
	buffer = append(buffer, byte(c.Descriptor))
	buffer = binary.BigEndian.AppendUint32(buffer, c.Size())
	return append(buffer, c.Content...)
}

func (c MessageChunk) String() string {
	return fmt.Sprintf("%s chunk - size: %d bytes - content: %s", c.Descriptor, c.Size(), c.Content)
}

// DecodeChunks splits a raw frame into its chunks. The buffer must hold a
// whole number of well-formed chunks with known descriptors.
func DecodeChunks(raw []byte) ([]MessageChunk, error) {
	var chunks []MessageChunk

	for offset := 0; offset < len(raw); {
		remaining := raw[offset:]
		if len(remaining) < chunkHeaderSize {
			return nil, &MalformedFrameError{
				Reason: fmt.Sprintf("truncated chunk header at offset %d", offset),
			}
		}

		descriptor := ChunkDescriptor(remaining[0])
		if !descriptor.known() {
			return nil, &MalformedFrameError{
				Reason: fmt.Sprintf("unknown chunk descriptor 0x%02x at offset %d", remaining[0], offset),
			}
		}

		size := binary.BigEndian.Uint32(remaining[1:chunkHeaderSize])
		if uint64(size) > uint64(len(remaining)-chunkHeaderSize) {
			return nil, &MalformedFrameError{
				Reason: fmt.Sprintf("chunk declares %d content bytes but only %d remain", size, len(remaining)-chunkHeaderSize),
			}
		}

		content := remaining[chunkHeaderSize : chunkHeaderSize+size]
		chunks = append(chunks, NewMessageChunk(descriptor, content))
		offset += chunkHeaderSize + int(size)
	}

	return chunks, nil
}
