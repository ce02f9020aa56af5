// Package serializers defines the contract between a transport and the
// wire format spoken by a telephony peer.
package serializers

import (
	"errors"

	"alturbridge/core"
)

// SerializerType tells the transport which message type carries the output.
type SerializerType string

const (
	SerializerTypeBinary SerializerType = "binary"
	SerializerTypeText   SerializerType = "text"
)

var (
	// ErrMalformed marks an inbound message that cannot be parsed. The
	// message is dropped and the session continues.
	ErrMalformed = errors.New("serializer: malformed message")

	// ErrCodec marks a codec contract violation. The session cannot
	// continue.
	ErrCodec = errors.New("serializer: codec contract violation")
)

// FrameSerializer converts frames to and from a peer's wire format.
type FrameSerializer interface {
	// Type returns the serialization type (binary or text).
	Type() SerializerType

	// Serialize converts a frame to its wire representation. A nil result
	// with a nil error means the frame has no wire representation.
	Serialize(frame core.Frame) ([]byte, error)

	// Deserialize converts a wire message back to a frame. A nil frame with
	// a nil error means the message is not meant for this session.
	Deserialize(data []byte) (core.Frame, error)
}
