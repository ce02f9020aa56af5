package altur

import (
	"fmt"

	"alturbridge/serializers"
)

var (
	// ErrMalformedEnvelope marks inbound text that is not a valid
	// {"call_id","payload"} envelope. The message should be dropped; the
	// session can continue.
	ErrMalformedEnvelope = fmt.Errorf("altur: malformed envelope: %w", serializers.ErrMalformed)

	// ErrCodec marks a codec contract violation such as a non-positive
	// sample rate or a truncated PCM buffer. It points at a caller bug.
	ErrCodec = fmt.Errorf("altur: %w", serializers.ErrCodec)
)
