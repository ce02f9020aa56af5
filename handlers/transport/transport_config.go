package transport

import (
	"errors"
	"fmt"

	"alturbridge/serializers"
)

type TransportConfig struct {
	// Serializer converts frames to and from the peer's wire format.
	Serializer serializers.FrameSerializer
	// PacingFactor sends outbound audio at this multiple of real time.
	// Zero sends every frame as soon as it is serialized.
	PacingFactor float64
}

func (c TransportConfig) Validate() error {
	var errs []error
	if c.Serializer == nil {
		errs = append(errs, errors.New("transport: serializer is required"))
	}
	if c.PacingFactor < 0 {
		errs = append(errs, fmt.Errorf("transport: pacing factor must not be negative, got %g", c.PacingFactor))
	}
	return errors.Join(errs...)
}
