package core

import (
	"time"

	"github.com/google/uuid"
)

type EventRelayDestination int

const (
	EventRelayDestinationNextService EventRelayDestination = iota + 1 // Pass to the next handler in the pipeline.
	EventRelayDestinationTopService                                   // Pass to the runner, which decides what to do with it.
)

// EventPacket wraps an event with routing and tracing details.
type EventPacket struct {
	Event       IEvent
	Destination EventRelayDestination
	Uid         string    // Unique identifier for tracking the event packet.
	Relayer     string    // Identifier of the handler that relayed the event.
	CreatedAt   time.Time // When the packet was created.
}

func NewEventPacket(event IEvent, destination EventRelayDestination, relayer string) *EventPacket {
	return &EventPacket{
		Event:       event,
		Destination: destination,
		Uid:         uuid.NewString(),
		Relayer:     relayer,
		CreatedAt:   time.Now(),
	}
}
