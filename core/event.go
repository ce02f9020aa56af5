package core

// IEvent is anything that travels between pipeline handlers.
type IEvent interface {
	GetId() string // Returns the identifier of the event type, e.g. "transport.frame_input".
}
