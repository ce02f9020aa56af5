package transport

import "alturbridge/core"

// TransportFrameInputEvent carries a frame decoded from a peer message.
type TransportFrameInputEvent struct {
	Frame core.Frame
}

func (e *TransportFrameInputEvent) GetId() string {
	return "transport.frame_input"
}

// TransportFrameOutputEvent carries a frame that should be sent to the peer.
type TransportFrameOutputEvent struct {
	Frame core.Frame
}

func (e *TransportFrameOutputEvent) GetId() string {
	return "transport.frame_output"
}
