package loopback

import (
	"alturbridge/core"
	"alturbridge/events/transport"
)

// LoopbackHandler sits between TransportInput and TransportOutput and sends
// every inbound audio frame straight back to the peer. It is a diagnostic
// stage: a peer that hears itself proves both codec paths work.
type LoopbackHandler struct {
	core.BaseHandler
}

func NewLoopbackHandler(logger *core.Logger) *LoopbackHandler {
	return &LoopbackHandler{
		BaseHandler: *core.NewBaseHandler("LoopbackHandler", nil, logger),
	}
}

func (h *LoopbackHandler) Start() error {
	h.RunEventLoop(h.HandleEvent)
	return nil
}

func (h *LoopbackHandler) HandleEvent(packet *core.EventPacket) error {
	event, ok := packet.Event.(*transport.TransportFrameInputEvent)
	if !ok {
		h.SendPacket(packet)
		return nil
	}

	in, ok := event.Frame.(*core.InputAudioFrame)
	if !ok {
		h.SendPacket(packet)
		return nil
	}

	h.SendPacket(core.NewEventPacket(
		&transport.TransportFrameOutputEvent{
			Frame: &core.OutputAudioFrame{AudioChunk: in.AudioChunk},
		},
		core.EventRelayDestinationNextService, h.Name,
	))
	return nil
}
