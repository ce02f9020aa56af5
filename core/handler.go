package core

import (
	"context"
)

// IService is the lifecycle contract of a handler's backing service, e.g. a
// transport connection.
type IService interface {
	Init(
		ctx context.Context,
	) error
	Cleanup() error
	Reset() error
}

type IHandler interface {
	Initialize(
		InputChan <-chan *EventPacket,
		outputChan chan<- *EventPacket,
		OutputTopChan chan<- *EventPacket,
		ctx context.Context,
	) error // Wires the handler into the pipeline and initialises its service.
	Start() error // Starts the handler's goroutines. Must not block.
	HandleEvent(packet *EventPacket) error

	Cleanup() error // Cleans up resources used by the handler.
	Reset() error   // Resets the handler to its initial state.
}

// BaseHandler carries the plumbing shared by all handlers: channel wiring
// and the fatal error loop. A fatal service error ends the session, since a
// call's connection has no standby to fail over to.
type BaseHandler struct {
	Name                  string
	Service               IService
	Ctx                   context.Context
	InputChan             <-chan *EventPacket
	Logger                *Logger
	outputNextChan        chan<- *EventPacket
	outputTopChan         chan<- *EventPacket
	FatalServiceErrorChan chan error
}

func NewBaseHandler(name string, service IService, logger *Logger) *BaseHandler {
	if logger == nil {
		logger = GetLogger()
	}
	return &BaseHandler{
		Name:    name,
		Service: service,
		Logger:  logger.With(map[string]interface{}{"handler": name}),
	}
}

func (h *BaseHandler) Initialize(
	InputChan <-chan *EventPacket,
	OutputNextChan chan<- *EventPacket,
	OutputTopChan chan<- *EventPacket,
	ctx context.Context,
) error {
	h.InputChan = InputChan
	h.outputNextChan = OutputNextChan
	h.outputTopChan = OutputTopChan
	h.FatalServiceErrorChan = make(chan error, 1)
	h.Ctx = ctx
	if h.Logger == nil {
		h.Logger = GetLogger()
	}
	go h.fatalErrorHandlerLoop()
	if h.Service == nil {
		return nil
	}
	return h.Service.Init(ctx)
}

// RunEventLoop feeds every packet from InputChan to handle until the context
// ends. Handler errors are logged; they do not stop the loop.
func (h *BaseHandler) RunEventLoop(handle func(packet *EventPacket) error) {
	go func() {
		for {
			select {
			case packet, ok := <-h.InputChan:
				if !ok {
					return
				}
				if err := handle(packet); err != nil {
					h.Logger.Warn("event handling failed", "event", packet.Event.GetId(), "error", err)
				}
			case <-h.Ctx.Done():
				return
			}
		}
	}()
}

func (h *BaseHandler) Cleanup() error {
	if h.Service == nil {
		return nil
	}
	return h.Service.Cleanup()
}

func (h *BaseHandler) Reset() error {
	if h.Service == nil {
		return nil
	}
	return h.Service.Reset()
}

// SendPacket routes a packet by its destination. It gives up when the
// pipeline context ends so a stalled consumer cannot leak the sender.
func (h *BaseHandler) SendPacket(packet *EventPacket) {
	out := h.outputNextChan
	if packet.Destination == EventRelayDestinationTopService {
		out = h.outputTopChan
	}
	select {
	case out <- packet:
	case <-h.Ctx.Done():
	}
}

// HandleError reports a fatal service error. Only the first one is relayed.
func (h *BaseHandler) HandleError(err error) {
	select {
	case h.FatalServiceErrorChan <- err:
	case <-h.Ctx.Done():
	}
}

func (h *BaseHandler) fatalErrorHandlerLoop() {
	for {
		select {
		case err := <-h.FatalServiceErrorChan:
			h.Logger.Error("fatal service error", "error", err)
			h.SendPacket(NewEventPacket(
				&CriticalErrorEvent{Error: err.Error(), Relayer: h.Name},
				EventRelayDestinationTopService, h.Name,
			))
			return
		case <-h.Ctx.Done():
			return
		}
	}
}
