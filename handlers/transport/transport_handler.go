package transport

import (
	"context"
	"errors"
	"sync"

	"alturbridge/core"
	"alturbridge/events/transport"
	"alturbridge/serializers"
)

type TransportService interface {
	core.IService
	Connect() error
	// CallID is the call the peer connected for.
	CallID() string
	// SendRawOutput writes one message using the serializer's message type.
	SendRawOutput(data []byte, kind serializers.SerializerType) error
	// StartReceiving pushes every inbound message to outputChan and closes
	// it when the peer goes away. An unexpected failure is sent to errorChan,
	// which has room for one error, before outputChan is closed.
	StartReceiving(outputChan chan<- []byte, errorChan chan<- error)
}

// TransportHandlerWrapper holds shared state
type TransportHandlerWrapper struct {
	service TransportService
	config  TransportConfig
	logger  *core.Logger

	connectOnce sync.Once
	connectErr  error
}

func NewTransportHandlerWrapper(
	service TransportService,
	config TransportConfig,
	logger *core.Logger,
) *TransportHandlerWrapper {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &TransportHandlerWrapper{
		service: service,
		config:  config,
		logger:  logger,
	}
}

func (w *TransportHandlerWrapper) connect() error {
	w.connectOnce.Do(func() {
		w.connectErr = w.service.Connect()
	})
	return w.connectErr
}

func (w *TransportHandlerWrapper) GetInputHandler() *TransportInputHandler {
	return &TransportInputHandler{
		BaseHandler: *core.NewBaseHandler("TransportInputHandler", w.service, w.logger),
		config:      w.config,
		wrapper:     w,
	}
}

func (w *TransportHandlerWrapper) GetOutputHandler() *TransportOutputHandler {
	return &TransportOutputHandler{
		BaseHandler: *core.NewBaseHandler("TransportOutputHandler", w.service, w.logger),
		config:      w.config,
		wrapper:     w,
		pacer:       newAudioPacer(w.config.PacingFactor),
	}
}

// TransportInputHandler handles incoming data
type TransportInputHandler struct {
	core.BaseHandler
	config  TransportConfig
	wrapper *TransportHandlerWrapper
}

func (h *TransportInputHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	if err := h.config.Validate(); err != nil {
		return err
	}
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	return h.wrapper.connect()
}

func (h *TransportInputHandler) Start() error {
	h.RunEventLoop(h.HandleEvent)
	go h.receiveLoop()
	return nil
}

func (h *TransportInputHandler) receiveLoop() {
	outputChan := make(chan []byte)
	errorChan := make(chan error, 1)

	go h.Service.(TransportService).StartReceiving(outputChan, errorChan)

	for {
		select {
		case data, ok := <-outputChan:
			if !ok {
				select {
				case err := <-errorChan:
					h.HandleError(err)
					return
				default:
				}
				h.Logger.Info("peer disconnected")
				h.SendPacket(core.NewEventPacket(
					&core.EndCallEvent{Reason: "peer disconnected"},
					core.EventRelayDestinationTopService, h.Name,
				))
				return
			}
			h.handleMessage(data)

		case err := <-errorChan:
			h.HandleError(err)

		case <-h.Ctx.Done():
			return
		}
	}
}

func (h *TransportInputHandler) handleMessage(data []byte) {
	frame, err := h.config.Serializer.Deserialize(data)
	switch {
	case errors.Is(err, serializers.ErrMalformed):
		h.Logger.Warn("dropping malformed message", "error", err, "size", len(data))
		h.SendPacket(core.NewEventPacket(
			&core.WarningEvent{Error: err.Error(), Relayer: h.Name},
			core.EventRelayDestinationTopService, h.Name,
		))
		return
	case err != nil:
		h.HandleError(err)
		return
	case frame == nil:
		return
	}

	h.SendPacket(core.NewEventPacket(
		&transport.TransportFrameInputEvent{Frame: frame},
		core.EventRelayDestinationNextService, h.Name,
	))
}

// HandleEvent passes events delivered to the first handler down the pipeline.
func (h *TransportInputHandler) HandleEvent(eventPacket *core.EventPacket) error {
	h.SendPacket(eventPacket)
	return nil
}

// TransportOutputHandler handles outgoing data. Audio is paced to
// TransportConfig.PacingFactor; an interruption restarts the schedule.
type TransportOutputHandler struct {
	core.BaseHandler
	config  TransportConfig
	wrapper *TransportHandlerWrapper
	pacer   *audioPacer
}

func (h *TransportOutputHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	if err := h.config.Validate(); err != nil {
		return err
	}
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	return h.wrapper.connect()
}

func (h *TransportOutputHandler) Start() error {
	h.RunEventLoop(h.HandleEvent)
	return nil
}

func (h *TransportOutputHandler) HandleEvent(eventPacket *core.EventPacket) error {
	if event, ok := eventPacket.Event.(*transport.TransportFrameOutputEvent); ok {
		if _, interrupt := event.Frame.(*core.StartInterruptionFrame); interrupt {
			h.pacer.Reset()
		}
		data, err := h.config.Serializer.Serialize(event.Frame)
		if err != nil {
			h.HandleError(err)
			return err
		}
		if data != nil {
			if err := h.pacer.Wait(h.Ctx, audioDuration(event.Frame)); err != nil {
				return err
			}
			err = h.Service.(TransportService).SendRawOutput(data, h.config.Serializer.Type())
			if err != nil {
				h.HandleError(err)
				return err
			}
		}
	}

	h.SendPacket(eventPacket)
	return nil
}
