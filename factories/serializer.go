package factories

import (
	"context"
	"fmt"

	"alturbridge/core"
	"alturbridge/handlers/loopback"
	"alturbridge/handlers/transport"
	"alturbridge/metrics"
	"alturbridge/serializers/altur"
)

// BuildSerializer binds a new Altur serializer to callID using the
// serializer settings.
func BuildSerializer(settings SettingsConfig, callID string, logger *core.Logger, collector *metrics.Collector) (*altur.Serializer, error) {
	serializer, err := altur.NewSerializer(callID, settings.Serializer,
		altur.WithLogger(logger),
		altur.WithMetrics(collector),
	)
	if err != nil {
		return nil, fmt.Errorf("serializer for call %q: %w", callID, err)
	}
	return serializer, nil
}

// TranscoderHandlerBuilder returns the HandlerBuilder for a call:
// TransportInput → Loopback (when enabled) → TransportOutput.
func TranscoderHandlerBuilder(settings SettingsConfig, collector *metrics.Collector, logger *core.Logger) HandlerBuilder {
	return func(svc transport.TransportService, ctx context.Context) ([]core.IHandler, error) {
		// Use per-session logger if injected by the transport provider.
		sessionLogger := core.SessionLoggerFromContext(ctx)
		if sessionLogger == nil {
			sessionLogger = logger.With(map[string]any{"call_id": svc.CallID()})
		}

		serializer, err := BuildSerializer(settings, svc.CallID(), sessionLogger, collector)
		if err != nil {
			return nil, err
		}

		transportWrapper := transport.NewTransportHandlerWrapper(svc, transport.TransportConfig{
			Serializer:   serializer,
			PacingFactor: settings.AudioPacingFactor,
		}, sessionLogger)

		handlers := []core.IHandler{transportWrapper.GetInputHandler()}
		if settings.Loopback {
			handlers = append(handlers, loopback.NewLoopbackHandler(sessionLogger))
		}
		return append(handlers, transportWrapper.GetOutputHandler()), nil
	}
}
