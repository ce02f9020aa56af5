// Package altur transcodes between pipeline PCM frames and the Altur
// telephony peer's wire format: JSON envelopes carrying base64 µ-law audio
// tagged with the call id.
package altur

import (
	"errors"
	"fmt"

	"alturbridge/core"
	"alturbridge/metrics"
	"alturbridge/serializers"
	"alturbridge/utils/audio"

	"github.com/bytedance/sonic"
)

// Serializer is bound to one call for its whole life. Its configuration never
// changes after construction, so Serialize and Deserialize may run
// concurrently. Each direction owns its own resampler, which keeps a
// stream resampler's history from mixing the two directions.
type Serializer struct {
	callID       string
	params       Params
	outResampler audio.Resampler
	inResampler  audio.Resampler
	logger       *core.Logger
	metrics      *metrics.Collector
}

var _ serializers.FrameSerializer = (*Serializer)(nil)

// Option customises a Serializer at construction time.
type Option func(*Serializer)

// WithLogger sets the logger. The default is core.GetLogger().
func WithLogger(logger *core.Logger) Option {
	return func(s *Serializer) { s.logger = logger }
}

// WithMetrics records outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Serializer) { s.metrics = c }
}

// WithResamplers replaces the resamplers built from Params.Resampler. The
// two must be distinct instances when they keep state.
func WithResamplers(outbound, inbound audio.Resampler) Option {
	return func(s *Serializer) {
		s.outResampler = outbound
		s.inResampler = inbound
	}
}

// NewSerializer binds a serializer to callID.
func NewSerializer(callID string, params Params, opts ...Option) (*Serializer, error) {
	if callID == "" {
		return nil, errors.New("altur: call id is required")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("altur: invalid params: %w", err)
	}

	s := &Serializer{
		callID: callID,
		params: params,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.outResampler == nil {
		s.outResampler, _ = audio.NewResampler(params.Resampler)
	}
	if s.inResampler == nil {
		s.inResampler, _ = audio.NewResampler(params.Resampler)
	}
	if s.logger == nil {
		s.logger = core.GetLogger()
	}
	s.logger = s.logger.With(map[string]interface{}{
		"component": "altur_serializer",
		"call_id":   callID,
	})
	return s, nil
}

// Type implements serializers.FrameSerializer. Envelopes are JSON text.
func (s *Serializer) Type() serializers.SerializerType {
	return serializers.SerializerTypeText
}

// CallID returns the call this serializer is bound to.
func (s *Serializer) CallID() string {
	return s.callID
}

// Params returns the rate configuration.
func (s *Serializer) Params() Params {
	return s.params
}

// Serialize implements serializers.FrameSerializer.
//
// Audio becomes a {"call_id","payload"} envelope at the peer rate. Transport
// messages of either priority are sent as their bare JSON body. Interruptions,
// nil frames and every other frame produce no output.
func (s *Serializer) Serialize(frame core.Frame) ([]byte, error) {
	switch f := frame.(type) {
	case *core.OutputAudioFrame:
		if f == nil {
			return nil, nil
		}
		return s.serializeAudio(&f.AudioChunk)
	case *core.InputAudioFrame:
		if f == nil {
			return nil, nil
		}
		return s.serializeAudio(&f.AudioChunk)
	case *core.TransportMessageFrame:
		if f == nil {
			return nil, nil
		}
		return s.serializeMessage(f.Kind(), f.Message)
	case *core.TransportMessageUrgentFrame:
		if f == nil {
			return nil, nil
		}
		return s.serializeMessage(f.Kind(), f.Message)
	case *core.StartInterruptionFrame:
		// The peer has no interruption message yet.
		s.logger.Debug("interruption has no wire representation, skipping")
		return nil, nil
	default:
		if frame != nil {
			s.logger.Trace("frame has no wire representation, skipping", "kind", frame.Kind().String())
		}
		return nil, nil
	}
}

func (s *Serializer) serializeAudio(chunk *core.AudioChunk) ([]byte, error) {
	channels := chunk.Channels
	if channels == 0 {
		channels = 1
	}
	if err := audio.ValidatePCMData(chunk.Data, channels); err != nil {
		s.metrics.CodecError()
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}

	pcm := audio.DownmixToMono(chunk.Data, channels)
	ulaw, err := audio.PCMToCompanded(pcm, chunk.SampleRate, s.params.PeerSampleRate, s.outResampler)
	if err != nil {
		s.metrics.CodecError()
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}

	data, err := encodeEnvelope(s.callID, ulaw)
	if err != nil {
		return nil, fmt.Errorf("altur: encode envelope: %w", err)
	}
	s.metrics.FrameSerialized(core.FrameKindAudio.String())
	s.metrics.PayloadBytes(metrics.DirectionOut, len(ulaw))
	return data, nil
}

func (s *Serializer) serializeMessage(kind core.FrameKind, message any) ([]byte, error) {
	data, err := sonic.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("altur: encode transport message: %w", err)
	}
	s.metrics.FrameSerialized(kind.String())
	return data, nil
}

// Deserialize implements serializers.FrameSerializer.
//
// It returns nil, nil for an envelope addressed to another call. Anything
// that is not a well-formed envelope returns an error wrapping
// ErrMalformedEnvelope and never a partial frame.
func (s *Serializer) Deserialize(data []byte) (core.Frame, error) {
	env, err := parseEnvelope(data)
	if err != nil {
		s.metrics.Envelope(metrics.EnvelopeMalformed)
		return nil, err
	}

	if env.CallID != s.callID {
		s.metrics.Envelope(metrics.EnvelopeMismatch)
		s.logger.Debug("dropping envelope for another call", "envelope_call_id", env.CallID)
		return nil, nil
	}

	ulaw, err := decodePayload(env.Payload)
	if err != nil {
		s.metrics.Envelope(metrics.EnvelopeMalformed)
		return nil, err
	}

	pcm, err := audio.CompandedToPCM(ulaw, s.params.PeerSampleRate, s.params.SampleRate, s.inResampler)
	if err != nil {
		s.metrics.CodecError()
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}

	s.metrics.Envelope(metrics.EnvelopeOK)
	s.metrics.PayloadBytes(metrics.DirectionIn, len(ulaw))
	return &core.InputAudioFrame{
		AudioChunk: core.AudioChunk{
			Data:       pcm,
			SampleRate: s.params.SampleRate,
			Channels:   1,
		},
	}, nil
}
