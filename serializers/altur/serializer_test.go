package altur_test

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"alturbridge/core"
	"alturbridge/metrics"
	"alturbridge/serializers"
	"alturbridge/serializers/altur"
	"alturbridge/utils/audio"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func bytesToSamples(b []byte) []int16 {
	s := make([]int16, len(b)/2)
	for i := range s {
		s[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return s
}

func sine(n, rate int, freq, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func newSerializer(t *testing.T, callID string, opts ...altur.Option) *altur.Serializer {
	t.Helper()
	opts = append([]altur.Option{altur.WithLogger(core.NopLogger())}, opts...)
	s, err := altur.NewSerializer(callID, altur.DefaultParams(), opts...)
	require.NoError(t, err)
	return s
}

func envelopeJSON(callID string, ulaw []byte) []byte {
	return []byte(`{"call_id":"` + callID + `","payload":"` + base64.StdEncoding.EncodeToString(ulaw) + `"}`)
}

type wireEnvelope struct {
	CallID  string `json:"call_id"`
	Payload string `json:"payload"`
}

func decodeWire(t *testing.T, data []byte) (string, []byte) {
	t.Helper()
	var env wireEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	ulaw, err := base64.StdEncoding.DecodeString(env.Payload)
	require.NoError(t, err)
	return env.CallID, ulaw
}

func TestNewSerializer_Validation(t *testing.T) {
	_, err := altur.NewSerializer("", altur.DefaultParams())
	assert.Error(t, err)

	params := altur.DefaultParams()
	params.PeerSampleRate = 0
	params.SampleRate = -1
	_, err = altur.NewSerializer("abc123", params)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "peer_sample_rate")
	assert.Contains(t, err.Error(), "sample_rate must be positive, got -1")

	params = altur.DefaultParams()
	params.Resampler = "sinc"
	_, err = altur.NewSerializer("abc123", params)
	assert.Error(t, err)

	s, err := altur.NewSerializer("abc123", altur.DefaultParams(), altur.WithLogger(core.NopLogger()))
	require.NoError(t, err)
	assert.Equal(t, "abc123", s.CallID())
	assert.Equal(t, serializers.SerializerTypeText, s.Type())
	assert.Equal(t, altur.DefaultParams(), s.Params())
}

func TestSerialize_AudioProducesEnvelopeAtPeerRate(t *testing.T) {
	s := newSerializer(t, "abc123")

	pcm := samplesToBytes(sine(320, 16000, 440, 8000))
	data, err := s.Serialize(&core.OutputAudioFrame{AudioChunk: core.AudioChunk{
		Data:       pcm,
		SampleRate: 16000,
		Channels:   1,
	}})
	require.NoError(t, err)

	callID, ulaw := decodeWire(t, data)
	assert.Equal(t, "abc123", callID)
	assert.Len(t, ulaw, 160)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 2)
}

func TestDeserialize_EnvelopeProducesInternalRateMono(t *testing.T) {
	s := newSerializer(t, "abc123")

	ulaw := make([]byte, 160)
	for i := range ulaw {
		ulaw[i] = audio.PCMToULaw(int16(i * 50))
	}

	frame, err := s.Deserialize(envelopeJSON("abc123", ulaw))
	require.NoError(t, err)
	require.NotNil(t, frame)

	in, ok := frame.(*core.InputAudioFrame)
	require.True(t, ok, "expected *core.InputAudioFrame, got %T", frame)
	assert.Equal(t, 16000, in.SampleRate)
	assert.Equal(t, 1, in.Channels)
	assert.Len(t, in.Data, 320*2)
	assert.Equal(t, core.FrameKindAudio, in.Kind())
}

func TestRoundTrip_ReconstructsInternalFormat(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		channels   int
		frames     int
	}{
		{"16k mono", 16000, 1, 320},
		{"8k mono", 8000, 1, 160},
		{"44.1k stereo", 44100, 2, 441},
		{"48k stereo", 48000, 2, 960},
		{"24k four channels", 24000, 4, 480},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSerializer(t, "abc123")

			samples := make([]int16, tt.frames*tt.channels)
			copy(samples, sine(len(samples), tt.sampleRate, 300, 4000))
			data, err := s.Serialize(&core.OutputAudioFrame{AudioChunk: core.AudioChunk{
				Data:       samplesToBytes(samples),
				SampleRate: tt.sampleRate,
				Channels:   tt.channels,
			}})
			require.NoError(t, err)

			frame, err := s.Deserialize(data)
			require.NoError(t, err)
			in, ok := frame.(*core.InputAudioFrame)
			require.True(t, ok)
			assert.Equal(t, 16000, in.SampleRate)
			assert.Equal(t, 1, in.Channels)

			expected := float64(tt.frames) * 16000 / float64(tt.sampleRate)
			assert.InDelta(t, expected, float64(len(in.Data)/2), 2)
		})
	}
}

func TestRoundTrip_BoundedError(t *testing.T) {
	s := newSerializer(t, "abc123")

	// 200 Hz is far below the 4 kHz Nyquist limit of the wire rate.
	original := sine(1600, 16000, 200, 10000)
	data, err := s.Serialize(&core.OutputAudioFrame{AudioChunk: core.AudioChunk{
		Data:       samplesToBytes(original),
		SampleRate: 16000,
		Channels:   1,
	}})
	require.NoError(t, err)

	frame, err := s.Deserialize(data)
	require.NoError(t, err)
	got := bytesToSamples(frame.(*core.InputAudioFrame).Data)
	require.Len(t, got, len(original))

	// The last sample is extrapolated from a held edge value.
	for i := 0; i < len(got)-2; i++ {
		diff := math.Abs(float64(got[i]) - float64(original[i]))
		tolerance := math.Abs(float64(original[i]))/16 + 400
		assert.LessOrEqual(t, diff, tolerance, "sample %d: want %d, got %d", i, original[i], got[i])
	}
}

func TestRoundTrip_Silence(t *testing.T) {
	s := newSerializer(t, "abc123")

	data, err := s.Serialize(&core.OutputAudioFrame{AudioChunk: core.AudioChunk{
		Data:       make([]byte, 640),
		SampleRate: 16000,
		Channels:   1,
	}})
	require.NoError(t, err)

	_, ulaw := decodeWire(t, data)
	for _, b := range ulaw {
		assert.Equal(t, byte(0xFF), b)
	}

	frame, err := s.Deserialize(data)
	require.NoError(t, err)
	for _, v := range bytesToSamples(frame.(*core.InputAudioFrame).Data) {
		assert.Equal(t, int16(0), v)
	}
}

func TestSerialize_InputAudioFrameIsEncodedToo(t *testing.T) {
	s := newSerializer(t, "abc123")

	data, err := s.Serialize(&core.InputAudioFrame{AudioChunk: core.AudioChunk{
		Data:       make([]byte, 320),
		SampleRate: 8000,
		Channels:   1,
	}})
	require.NoError(t, err)
	_, ulaw := decodeWire(t, data)
	assert.Len(t, ulaw, 160)
}

func TestDeserialize_OtherCallIsDropped(t *testing.T) {
	s := newSerializer(t, "abc123")

	for _, payload := range [][]byte{make([]byte, 160), {}, {0x00, 0x7f, 0x80}} {
		frame, err := s.Deserialize(envelopeJSON("other", payload))
		assert.NoError(t, err)
		assert.Nil(t, frame)
	}

	// The payload of a foreign envelope is never inspected.
	frame, err := s.Deserialize([]byte(`{"call_id":"other","payload":"%%%not base64%%%"}`))
	assert.NoError(t, err)
	assert.Nil(t, frame)

	// Call ids compare exactly.
	frame, err = s.Deserialize(envelopeJSON("ABC123", make([]byte, 8)))
	assert.NoError(t, err)
	assert.Nil(t, frame)
}

func TestDeserialize_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `not-json`},
		{"empty input", ``},
		{"json array", `["abc123","AAAA"]`},
		{"json string", `"abc123"`},
		{"missing call_id", `{"payload":"AAAA"}`},
		{"missing payload", `{"call_id":"abc123"}`},
		{"empty object", `{}`},
		{"null call_id", `{"call_id":null,"payload":"AAAA"}`},
		{"null payload", `{"call_id":"abc123","payload":null}`},
		{"numeric call_id", `{"call_id":123,"payload":"AAAA"}`},
		{"numeric payload", `{"call_id":"abc123","payload":42}`},
		{"unknown key", `{"call_id":"abc123","payload":"AAAA","event":"media"}`},
		{"invalid base64", `{"call_id":"abc123","payload":"%%%"}`},
		{"truncated", `{"call_id":"abc123","payload":"AAAA"`},
	}

	s := newSerializer(t, "abc123")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := s.Deserialize([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, altur.ErrMalformedEnvelope), "got %v", err)
			assert.Nil(t, frame)
		})
	}
}

func TestDeserialize_MalformedIsDistinguishableFromMismatch(t *testing.T) {
	s := newSerializer(t, "abc123")

	mismatchFrame, mismatchErr := s.Deserialize(envelopeJSON("other", make([]byte, 160)))
	malformedFrame, malformedErr := s.Deserialize([]byte("not-json"))

	assert.Nil(t, mismatchFrame)
	assert.NoError(t, mismatchErr)
	assert.Nil(t, malformedFrame)
	assert.ErrorIs(t, malformedErr, altur.ErrMalformedEnvelope)
	assert.ErrorIs(t, malformedErr, serializers.ErrMalformed)
	assert.NotErrorIs(t, malformedErr, serializers.ErrCodec)
}

func TestDeserialize_EmptyPayload(t *testing.T) {
	s := newSerializer(t, "abc123")

	frame, err := s.Deserialize([]byte(`{"call_id":"abc123","payload":""}`))
	require.NoError(t, err)
	in, ok := frame.(*core.InputAudioFrame)
	require.True(t, ok)
	assert.Empty(t, in.Data)
	assert.Equal(t, 16000, in.SampleRate)
	assert.Equal(t, 1, in.Channels)
}

func TestSerialize_TransportMessagesAreBareJSON(t *testing.T) {
	s := newSerializer(t, "abc123")

	message := map[string]any{"event": "mark", "name": "greeting"}
	for _, frame := range []core.Frame{
		&core.TransportMessageFrame{Message: message},
		&core.TransportMessageUrgentFrame{Message: message},
	} {
		data, err := s.Serialize(frame)
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"mark","name":"greeting"}`, string(data))
		assert.NotContains(t, string(data), "call_id")
	}

	data, err := s.Serialize(&core.TransportMessageFrame{Message: "hangup"})
	require.NoError(t, err)
	assert.Equal(t, `"hangup"`, string(data))
}

func TestSerialize_FramesWithoutWireForm(t *testing.T) {
	s := newSerializer(t, "abc123")

	for _, frame := range []core.Frame{
		&core.StartInterruptionFrame{},
		&core.InputDTMFFrame{Button: core.KeypadPound},
		nil,
		(*core.OutputAudioFrame)(nil),
		(*core.InputAudioFrame)(nil),
		(*core.TransportMessageFrame)(nil),
		(*core.TransportMessageUrgentFrame)(nil),
		(*core.InputDTMFFrame)(nil),
	} {
		data, err := s.Serialize(frame)
		assert.NoError(t, err)
		assert.Nil(t, data)
	}
}

func TestSerialize_CodecContractViolations(t *testing.T) {
	tests := []struct {
		name  string
		chunk core.AudioChunk
	}{
		{"odd byte length", core.AudioChunk{Data: make([]byte, 321), SampleRate: 16000, Channels: 1}},
		{"zero sample rate", core.AudioChunk{Data: make([]byte, 320), SampleRate: 0, Channels: 1}},
		{"negative sample rate", core.AudioChunk{Data: make([]byte, 320), SampleRate: -8000, Channels: 1}},
		{"partial stereo frame", core.AudioChunk{Data: make([]byte, 6), SampleRate: 16000, Channels: 2}},
		{"negative channels", core.AudioChunk{Data: make([]byte, 320), SampleRate: 16000, Channels: -1}},
	}

	s := newSerializer(t, "abc123")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := s.Serialize(&core.OutputAudioFrame{AudioChunk: tt.chunk})
			require.Error(t, err)
			assert.ErrorIs(t, err, altur.ErrCodec)
			assert.ErrorIs(t, err, serializers.ErrCodec)
			assert.Nil(t, data)
		})
	}
}

func TestSerialize_ZeroChannelsMeansMono(t *testing.T) {
	s := newSerializer(t, "abc123")

	data, err := s.Serialize(&core.OutputAudioFrame{AudioChunk: core.AudioChunk{
		Data:       make([]byte, 320),
		SampleRate: 16000,
	}})
	require.NoError(t, err)
	_, ulaw := decodeWire(t, data)
	assert.Len(t, ulaw, 80)
}

func TestSerializer_StreamResamplerKeepsChunkSizes(t *testing.T) {
	params := altur.DefaultParams()
	params.Resampler = audio.ResamplerStream
	s, err := altur.NewSerializer("abc123", params, altur.WithLogger(core.NopLogger()))
	require.NoError(t, err)

	signal := sine(320*10, 16000, 250, 6000)
	wireTotal, pcmTotal := 0, 0
	for i := 0; i < 10; i++ {
		data, err := s.Serialize(&core.OutputAudioFrame{AudioChunk: core.AudioChunk{
			Data:       samplesToBytes(signal[i*320 : (i+1)*320]),
			SampleRate: 16000,
			Channels:   1,
		}})
		require.NoError(t, err)
		_, ulaw := decodeWire(t, data)
		assert.Len(t, ulaw, 160, "chunk %d", i)
		wireTotal += len(ulaw)

		frame, err := s.Deserialize(data)
		require.NoError(t, err)
		pcm := frame.(*core.InputAudioFrame).Data
		assert.Len(t, pcm, 640, "chunk %d", i)
		pcmTotal += len(pcm)
	}
	assert.Equal(t, 1600, wireTotal)
	assert.Equal(t, 6400, pcmTotal)
}

type countingResampler struct {
	mu    sync.Mutex
	calls int
}

func (r *countingResampler) Resample(pcm []byte, inRate, outRate int) ([]byte, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return audio.LinearResampler{}.Resample(pcm, inRate, outRate)
}

func TestSerializer_DirectionsUseSeparateResamplers(t *testing.T) {
	out, in := &countingResampler{}, &countingResampler{}
	s := newSerializer(t, "abc123", altur.WithResamplers(out, in))

	data, err := s.Serialize(&core.OutputAudioFrame{AudioChunk: core.AudioChunk{
		Data: make([]byte, 320), SampleRate: 16000, Channels: 1,
	}})
	require.NoError(t, err)
	_, err = s.Deserialize(data)
	require.NoError(t, err)
	_, err = s.Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, 1, out.calls)
	assert.Equal(t, 2, in.calls)
}

func TestSerializer_ConcurrentUse(t *testing.T) {
	s := newSerializer(t, "abc123")
	pcm := samplesToBytes(sine(320, 16000, 440, 8000))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				data, err := s.Serialize(&core.OutputAudioFrame{AudioChunk: core.AudioChunk{
					Data: pcm, SampleRate: 16000, Channels: 1,
				}})
				if !assert.NoError(t, err) {
					return
				}
				frame, err := s.Deserialize(data)
				if !assert.NoError(t, err) {
					return
				}
				assert.Len(t, frame.(*core.InputAudioFrame).Data, 640)
			}
		}()
	}
	wg.Wait()
}

func TestSerializer_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newSerializer(t, "abc123", altur.WithMetrics(metrics.NewCollector(reg)))

	data, err := s.Serialize(&core.OutputAudioFrame{AudioChunk: core.AudioChunk{
		Data: make([]byte, 320), SampleRate: 16000, Channels: 1,
	}})
	require.NoError(t, err)
	_, err = s.Deserialize(data)
	require.NoError(t, err)
	_, err = s.Deserialize(envelopeJSON("other", nil))
	require.NoError(t, err)
	_, err = s.Deserialize([]byte("not-json"))
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, l := range m.GetLabel() {
				key += "/" + l.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				values[key] = c.GetValue()
			}
		}
	}

	assert.Equal(t, 1.0, values["alturbridge_frames_serialized_total/audio"])
	assert.Equal(t, 1.0, values["alturbridge_envelopes_total/ok"])
	assert.Equal(t, 1.0, values["alturbridge_envelopes_total/mismatch"])
	assert.Equal(t, 1.0, values["alturbridge_envelopes_total/malformed"])
	assert.Equal(t, 80.0, values["alturbridge_payload_bytes_total/out"])
	assert.Equal(t, 80.0, values["alturbridge_payload_bytes_total/in"])
}

func TestSerializer_LogsWithCallID(t *testing.T) {
	var mu sync.Mutex
	var entries []map[string]interface{}
	logger := core.NewLogger(func(level, msg string, attrs map[string]interface{}) {
		mu.Lock()
		defer mu.Unlock()
		entries = append(entries, attrs)
		assert.True(t, strings.HasPrefix(level, "DEBUG") || strings.HasPrefix(level, "TRACE"))
	}, core.LevelTrace)

	s, err := altur.NewSerializer("abc123", altur.DefaultParams(), altur.WithLogger(logger))
	require.NoError(t, err)

	_, err = s.Serialize(&core.StartInterruptionFrame{})
	require.NoError(t, err)
	_, err = s.Deserialize(envelopeJSON("other", nil))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, entries, 2)
	for _, attrs := range entries {
		assert.Equal(t, "abc123", attrs["call_id"])
	}
	assert.Equal(t, "other", entries[1]["envelope_call_id"])
}
