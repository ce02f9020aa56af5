package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// ResamplerKind selects a Resampler implementation by name.
type ResamplerKind string

const (
	ResamplerLinear ResamplerKind = "linear" // Stateless linear interpolation.
	ResamplerStream ResamplerKind = "stream" // Linear interpolation with continuity across calls.
)

// Resampler converts 16-bit little-endian mono PCM between sample rates.
type Resampler interface {
	Resample(pcm []byte, inRate, outRate int) ([]byte, error)
}

// NewResampler returns a fresh Resampler of the given kind. An empty kind
// selects ResamplerLinear.
func NewResampler(kind ResamplerKind) (Resampler, error) {
	switch kind {
	case "", ResamplerLinear:
		return LinearResampler{}, nil
	case ResamplerStream:
		return &StreamResampler{}, nil
	default:
		return nil, fmt.Errorf("audio: unknown resampler %q", kind)
	}
}

func checkResampleArgs(pcm []byte, inRate, outRate int) error {
	if inRate <= 0 || outRate <= 0 {
		return fmt.Errorf("%w: in=%d, out=%d", ErrInvalidSampleRate, inRate, outRate)
	}
	if len(pcm)%2 != 0 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidPCMLength, len(pcm))
	}
	return nil
}

func sampleAt(pcm []byte, idx int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[idx*2:]))
}

func interpolate(s0, s1 int16, frac float64) int16 {
	return int16(float64(s0)*(1-frac) + float64(s1)*frac)
}

// LinearResampler resamples each buffer independently using linear
// interpolation. The output holds floor(n*outRate/inRate) samples. It has no
// state and is safe for concurrent use.
type LinearResampler struct{}

// Resample implements Resampler.
func (LinearResampler) Resample(pcm []byte, inRate, outRate int) ([]byte, error) {
	if err := checkResampleArgs(pcm, inRate, outRate); err != nil {
		return nil, err
	}
	if inRate == outRate {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out, nil
	}

	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(outRate) / int64(inRate))
	out := make([]byte, dstSamples*2)
	if dstSamples == 0 {
		return out, nil
	}

	ratio := float64(inRate) / float64(outRate)
	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := sampleAt(pcm, srcIdx)
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = sampleAt(pcm, srcIdx+1)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(interpolate(s0, s1, frac)))
	}
	return out, nil
}

// StreamResampler is a linear resampler for chunked streams. Its output lags
// the input by one input sample: each chunk interpolates from the previous
// chunk's last sample up to its own second to last, and the first chunk
// starts from a copy of its own first sample. A chunk of n samples therefore
// yields n*outRate/inRate samples whenever that is whole, and the
// concatenated output never drifts from the nominal ratio. A change of rate
// pair resets the state.
//
// One StreamResampler must serve exactly one stream; the mutex only keeps
// the state consistent, it does not make interleaved streams meaningful.
type StreamResampler struct {
	mu      sync.Mutex
	inRate  int
	outRate int
	pos     int64 // next output position in 1/outRate input samples, relative to the next chunk
	last    int16
	hasLast bool
}

// Resample implements Resampler.
func (r *StreamResampler) Resample(pcm []byte, inRate, outRate int) ([]byte, error) {
	if err := checkResampleArgs(pcm, inRate, outRate); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if inRate != r.inRate || outRate != r.outRate {
		r.inRate, r.outRate = inRate, outRate
		r.resetLocked()
	}

	if inRate == outRate {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out, nil
	}

	n := len(pcm) / 2
	if n == 0 {
		return []byte{}, nil
	}
	if !r.hasLast {
		r.last = sampleAt(pcm, 0)
		r.pos = -int64(outRate)
		r.hasLast = true
	}

	in, outR := int64(inRate), int64(outRate)
	out := make([]byte, 0, (int(int64(n)*outR/in)+2)*2)

	// Positions lie in [-1, n-1) input samples. Index -1 is the previous
	// chunk's last sample.
	end := int64(n-1) * outR
	pos := r.pos
	for ; pos < end; pos += in {
		idx := floorDiv(pos, outR)
		frac := float64(pos-idx*outR) / float64(outR)
		s0 := r.last
		if idx >= 0 {
			s0 = sampleAt(pcm, int(idx))
		}
		s1 := sampleAt(pcm, int(idx+1))
		out = binary.LittleEndian.AppendUint16(out, uint16(interpolate(s0, s1, frac)))
	}

	r.pos = pos - int64(n)*outR
	r.last = sampleAt(pcm, n-1)
	return out, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

// Reset discards the carried position and sample history.
func (r *StreamResampler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *StreamResampler) resetLocked() {
	r.pos = 0
	r.last = 0
	r.hasLast = false
}
