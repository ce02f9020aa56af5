package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/zaf/g711"
)

// PCM constants
const (
	pcmMax = 32767  // Max 16-bit PCM value
	pcmMin = -32768 // Min 16-bit PCM value
)

var (
	// ErrInvalidSampleRate is returned when a sample rate is zero or negative.
	ErrInvalidSampleRate = errors.New("audio: sample rate must be positive")

	// ErrInvalidPCMLength is returned when a 16-bit PCM buffer has an odd byte count.
	ErrInvalidPCMLength = errors.New("audio: PCM byte length must be even (16-bit samples)")
)

// Buffer pools for frequently used operations
var (
	// Pool for WAV header buffers (typically 44-46 bytes)
	wavHeaderPool = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 64))
		},
	}

	// Pool for int32 accumulators used when downmixing
	mixBufferPool = sync.Pool{
		New: func() interface{} {
			return make([]int32, 0, 2048)
		},
	}
)

func getMixBuffer(size int) []int32 {
	buf := mixBufferPool.Get().([]int32)
	if cap(buf) < size {
		return make([]int32, size)
	}
	buf = buf[:size]
	clear(buf)
	return buf
}

func putMixBuffer(buf []int32) {
	if cap(buf) <= 16384 { // Don't pool very large buffers
		mixBufferPool.Put(buf[:0])
	}
}

// PCMToULaw converts a 16-bit PCM sample to 8-bit µ-law using ITU-T G.711 standard
func PCMToULaw(sample int16) byte {
	return g711.EncodeUlawFrame(sample)
}

// ULawToPCM converts an 8-bit µ-law byte to 16-bit PCM using ITU-T G.711 standard
func ULawToPCM(u byte) int16 {
	return g711.DecodeUlawFrame(u)
}

// PCMBytesToULaw converts little-endian 16-bit PCM bytes to µ-law, one byte per sample.
func PCMBytesToULaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidPCMLength, len(pcm))
	}
	if len(pcm) == 0 {
		return []byte{}, nil
	}
	return g711.EncodeUlaw(pcm), nil
}

// ULawBytesToPCM converts µ-law bytes to little-endian 16-bit PCM bytes.
func ULawBytesToPCM(uBytes []byte) []byte {
	if len(uBytes) == 0 {
		return []byte{}
	}
	return g711.DecodeUlaw(uBytes)
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(monoPCM []byte) []byte {
	samples := len(monoPCM) / 2
	result := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		result[i*4] = monoPCM[i*2]
		result[i*4+1] = monoPCM[i*2+1]
		result[i*4+2] = monoPCM[i*2]
		result[i*4+3] = monoPCM[i*2+1]
	}
	return result
}

// DownmixToMono averages every interleaved frame of an n-channel 16-bit
// buffer into one sample. Trailing bytes that do not form a whole frame are
// ignored. A mono input is returned unchanged.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes

	acc := getMixBuffer(frames)
	defer putMixBuffer(acc)

	for i := 0; i < frames; i++ {
		base := i * frameBytes
		for ch := 0; ch < channels; ch++ {
			off := base + ch*2
			acc[i] += int32(int16(binary.LittleEndian.Uint16(pcm[off : off+2])))
		}
	}

	out := make([]byte, frames*2)
	for i, sum := range acc {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clampSample(sum/int32(channels))))
	}
	return out
}

func clampSample(v int32) int16 {
	if v > pcmMax {
		return pcmMax
	}
	if v < pcmMin {
		return pcmMin
	}
	return int16(v)
}

// PCMBytesToWavBytes wraps PCM []byte into WAV []byte (16-bit little endian)
// Supports mono or stereo with buffer pooling
func PCMBytesToWavBytes(pcm []byte, numChannels, sampleRate int) ([]byte, error) {
	if numChannels <= 0 || numChannels > 2 {
		return nil, errors.New("only mono (1) or stereo (2) channels supported")
	}
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if len(pcm)%(2*numChannels) != 0 {
		return nil, errors.New("PCM data length doesn't match channel count")
	}

	buf := wavHeaderPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		wavHeaderPool.Put(buf)
	}()

	const (
		bitsPerSample  = 16
		audioFormatPCM = 1
		subchunk1Size  = 16
	)

	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := len(pcm)
	fileSize := 36 + dataSize // 36 = WAV header size

	// RIFF header
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(fileSize))
	buf.WriteString("WAVE")

	// fmt sub-chunk
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(subchunk1Size))
	binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	// data sub-chunk
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	result := make([]byte, buf.Len()+len(pcm))
	copy(result, buf.Bytes())
	copy(result[buf.Len():], pcm)

	return result, nil
}

// WavFormat is the subset of a WAV "fmt " chunk needed to interpret its samples.
type WavFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// ParseWAV returns the format and raw data chunk of a RIFF/WAVE buffer.
// Only 16-bit PCM is accepted.
func ParseWAV(data []byte) (WavFormat, []byte, error) {
	if len(data) < 12 || !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return WavFormat{}, nil, errors.New("invalid WAV: missing RIFF/WAVE header")
	}

	var format WavFormat
	var haveFormat bool
	i := 12
	for i+8 <= len(data) {
		chunkID := string(data[i : i+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		body := i + 8
		next := body + chunkSize
		if next > len(data) {
			return WavFormat{}, nil, fmt.Errorf("invalid WAV: %q chunk exceeds buffer length", chunkID)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return WavFormat{}, nil, errors.New("invalid WAV: short fmt chunk")
			}
			if binary.LittleEndian.Uint16(data[body:body+2]) != 1 {
				return WavFormat{}, nil, errors.New("unsupported WAV: not linear PCM")
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFormat = true
		case "data":
			if !haveFormat {
				return WavFormat{}, nil, errors.New("invalid WAV: data chunk before fmt chunk")
			}
			if format.BitsPerSample != 16 {
				return WavFormat{}, nil, fmt.Errorf("unsupported WAV: %d bits per sample", format.BitsPerSample)
			}
			return format, data[body:next], nil
		}

		// Chunks are padded to an even boundary.
		if chunkSize%2 != 0 {
			next++
		}
		i = next
	}

	return WavFormat{}, nil, errors.New("invalid WAV: data chunk not found")
}

// StripWAVHeaderIfPresent returns raw PCM bytes and the WAV format if input
// starts with a RIFF/WAVE header. If the input is not a WAV file, it returns
// the input unchanged and a nil format.
func StripWAVHeaderIfPresent(chunk []byte) ([]byte, *WavFormat, error) {
	if len(chunk) < 12 {
		return chunk, nil, nil
	}
	if !bytes.HasPrefix(chunk, []byte("RIFF")) || !bytes.Equal(chunk[8:12], []byte("WAVE")) {
		return chunk, nil, nil
	}
	format, data, err := ParseWAV(chunk)
	if err != nil {
		return nil, nil, err
	}
	return data, &format, nil
}

// ValidatePCMData validates PCM byte array for basic integrity
func ValidatePCMData(pcm []byte, numChannels int) error {
	if len(pcm)%2 != 0 {
		return ErrInvalidPCMLength
	}
	if numChannels <= 0 {
		return errors.New("invalid number of channels")
	}
	if len(pcm)%(2*numChannels) != 0 {
		return errors.New("PCM data length doesn't match channel count")
	}
	return nil
}

// GetPCMDurationSeconds returns duration in seconds
func GetPCMDurationSeconds(pcm []byte, numChannels, sampleRate int) (float64, error) {
	if err := ValidatePCMData(pcm, numChannels); err != nil {
		return 0, err
	}
	if sampleRate <= 0 {
		return 0, ErrInvalidSampleRate
	}
	frameCount := len(pcm) / 2 / numChannels
	return float64(frameCount) / float64(sampleRate), nil
}
