package core

import "time"

// AudioChunk is a block of little-endian signed 16-bit linear PCM.
// Multi-channel data is interleaved.
type AudioChunk struct {
	Data       []byte    // Raw PCM data.
	SampleRate int       // Sample rate of the audio data.
	Channels   int       // Number of audio channels.
	Timestamp  time.Time // Capture or creation time, zero when unknown.
}

// NumFrames returns the number of sample frames (samples per channel).
func (ac *AudioChunk) NumFrames() int {
	if ac.Channels <= 0 {
		return 0
	}
	return len(ac.Data) / (2 * ac.Channels)
}

func (ac *AudioChunk) GetDurationInSeconds() float64 {
	if ac.SampleRate == 0 || ac.Channels == 0 {
		return 0.0
	}
	return float64(ac.NumFrames()) / float64(ac.SampleRate)
}
