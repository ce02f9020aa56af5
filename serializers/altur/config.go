package altur

import (
	"errors"
	"fmt"

	"alturbridge/utils/audio"
)

// Params configures the rates on both sides of the transcoder.
type Params struct {
	// Sample rate of the µ-law payload on the wire (Hz).
	PeerSampleRate int `yaml:"peer_sample_rate" json:"peer_sample_rate" default:"8000"`

	// Sample rate of audio handed back to the pipeline (Hz).
	SampleRate int `yaml:"sample_rate" json:"sample_rate" default:"16000"`

	// Resampler implementation: "linear" or "stream".
	Resampler audio.ResamplerKind `yaml:"resampler,omitempty" json:"resampler,omitempty" default:"linear"`
}

// DefaultParams returns 8 kHz on the wire, 16 kHz in the pipeline and the
// stateless linear resampler.
func DefaultParams() Params {
	return Params{
		PeerSampleRate: 8000,
		SampleRate:     16000,
		Resampler:      audio.ResamplerLinear,
	}
}

// Validate reports every invalid field.
func (p Params) Validate() error {
	var errs []error
	if p.PeerSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("peer_sample_rate must be positive, got %d", p.PeerSampleRate))
	}
	if p.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", p.SampleRate))
	}
	if _, err := audio.NewResampler(p.Resampler); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
