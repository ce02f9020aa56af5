package audio

import "fmt"

// PCMToCompanded resamples mono 16-bit PCM from sourceRate to targetRate and
// then encodes every resulting sample as one µ-law byte. A nil resampler
// selects LinearResampler.
func PCMToCompanded(pcm []byte, sourceRate, targetRate int, resampler Resampler) ([]byte, error) {
	if resampler == nil {
		resampler = LinearResampler{}
	}
	resampled, err := resampler.Resample(pcm, sourceRate, targetRate)
	if err != nil {
		return nil, fmt.Errorf("pcm to µ-law: %w", err)
	}
	return PCMBytesToULaw(resampled)
}

// CompandedToPCM expands µ-law bytes to 16-bit PCM at sourceRate and then
// resamples to targetRate. A nil resampler selects LinearResampler.
func CompandedToPCM(ulaw []byte, sourceRate, targetRate int, resampler Resampler) ([]byte, error) {
	if resampler == nil {
		resampler = LinearResampler{}
	}
	if sourceRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("µ-law to pcm: %w: in=%d, out=%d", ErrInvalidSampleRate, sourceRate, targetRate)
	}
	pcm, err := resampler.Resample(ULawBytesToPCM(ulaw), sourceRate, targetRate)
	if err != nil {
		return nil, fmt.Errorf("µ-law to pcm: %w", err)
	}
	return pcm, nil
}
