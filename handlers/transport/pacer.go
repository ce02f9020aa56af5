package transport

import (
	"context"
	"time"

	"alturbridge/core"
)

// audioPacer spaces outbound audio so the peer receives it at a steady
// multiple of real time. It is owned by one goroutine.
type audioPacer struct {
	factor float64
	next   time.Time
}

func newAudioPacer(factor float64) *audioPacer {
	return &audioPacer{factor: factor}
}

// Wait blocks until the next send is due, then books the slot for audio
// lasting d. The first send after a reset goes out immediately.
func (p *audioPacer) Wait(ctx context.Context, d time.Duration) error {
	if p.factor <= 0 || d <= 0 {
		return nil
	}

	now := time.Now()
	if wait := p.next.Sub(now); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		p.next = now
	}
	p.next = p.next.Add(time.Duration(float64(d) / p.factor))
	return nil
}

// Reset forgets the booked schedule, e.g. after an interruption flushed the
// audio the peer had queued.
func (p *audioPacer) Reset() {
	p.next = time.Time{}
}

// audioDuration returns the playback length of an audio frame, or zero for
// anything else. Zero channels count as mono.
func audioDuration(frame core.Frame) time.Duration {
	var chunk core.AudioChunk
	switch f := frame.(type) {
	case *core.OutputAudioFrame:
		if f == nil {
			return 0
		}
		chunk = f.AudioChunk
	case *core.InputAudioFrame:
		if f == nil {
			return 0
		}
		chunk = f.AudioChunk
	default:
		return 0
	}
	if chunk.Channels == 0 {
		chunk.Channels = 1
	}
	return time.Duration(chunk.GetDurationInSeconds() * float64(time.Second))
}
