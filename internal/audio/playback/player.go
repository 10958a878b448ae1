// Package playback sends synthesized audio to the default output device.
// It is the only package that links oto, which needs cgo on most platforms.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/example/go-kokoro-tts/internal/audio"
)

// ErrEmpty is returned when there are no samples to play.
var ErrEmpty = errors.New("nothing to play")

// Player plays mono buffers on the default output device. oto allows one
// context per process, so the first Player fixes the device sample rate.
type Player struct {
	ctx        *oto.Context
	sampleRate int
}

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

// Open opens the audio device at sampleRate.
func Open(sampleRate int) (*Player, error) {
	if err := audio.CheckSampleRate(sampleRate); err != nil {
		return nil, err
	}

	otoOnce.Do(func() {
		var ready chan struct{}

		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: audio.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if otoErr == nil {
			<-ready
			otoRate = sampleRate
		}
	})

	if otoErr != nil {
		return nil, fmt.Errorf("open audio device: %w", otoErr)
	}

	return &Player{ctx: otoCtx, sampleRate: otoRate}, nil
}

// SampleRate is the device rate. Play resamples anything else to it.
func (p *Player) SampleRate() int { return p.sampleRate }

// Play blocks until samples have been played or ctx is done.
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return ErrEmpty
	}

	if sampleRate != p.sampleRate {
		resampled, err := audio.Resample(samples, sampleRate, p.sampleRate)
		if err != nil {
			return err
		}

		samples = resampled
	}

	// oto reads from data until playback ends.
	data := audio.PCM16Bytes(samples)

	player := p.ctx.NewPlayer(bytes.NewReader(data))
	defer player.Close()

	player.Play()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return player.Err()
}
