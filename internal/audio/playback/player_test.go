package playback

import (
	"context"
	"errors"
	"testing"
)

func TestOpen_InvalidSampleRate(t *testing.T) {
	for _, rate := range []int{0, -24000, 4000, 2_000_000_000} {
		if _, err := Open(rate); err == nil {
			t.Errorf("Open(%d) = nil error; want error", rate)
		}
	}
}

func TestPlay_EmptyBuffer(t *testing.T) {
	p := &Player{sampleRate: 24000}

	for _, samples := range [][]float32{nil, {}} {
		if err := p.Play(context.Background(), samples, 24000); !errors.Is(err, ErrEmpty) {
			t.Fatalf("Play(%v) = %v; want ErrEmpty", samples, err)
		}
	}
}
