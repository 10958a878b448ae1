package tts

import (
	"errors"
	"fmt"

	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/voice"
)

var (
	// ErrConstruction marks a missing or corrupt model, voice archive or
	// lexicon. The Engine cannot be built.
	ErrConstruction = errors.New("tts: engine construction failed")
	// ErrVoiceNotFound is returned for a voice name absent from the store.
	ErrVoiceNotFound = voice.ErrNotFound
	// ErrTokenization is returned for text that cannot be phonemized.
	ErrTokenization = phonemize.ErrTokenization
	// ErrLengthExceeded is returned when the token sequence is too long.
	ErrLengthExceeded = phonemize.ErrLengthExceeded
	// ErrModelInference marks a numeric failure while encoding or rendering.
	// The request fails; the Engine stays usable.
	ErrModelInference = errors.New("tts: model inference failed")
	// ErrInvalidRequest marks request parameters outside their valid range.
	ErrInvalidRequest = errors.New("tts: invalid request")
)

// Stage names a step of the synthesis pipeline.
type Stage string

const (
	StageVoice     Stage = "voice"
	StagePhonemize Stage = "phonemize"
	StageEncode    Stage = "encode"
	StageVocode    Stage = "vocode"
)

// StageError identifies the pipeline stage that failed. Err is the stage's
// error unchanged, so errors.Is and errors.As see through it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("tts: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}

	return "", false
}

func stageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

func inferenceError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: fmt.Errorf("%w: %w", ErrModelInference, err)}
}

func constructionError(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrConstruction, fmt.Errorf(format, args...))
}
