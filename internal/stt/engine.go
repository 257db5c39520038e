package stt

import (
	"errors"
	"fmt"
)

// SampleRate is the only rate the decoder is ever created with
const SampleRate = 16000

// ErrModelLoad is matched by every model loading failure
var ErrModelLoad = errors.New("model load failed")

// ModelLoadError reports a model that could not be loaded from Path
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model from %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrModelLoad) true for any ModelLoadError
func (e *ModelLoadError) Is(target error) bool {
	return target == ErrModelLoad
}

// Result represents the outcome of feeding one frame to a decoder
type Result struct {
	// Text is the recognized text, only set when Finalized is true
	Text string

	// Finalized reports that the recognizer detected an utterance boundary
	Finalized bool

	// Confidence is the average word confidence (0.0 to 1.0)
	Confidence float64
}

// Emittable reports whether the result carries a finished, non-empty utterance
func (r Result) Emittable() bool {
	return r.Finalized && r.Text != ""
}

// Recognizer is the streaming recognizer binding a Decoder drives.
// Implementations are not safe for concurrent use.
type Recognizer interface {
	// AcceptWaveform feeds 16-bit PCM and returns non-zero once an
	// endpoint has been detected
	AcceptWaveform(data []byte) int

	// Result returns the JSON result of the finished utterance and
	// resets the recognizer for the next one
	Result() string

	// FinalResult forces the pending audio into a result
	FinalResult() string

	// Free releases native resources
	Free()
}

// Config holds configuration for the STT engine
type Config struct {
	// ModelPath is the path to the STT model directory
	ModelPath string

	// SampleRate is the audio sample rate in Hz
	SampleRate int

	// ShowWords enables word-level results, needed for confidence scores
	ShowWords bool
}

// DefaultConfig returns a default STT configuration
func DefaultConfig(modelPath string) Config {
	return Config{
		ModelPath:  modelPath,
		SampleRate: SampleRate,
		ShowWords:  true,
	}
}
