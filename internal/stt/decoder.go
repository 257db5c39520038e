package stt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrDecoderClosed is returned by a Decoder after Close
var ErrDecoderClosed = errors.New("decoder closed")

// recognizerResult represents the JSON result produced by the recognizer
type recognizerResult struct {
	Text   string `json:"text"`
	Result []struct {
		Conf  float64 `json:"conf"`
		End   float64 `json:"end"`
		Start float64 `json:"start"`
		Word  string  `json:"word"`
	} `json:"result,omitempty"`
}

// Decoder is one streaming decoding session over a Recognizer.
// It accumulates frames until the recognizer finalizes an utterance.
type Decoder struct {
	mu         sync.Mutex
	recognizer Recognizer
	closed     bool
}

// NewDecoder wraps a recognizer already bound to its sample rate
func NewDecoder(recognizer Recognizer) *Decoder {
	return &Decoder{recognizer: recognizer}
}

// Feed processes one frame of 16-bit PCM.
// Partial hypotheses are never read: a non-finalized result is empty.
func (d *Decoder) Feed(frame []byte) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Result{}, ErrDecoderClosed
	}

	switch state := d.recognizer.AcceptWaveform(frame); {
	case state < 0:
		return Result{}, fmt.Errorf("accept waveform: recognizer returned %d", state)
	case state == 0:
		return Result{}, nil
	default:
		return parseResult(d.recognizer.Result())
	}
}

// Flush finalizes whatever audio is pending in the session
func (d *Decoder) Flush() (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Result{}, ErrDecoderClosed
	}

	return parseResult(d.recognizer.FinalResult())
}

// Close releases the recognizer. Calling it again is a no-op.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.recognizer.Free()
	return nil
}

func parseResult(raw string) (Result, error) {
	var res recognizerResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return Result{}, fmt.Errorf("failed to parse result: %w", err)
	}

	return Result{
		Text:       res.Text,
		Finalized:  true,
		Confidence: averageConfidence(res),
	}, nil
}

// averageConfidence calculates the average confidence from word results
func averageConfidence(res recognizerResult) float64 {
	if len(res.Result) == 0 {
		return 0.0
	}

	var sum float64
	for _, word := range res.Result {
		sum += word.Conf
	}

	return sum / float64(len(res.Result))
}
