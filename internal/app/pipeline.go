package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/emmett/ears/internal/audio"
	"github.com/emmett/ears/internal/stt"
)

// State is the decode loop's position
type State int32

const (
	StateIdle       State = iota // not started or finished
	StateListening               // waiting for the next frame
	StateProcessing              // feeding a frame to the recognizer
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	default:
		return "idle"
	}
}

// StopReason tells why the decode loop ended without error
type StopReason int

const (
	StopInterrupted    StopReason = iota // context cancelled by a signal
	StopInputExhausted                   // the capture source has no more frames
)

func (r StopReason) String() string {
	if r == StopInputExhausted {
		return "input exhausted"
	}
	return "interrupted"
}

// Decoder is the streaming recognizer session the loop drives
type Decoder interface {
	Feed(frame []byte) (stt.Result, error)
	Flush() (stt.Result, error)
}

// Emitter publishes finalized utterances
type Emitter interface {
	Recognized(text string) (bool, error)
}

// Pipeline is the decode loop. It owns the decoder session and the
// consuming end of the frame queue; the capture thread only pushes.
type Pipeline struct {
	queue   *audio.FrameQueue
	decoder Decoder
	emitter Emitter
	log     *slog.Logger
	state   atomic.Int32
	emitted atomic.Int64
}

// NewPipeline wires a queue, a decoder session and an emitter together
func NewPipeline(queue *audio.FrameQueue, decoder Decoder, emitter Emitter, log *slog.Logger) *Pipeline {
	return &Pipeline{
		queue:   queue,
		decoder: decoder,
		emitter: emitter,
		log:     log,
	}
}

// State returns the current loop state
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Emitted returns how many utterances were published
func (p *Pipeline) Emitted() int64 {
	return p.emitted.Load()
}

// Run pops frames and feeds them to the decoder until ctx is cancelled or
// the queue is closed and drained. Decoder and emitter failures are returned
// as errors; nothing is retried.
func (p *Pipeline) Run(ctx context.Context) (StopReason, error) {
	defer p.setState(StateIdle)

	var dropped uint64
	for {
		if ctx.Err() != nil {
			return StopInterrupted, nil
		}

		p.setState(StateListening)
		frame, err := p.queue.Pop(ctx)
		switch {
		case ctx.Err() != nil:
			// in-flight utterance is abandoned
			return StopInterrupted, nil
		case errors.Is(err, audio.ErrQueueClosed):
			return StopInputExhausted, p.flush()
		case err != nil:
			return StopInterrupted, fmt.Errorf("frame queue: %w", err)
		}

		if d := p.queue.Dropped(); d > dropped {
			p.log.Warn("decoder fell behind, oldest frames dropped",
				slog.Uint64("dropped_total", d),
				slog.Int("queued", p.queue.Len()))
			dropped = d
		}

		p.setState(StateProcessing)
		res, err := p.decoder.Feed(frame.Data)
		if err != nil {
			return StopInterrupted, fmt.Errorf("decode frame: %w", err)
		}

		p.log.Debug("frame decoded",
			slog.Int("samples", int(frame.Frames)),
			slog.Duration("duration", frame.Duration()),
			slog.Float64("level", frame.Level()),
			slog.Bool("finalized", res.Finalized))

		if err := p.publish(res); err != nil {
			return StopInterrupted, err
		}
	}
}

// flush finalizes the audio left in the session after the source ended
func (p *Pipeline) flush() error {
	res, err := p.decoder.Flush()
	if err != nil {
		return fmt.Errorf("flush decoder: %w", err)
	}
	return p.publish(res)
}

func (p *Pipeline) publish(res stt.Result) error {
	if !res.Emittable() {
		if res.Finalized {
			p.log.Debug("empty utterance discarded")
		}
		return nil
	}

	ok, err := p.emitter.Recognized(res.Text)
	if err != nil {
		return err
	}
	if !ok {
		p.log.Debug("empty utterance discarded")
		return nil
	}

	p.emitted.Add(1)
	p.log.Info("utterance recognized",
		slog.Int("chars", len(res.Text)),
		slog.Float64("confidence", res.Confidence))
	return nil
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
}
