package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/emmett/ears/internal/audio"
	"github.com/emmett/ears/internal/output"
	"github.com/emmett/ears/internal/stt"
)

// Model is a loaded recognizer model able to open decoding sessions
type Model interface {
	NewDecoder(sampleRate int) (*stt.Decoder, error)
	Close() error
}

// ModelLoader loads the model at path
type ModelLoader func(path string) (Model, error)

// CapturerFactory opens the capture source and names it for the
// readiness line
type CapturerFactory func() (audio.Capturer, string, error)

// RunnerConfig holds the settings a run needs once flags and files are merged
type RunnerConfig struct {
	ModelPath    string
	BufferFrames int
}

// Runner owns the process lifecycle: model load, device open, the decode
// loop and shutdown. Every resource it acquires is released before Run
// returns.
type Runner struct {
	config      RunnerConfig
	loadModel   ModelLoader
	newCapturer CapturerFactory
	console     *output.Console
	log         *slog.Logger
}

// NewRunner creates a Runner
func NewRunner(config RunnerConfig, loadModel ModelLoader, newCapturer CapturerFactory, console *output.Console, log *slog.Logger) *Runner {
	return &Runner{
		config:      config,
		loadModel:   loadModel,
		newCapturer: newCapturer,
		console:     console,
		log:         log,
	}
}

// Run loads the model, opens capture and decodes until ctx is cancelled,
// the input ends, or an unrecoverable error occurs. An interrupt is a clean
// stop and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	log := r.log.With(slog.String("session", uuid.NewString()))

	r.console.Info(fmt.Sprintf("Loading speech model from %s...", r.config.ModelPath))
	model, err := r.loadModel(r.config.ModelPath)
	if err != nil {
		r.console.Error(fmt.Sprintf("Error loading model. Is the model folder at %s? %v", r.config.ModelPath, err))
		return err
	}
	defer model.Close()

	decoder, err := model.NewDecoder(stt.SampleRate)
	if err != nil {
		err = &stt.ModelLoadError{Path: r.config.ModelPath, Err: err}
		r.console.Error(err.Error())
		return err
	}
	defer decoder.Close()

	// interrupted while the model was loading: never open the device
	if ctx.Err() != nil {
		log.Info("interrupted before capture started")
		r.console.Info("Stopping ears.")
		return nil
	}

	capturer, deviceName, err := r.newCapturer()
	if err != nil {
		r.console.Error(fmt.Sprintf("Error opening audio device: %v", err))
		return err
	}
	defer func() {
		if err := capturer.Stop(); err != nil {
			log.Warn("failed to release capture device", slog.Any("error", err))
		}
	}()

	queue := audio.NewFrameQueue(r.config.BufferFrames)
	// runs before Stop so a source waiting for room is released
	defer queue.Close()

	if err := capturer.Start(ctx, frameHandler(ctx, capturer, queue)); err != nil {
		r.console.Error(fmt.Sprintf("Error opening audio device: %v", err))
		return err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go watchCapture(watchCtx, capturer, queue, log)

	r.console.Info(fmt.Sprintf("Model loaded. Listening on %s.", deviceName))
	log.Info("pipeline started",
		slog.String("model", r.config.ModelPath),
		slog.String("device", deviceName),
		slog.Int("sample_rate", audio.SampleRate),
		slog.Int("block_size", audio.BlockSize),
		slog.Int("buffer_frames", queue.Cap()))

	pipeline := NewPipeline(queue, decoder, r.console, log)
	reason, err := pipeline.Run(ctx)
	if err != nil {
		r.console.Error(fmt.Sprintf("Error: %v", err))
		return err
	}

	log.Info("pipeline stopped",
		slog.String("reason", reason.String()),
		slog.Int64("utterances", pipeline.Emitted()))
	if reason == StopInputExhausted {
		r.console.Info("Input finished.")
	}
	r.console.Info("Stopping ears.")
	return nil
}

// frameHandler hands frames to the queue. Live devices never wait and lose
// the oldest frames on overflow; other sources wait for the decoder.
func frameHandler(ctx context.Context, capturer audio.Capturer, queue *audio.FrameQueue) audio.FrameHandler {
	if capturer.Live() {
		return func(f audio.Frame) { queue.Push(f) }
	}
	return func(f audio.Frame) { _ = queue.PushWait(ctx, f) }
}

// watchCapture logs device warnings and closes the queue once the source
// is finished
func watchCapture(ctx context.Context, capturer audio.Capturer, queue *audio.FrameQueue, log *slog.Logger) {
	errs := capturer.Errors()
	for {
		select {
		case err := <-errs:
			log.Warn("capture warning", slog.Any("error", err))
		case <-capturer.Done():
			queue.Close()
			return
		case <-ctx.Done():
			return
		}
	}
}

// ExitCode maps the result of Run to a process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 0
	default:
		return 1
	}
}
