package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/emmett/ears/internal/audio"
	"github.com/emmett/ears/internal/logging"
	"github.com/emmett/ears/internal/models"
	"github.com/emmett/ears/internal/output"
	"github.com/emmett/ears/internal/stt"
)

// syncBuffer is a bytes.Buffer safe for the logger's goroutines
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeCapturer struct {
	mu         sync.Mutex
	frames     int
	closeAfter bool
	startErr   error
	errs       chan error
	done       chan struct{}
	doneOnce   sync.Once
	starts     int
	stops      int
	running    bool
}

func newFakeCapturer(frames int, closeAfter bool) *fakeCapturer {
	return &fakeCapturer{
		frames:     frames,
		closeAfter: closeAfter,
		errs:       make(chan error, 4),
		done:       make(chan struct{}),
	}
}

func (f *fakeCapturer) Start(ctx context.Context, onFrame audio.FrameHandler) error {
	f.mu.Lock()
	f.starts++
	if f.startErr != nil {
		f.mu.Unlock()
		return f.startErr
	}
	f.running = true
	f.mu.Unlock()

	for i := 0; i < f.frames; i++ {
		onFrame(audio.Frame{Data: make([]byte, audio.BlockBytes), Frames: audio.BlockSize, Timestamp: time.Now()})
	}
	if f.closeAfter {
		f.finish()
	}
	return nil
}

func (f *fakeCapturer) Stop() error {
	f.mu.Lock()
	f.stops++
	f.running = false
	f.mu.Unlock()
	f.finish()
	return nil
}

func (f *fakeCapturer) finish() {
	f.doneOnce.Do(func() { close(f.done) })
}

func (f *fakeCapturer) Errors() <-chan error  { return f.errs }
func (f *fakeCapturer) Done() <-chan struct{} { return f.done }

func (f *fakeCapturer) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeCapturer) Live() bool { return true }

func (f *fakeCapturer) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

type fakeModel struct {
	rec    stt.Recognizer
	mu     sync.Mutex
	closed bool
}

func (m *fakeModel) NewDecoder(sampleRate int) (*stt.Decoder, error) {
	return stt.NewDecoder(m.rec), nil
}

func (m *fakeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type harness struct {
	out       *syncBuffer
	logs      *syncBuffer
	capturer  *fakeCapturer
	model     *fakeModel
	factories int
	runner    *Runner
}

func newHarness(t *testing.T, rec stt.Recognizer, capturer *fakeCapturer) *harness {
	t.Helper()

	h := &harness{
		out:      &syncBuffer{},
		logs:     &syncBuffer{},
		capturer: capturer,
		model:    &fakeModel{rec: rec},
	}
	log, err := logging.New("debug", "text", h.logs)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	loader := func(path string) (Model, error) { return h.model, nil }
	factory := func() (audio.Capturer, string, error) {
		h.factories++
		return h.capturer, "Test Microphone", nil
	}
	h.runner = NewRunner(
		RunnerConfig{ModelPath: "/models/vosk", BufferFrames: 64},
		loader, factory,
		output.NewConsole(output.ConsoleConfig{Writer: h.out}),
		log,
	)
	return h
}

func resultLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if text, ok := output.ParseLine(line); ok {
			lines = append(lines, text)
		}
	}
	return lines
}

func TestRunSingleUtterance(t *testing.T) {
	rec := stt.NewScriptedRecognizer(
		stt.Step{},
		stt.Step{Final: true, Text: "turn on the lights"},
		stt.Step{},
	)
	h := newHarness(t, rec, newFakeCapturer(3, true))

	err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ExitCode(err) != 0 {
		t.Fatalf("expected exit 0")
	}

	got := resultLines(h.out.String())
	if len(got) != 1 || got[0] != "turn on the lights" {
		t.Fatalf("expected one result line, got %q\n%s", got, h.out.String())
	}
	if strings.Count(h.out.String(), "RECOGNIZED:turn on the lights\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", h.out.String())
	}
	if !rec.Freed() || !h.model.closed {
		t.Fatalf("expected decoder and model released")
	}
}

func TestRunSilenceEmitsNothing(t *testing.T) {
	rec := stt.NewScriptedRecognizer(stt.Step{}, stt.Step{Final: true}, stt.Step{}, stt.Step{Final: true})
	h := newHarness(t, rec, newFakeCapturer(6, true))

	if err := h.runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := h.out.String()
	if got := resultLines(out); len(got) != 0 {
		t.Fatalf("expected no results, got %q", got)
	}
	if !strings.Contains(out, "[INFO] Model loaded. Listening on Test Microphone.") {
		t.Fatalf("expected readiness line, got %q", out)
	}
}

func TestRunInterrupt(t *testing.T) {
	// "turn on" is still in progress when the interrupt arrives
	rec := stt.NewScriptedRecognizer(stt.Step{Text: "turn on"})
	capturer := newFakeCapturer(1, false)
	h := newHarness(t, rec, capturer)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.runner.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil || ExitCode(err) != 0 {
			t.Fatalf("expected clean interrupt, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runner did not stop on interrupt")
	}

	out := h.out.String()
	if !strings.Contains(out, "[INFO] Stopping ears.") {
		t.Fatalf("expected shutdown notice, got %q", out)
	}
	if got := resultLines(out); len(got) != 0 {
		t.Fatalf("partial utterance must not be flushed on interrupt, got %q", got)
	}
	if _, stops := capturer.counts(); stops == 0 {
		t.Fatalf("expected capture device released")
	}

	// shutting down again is harmless
	if err := capturer.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestRunMissingModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model")
	out := &syncBuffer{}
	factories := 0

	loader := func(p string) (Model, error) {
		if err := models.Validate(p); err != nil {
			return nil, &stt.ModelLoadError{Path: p, Err: err}
		}
		t.Fatalf("validation should have failed")
		return nil, nil
	}
	factory := func() (audio.Capturer, string, error) {
		factories++
		return newFakeCapturer(0, true), "mic", nil
	}

	for i := 0; i < 2; i++ {
		runner := NewRunner(RunnerConfig{ModelPath: path, BufferFrames: 8}, loader, factory,
			output.NewConsole(output.ConsoleConfig{Writer: out}), logging.Discard())

		err := runner.Run(context.Background())
		if !errors.Is(err, stt.ErrModelLoad) {
			t.Fatalf("expected ErrModelLoad, got %v", err)
		}
		if ExitCode(err) == 0 {
			t.Fatalf("expected non-zero exit")
		}
	}

	if factories != 0 {
		t.Fatalf("audio device must not be opened, factory called %d times", factories)
	}
	if !strings.Contains(out.String(), "[ERROR] ") || !strings.Contains(out.String(), path) {
		t.Fatalf("expected error line naming %s, got %q", path, out.String())
	}
}

func TestRunDeviceError(t *testing.T) {
	capturer := newFakeCapturer(0, false)
	capturer.startErr = &audio.DeviceError{Op: "open default input device", Err: errors.New("busy")}
	h := newHarness(t, stt.NewScriptedRecognizer(), capturer)

	err := h.runner.Run(context.Background())
	if !errors.Is(err, audio.ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
	if ExitCode(err) != 1 {
		t.Fatalf("expected exit 1")
	}
	if !strings.Contains(h.out.String(), "[ERROR] Error opening audio device") {
		t.Fatalf("expected device error line, got %q", h.out.String())
	}
	if _, stops := capturer.counts(); stops == 0 {
		t.Fatalf("expected Stop on failed start")
	}
}

type brokenRecognizer struct{}

func (brokenRecognizer) AcceptWaveform([]byte) int { return 1 }
func (brokenRecognizer) Result() string           { return "garbage" }
func (brokenRecognizer) FinalResult() string      { return "garbage" }
func (brokenRecognizer) Free()                    {}

func TestRunDecoderFailure(t *testing.T) {
	capturer := newFakeCapturer(2, false)
	h := newHarness(t, brokenRecognizer{}, capturer)

	err := h.runner.Run(context.Background())
	if err == nil || ExitCode(err) != 1 {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if !strings.Contains(h.out.String(), "[ERROR] Error: decode frame") {
		t.Fatalf("expected runtime error line, got %q", h.out.String())
	}
	if _, stops := capturer.counts(); stops == 0 {
		t.Fatalf("expected capture device released")
	}
}

type staleRecognizer struct{ freed bool }

func (r *staleRecognizer) AcceptWaveform([]byte) int { return -1 }
func (r *staleRecognizer) Result() string           { return `{"text":"stale words"}` }
func (r *staleRecognizer) FinalResult() string      { return `{"text":"stale words"}` }
func (r *staleRecognizer) Free()                    { r.freed = true }

func TestRunRecognizerFailureIsFatal(t *testing.T) {
	rec := &staleRecognizer{}
	capturer := newFakeCapturer(2, false)
	h := newHarness(t, rec, capturer)

	err := h.runner.Run(context.Background())
	if ExitCode(err) != 1 || !strings.Contains(err.Error(), "accept waveform") {
		t.Fatalf("expected fatal accept waveform error, got %v", err)
	}
	if got := resultLines(h.out.String()); len(got) != 0 {
		t.Fatalf("failed decode must not emit text, got %q", got)
	}
	if !strings.Contains(h.out.String(), "[ERROR] Error: decode frame") {
		t.Fatalf("expected runtime error line, got %q", h.out.String())
	}
	if !rec.freed {
		t.Fatalf("expected recognizer released")
	}
}

func TestRunInterruptedDuringModelLoad(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	model := &fakeModel{rec: stt.NewScriptedRecognizer()}
	factories := 0
	loader := func(string) (Model, error) {
		cancel()
		return model, nil
	}
	factory := func() (audio.Capturer, string, error) {
		factories++
		return newFakeCapturer(0, true), "mic", nil
	}

	runner := NewRunner(RunnerConfig{ModelPath: "/models/vosk", BufferFrames: 8}, loader, factory,
		output.NewConsole(output.ConsoleConfig{Writer: out}), logging.Discard())
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}

	if factories != 0 {
		t.Fatalf("audio device must not be opened after an interrupt, factory called %d times", factories)
	}
	if strings.Contains(out.String(), "Model loaded.") {
		t.Fatalf("readiness line printed after interrupt: %q", out.String())
	}
	if !strings.Contains(out.String(), "[INFO] Stopping ears.") {
		t.Fatalf("expected shutdown notice, got %q", out.String())
	}
	if !model.closed {
		t.Fatalf("expected model released")
	}
}

// countingRecognizer never finalizes and counts the bytes it was fed
type countingRecognizer struct {
	mu    sync.Mutex
	bytes int
}

func (r *countingRecognizer) AcceptWaveform(data []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes += len(data)
	return 0
}

func (r *countingRecognizer) Result() string      { return `{"text":""}` }
func (r *countingRecognizer) FinalResult() string { return `{"text":""}` }
func (r *countingRecognizer) Free()               {}

func writeReplayFile(t *testing.T, samples int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "replay.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer file.Close()

	enc := wav.NewEncoder(file, audio.SampleRate, audio.BitDepth, audio.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: audio.Channels, SampleRate: audio.SampleRate},
		Data:           make([]int, samples),
		SourceBitDepth: audio.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
	return path
}

func TestRunReplayLongerThanBufferKeepsEveryFrame(t *testing.T) {
	const frames = 12
	path := writeReplayFile(t, frames*audio.BlockSize)

	rec := &countingRecognizer{}
	model := &fakeModel{rec: rec}
	out := &syncBuffer{}
	logs := &syncBuffer{}
	log, err := logging.New("debug", "text", logs)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	runner := NewRunner(RunnerConfig{ModelPath: "/models/vosk", BufferFrames: 2},
		func(string) (Model, error) { return model, nil },
		func() (audio.Capturer, string, error) { return audio.NewFileCapturer(path, false), path, nil },
		output.NewConsole(output.ConsoleConfig{Writer: out}), log)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.bytes != frames*audio.BlockBytes {
		t.Fatalf("expected %d bytes decoded, got %d", frames*audio.BlockBytes, rec.bytes)
	}
	if strings.Contains(logs.String(), "oldest frames dropped") {
		t.Fatalf("replay must not drop frames: %q", logs.String())
	}
	if !strings.Contains(out.String(), "[INFO] Input finished.") {
		t.Fatalf("expected end of input notice, got %q", out.String())
	}
}

func TestWatchCaptureLogsWarnings(t *testing.T) {
	capturer := newFakeCapturer(0, false)
	queue := audio.NewFrameQueue(4)
	logs := &syncBuffer{}
	log, _ := logging.New("info", "text", logs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	finished := make(chan struct{})
	go func() {
		watchCapture(ctx, capturer, queue, log)
		close(finished)
	}()

	capturer.errs <- errors.New("input overflow")
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(logs.String(), "input overflow") {
		if time.Now().After(deadline) {
			t.Fatalf("warning not logged: %q", logs.String())
		}
		time.Sleep(5 * time.Millisecond)
	}

	capturer.finish()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not exit on Done")
	}
	if _, err := queue.Pop(context.Background()); !errors.Is(err, audio.ErrQueueClosed) {
		t.Fatalf("expected queue closed, got %v", err)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatalf("nil should exit 0")
	}
	if ExitCode(context.Canceled) != 0 {
		t.Fatalf("cancellation should exit 0")
	}
	if ExitCode(errors.New("boom")) != 1 {
		t.Fatalf("errors should exit 1")
	}
}
