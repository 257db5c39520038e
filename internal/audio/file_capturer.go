package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// FileCapturer replays a recorded WAV file as if it came from the
// microphone. The file must already be in the capture format.
type FileCapturer struct {
	path     string
	realtime bool
	config   CaptureConfig
	errors   chan error
	done     chan struct{}
	stopChan chan struct{}
	running  bool
	started  bool
	mu       sync.RWMutex
	stopOnce sync.Once
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// NewFileCapturer creates a capturer reading path. With realtime set,
// frames are paced at the rate a microphone would deliver them.
func NewFileCapturer(path string, realtime bool) *FileCapturer {
	config := DefaultConfig()
	return &FileCapturer{
		path:     path,
		realtime: realtime,
		config:   config,
		errors:   make(chan error, config.ErrorBufferSize),
		done:     make(chan struct{}),
		stopChan: make(chan struct{}),
	}
}

// Start opens the file, checks its format and begins replay
func (f *FileCapturer) Start(ctx context.Context, onFrame FrameHandler) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return fmt.Errorf("capturer already started")
	}
	f.started = true
	f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		f.closeDone()
		return &DeviceError{Op: "open input file", Err: err}
	}

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		f.closeDone()
		return &DeviceError{Op: "read input file", Err: fmt.Errorf("%s is not a valid WAV file", f.path)}
	}
	if dec.SampleRate != SampleRate || dec.NumChans != Channels || dec.BitDepth != BitDepth {
		file.Close()
		f.closeDone()
		return &DeviceError{
			Op: "read input file",
			Err: fmt.Errorf("%s is %d Hz, %d ch, %d bit; want %d Hz mono %d bit",
				f.path, dec.SampleRate, dec.NumChans, dec.BitDepth, SampleRate, BitDepth),
		}
	}

	f.mu.Lock()
	f.running = true
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.closeDone()
		defer file.Close()
		f.replay(ctx, dec, onFrame)
	}()

	return nil
}

func (f *FileCapturer) replay(ctx context.Context, dec *wav.Decoder, onFrame FrameHandler) {
	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	buf := &goaudio.IntBuffer{
		Format:         dec.Format(),
		Data:           make([]int, f.config.BlockSize),
		SourceBitDepth: BitDepth,
	}

	var ticker *time.Ticker
	if f.realtime {
		ticker = time.NewTicker(f.config.BlockDuration())
		defer ticker.Stop()
	}

	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			sendWarning(f.errors, fmt.Errorf("read %s: %w", f.path, err))
			return
		}
		if n == 0 {
			return
		}

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			case <-f.stopChan:
				return
			}
		} else {
			select {
			case <-ctx.Done():
				return
			case <-f.stopChan:
				return
			default:
			}
		}

		onFrame(newFrame(encodePCM16(buf.Data[:n])))
	}
}

// Stop ends replay and waits for the replay goroutine. A handler blocked
// in FrameQueue.PushWait must be released first by closing the queue.
// Calls after the first return nil.
func (f *FileCapturer) Stop() error {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.started = true
		f.mu.Unlock()

		close(f.stopChan)
		f.wg.Wait()
		f.closeDone()
	})
	return nil
}

// Errors returns a channel that receives read warnings
func (f *FileCapturer) Errors() <-chan error {
	return f.errors
}

// Done is closed when the file is exhausted or replay was stopped
func (f *FileCapturer) Done() <-chan struct{} {
	return f.done
}

// IsRunning returns true while frames are being replayed
func (f *FileCapturer) IsRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}

// Live is false, even when paced in realtime: replay can wait for the
// decoder instead of losing frames
func (f *FileCapturer) Live() bool { return false }

func (f *FileCapturer) closeDone() {
	f.doneOnce.Do(func() { close(f.done) })
}

// encodePCM16 packs samples as little-endian signed 16-bit PCM
func encodePCM16(samples []int) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}
