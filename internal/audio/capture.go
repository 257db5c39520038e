package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Fixed capture format. The recognizer is built for exactly this stream.
const (
	SampleRate     = 16000 // Hz
	Channels       = 1     // Mono
	BitDepth       = 16    // Signed 16-bit little-endian
	BlockSize      = 8000  // Samples per frame, 0.5s at 16kHz
	BytesPerSample = BitDepth / 8
	BlockBytes     = BlockSize * BytesPerSample * Channels
)

// ErrDevice is matched by every capture device failure
var ErrDevice = errors.New("audio device error")

// DeviceError reports a failed device operation
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDevice) true for any DeviceError
func (e *DeviceError) Is(target error) bool {
	return target == ErrDevice
}

// CaptureConfig holds configuration for audio capture
type CaptureConfig struct {
	// SampleRate is the number of samples per second (Hz)
	SampleRate uint32

	// Channels is the number of audio channels
	Channels uint32

	// BitDepth is the number of bits per sample
	BitDepth uint32

	// BlockSize is the number of samples delivered per frame
	BlockSize uint32

	// ErrorBufferSize is how many runtime warnings may queue before
	// new ones are discarded
	ErrorBufferSize int
}

// DefaultConfig returns the only supported capture configuration
func DefaultConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:      SampleRate,
		Channels:        Channels,
		BitDepth:        BitDepth,
		BlockSize:       BlockSize,
		ErrorBufferSize: 16,
	}
}

// BlockBytes returns the size of one frame in bytes
func (c CaptureConfig) BlockBytes() int {
	return int(c.BlockSize * c.Channels * c.BitDepth / 8)
}

// BlockDuration returns the wall time one frame covers
func (c CaptureConfig) BlockDuration() time.Duration {
	return time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
}

// Frame represents one block of captured audio
type Frame struct {
	Data      []byte    // Raw 16-bit PCM, owned by whoever holds the frame
	Timestamp time.Time // When the block was completed
	Frames    uint32    // Number of samples in Data
}

// FrameHandler receives each captured frame. It runs on the capture
// thread and must not block.
type FrameHandler func(Frame)

// Capturer is the interface for audio capture implementations
type Capturer interface {
	// Start begins audio capture, delivering frames to onFrame
	Start(ctx context.Context, onFrame FrameHandler) error

	// Stop stops capture and releases the device. Safe to call repeatedly.
	Stop() error

	// Errors returns a channel that receives non-fatal capture warnings
	Errors() <-chan error

	// Done is closed once no more frames will be delivered
	Done() <-chan struct{}

	// IsRunning returns true if capture is currently active
	IsRunning() bool

	// Live reports whether frames come from hardware in real time. A source
	// that is not live may be blocked by onFrame until the consumer catches up.
	Live() bool
}

// NewCapturer creates the default input device capturer
func NewCapturer(config CaptureConfig) (Capturer, error) {
	return NewMalgoCapturer(config)
}

// newFrame stamps a block of PCM as a Frame
func newFrame(data []byte) Frame {
	return Frame{
		Data:      data,
		Timestamp: time.Now(),
		Frames:    uint32(len(data) / BytesPerSample),
	}
}

// sendWarning queues err on ch without blocking
func sendWarning(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}
