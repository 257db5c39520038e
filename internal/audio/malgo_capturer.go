package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoCapturer implements the Capturer interface using malgo
type MalgoCapturer struct {
	config       CaptureConfig
	device       *malgo.Device
	malgoContext *malgo.AllocatedContext
	blocker      *Blocker
	errors       chan error
	done         chan struct{}
	stopChan     chan struct{}
	running      bool
	started      bool
	mu           sync.RWMutex
	stopOnce     sync.Once
}

// NewMalgoCapturer creates a new malgo-based audio capturer
func NewMalgoCapturer(config CaptureConfig) (*MalgoCapturer, error) {
	if config.SampleRate != SampleRate || config.Channels != Channels || config.BitDepth != BitDepth {
		return nil, &DeviceError{
			Op:  "configure capture",
			Err: fmt.Errorf("unsupported format %d Hz, %d ch, %d bit", config.SampleRate, config.Channels, config.BitDepth),
		}
	}
	if config.BlockSize == 0 {
		config.BlockSize = BlockSize
	}
	if config.ErrorBufferSize <= 0 {
		config.ErrorBufferSize = 16
	}

	return &MalgoCapturer{
		config:   config,
		blocker:  NewBlocker(config.BlockBytes()),
		errors:   make(chan error, config.ErrorBufferSize),
		done:     make(chan struct{}),
		stopChan: make(chan struct{}),
	}, nil
}

// Start opens the default capture device and begins delivering frames
func (m *MalgoCapturer) Start(ctx context.Context, onFrame FrameHandler) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("capturer already started")
	}
	m.started = true
	m.mu.Unlock()

	// Initialize malgo context; backend log lines are device warnings
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		sendWarning(m.errors, fmt.Errorf("audio backend: %s", strings.TrimSpace(message)))
	})
	if err != nil {
		m.finish()
		return &DeviceError{Op: "initialize audio context", Err: err}
	}
	m.malgoContext = malgoCtx

	// Configure device
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16 // 16-bit signed integer
	deviceConfig.Capture.Channels = m.config.Channels
	deviceConfig.SampleRate = m.config.SampleRate
	deviceConfig.PeriodSizeInFrames = m.config.BlockSize

	var callbacks malgo.DeviceCallbacks
	// Data runs on the device thread: copy into the blocker, hand off, return
	callbacks.Data = func(pOutputSample, pInputSamples []byte, framecount uint32) {
		m.blocker.Write(pInputSamples, func(block []byte) {
			onFrame(newFrame(block))
		})
	}
	callbacks.Stop = func() {
		if m.IsRunning() {
			sendWarning(m.errors, errors.New("capture device stopped unexpectedly"))
		}
	}

	device, err := malgo.InitDevice(m.malgoContext.Context, deviceConfig, callbacks)
	if err != nil {
		m.releaseContext()
		m.finish()
		return &DeviceError{Op: "open default input device", Err: err}
	}
	m.device = device

	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	if err := device.Start(); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		device.Uninit()
		m.device = nil
		m.releaseContext()
		m.finish()
		return &DeviceError{Op: "start capture", Err: err}
	}

	// Stop when the caller's context ends
	go func() {
		select {
		case <-ctx.Done():
			m.Stop()
		case <-m.stopChan:
		}
	}()

	return nil
}

// Stop stops audio capture and releases the device.
// Calls after the first return nil.
func (m *MalgoCapturer) Stop() error {
	var stopErr error
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.running = false
		m.started = true
		m.mu.Unlock()

		close(m.stopChan)

		if m.device != nil {
			if err := m.device.Stop(); err != nil {
				stopErr = &DeviceError{Op: "stop capture", Err: err}
			}
			m.device.Uninit()
			m.device = nil
		}

		m.releaseContext()
		m.blocker.Reset()
		m.finish()
	})
	return stopErr
}

// Errors returns a channel that receives capture warnings
func (m *MalgoCapturer) Errors() <-chan error {
	return m.errors
}

// Done is closed once the device is released
func (m *MalgoCapturer) Done() <-chan struct{} {
	return m.done
}

// IsRunning returns true if capture is currently active
func (m *MalgoCapturer) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Live is always true: the device callback must never wait
func (m *MalgoCapturer) Live() bool { return true }

func (m *MalgoCapturer) releaseContext() {
	if m.malgoContext != nil {
		_ = m.malgoContext.Uninit()
		m.malgoContext.Free()
		m.malgoContext = nil
	}
}

func (m *MalgoCapturer) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}
