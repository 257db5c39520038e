// Package vosk binds the stt decoder to the Vosk/Kaldi recognizer
package vosk

import (
	"fmt"
	"sync"

	voskapi "github.com/alphacep/vosk-api/go"

	"github.com/emmett/ears/internal/models"
	"github.com/emmett/ears/internal/stt"
)

var setLogLevel sync.Once

var _ stt.Recognizer = (*voskapi.VoskRecognizer)(nil)

// Model is a loaded Vosk model. It is read-only and may back several decoders.
type Model struct {
	mu     sync.Mutex
	path   string
	config stt.Config
	model  *voskapi.VoskModel
}

// Load loads the model at config.ModelPath into memory.
// Every failure is a *stt.ModelLoadError naming the path.
func Load(config stt.Config) (*Model, error) {
	if err := models.Validate(config.ModelPath); err != nil {
		return nil, &stt.ModelLoadError{Path: config.ModelPath, Err: err}
	}

	// Kaldi is chatty on stderr; errors only
	setLogLevel.Do(func() { voskapi.SetLogLevel(-1) })

	model, err := voskapi.NewModel(config.ModelPath)
	if err != nil {
		return nil, &stt.ModelLoadError{Path: config.ModelPath, Err: err}
	}
	if model == nil {
		return nil, &stt.ModelLoadError{Path: config.ModelPath, Err: fmt.Errorf("model returned nil")}
	}

	return &Model{
		path:   config.ModelPath,
		config: config,
		model:  model,
	}, nil
}

// NewDecoder creates a streaming decoding session bound to sampleRate
func (m *Model) NewDecoder(sampleRate int) (*stt.Decoder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model == nil {
		return nil, fmt.Errorf("model %s already closed", m.path)
	}

	recognizer, err := voskapi.NewRecognizer(m.model, float64(sampleRate))
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer: %w", err)
	}

	// Word results carry the confidence scores
	if m.config.ShowWords {
		recognizer.SetWords(1)
	}

	return stt.NewDecoder(recognizer), nil
}

// Close frees the model. Decoders created from it must be closed first.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model != nil {
		m.model.Free()
		m.model = nil
	}
	return nil
}
