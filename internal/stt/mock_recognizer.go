package stt

import (
	"encoding/json"
	"sync"
)

// ScriptedRecognizer is a Recognizer that replays a fixed script of
// utterances. Each entry is consumed by one AcceptWaveform call: an empty
// Step keeps listening, a Step with Final set ends an utterance with Text.
type ScriptedRecognizer struct {
	mu      sync.Mutex
	steps   []Step
	pos     int
	pending string
	freed   bool
}

// Step is one scripted AcceptWaveform outcome
type Step struct {
	Final bool
	Text  string
}

// NewScriptedRecognizer creates a recognizer that plays steps in order and
// keeps listening once they run out
func NewScriptedRecognizer(steps ...Step) *ScriptedRecognizer {
	return &ScriptedRecognizer{steps: steps}
}

func (s *ScriptedRecognizer) AcceptWaveform(data []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.steps) {
		return 0
	}
	step := s.steps[s.pos]
	s.pos++
	if !step.Final {
		if step.Text != "" {
			s.pending = step.Text
		}
		return 0
	}
	s.pending = step.Text
	return 1
}

func (s *ScriptedRecognizer) Result() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.take()
}

func (s *ScriptedRecognizer) FinalResult() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.take()
}

func (s *ScriptedRecognizer) Free() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freed = true
}

// Freed reports whether Free was called
func (s *ScriptedRecognizer) Freed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freed
}

func (s *ScriptedRecognizer) take() string {
	text := s.pending
	s.pending = ""
	out, _ := json.Marshal(map[string]string{"text": text})
	return string(out)
}
