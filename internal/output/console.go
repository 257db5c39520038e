package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// flusher is satisfied by buffered writers such as *bufio.Writer.
// *os.File writes go straight to the descriptor and need no flush.
type flusher interface {
	Flush() error
}

// Console writes recognized utterances and status lines to the output
// stream consumed by the parent process
type Console struct {
	mu     sync.Mutex
	writer io.Writer
	log    *slog.Logger
}

// ConsoleConfig configures console output behavior
type ConsoleConfig struct {
	// Writer is the output destination (default: os.Stdout)
	Writer io.Writer

	// Log receives status lines that could not be written (default: slog.Default())
	Log *slog.Logger
}

// NewConsole creates a new console output handler
func NewConsole(config ConsoleConfig) *Console {
	writer := config.Writer
	if writer == nil {
		writer = os.Stdout
	}

	log := config.Log
	if log == nil {
		log = slog.Default()
	}

	return &Console{writer: writer, log: log}
}

// DefaultConsole writes to stdout
func DefaultConsole() *Console {
	return NewConsole(ConsoleConfig{Writer: os.Stdout})
}

// Recognized emits one finalized utterance as a RECOGNIZED: line and
// flushes it. It reports whether a line was written; text that is empty
// after sanitising is dropped.
func (c *Console) Recognized(text string) (bool, error) {
	line, ok := FormatLine(text)
	if !ok {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeLine(line); err != nil {
		return false, fmt.Errorf("failed to emit result: %w", err)
	}
	return true, nil
}

// Info writes an informational status line
func (c *Console) Info(msg string) {
	c.status("[INFO] ", msg)
}

// Error writes an error status line. It goes to the same stream as results
// so the parent process sees why ears exited.
func (c *Console) Error(msg string) {
	c.status("[ERROR] ", msg)
}

func (c *Console) status(prefix, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// status text never spans lines or starts like a result
	line := prefix + strings.TrimSpace(lineBreaks.Replace(msg))
	if err := c.writeLine(line); err != nil {
		c.log.Error("failed to write status line",
			slog.String("line", line),
			slog.Any("error", err))
	}
}

func (c *Console) writeLine(line string) error {
	if _, err := io.WriteString(c.writer, line+"\n"); err != nil {
		return err
	}
	if f, ok := c.writer.(flusher); ok {
		return f.Flush()
	}
	return nil
}
