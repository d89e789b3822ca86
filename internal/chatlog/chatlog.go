// Package chatlog appends a human-readable line per observed message to a
// daily log file named YYYY-MM-DD.log.
package chatlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// NoText is written for events without extractable text.
const NoText = "[media / unknown]"

// Entry is one chat log line.
type Entry struct {
	At         time.Time
	SenderName string
	SenderID   string
	// Action is "sent", "edited" or "deleted".
	Action string
	Text   string
}

// Format renders the entry as "[DD/MM/YY HH:MM] name (id) action a message: text".
func (e Entry) Format() string {
	text := e.Text
	if text == "" {
		text = NoText
	}
	return fmt.Sprintf("[%s] %s (%s) %s a message: %s\n",
		e.At.Format("02/01/06 15:04"), e.SenderName, e.SenderID, e.Action, text)
}

// FileName returns the log file name for t.
func FileName(t time.Time) string {
	return t.Format("2006-01-02") + ".log"
}

// Writer appends entries to the file of the entry's day. The file of the
// current day stays open until the day changes or Close is called.
type Writer struct {
	dir string

	mu   sync.Mutex
	day  string
	file *os.File
}

// New creates a Writer under dir. The directory is created on first write.
func New(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write appends e to its day's file.
func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	name := FileName(e.At)
	if w.file == nil || w.day != name {
		if err := w.open(name); err != nil {
			return err
		}
	}

	if _, err := w.file.WriteString(e.Format()); err != nil {
		return fmt.Errorf("failed to write chat log: %w", err)
	}
	return nil
}

func (w *Writer) open(name string) error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create chat log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open chat log: %w", err)
	}
	w.file = f
	w.day = name
	return nil
}

// Close closes the open file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
