package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kstat-sampler/internal/metrics"
	"kstat-sampler/internal/storage"
)

// Logger appends one JSON line per cycle to a daily file in logDir.
type Logger struct {
	logDir string
	now    func() time.Time
	mu     sync.Mutex
	file   *os.File
	date   string
}

type LogEntry struct {
	Timestamp string            `json:"timestamp"`
	Type      string            `json:"type"`
	Host      string            `json:"host"`
	Error     string            `json:"error,omitempty"`
	Snapshot  *metrics.Snapshot `json:"snapshot,omitempty"`
}

func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	logger := &Logger{logDir: logDir, now: time.Now}
	if err := logger.rotateIfNeeded(); err != nil {
		return nil, err
	}

	return logger, nil
}

func (l *Logger) LogSnapshot(snap metrics.Snapshot) error {
	return l.log(LogEntry{
		Timestamp: snap.Timestamp.UTC().Format(time.RFC3339),
		Type:      "snapshot",
		Host:      snap.Host,
		Snapshot:  &snap,
	})
}

// LogFailure records a cycle that produced no snapshot.
func (l *Logger) LogFailure(host string, at time.Time, cause error) error {
	return l.log(LogEntry{
		Timestamp: at.UTC().Format(time.RFC3339),
		Type:      "failure",
		Host:      host,
		Error:     cause.Error(),
	})
}

func (l *Logger) log(entry LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeeded(); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}

	return nil
}

func (l *Logger) rotateIfNeeded() error {
	now := l.now().UTC()
	currentDate := now.Format("2006-01-02")

	if l.file != nil && l.date == currentDate {
		return nil
	}

	if l.file != nil {
		l.file.Close()
	}

	filename := filepath.Join(l.logDir, storage.FileName(now))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.file = file
	l.date = currentDate
	return nil
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
