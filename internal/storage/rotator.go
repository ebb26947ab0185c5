package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

const dateLayout = "2006-01-02"

var filenamePattern = regexp.MustCompile(`^snapshots-(\d{4}-\d{2}-\d{2})\.ndjson$`)

// FileName is the daily snapshot log name for t's UTC date.
func FileName(t time.Time) string {
	return fmt.Sprintf("snapshots-%s.ndjson", t.UTC().Format(dateLayout))
}

// Pruner is a secondary store that drops rows older than the retention cutoff.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Rotator struct {
	logDir        string
	retentionDays int
	pruners       []Pruner
	log           *slog.Logger
	now           func() time.Time
	interval      time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
}

func NewRotator(logDir string, retentionDays int, logger *slog.Logger, pruners ...Pruner) *Rotator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rotator{
		logDir:        logDir,
		retentionDays: retentionDays,
		pruners:       pruners,
		log:           logger,
		now:           time.Now,
		interval:      6 * time.Hour,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

func (r *Rotator) Start() {
	go r.run()
}

func (r *Rotator) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Rotator) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Rotate()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Rotate()
		}
	}
}

// Rotate removes daily logs and pruner rows older than the retention window.
// It returns the number of log files removed.
func (r *Rotator) Rotate() int {
	cutoff := r.now().UTC().AddDate(0, 0, -r.retentionDays)
	removed := r.removeFiles(cutoff)

	for _, p := range r.pruners {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		n, err := p.DeleteOlderThan(ctx, cutoff)
		cancel()
		if err != nil {
			r.log.Error("retention cleanup", "err", err)
			continue
		}
		if n > 0 {
			r.log.Info("retention cleanup", "rows", n)
		}
	}
	return removed
}

func (r *Rotator) removeFiles(cutoff time.Time) int {
	entries, err := os.ReadDir(r.logDir)
	if err != nil {
		r.log.Warn("read log dir", "dir", r.logDir, "err", err)
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := filenamePattern.FindStringSubmatch(entry.Name())
		if len(matches) != 2 {
			continue
		}

		fileDate, err := time.Parse(dateLayout, matches[1])
		if err != nil {
			continue
		}

		if fileDate.Before(cutoff) {
			filePath := filepath.Join(r.logDir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				r.log.Warn("remove expired log", "file", filePath, "err", err)
				continue
			}
			removed++
		}
	}
	return removed
}
