// Package storage keeps an append-only JSONL journal of finished jobs,
// organised in one directory per UTC day.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	journalFile       = "jobs.jsonl"
	DefaultBufferSize = 64
	DefaultMaxSizeMB  = 25
	closeDrainTimeout = 5 * time.Second
)

var (
	ErrClosed     = errors.New("storage: journal is closed")
	ErrBufferFull = errors.New("storage: journal buffer full")
)

// Journal writes records asynchronously. Records queued before Close are
// flushed unless the drain times out.
type Journal struct {
	baseDir   string
	maxSizeMB int
	now       func() time.Time

	writeCh chan any
	done    chan struct{}
	wg      sync.WaitGroup

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
	closeOnce   sync.Once
}

// NewJournal starts a journal under baseDir.
func NewJournal(baseDir string, bufferSize, maxSizeMB int) *Journal {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSizeMB
	}
	j := &Journal{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		now:       func() time.Time { return time.Now().UTC() },
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j
}

// Append queues a record. It never blocks: a full buffer drops the record.
func (j *Journal) Append(record any) error {
	select {
	case <-j.done:
		return ErrClosed
	default:
	}
	select {
	case j.writeCh <- record:
		return nil
	default:
		slog.Warn("journal buffer full, dropping record")
		return ErrBufferFull
	}
}

// Close stops the writer and flushes pending records.
func (j *Journal) Close() error {
	var err error
	j.closeOnce.Do(func() {
		close(j.done)
		j.wg.Wait()

		timeout := time.After(closeDrainTimeout)
	drain:
		for {
			select {
			case record := <-j.writeCh:
				j.writeRecord(record)
			case <-timeout:
				slog.Warn("journal close timed out, records may be lost")
				break drain
			default:
				break drain
			}
		}

		j.mu.Lock()
		defer j.mu.Unlock()
		if j.logger != nil {
			err = j.logger.Close()
		}
	})
	return err
}

// Path returns the journal file for a UTC date (YYYY-MM-DD).
func (j *Journal) Path(date string) string {
	return filepath.Join(j.baseDir, date, journalFile)
}

// ReadDay decodes every record written on a UTC date.
func ReadDay[T any](j *Journal, date string) ([]T, error) {
	f, err := os.Open(j.Path(date))
	if err != nil {
		return nil, fmt.Errorf("storage: open journal: %w", err)
	}
	defer f.Close()

	var out []T
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var rec T
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return out, fmt.Errorf("storage: decode journal line: %w", err)
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for {
		select {
		case record := <-j.writeCh:
			j.writeRecord(record)
		case <-j.done:
			return
		}
	}
}

func (j *Journal) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("journal record encode failed", "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	date := j.now().Format("2006-01-02")
	if date != j.currentDate || j.logger == nil {
		if err := j.rotateForDate(date); err != nil {
			slog.Error("journal rotate failed", "error", err, "date", date)
			return
		}
	}
	if _, err := j.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "error", err)
	}
}

func (j *Journal) rotateForDate(date string) error {
	if j.logger != nil {
		j.logger.Close()
	}
	dir := filepath.Join(j.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	j.logger = &lumberjack.Logger{
		Filename:   filepath.Join(dir, journalFile),
		MaxSize:    j.maxSizeMB,
		MaxBackups: 30,
		MaxAge:     90,
	}
	j.currentDate = date
	slog.Info("journal opened", "file", j.logger.Filename)
	return nil
}
