package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	filePrefix         = "cnas-"
	fileSuffix         = ".log"
	dayLayout          = "2006-01-02"
	defaultMaxFileSize = 100 * 1024 * 1024
)

var numberedFile = regexp.MustCompile(`^cnas-\d{4}-\d{2}-\d{2}_(\d{2})\.log$`)

// RotatingLogger writes to one file per day, starting a numbered file
// whenever the size limit is reached. Files older than the retention are
// removed by the background cleanup.
type RotatingLogger struct {
	dir         string
	retention   time.Duration
	maxFileSize int64
	now         func() time.Time

	mu          sync.Mutex
	currentFile *os.File
	currentDay  string
	currentSeq  int
	currentSize int64

	stop      chan struct{}
	done      chan struct{}
	started   atomic.Bool
	closeOnce sync.Once
}

// NewRotatingLogger creates a rotating logger. maxFileSize <= 0 selects 100MB.
func NewRotatingLogger(dir string, retentionDays int, maxFileSize int64) *RotatingLogger {
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	return &RotatingLogger{
		dir:         dir,
		retention:   time.Duration(retentionDays) * 24 * time.Hour,
		maxFileSize: maxFileSize,
		now:         time.Now,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func fileName(day string, seq int) string {
	if seq == 0 {
		return filePrefix + day + fileSuffix
	}
	return fmt.Sprintf("%s%s_%02d%s", filePrefix, day, seq, fileSuffix)
}

// latestFile returns the highest sequence already on disk for day and its size
func (rl *RotatingLogger) latestFile(day string) (int, int64) {
	seq := 0
	matches, _ := filepath.Glob(filepath.Join(rl.dir, filePrefix+day+"_??"+fileSuffix))
	for _, m := range matches {
		sub := numberedFile.FindStringSubmatch(filepath.Base(m))
		if len(sub) < 2 {
			continue
		}
		if n, err := strconv.Atoi(sub[1]); err == nil && n > seq {
			seq = n
		}
	}

	info, err := os.Stat(filepath.Join(rl.dir, fileName(day, seq)))
	if err != nil {
		return seq, 0
	}
	return seq, info.Size()
}

// open switches to the file of day with sequence seq (caller holds mu)
func (rl *RotatingLogger) open(day string, seq int) error {
	if rl.currentFile != nil {
		_ = rl.currentFile.Close()
		rl.currentFile = nil
	}

	path := filepath.Join(rl.dir, fileName(day, seq))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	var size int64
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}

	rl.currentFile = file
	rl.currentDay = day
	rl.currentSeq = seq
	rl.currentSize = size
	return nil
}

// rotate picks the file to write the next len(p) bytes to (caller holds mu)
func (rl *RotatingLogger) rotate(n int) error {
	day := rl.now().Format(dayLayout)

	if day != rl.currentDay || rl.currentFile == nil {
		seq, size := rl.latestFile(day)
		if size > 0 && size+int64(n) > rl.maxFileSize {
			seq++
		}
		return rl.open(day, seq)
	}

	if rl.currentSize > 0 && rl.currentSize+int64(n) > rl.maxFileSize {
		return rl.open(day, rl.currentSeq+1)
	}
	return nil
}

// Write implements io.Writer
func (rl *RotatingLogger) Write(p []byte) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if err := rl.rotate(len(p)); err != nil {
		return 0, err
	}

	n, err := rl.currentFile.Write(p)
	rl.currentSize += int64(n)
	return n, err
}

// CurrentFile returns the path being written to, empty before the first write
func (rl *RotatingLogger) CurrentFile() string {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.currentFile == nil {
		return ""
	}
	return rl.currentFile.Name()
}

// CleanupOldLogs removes log files last modified before the retention period
func (rl *RotatingLogger) CleanupOldLogs() (int, error) {
	entries, err := os.ReadDir(rl.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	rl.mu.Lock()
	current := ""
	if rl.currentFile != nil {
		current = filepath.Base(rl.currentFile.Name())
	}
	rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.retention)
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == current || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(rl.dir, name)); err == nil {
			deleted++
		}
	}

	return deleted, nil
}

// StartCleanup removes expired files every interval until Close
func (rl *RotatingLogger) StartCleanup(interval time.Duration) {
	if !rl.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(rl.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-rl.stop:
				return
			case <-ticker.C:
				if n, err := rl.CleanupOldLogs(); err != nil {
					fmt.Fprintf(os.Stderr, "log cleanup failed: %v\n", err)
				} else if n > 0 {
					fmt.Fprintf(os.Stderr, "removed %d expired log files\n", n)
				}
			}
		}
	}()
}

// Close stops the cleanup goroutine and closes the current file
func (rl *RotatingLogger) Close() error {
	var err error
	rl.closeOnce.Do(func() {
		close(rl.stop)
		if rl.started.Load() {
			<-rl.done
		}

		rl.mu.Lock()
		defer rl.mu.Unlock()
		if rl.currentFile != nil {
			err = rl.currentFile.Close()
			rl.currentFile = nil
		}
	})
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
