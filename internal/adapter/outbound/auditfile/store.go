// Package auditfile persists audit events as JSON Lines with daily
// rotation, a size cap per file, retention cleanup, and an in-memory
// ring of recent events for the health endpoint.
package auditfile

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/audit"
)

// filePattern matches event log filenames: audit-YYYY-MM-DD.jsonl or
// audit-YYYY-MM-DD-N.jsonl.
var filePattern = regexp.MustCompile(`^audit-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.jsonl$`)

// Config tunes the file store.
type Config struct {
	// Dir is where event files live.
	Dir string
	// RetentionDays is how long rotated files are kept (default 7).
	RetentionDays int
	// MaxFileSizeMB caps one file before suffix rotation (default 100).
	MaxFileSizeMB int
	// RecentSize is the in-memory ring capacity (default 1000).
	RecentSize int
}

// Store implements audit.Store over rotating JSONL files.
type Store struct {
	mu        sync.Mutex
	dir       string
	maxSize   int64
	retention int
	file      *os.File
	date      string
	size      int64
	suffix    int
	recent    *ring
	logger    *slog.Logger
	cancel    context.CancelFunc
	closed    bool
}

// NewStore opens today's event file, runs retention cleanup, warms the
// recent ring from the newest file on disk, and starts the hourly
// cleanup loop.
func NewStore(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}
	if cfg.RecentSize <= 0 {
		cfg.RecentSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		dir:       cfg.Dir,
		maxSize:   int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		retention: cfg.RetentionDays,
		recent:    newRing(cfg.RecentSize),
		logger:    logger,
		cancel:    cancel,
	}

	today := time.Now().UTC().Format("2006-01-02")
	if err := s.openForDate(today); err != nil {
		cancel()
		return nil, fmt.Errorf("open audit file: %w", err)
	}

	s.cleanup()
	s.warmRecent()
	go s.cleanupLoop(ctx)

	return s, nil
}

// Append writes events as JSON lines, rotating by date and size.
func (s *Store) Append(_ context.Context, events ...audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		date := e.Timestamp.UTC().Format("2006-01-02")
		if date != s.date {
			if err := s.rotateDateLocked(date); err != nil {
				return fmt.Errorf("date rotation: %w", err)
			}
		}
		if s.size >= s.maxSize {
			if err := s.rotateSizeLocked(); err != nil {
				return fmt.Errorf("size rotation: %w", err)
			}
		}

		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal audit event: %w", err)
		}
		n, err := s.file.Write(append(data, '\n'))
		if err != nil {
			return fmt.Errorf("write audit event: %w", err)
		}
		s.size += int64(n)
		s.recent.add(e)
	}
	return nil
}

// Flush syncs the current file.
func (s *Store) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return s.file.Sync()
	}
	return nil
}

// Close stops the cleanup loop and closes the current file. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	if s.file != nil {
		_ = s.file.Sync()
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// Recent returns the last n events, newest first.
func (s *Store) Recent(n int) []audit.Event {
	return s.recent.last(n)
}

type fileInfo struct {
	name   string
	date   string
	suffix int
}

func parseFilename(name string) (fileInfo, bool) {
	m := filePattern.FindStringSubmatch(name)
	if m == nil {
		return fileInfo{}, false
	}
	info := fileInfo{name: name, date: m[1]}
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return fileInfo{}, false
		}
		info.suffix = n
	}
	return info, true
}

func sortFiles(files []fileInfo) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].date != files[j].date {
			return files[i].date < files[j].date
		}
		return files[i].suffix < files[j].suffix
	})
}

func (s *Store) filename(date string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("audit-%s.jsonl", date)
	}
	return fmt.Sprintf("audit-%s-%d.jsonl", date, suffix)
}

func (s *Store) open(date string, suffix int) (*os.File, int64, error) {
	path := filepath.Join(s.dir, s.filename(date, suffix))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return f, info.Size(), nil
}

// openForDate resumes the highest existing suffix for the date so a
// restart appends rather than overwrites.
func (s *Store) openForDate(date string) error {
	suffix := 0
	if entries, err := os.ReadDir(s.dir); err == nil {
		for _, e := range entries {
			info, ok := parseFilename(e.Name())
			if ok && info.date == date && info.suffix > suffix {
				suffix = info.suffix
			}
		}
	}

	f, size, err := s.open(date, suffix)
	if err != nil {
		return err
	}
	s.file = f
	s.date = date
	s.size = size
	s.suffix = suffix
	return nil
}

func (s *Store) rotateDateLocked(date string) error {
	if s.file != nil {
		_ = s.file.Sync()
		_ = s.file.Close()
		s.file = nil
	}
	s.suffix = 0
	s.date = date

	f, size, err := s.open(date, 0)
	if err != nil {
		return err
	}
	s.file = f
	s.size = size
	return nil
}

func (s *Store) rotateSizeLocked() error {
	if s.file != nil {
		_ = s.file.Sync()
		_ = s.file.Close()
		s.file = nil
	}
	s.suffix++

	f, size, err := s.open(s.date, s.suffix)
	if err != nil {
		return err
	}
	s.file = f
	s.size = size
	return nil
}

// cleanup deletes files older than the retention window.
func (s *Store) cleanup() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("audit cleanup: read directory", "dir", s.dir, "error", err)
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retention)
	deleted := 0
	for _, e := range entries {
		info, ok := parseFilename(e.Name())
		if !ok {
			continue
		}
		fileDate, err := time.Parse("2006-01-02", info.date)
		if err != nil {
			continue
		}
		if fileDate.Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				s.logger.Error("audit cleanup: delete", "file", e.Name(), "error", err)
			} else {
				deleted++
			}
		}
	}
	if deleted > 0 {
		s.logger.Info("audit retention cleanup", "deleted", deleted)
	}
}

func (s *Store) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// warmRecent fills the ring from the newest non-empty file on disk.
func (s *Store) warmRecent() {
	newest := s.newestFile()
	if newest == "" {
		return
	}

	f, err := os.Open(filepath.Join(s.dir, newest))
	if err != nil {
		s.logger.Error("audit ring: open", "file", newest, "error", err)
		return
	}
	defer func() { _ = f.Close() }()

	var events []audit.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 256*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e audit.Event
		if err := json.Unmarshal(line, &e); err != nil {
			s.logger.Warn("audit ring: skipping malformed line", "file", newest, "error", err)
			continue
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		s.logger.Error("audit ring: read", "file", newest, "error", err)
	}

	start := 0
	if len(events) > s.recent.size {
		start = len(events) - s.recent.size
	}
	for _, e := range events[start:] {
		s.recent.add(e)
	}
}

func (s *Store) newestFile() string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return ""
	}
	var files []fileInfo
	for _, e := range entries {
		info, ok := parseFilename(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil || fi.Size() == 0 {
			continue
		}
		files = append(files, info)
	}
	if len(files) == 0 {
		return ""
	}
	sortFiles(files)
	return files[len(files)-1].name
}

// Compile-time interface verification.
var _ audit.Store = (*Store)(nil)
