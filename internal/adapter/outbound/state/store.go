// Package state persists conversation snapshots to disk so tracked
// conversations survive a restart. One JSON file per conversation,
// atomic writes, flock for cross-process safety.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/conversation"
)

const snapshotExt = ".json"

// SnapshotStore manages the snapshot directory. It provides atomic
// writes (write-tmp-then-rename), file locking (flock for cross-process,
// mutex for in-process), and 0600 file permissions throughout.
type SnapshotStore struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewSnapshotStore opens (creating if needed) the snapshot directory.
func NewSnapshotStore(dir string, logger *slog.Logger) (*SnapshotStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &SnapshotStore{dir: dir, logger: logger}, nil
}

// Save writes one conversation snapshot to disk atomically.
//
// The write sequence is:
//  1. Acquire in-process mutex
//  2. Acquire flock on <dir>/.lock
//  3. Marshal the snapshot as indented JSON
//  4. Write to <file>.tmp with 0600 permissions
//  5. Fsync the temp file
//  6. Rename <file>.tmp -> <file>
//  7. Release flock and mutex
func (s *SnapshotStore) Save(snap *conversation.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("save snapshot: nil snapshot")
	}
	path, err := s.pathFor(snap.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	if err := writeAtomic(path, data); err != nil {
		return err
	}
	s.logger.Debug("snapshot saved", "conversation_id", snap.ID, "path", path)
	return nil
}

// Load reads one conversation snapshot.
// Warns if the file has permissions more open than 0600.
func (s *SnapshotStore) Load(id string) (*conversation.Snapshot, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return nil, err
	}
	return s.loadFile(path)
}

// LoadAll reads every snapshot in the directory. Files that fail to
// parse are skipped with a warning: one corrupt snapshot must not keep
// the rest from restoring at startup.
func (s *SnapshotStore) LoadAll() ([]*conversation.Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	var snaps []*conversation.Snapshot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		snap, err := s.loadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot", "file", e.Name(), "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Remove deletes a conversation's snapshot. Removing a snapshot that
// does not exist is not an error.
func (s *SnapshotStore) Remove(id string) error {
	path, err := s.pathFor(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// Dir returns the configured snapshot directory.
func (s *SnapshotStore) Dir() string {
	return s.dir
}

func (s *SnapshotStore) loadFile(path string) (*conversation.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	// Skip the permission check on Windows where Unix permission bits
	// are not supported.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 { // group or other has access
				s.logger.Warn("snapshot has too-open permissions, should be 0600",
					"path", path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var snap conversation.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}

// pathFor maps a conversation id to its snapshot file, rejecting ids
// that would escape the snapshot directory.
func (s *SnapshotStore) pathFor(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid conversation id %q", id)
	}
	return filepath.Join(s.dir, id+snapshotExt), nil
}

// lock acquires the cross-process directory lock and returns the
// release func.
func (s *SnapshotStore) lock() (func(), error) {
	lockPath := filepath.Join(s.dir, ".lock")
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := flockLock(lockFile.Fd()); err != nil {
		_ = lockFile.Close()
		return nil, fmt.Errorf("acquire file lock: %w", err)
	}
	return func() {
		_ = flockUnlock(lockFile.Fd())
		_ = lockFile.Close()
	}, nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it
// over the target path. On any error the temp file is cleaned up.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to snapshot: %w", err)
	}
	return nil
}
