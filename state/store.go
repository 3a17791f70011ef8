// Package state persists the engine's calibration state between runs.
//
// The file holds one fixed-size record: a little-endian uint32 length followed
// by a payload region of Capacity bytes. Only the first length bytes of the
// payload are meaningful; the rest is padding.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Capacity is the largest state blob the engine produces.
const Capacity = 221

const headerSize = 4

var (
	ErrTooLarge = errors.New("state: blob exceeds capacity")
	ErrCorrupt  = errors.New("state: corrupt record")
)

// RecordSize returns the on-disk size of a record for the given capacity.
func RecordSize(capacity int) int {
	return headerSize + capacity
}

// Encode lays out blob as a fixed-size record.
func Encode(blob []byte, capacity int) ([]byte, error) {
	if len(blob) > capacity {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(blob), capacity)
	}
	rec := make([]byte, RecordSize(capacity))
	binary.LittleEndian.PutUint32(rec, uint32(len(blob)))
	copy(rec[headerSize:], blob)
	return rec, nil
}

// Decode extracts the meaningful part of a record, ignoring padding.
func Decode(rec []byte, capacity int) ([]byte, error) {
	if len(rec) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrCorrupt, len(rec), headerSize)
	}
	n := binary.LittleEndian.Uint32(rec)
	if n > uint32(capacity) {
		return nil, fmt.Errorf("%w: length %d exceeds capacity %d", ErrCorrupt, n, capacity)
	}
	if int(n) > len(rec)-headerSize {
		return nil, fmt.Errorf("%w: length %d but only %d payload bytes", ErrCorrupt, n, len(rec)-headerSize)
	}
	out := make([]byte, n)
	copy(out, rec[headerSize:])
	return out, nil
}

// FileStore keeps the record in a single file. It is used from the
// acquisition goroutine only.
type FileStore struct {
	path     string
	capacity int
	logger   *slog.Logger
}

type Opt func(*FileStore)

func WithCapacity(capacity int) Opt {
	return func(s *FileStore) {
		s.capacity = capacity
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(s *FileStore) {
		s.logger = logger
	}
}

func NewFileStore(path string, opts ...Opt) *FileStore {
	s := &FileStore{
		path:     path,
		capacity: Capacity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Capacity() int {
	return s.capacity
}

// Load returns the saved blob. A missing file is the first-run state and
// yields an empty blob without error.
func (s *FileStore) Load() ([]byte, error) {
	rec, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("state file does not exist", "path", s.path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: could not read %s: %w", s.path, err)
	}
	blob, err := Decode(rec, s.capacity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return blob, nil
}

// Save overwrites the file with a new record. The record goes to a temporary
// file first and is renamed into place, so a crash never leaves a torn record.
func (s *FileStore) Save(blob []byte) error {
	rec, err := Encode(blob, s.capacity)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: could not create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("state: could not create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(rec); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("state: could not write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("state: could not sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: could not close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("state: could not replace %s: %w", s.path, err)
	}
	return nil
}

// Clear removes the saved state; the engine will calibrate from scratch.
func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("state: could not remove %s: %w", s.path, err)
	}
	return nil
}
