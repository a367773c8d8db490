// Package store manages the durable animation slots. A slot is only ever
// replaced by a completed rename, so a concurrent reader observes either the
// fully-old or the fully-new bytes, never a mix.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound is returned when a slot has never been written.
var ErrNotFound = errors.New("slot not found")

const (
	currentSlot = "ledmatrix_current.gif"
	lastPayload = "last_payload.bin"
)

// SlotInfo describes a populated slot.
type SlotInfo struct {
	Size    int64
	ModTime time.Time
}

// Store holds the current slot inside a runtime directory plus a
// configurable default slot outside it.
type Store struct {
	runDir      string
	defaultPath string
}

// New creates the runtime directory and returns a Store rooted in it.
func New(runDir, defaultPath string) (*Store, error) {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create runtime dir: %w", err)
	}
	return &Store{runDir: runDir, defaultPath: defaultPath}, nil
}

// CurrentPath returns the canonical path of the current slot.
func (s *Store) CurrentPath() string {
	return filepath.Join(s.runDir, currentSlot)
}

// WriteCurrent atomically replaces the current slot. The raw bytes are also
// mirrored to a debug slot; that mirror is best-effort and never fails the
// call. Validation is the caller's responsibility.
func (s *Store) WriteCurrent(data []byte) error {
	s.MirrorPayload(data)
	return writeAtomic(s.CurrentPath(), data)
}

// MirrorPayload keeps a debug copy of raw upload bytes without touching the
// current slot. Best-effort: used for payloads that failed validation.
func (s *Store) MirrorPayload(data []byte) {
	if err := writeAtomic(filepath.Join(s.runDir, lastPayload), data); err != nil {
		slog.Warn("failed to mirror payload to debug slot", "error", err)
	}
}

// ReadCurrent returns the current slot bytes.
func (s *Store) ReadCurrent() ([]byte, error) {
	return readSlot(s.CurrentPath())
}

// CurrentInfo reports size and modification time of the current slot.
func (s *Store) CurrentInfo() (SlotInfo, error) {
	return statSlot(s.CurrentPath())
}

// HasDefault reports whether a default slot is configured.
func (s *Store) HasDefault() bool {
	return s.defaultPath != ""
}

// WriteDefault atomically replaces the default slot, creating its parent
// directory on demand.
func (s *Store) WriteDefault(data []byte) error {
	if s.defaultPath == "" {
		return errors.New("no default path configured")
	}
	if err := os.MkdirAll(filepath.Dir(s.defaultPath), 0o755); err != nil {
		return fmt.Errorf("failed to create default dir: %w", err)
	}
	return writeAtomic(s.defaultPath, data)
}

// ReadDefault returns the default slot bytes.
func (s *Store) ReadDefault() ([]byte, error) {
	if s.defaultPath == "" {
		return nil, ErrNotFound
	}
	return readSlot(s.defaultPath)
}

// DefaultInfo reports size and modification time of the default slot.
func (s *Store) DefaultInfo() (SlotInfo, error) {
	if s.defaultPath == "" {
		return SlotInfo{}, ErrNotFound
	}
	return statSlot(s.defaultPath)
}

// SeedDefaultIntoCurrent copies the default slot into the current slot when
// current is empty and the default passes validation. A missing, empty or
// invalid default is a logged no-op, never an error: startup must proceed.
func (s *Store) SeedDefaultIntoCurrent(validate func([]byte) error) (bool, error) {
	if _, err := s.CurrentInfo(); err == nil {
		return false, nil // current already populated
	}

	data, err := s.ReadDefault()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			slog.Info("no default animation to seed")
			return false, nil
		}
		slog.Warn("failed to read default slot, skipping seed", "error", err)
		return false, nil
	}
	if len(data) == 0 {
		slog.Warn("default slot is empty, skipping seed", "path", s.defaultPath)
		return false, nil
	}
	if err := validate(data); err != nil {
		slog.Warn("default slot does not decode, skipping seed",
			"path", s.defaultPath,
			"error", err,
		)
		return false, nil
	}

	if err := s.WriteCurrent(data); err != nil {
		return false, fmt.Errorf("failed to seed current slot: %w", err)
	}

	slog.Info("seeded default animation into current slot",
		"bytes", len(data),
		"default", s.defaultPath,
	)
	return true, nil
}

// writeAtomic stages data to a private temp file in the destination
// directory and renames it into place. Each writer stages to its own temp
// file so concurrent writes race only on the rename, where the last one
// wins whole.
func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", filepath.Base(path), err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to stage %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to stage %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to stage %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readSlot(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read slot: %w", err)
	}
	return data, nil
}

func statSlot(path string) (SlotInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SlotInfo{}, ErrNotFound
		}
		return SlotInfo{}, fmt.Errorf("failed to stat slot: %w", err)
	}
	return SlotInfo{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}
