// Package core wires the store, the playback engine and the display sink
// together and exposes the operations both control planes share.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/anim"
	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/config"
	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/engine"
	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/sink"
	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/store"
)

// Upload pipeline errors. Both control planes discriminate on these to pick
// their transport-specific failure shape.
var (
	ErrEmptyUpload    = errors.New("empty upload")
	ErrUploadTooLarge = errors.New("upload exceeds the configured size limit")
	ErrBadBrightness  = errors.New("brightness must be in 1..100")
	ErrStorage        = errors.New("slot storage failed")
)

// UploadResult reports what a successful upload committed.
type UploadResult struct {
	Bytes  int
	Frames int
}

// Service owns the engine's working set and serves both control planes.
type Service struct {
	cfg    *config.Config
	store  *store.Store
	signal *store.Signal
	sink   sink.Sink
	engine *engine.Engine

	started time.Time

	mu        sync.Mutex
	wg        sync.WaitGroup
	isRunning bool
}

// New builds the service: sink factory, store, change signal, engine.
func New(cfg *config.Config) (*Service, error) {
	snk, err := sink.New(cfg.Display, cfg.Matrix.Cols, cfg.Matrix.Rows)
	if err != nil {
		return nil, fmt.Errorf("failed to create display sink: %w", err)
	}

	st, err := store.New(cfg.Storage.RuntimeDir, cfg.Storage.DefaultPath)
	if err != nil {
		snk.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	sig := store.NewSignal()
	eng := engine.New(engine.Config{
		Width:     cfg.Matrix.Cols,
		Height:    cfg.Matrix.Rows,
		MaxFrames: cfg.Limits.MaxFrames,
	}, engine.Deps{Store: st, Sink: snk, Signal: sig})

	return &Service{
		cfg:    cfg,
		store:  st,
		signal: sig,
		sink:   snk,
		engine: eng,
	}, nil
}

// Run seeds the current slot, applies the startup brightness and drives the
// playback engine until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.isRunning = true
	s.started = time.Now()
	s.mu.Unlock()

	if err := s.sink.SetBrightness(s.cfg.Matrix.Brightness); err != nil {
		slog.Warn("failed to apply startup brightness", "error", err)
	}

	s.seedCurrent()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.engine.Run(ctx)
	}()

	slog.Info("ledmatrix service running",
		"instance_id", s.cfg.InstanceID,
		"panel", fmt.Sprintf("%dx%d", s.cfg.Matrix.Cols, s.cfg.Matrix.Rows),
	)

	<-ctx.Done()
	return nil
}

// Shutdown waits for the engine goroutine and releases the sink.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown timed out waiting for engine")
	}

	if err := s.sink.Close(); err != nil {
		slog.Error("failed to close sink", "error", err)
	}

	s.mu.Lock()
	uptime := time.Since(s.started)
	s.isRunning = false
	s.mu.Unlock()

	slog.Info("ledmatrix service shutdown complete", "uptime", uptime)
	return nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout.
func (s *Service) ShutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeoutS > 0 {
		return time.Duration(s.cfg.ShutdownTimeoutS) * time.Second
	}
	return 5 * time.Second
}

// seedCurrent populates the current slot at startup: from the default slot
// when possible, otherwise from a generated splash when enabled. Failures
// are logged, never fatal.
func (s *Service) seedCurrent() {
	seeded, err := s.store.SeedDefaultIntoCurrent(s.validate)
	if err != nil {
		slog.Error("failed to seed default animation", "error", err)
	}
	if seeded {
		s.signal.Raise()
		return
	}

	if !s.cfg.Storage.BootSplash {
		return
	}
	if _, err := s.store.CurrentInfo(); err == nil {
		return // already populated
	}

	data, err := anim.EncodeGIF(anim.Splash(s.cfg.Matrix.Cols, s.cfg.Matrix.Rows))
	if err != nil {
		slog.Warn("failed to encode boot splash", "error", err)
		return
	}
	if err := s.store.WriteCurrent(data); err != nil {
		slog.Warn("failed to write boot splash", "error", err)
		return
	}
	s.signal.Raise()
	slog.Info("seeded boot splash into current slot", "bytes", len(data))
}

func (s *Service) validate(data []byte) error {
	_, err := anim.DecodeAny(data, anim.Options{MaxFrames: s.cfg.Limits.MaxFrames})
	return err
}

// Upload is the shared upload pipeline: reject empty and oversized payloads,
// mirror the raw bytes for debugging, validate, and only then commit the
// current slot and raise the change signal. A payload that fails validation
// leaves the previously committed slot untouched.
func (s *Service) Upload(data []byte, setDefault bool) (UploadResult, error) {
	if len(data) == 0 {
		return UploadResult{}, ErrEmptyUpload
	}
	if max := s.cfg.Limits.MaxUploadBytes; max > 0 && len(data) > max {
		return UploadResult{}, fmt.Errorf("%w: %d > %d bytes", ErrUploadTooLarge, len(data), max)
	}

	a, err := anim.DecodeAny(data, anim.Options{MaxFrames: s.cfg.Limits.MaxFrames})
	if err != nil {
		// Keep the rejected payload around for debugging without touching
		// the current slot.
		s.store.MirrorPayload(data)
		return UploadResult{}, err
	}

	if err := s.store.WriteCurrent(data); err != nil {
		return UploadResult{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if setDefault {
		if err := s.store.WriteDefault(data); err != nil {
			slog.Error("failed to stage upload into default slot", "error", err)
		}
	}
	s.signal.Raise()

	slog.Info("animation uploaded",
		"bytes", len(data),
		"frames", a.Len(),
		"set_default", setDefault,
	)
	return UploadResult{Bytes: len(data), Frames: a.Len()}, nil
}

// UploadDefault validates a payload and commits it to the default slot only.
func (s *Service) UploadDefault(data []byte) (UploadResult, error) {
	if len(data) == 0 {
		return UploadResult{}, ErrEmptyUpload
	}
	if max := s.cfg.Limits.MaxUploadBytes; max > 0 && len(data) > max {
		return UploadResult{}, fmt.Errorf("%w: %d > %d bytes", ErrUploadTooLarge, len(data), max)
	}
	a, err := anim.DecodeAny(data, anim.Options{MaxFrames: s.cfg.Limits.MaxFrames})
	if err != nil {
		return UploadResult{}, err
	}
	if err := s.store.WriteDefault(data); err != nil {
		return UploadResult{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return UploadResult{Bytes: len(data), Frames: a.Len()}, nil
}

// SaveCurrentAsDefault copies the current slot into the default slot.
func (s *Service) SaveCurrentAsDefault() (int, error) {
	data, err := s.store.ReadCurrent()
	if err != nil {
		return 0, err
	}
	if err := s.store.WriteDefault(data); err != nil {
		return 0, err
	}
	slog.Info("saved current animation as default", "bytes", len(data))
	return len(data), nil
}

// LoadDefault replaces the current slot with the default slot's content and
// signals the engine.
func (s *Service) LoadDefault() (UploadResult, error) {
	data, err := s.store.ReadDefault()
	if err != nil {
		return UploadResult{}, err
	}
	a, err := anim.DecodeAny(data, anim.Options{MaxFrames: s.cfg.Limits.MaxFrames})
	if err != nil {
		return UploadResult{}, err
	}
	if err := s.store.WriteCurrent(data); err != nil {
		return UploadResult{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.signal.Raise()
	return UploadResult{Bytes: len(data), Frames: a.Len()}, nil
}

// CurrentGIF returns the current slot bytes and their modification time.
func (s *Service) CurrentGIF() ([]byte, time.Time, error) {
	data, err := s.store.ReadCurrent()
	if err != nil {
		return nil, time.Time{}, err
	}
	info, err := s.store.CurrentInfo()
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, info.ModTime, nil
}

// SetBrightness validates the range and forwards to the sink.
func (s *Service) SetBrightness(v int) error {
	if v < 1 || v > 100 {
		return fmt.Errorf("%w: got %d", ErrBadBrightness, v)
	}
	return s.sink.SetBrightness(v)
}

// Clear blanks the panel. Playback continues; the next frame repaints it.
func (s *Service) Clear() error {
	return s.sink.Clear()
}

// StopPlayback parks the engine until new content arrives.
func (s *Service) StopPlayback() {
	s.engine.Stop()
}

// Status aggregates slot state, engine state and effective limits.
func (s *Service) Status() StatusReport {
	rep := StatusReport{
		InstanceID: s.cfg.InstanceID,
		Engine:     s.engine.Status(),
		Limits: LimitsStatus{
			MaxUploadBytes: s.cfg.Limits.MaxUploadBytes,
			MaxFrames:      s.cfg.Limits.MaxFrames,
		},
	}

	s.mu.Lock()
	if s.isRunning {
		rep.UptimeSeconds = int64(time.Since(s.started).Seconds())
	}
	s.mu.Unlock()

	if info, err := s.store.CurrentInfo(); err == nil {
		rep.Current = &SlotStatus{Present: true, Size: info.Size, ModTime: info.ModTime}
	} else {
		rep.Current = &SlotStatus{}
	}
	if s.store.HasDefault() {
		if info, err := s.store.DefaultInfo(); err == nil {
			rep.Default = &SlotStatus{Present: true, Size: info.Size, ModTime: info.ModTime}
		} else {
			rep.Default = &SlotStatus{}
		}
	}

	return rep
}

// StatusReport is the /status payload.
type StatusReport struct {
	InstanceID    string        `json:"instance_id"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Engine        engine.Status `json:"engine"`
	Current       *SlotStatus   `json:"current"`
	Default       *SlotStatus   `json:"default,omitempty"`
	Limits        LimitsStatus  `json:"limits"`
}

// SlotStatus describes one durable slot.
type SlotStatus struct {
	Present bool      `json:"present"`
	Size    int64     `json:"size,omitempty"`
	ModTime time.Time `json:"mtime,omitempty"`
}

// LimitsStatus echoes the effective upload limits.
type LimitsStatus struct {
	MaxUploadBytes int `json:"max_upload_bytes"`
	MaxFrames      int `json:"max_frames"`
}
