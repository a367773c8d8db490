// Package engine owns the render loop: it loads the current slot, loops its
// frames on the display sink at the decoded cadence, and reloads whenever
// the change signal announces new content. The loop never terminates on
// error; failures back off briefly and retry.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/anim"
	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/sink"
	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/store"
)

// Engine states.
const (
	StateIdle    = "idle"
	StateLoading = "loading"
	StatePlaying = "playing"
	StateBackoff = "error-backoff"
)

// Config bounds the engine's timing and decode limits.
type Config struct {
	Width, Height int
	MaxFrames     int
	// Tick slices a frame's hold time so a new upload is honored within
	// roughly one tick instead of the remaining hold.
	Tick time.Duration
	// IdlePoll is how often an empty current slot is re-checked.
	IdlePoll time.Duration
	// ErrorBackoff is the pause after a failed load, keeping a corrupt slot
	// from spinning the loop hot.
	ErrorBackoff time.Duration
}

// Deps is the engine's explicit working context: no process-wide singletons.
type Deps struct {
	Store  *store.Store
	Sink   sink.Sink
	Signal *store.Signal
}

// Status is a point-in-time snapshot of the playback state.
type Status struct {
	State      string `json:"state"`
	Generation uint64 `json:"generation"`
	Frames     int    `json:"frames"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// Engine loops the current animation on the sink for the process lifetime.
type Engine struct {
	cfg    Config
	store  *store.Store
	sink   sink.Sink
	signal *store.Signal

	stopc chan struct{}

	mu         sync.RWMutex
	state      string
	generation uint64
	frames     int
	stopped    bool
}

// New returns an engine wired to its dependencies, filling timing defaults.
func New(cfg Config, deps Deps) *Engine {
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Millisecond
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = 100 * time.Millisecond
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 250 * time.Millisecond
	}
	return &Engine{
		cfg:    cfg,
		store:  deps.Store,
		sink:   deps.Sink,
		signal: deps.Signal,
		stopc:  make(chan struct{}, 1),
		state:  StateIdle,
	}
}

// Run drives the playback loop until ctx is cancelled. It is the only
// goroutine that mutates playback state.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("playback engine started",
		"width", e.cfg.Width,
		"height", e.cfg.Height,
		"tick", e.cfg.Tick,
	)

	for ctx.Err() == nil {
		if e.isStopped() {
			e.waitForResume(ctx)
			continue
		}

		// Lower the signal before reading the slot: a write landing after
		// the read leaves it raised, so the fresh content is picked up at
		// the next frame boundary instead of waiting for another event.
		e.signal.Drain()

		data, err := e.store.ReadCurrent()
		if errors.Is(err, store.ErrNotFound) {
			e.setState(StateIdle)
			e.idleWait(ctx)
			continue
		}
		if err != nil {
			slog.Error("failed to read current slot", "error", err)
			e.backoff(ctx)
			continue
		}

		e.setState(StateLoading)

		a, err := anim.DecodeAny(data, anim.Options{MaxFrames: e.cfg.MaxFrames})
		if err != nil {
			slog.Error("current slot does not decode",
				"bytes", len(data),
				"error", err,
			)
			e.backoff(ctx)
			continue
		}
		a = anim.Scale(a, e.cfg.Width, e.cfg.Height)

		gen := e.adopt(a)
		slog.Info("animation loaded",
			"generation", gen,
			"frames", a.Len(),
			"bytes", len(data),
		)

		e.setState(StatePlaying)
		e.play(ctx, a)
	}

	slog.Info("playback engine exiting")
}

// Stop halts playback and blanks the panel until the change signal announces
// new content.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	select {
	case e.stopc <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the playback state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		State:      e.state,
		Generation: e.generation,
		Frames:     e.frames,
		Width:      e.cfg.Width,
		Height:     e.cfg.Height,
	}
}

// play loops the animation's frames in order, forever, until interrupted by
// the change signal, a stop, or shutdown.
func (e *Engine) play(ctx context.Context, a *anim.Animation) {
	for {
		for _, fr := range a.Frames {
			if ctx.Err() != nil {
				return
			}
			if e.signal.Raised() {
				return // frame-boundary interruption point
			}
			if err := e.sink.SetFrame(fr.Img); err != nil {
				slog.Warn("sink rejected frame", "error", err)
			}
			if !e.hold(ctx, fr.Duration) {
				return
			}
		}
	}
}

// hold sleeps for the frame's duration in tick-sized slices. Returns false
// when the hold was interrupted and playback must stop.
func (e *Engine) hold(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	timer := time.NewTimer(e.cfg.Tick)
	defer timer.Stop()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := remaining
		if slice > e.cfg.Tick {
			slice = e.cfg.Tick
		}
		timer.Reset(slice)

		select {
		case <-ctx.Done():
			return false
		case <-e.signal.Wait():
			return false
		case <-e.stopc:
			return false
		case <-timer.C:
		}
	}
}

// idleWait blocks until the idle poll elapses or new content is signalled.
func (e *Engine) idleWait(ctx context.Context) {
	timer := time.NewTimer(e.cfg.IdlePoll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-e.signal.Wait():
	case <-timer.C:
	}
}

// backoff pauses after a failed load so a corrupt slot cannot monopolize
// the scheduler; a raised signal cuts the pause short.
func (e *Engine) backoff(ctx context.Context) {
	e.setState(StateBackoff)
	timer := time.NewTimer(e.cfg.ErrorBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-e.signal.Wait():
	case <-timer.C:
	}
	e.setState(StateIdle)
}

// waitForResume blanks the panel and parks until new content arrives.
func (e *Engine) waitForResume(ctx context.Context) {
	if err := e.sink.Clear(); err != nil {
		slog.Warn("failed to clear sink on stop", "error", err)
	}
	e.setState(StateIdle)
	slog.Info("playback stopped, waiting for new content")

	select {
	case <-ctx.Done():
		return
	case <-e.signal.Wait():
	}

	e.mu.Lock()
	e.stopped = false
	e.mu.Unlock()

	// A stop raised while already parked would otherwise interrupt the next
	// playback once.
	select {
	case <-e.stopc:
	default:
	}

	// The signal consumed above authorized the reload; re-raise so the load
	// path sees a consistent level.
	e.signal.Raise()
}

func (e *Engine) adopt(a *anim.Animation) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.frames = a.Len()
	return e.generation
}

func (e *Engine) setState(s string) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) isStopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopped
}
