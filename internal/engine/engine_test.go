package engine

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/store"
)

// recordingSink captures every frame pushed by the engine.
type recordingSink struct {
	mu      sync.Mutex
	frames  []*image.RGBA
	cleared int
}

func (r *recordingSink) SetFrame(img *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := image.NewRGBA(img.Bounds())
	copy(cp.Pix, img.Pix)
	r.frames = append(r.frames, cp)
	return nil
}

func (r *recordingSink) SetBrightness(int) error { return nil }

func (r *recordingSink) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recordingSink) redAt(i int) uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[i].Pix[0]
}

func (r *recordingSink) clearCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleared
}

// solidGIF encodes an 8x8 GIF whose frame i is a solid red value reds[i],
// held delays[i] hundredths of a second.
func solidGIF(t *testing.T, reds []uint8, delays []int) []byte {
	t.Helper()
	g := &gif.GIF{}
	for i, r := range reds {
		pal := color.Palette{color.RGBA{R: r, A: 255}}
		p := image.NewPaletted(image.Rect(0, 0, 8, 8), pal)
		g.Image = append(g.Image, p)
		g.Delay = append(g.Delay, delays[i])
		g.Disposal = append(g.Disposal, gif.DisposalNone)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatalf("EncodeAll failed: %v", err)
	}
	return buf.Bytes()
}

type harness struct {
	store  *store.Store
	signal *store.Signal
	sink   *recordingSink
	engine *Engine
	cancel context.CancelFunc
	done   chan struct{}
}

func startEngine(t *testing.T) *harness {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "run"), "")
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	sig := store.NewSignal()
	rec := &recordingSink{}
	eng := New(Config{
		Width:        8,
		Height:       8,
		Tick:         2 * time.Millisecond,
		IdlePoll:     5 * time.Millisecond,
		ErrorBackoff: 10 * time.Millisecond,
	}, Deps{Store: s, Sink: rec, Signal: sig})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()

	h := &harness{store: s, signal: sig, sink: rec, engine: eng, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("engine did not exit on cancel")
		}
	})
	return h
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEngineIdleUntilContentArrives(t *testing.T) {
	h := startEngine(t)

	time.Sleep(20 * time.Millisecond)
	if got := h.engine.Status().State; got != StateIdle {
		t.Fatalf("expected idle with empty slot, got %s", got)
	}
	if h.sink.frameCount() != 0 {
		t.Fatal("no frames must render while idle")
	}

	// Current slot becomes readable: engine picks it up by polling alone.
	if err := h.store.WriteCurrent(solidGIF(t, []uint8{50}, []int{1})); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "engine to start playing", func() bool {
		return h.engine.Status().State == StatePlaying
	})
	if gen := h.engine.Status().Generation; gen != 1 {
		t.Errorf("expected generation 1, got %d", gen)
	}
}

func TestEngineRendersInOrderAndLoops(t *testing.T) {
	h := startEngine(t)

	// 3 distinguishable frames at 10ms each.
	if err := h.store.WriteCurrent(solidGIF(t, []uint8{10, 20, 30}, []int{1, 1, 1})); err != nil {
		t.Fatal(err)
	}
	h.signal.Raise()

	waitFor(t, 2*time.Second, "two full loops", func() bool {
		return h.sink.frameCount() >= 7
	})

	want := []uint8{10, 20, 30, 10, 20, 30, 10}
	for i, r := range want {
		if got := h.sink.redAt(i); got != r {
			t.Errorf("frame %d: expected red %d, got %d", i, r, got)
		}
	}
	if st := h.engine.Status(); st.Frames != 3 {
		t.Errorf("expected 3 loaded frames, got %d", st.Frames)
	}
}

func TestEngineInterruptsHeldFrameQuickly(t *testing.T) {
	h := startEngine(t)

	// One frame held for 2000ms.
	if err := h.store.WriteCurrent(solidGIF(t, []uint8{10}, []int{200})); err != nil {
		t.Fatal(err)
	}
	h.signal.Raise()
	waitFor(t, time.Second, "first animation", func() bool {
		return h.engine.Status().Generation == 1 && h.sink.frameCount() >= 1
	})

	// New upload arrives mid-hold: the reload must not wait out the 2s.
	start := time.Now()
	if err := h.store.WriteCurrent(solidGIF(t, []uint8{99}, []int{200})); err != nil {
		t.Fatal(err)
	}
	h.signal.Raise()

	waitFor(t, time.Second, "reload after signal", func() bool {
		return h.engine.Status().Generation == 2
	})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("reload took %v, expected well under the 2s hold", elapsed)
	}

	waitFor(t, time.Second, "new frame on sink", func() bool {
		n := h.sink.frameCount()
		return n > 0 && h.sink.redAt(n-1) == 99
	})
}

func TestEngineBackoffThenRecovers(t *testing.T) {
	h := startEngine(t)

	if err := h.store.WriteCurrent([]byte("certainly not a gif")); err != nil {
		t.Fatal(err)
	}
	h.signal.Raise()

	waitFor(t, time.Second, "error backoff", func() bool {
		s := h.engine.Status().State
		return s == StateBackoff || s == StateIdle
	})
	if h.engine.Status().Generation != 0 {
		t.Fatal("corrupt slot must not bump the generation")
	}

	// A valid upload replaces the corrupt slot; the engine must recover on
	// its own.
	if err := h.store.WriteCurrent(solidGIF(t, []uint8{42}, []int{1})); err != nil {
		t.Fatal(err)
	}
	h.signal.Raise()

	waitFor(t, 2*time.Second, "recovery to playing", func() bool {
		return h.engine.Status().State == StatePlaying
	})
}

func TestEngineStopBlanksAndResumesOnUpload(t *testing.T) {
	h := startEngine(t)

	if err := h.store.WriteCurrent(solidGIF(t, []uint8{10}, []int{1})); err != nil {
		t.Fatal(err)
	}
	h.signal.Raise()
	waitFor(t, time.Second, "playing", func() bool {
		return h.engine.Status().State == StatePlaying
	})

	h.engine.Stop()
	waitFor(t, time.Second, "sink cleared", func() bool {
		return h.sink.clearCount() >= 1
	})

	// Parked: no new frames while stopped.
	n := h.sink.frameCount()
	time.Sleep(30 * time.Millisecond)
	if h.sink.frameCount() > n+1 {
		t.Fatal("engine kept rendering after Stop")
	}

	// Fresh content resumes playback.
	if err := h.store.WriteCurrent(solidGIF(t, []uint8{77}, []int{1})); err != nil {
		t.Fatal(err)
	}
	h.signal.Raise()
	waitFor(t, 2*time.Second, "resume", func() bool {
		nn := h.sink.frameCount()
		return nn > 0 && h.sink.redAt(nn-1) == 77
	})
}

func TestEngineConvergesToLatestUpload(t *testing.T) {
	h := startEngine(t)

	// Rapid write+raise bursts race the reload path. Whatever interleaving
	// happens, a raise landing after the slot was read must survive until
	// the next frame boundary, so the last write always ends up on the sink.
	for i := 1; i <= 20; i++ {
		if err := h.store.WriteCurrent(solidGIF(t, []uint8{uint8(i)}, []int{1})); err != nil {
			t.Fatal(err)
		}
		h.signal.Raise()
	}

	waitFor(t, 2*time.Second, "final upload on sink", func() bool {
		n := h.sink.frameCount()
		return n > 0 && h.sink.redAt(n-1) == 20
	})
}

func TestEngineScalesToPanel(t *testing.T) {
	h := startEngine(t)

	// 2x2 source; panel is 8x8.
	g := &gif.GIF{}
	pal := color.Palette{color.RGBA{R: 200, A: 255}}
	p := image.NewPaletted(image.Rect(0, 0, 2, 2), pal)
	g.Image = append(g.Image, p)
	g.Delay = append(g.Delay, 1)
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatal(err)
	}
	if err := h.store.WriteCurrent(buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	h.signal.Raise()

	waitFor(t, time.Second, "scaled frame", func() bool {
		return h.sink.frameCount() >= 1
	})
	h.sink.mu.Lock()
	b := h.sink.frames[0].Bounds()
	h.sink.mu.Unlock()
	if b.Dx() != 8 || b.Dy() != 8 {
		t.Fatalf("expected 8x8 frame on sink, got %dx%d", b.Dx(), b.Dy())
	}
}
