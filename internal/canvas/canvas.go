// Package canvas implements the bounds-checking, alpha-compositing front
// end to the pixel store: a write queue drained by a 30Hz render tick.
// Grounded on original_source/canvas.py's Queue/Pixel shape and on the
// teacher's ticker-driven loop style (server/snapshot_store.go's
// startSnapshotLoop).
package canvas

import (
	"log"
	"sync"
	"time"

	"github.com/framegrace/pixelwell/internal/heart"
)

// write is a single queued pixel mutation.
type write struct {
	x, y    int
	r, g, b uint8
	a       uint8
}

// Canvas owns the write queue and drives the pixel store's only writer.
type Canvas struct {
	store  *heart.Heart
	stats  *heart.Stats
	logger *log.Logger

	mu    sync.Mutex
	queue []write

	tickInterval time.Duration
	quit         chan struct{}
	wg           sync.WaitGroup

	// onDrain, if set, is invoked once per render tick after the queue has
	// been drained (even if empty). The composition root uses it to fire the
	// viewer's dispatcher refresh event, so the canvas never holds a
	// reference to internal/viewer, per spec.md §9's "break cyclic
	// references with the dispatcher" guidance.
	onDrain func()
}

// New creates a canvas over store, bumping stats on every applied write.
// tickInterval is the render tick period (spec.md default: 1/30s).
func New(store *heart.Heart, stats *heart.Stats, tickInterval time.Duration, logger *log.Logger) *Canvas {
	if tickInterval <= 0 {
		tickInterval = time.Second / 30
	}
	return &Canvas{
		store:        store,
		stats:        stats,
		tickInterval: tickInterval,
		logger:       logger,
		quit:         make(chan struct{}),
	}
}

// SetOnDrain installs a callback fired once per render tick, after the
// queue for that tick has drained.
func (c *Canvas) SetOnDrain(fn func()) {
	c.onDrain = fn
}

// Store exposes the underlying pixel store for read operations.
func (c *Canvas) Store() *heart.Heart { return c.store }

// Stats exposes the write-count histogram bumped by applied writes.
func (c *Canvas) Stats() *heart.Stats { return c.stats }

// Width and Height proxy the store's dimensions.
func (c *Canvas) Width() int  { return c.store.Width() }
func (c *Canvas) Height() int { return c.store.Height() }

// Enqueue pushes a pending write; it returns immediately. No bounds or
// blend validation happens here -- both are applied at drain time.
func (c *Canvas) Enqueue(x, y int, r, g, b, a uint8) {
	c.mu.Lock()
	c.queue = append(c.queue, write{x: x, y: y, r: r, g: g, b: b, a: a})
	c.mu.Unlock()
}

// PutNow applies a write immediately, bypassing the queue. Used only by the
// admin bulk-write path (internal/httpapi's /admin/pixel). Applies the same
// bounds/alpha rules as the render tick.
func (c *Canvas) PutNow(x, y int, r, g, b, a uint8) {
	c.apply(write{x: x, y: y, r: r, g: g, b: b, a: a})
}

// apply applies a single write to the store, dropping out-of-bounds and
// fully-transparent writes silently and alpha-blending otherwise.
func (c *Canvas) apply(w write) {
	if !c.store.InBounds(w.x, w.y) {
		return
	}
	if w.a == 0 {
		return
	}
	var rgb heart.RGB
	if w.a == 255 {
		rgb = heart.RGB{R: w.r, G: w.g, B: w.b}
	} else {
		old := c.store.Read(w.x, w.y)
		rgb = blend(old, heart.RGB{R: w.r, G: w.g, B: w.b}, w.a)
	}
	c.store.Update(w.x, w.y, rgb)
	if c.stats != nil {
		c.stats.Bump(rgb)
	}
}

// blend performs source-over compositing: out = (old*(255-a) + new*a) / 255
// per channel, rounded toward zero (integer division).
func blend(old, new_ heart.RGB, a uint8) heart.RGB {
	inv := 255 - uint16(a)
	blendChan := func(o, n uint8) uint8 {
		return uint8((uint16(o)*inv + uint16(n)*uint16(a)) / 255)
	}
	return heart.RGB{
		R: blendChan(old.R, new_.R),
		G: blendChan(old.G, new_.G),
		B: blendChan(old.B, new_.B),
	}
}

// Start launches the render tick goroutine. Stop must be called to release
// it.
func (c *Canvas) Start() {
	c.wg.Add(1)
	go c.renderLoop()
}

// Stop terminates the render tick goroutine and waits for it to exit.
func (c *Canvas) Stop() {
	close(c.quit)
	c.wg.Wait()
}

func (c *Canvas) renderLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.drain()
		case <-c.quit:
			return
		}
	}
}

// drain applies every queued write in insertion order -- the linearization
// order for writes to the same cell, so the last write wins -- then fires
// onDrain exactly once for this tick.
func (c *Canvas) drain() {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, w := range pending {
		c.apply(w)
	}
	if c.onDrain != nil {
		c.onDrain()
	}
}

// Tick applies one drain synchronously, for tests that need a
// deterministic render tick without waiting on the ticker.
func (c *Canvas) Tick() {
	c.drain()
}
