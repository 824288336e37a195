// Package heart implements the pixel store: a flat, thread-shared RGB grid
// with per-cell last-modification timestamps.
//
// Structure of a cell:
//
//	Byte 0-2: RGB color
//	Byte 3-6: big-endian uint32 timestamp
//
// Rows come before columns; x is the fast axis. A per-row mutex bounds the
// critical section of a write to a single row so DeltaSince/FullImage scans
// never block across rows while still serializing writes within a row.
package heart

import (
	"encoding/binary"
	"errors"
	"sync"
)

const cellSize = 7

// ErrIncorrectBackupSize is returned by Restore when the payload's implied
// dimensions do not match the configured width/height.
var ErrIncorrectBackupSize = errors.New("heart: incorrect backup size")

// RGB is an 8-bit color triple.
type RGB struct {
	R, G, B uint8
}

// Heart is the pixel store.
type Heart struct {
	width, height int
	rows          []sync.RWMutex
	data          []byte // height*width*cellSize, row-major
	clock         *Clock
}

// New creates a pixel store for the given dimensions. Both must be positive.
func New(width, height int, clock *Clock) *Heart {
	if width <= 0 || height <= 0 {
		panic("heart: width and height must be positive")
	}
	return &Heart{
		width:  width,
		height: height,
		rows:   make([]sync.RWMutex, height),
		data:   make([]byte, width*height*cellSize),
		clock:  clock,
	}
}

// Width returns the configured canvas width.
func (h *Heart) Width() int { return h.width }

// Height returns the configured canvas height.
func (h *Heart) Height() int { return h.height }

func (h *Heart) cellOffset(x, y int) int {
	return (y*h.width + x) * cellSize
}

// Update stores rgb and the current heartbeat timestamp at (x, y).
// Preconditions: 0 <= x < Width, 0 <= y < Height. Out-of-range coordinates
// are a caller bug and panic, matching the documented write contract;
// callers must bounds-check before calling (canvas.Canvas checks InBounds
// when it applies a queued or immediate write).
func (h *Heart) Update(x, y int, rgb RGB) {
	off := h.cellOffset(x, y)
	h.rows[y].Lock()
	defer h.rows[y].Unlock()
	h.data[off] = rgb.R
	h.data[off+1] = rgb.G
	h.data[off+2] = rgb.B
	binary.BigEndian.PutUint32(h.data[off+3:off+7], h.clock.Now())
}

// Read returns the stored RGB triple at (x, y). The legacy bounds check
// here is inclusive (0 <= x <= Width, 0 <= y <= Height) for reads, unlike
// the exclusive write contract above -- see SPEC_FULL.md §9 for why this
// asymmetry is preserved rather than unified. Coordinates one past the end
// are clamped to the last valid cell to avoid a slice panic.
func (h *Heart) Read(x, y int) RGB {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x >= h.width {
		x = h.width - 1
	}
	if y >= h.height {
		y = h.height - 1
	}
	off := h.cellOffset(x, y)
	h.rows[y].RLock()
	defer h.rows[y].RUnlock()
	return RGB{R: h.data[off], G: h.data[off+1], B: h.data[off+2]}
}

// InBounds reports whether (x, y) satisfies the exclusive write contract.
func (h *Heart) InBounds(x, y int) bool {
	return x >= 0 && x < h.width && y >= 0 && y < h.height
}

// Delta is a single changed cell returned by DeltaSince.
type Delta struct {
	X, Y int
	RGB  RGB
}

// DeltaSince returns every cell whose stored timestamp satisfies
// ts >= since && ts != 0, in unspecified order. Work is bounded by a single
// linear scan of the grid.
func (h *Heart) DeltaSince(since uint32) []Delta {
	var out []Delta
	for y := 0; y < h.height; y++ {
		h.rows[y].RLock()
		rowStart := y * h.width * cellSize
		for x := 0; x < h.width; x++ {
			off := rowStart + x*cellSize
			ts := binary.BigEndian.Uint32(h.data[off+3 : off+7])
			if ts != 0 && ts >= since {
				out = append(out, Delta{
					X: x, Y: y,
					RGB: RGB{R: h.data[off], G: h.data[off+1], B: h.data[off+2]},
				})
			}
		}
		h.rows[y].RUnlock()
	}
	return out
}

// FullImage returns a best-effort snapshot of all RGB bytes, suitable for
// encoding as WEBP/PNG. A concurrent writer may race with the copy; callers
// must not rely on per-cell atomicity across the whole image.
func (h *Heart) FullImage() []byte {
	out := make([]byte, h.width*h.height*3)
	i := 0
	for y := 0; y < h.height; y++ {
		h.rows[y].RLock()
		rowStart := y * h.width * cellSize
		for x := 0; x < h.width; x++ {
			off := rowStart + x*cellSize
			out[i] = h.data[off]
			out[i+1] = h.data[off+1]
			out[i+2] = h.data[off+2]
			i += 3
		}
		h.rows[y].RUnlock()
	}
	return out
}

// Dump binary-serializes the full grid: a raw height*width*7 byte array,
// no header (dimensions are implicit from the store's configuration).
func (h *Heart) Dump() []byte {
	out := make([]byte, len(h.data))
	for y := 0; y < h.height; y++ {
		h.rows[y].RLock()
		rowStart := y * h.width * cellSize
		copy(out[rowStart:rowStart+h.width*cellSize], h.data[rowStart:rowStart+h.width*cellSize])
		h.rows[y].RUnlock()
	}
	return out
}

// Restore replaces the grid contents from a raw dump produced by Dump.
// Fails with ErrIncorrectBackupSize if the payload's length does not match
// this store's configured width*height*7.
func (h *Heart) Restore(data []byte) error {
	want := h.width * h.height * cellSize
	if len(data) != want {
		return ErrIncorrectBackupSize
	}
	for y := 0; y < h.height; y++ {
		h.rows[y].Lock()
		rowStart := y * h.width * cellSize
		copy(h.data[rowStart:rowStart+h.width*cellSize], data[rowStart:rowStart+h.width*cellSize])
		h.rows[y].Unlock()
	}
	return nil
}
