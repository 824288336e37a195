// Package viewer implements the local, process-attached canvas viewer
// described in spec.md §1/§2 row 10. Grounded on
// texel/driver_tcell.go's tcell.Screen wrapping and texel/desktop.go's
// event-channel Run loop, generalized from a pane-tree renderer to a
// half-block pixel-grid renderer.
//
// The viewer reads the canvas directly, but the canvas never holds a
// reference to the viewer: the viewer registers a dispatcher handler under
// "VIEWER-REFRESH" and the composition root wires Canvas.SetOnDrain to fire
// that event once per render tick, per spec.md §9's "break ad-hoc cyclic
// references with the dispatcher" guidance.
package viewer

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/framegrace/pixelwell/internal/canvas"
	"github.com/framegrace/pixelwell/internal/clients"
	"github.com/framegrace/pixelwell/internal/dispatcher"
)

// RefreshEvent is the dispatcher event name the render tick fires once per
// drain.
const RefreshEvent = "VIEWER-REFRESH"

// half is the block glyph used to pack two canvas rows into one terminal
// row: foreground paints the top pixel, background paints the bottom one.
const half = '▀'

// Viewer renders the canvas to a terminal via tcell, with an optional
// operator statsbar along the right edge.
type Viewer struct {
	screen   tcell.Screen
	cv       *canvas.Canvas
	registry *clients.Registry

	statsbarEnabled bool
	statsbarWidth   int

	refresh chan struct{}
}

// New wraps screen around cv. registry may be nil if the statsbar is
// disabled.
func New(screen tcell.Screen, cv *canvas.Canvas, registry *clients.Registry, statsbarEnabled bool, statsbarWidth int) *Viewer {
	return &Viewer{
		screen:          screen,
		cv:              cv,
		registry:        registry,
		statsbarEnabled: statsbarEnabled,
		statsbarWidth:   statsbarWidth,
		refresh:         make(chan struct{}, 1),
	}
}

// RegisterRefreshHandler installs the dispatcher handler that requests a
// repaint. A full handler (rather than a direct callback) keeps the viewer
// decoupled from canvas internals, matching every other frontend's pattern
// of talking to the canvas only through the dispatcher or its own facade
// methods.
func (v *Viewer) RegisterRefreshHandler(d *dispatcher.Dispatcher) {
	d.Register(RefreshEvent, func(session dispatcher.Replier, args ...string) bool {
		v.requestRefresh()
		return true
	})
}

func (v *Viewer) requestRefresh() {
	select {
	case v.refresh <- struct{}{}:
	default:
		// a repaint is already pending; coalesce
	}
}

// Run drives the viewer's event loop until stop is closed or the user
// presses a quit key (q, Ctrl-C, Esc). It owns the tcell screen for its
// duration: callers must not touch screen concurrently.
func (v *Viewer) Run(stop <-chan struct{}) error {
	if err := v.screen.Init(); err != nil {
		return fmt.Errorf("viewer: init screen: %w", err)
	}
	defer v.screen.Fini()
	v.screen.HideCursor()

	events := make(chan tcell.Event, 16)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	v.render()
	for {
		select {
		case <-stop:
			return nil
		case ev := <-events:
			switch e := ev.(type) {
			case *tcell.EventResize:
				v.screen.Sync()
				v.render()
			case *tcell.EventKey:
				if isQuitKey(e) {
					return nil
				}
			}
		case <-v.refresh:
			v.render()
		}
	}
}

func isQuitKey(e *tcell.EventKey) bool {
	if e.Key() == tcell.KeyCtrlC || e.Key() == tcell.KeyEsc {
		return true
	}
	return e.Key() == tcell.KeyRune && (e.Rune() == 'q' || e.Rune() == 'Q')
}

// render draws the current canvas state. Each terminal row packs two
// canvas rows via the half-block glyph, doubling vertical resolution.
func (v *Viewer) render() {
	termW, termH := v.screen.Size()
	canvasCols := termW
	if v.statsbarEnabled {
		canvasCols = termW - v.statsbarWidth
	}
	if canvasCols < 0 {
		canvasCols = 0
	}
	statsbarX := canvasCols

	store := v.cv.Store()
	width, height := v.cv.Width(), v.cv.Height()
	if canvasCols > width {
		canvasCols = width
	}
	canvasRows := termH * 2
	if canvasRows > height {
		canvasRows = height
	}

	for ty := 0; ty*2 < canvasRows; ty++ {
		topY := ty * 2
		botY := topY + 1
		for x := 0; x < canvasCols; x++ {
			top := store.Read(x, topY)
			var bot = top
			if botY < height {
				bot = store.Read(x, botY)
			}
			fg := tcell.NewRGBColor(int32(top.R), int32(top.G), int32(top.B))
			bg := tcell.NewRGBColor(int32(bot.R), int32(bot.G), int32(bot.B))
			style := tcell.StyleDefault.Foreground(fg).Background(bg)
			v.screen.SetContent(x, ty, half, nil, style)
		}
	}

	if v.statsbarEnabled {
		v.drawStatsbar(statsbarX, termH)
	}
	v.screen.Show()
}

func (v *Viewer) drawStatsbar(xOffset, termH int) {
	lines := []string{
		fmt.Sprintf("%dx%d", v.cv.Width(), v.cv.Height()),
	}
	if v.registry != nil {
		lines = append(lines, fmt.Sprintf("clients: %d", v.registry.Count()))
	}
	for _, entry := range v.cv.Stats().Report() {
		if len(lines) >= termH {
			break
		}
		lines = append(lines, fmt.Sprintf("%s %d", entry.Color, entry.Count))
	}
	style := tcell.StyleDefault
	for row, line := range lines {
		if row >= termH {
			break
		}
		for i, r := range line {
			if xOffset+i >= xOffset+v.statsbarWidth {
				break
			}
			v.screen.SetContent(xOffset+i, row, r, nil, style)
		}
	}
}
