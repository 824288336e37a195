package backup

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/framegrace/pixelwell/internal/heart"
	"github.com/framegrace/pixelwell/internal/imaging"
)

const imageExt = ".png"

// TimelapseEngine is the second of the two independent periodic tasks
// described in spec.md §4.7: rather than a restorable raw dump, it renders
// the grid as an image on an interval, building a scrubbable history of
// the canvas. Grounded on the same snapshot_store.go ticker shape as
// Engine, with persistSnapshot generalized to an image encode instead of a
// raw byte dump.
type TimelapseEngine struct {
	store     *heart.Heart
	directory string
	interval  time.Duration
	logger    *log.Logger

	quit chan struct{}
	done chan struct{}
}

// NewTimelapseEngine creates a time-lapse engine.
func NewTimelapseEngine(store *heart.Heart, directory string, interval time.Duration, logger *log.Logger) *TimelapseEngine {
	return &TimelapseEngine{
		store:     store,
		directory: directory,
		interval:  interval,
		logger:    logger,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (e *TimelapseEngine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// Start launches the periodic render loop; it runs until stop is closed.
func (e *TimelapseEngine) Start(stop <-chan struct{}) {
	go e.loop(stop)
}

func (e *TimelapseEngine) loop(stop <-chan struct{}) {
	defer close(e.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.renderOnce()
		case <-stop:
			return
		case <-e.quit:
			return
		}
	}
}

// Stop terminates the periodic loop and waits for it to exit.
func (e *TimelapseEngine) Stop() {
	select {
	case <-e.quit:
	default:
		close(e.quit)
	}
	<-e.done
}

func (e *TimelapseEngine) renderOnce() {
	if err := os.MkdirAll(e.directory, 0o755); err != nil {
		e.logf("timelapse: could not create %s: %v", e.directory, err)
		return
	}
	rgb := e.store.FullImage()
	png, err := imaging.EncodePNG(rgb, e.store.Width(), e.store.Height())
	if err != nil {
		e.logf("timelapse: encode failed: %v", err)
		return
	}
	name := fmt.Sprintf("frame_%s%s", time.Now().UTC().Format(filenameLayout), imageExt)
	path := filepath.Join(e.directory, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		e.logf("timelapse: failed writing %s: %v", path, err)
		return
	}
	e.logf("timelapse: wrote %s (%s)", path, humanize.Bytes(uint64(len(png))))
}
