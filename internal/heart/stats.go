package heart

import (
	"fmt"
	"sort"
	"sync"
)

// Stats is a per-cell-color write-count histogram, bumped on every applied
// write and exposed as a sorted report for operator views and the TCP STATS
// verb. Grounded on original_source/Stats/stats.py.
type Stats struct {
	mu     sync.Mutex
	counts map[RGB]uint64
}

// NewStats creates an empty histogram.
func NewStats() *Stats {
	return &Stats{counts: make(map[RGB]uint64)}
}

// Bump increments the count for rgb.
func (s *Stats) Bump(rgb RGB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[rgb]++
}

// Entry is one row of a sorted stats report.
type Entry struct {
	Color string
	Count uint64
}

// Report returns the histogram sorted lexicographically by hex color.
func (s *Stats) Report() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.counts))
	for rgb, count := range s.counts {
		out = append(out, Entry{
			Color: fmt.Sprintf("%02x%02x%02x", rgb.R, rgb.G, rgb.B),
			Count: count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Color < out[j].Color })
	return out
}
