// Package clients implements the per-IP client registry and rate limiter.
// Grounded on original_source/Clients/clients.py for the attribute set and
// on other_examples/e51260a1_benjamintd-gows__server.go.go for the use of
// golang.org/x/time/rate as the cooldown primitive -- a rate.Limiter with
// Burst=1 directly implements "successive writes separated by at least
// 1/pps seconds" without hand-rolling a token bucket.
package clients

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Session holds the per-IP state described in spec.md §3: pixels-per-second
// budget, last-write instant, godmode flag, and connected bit.
type Session struct {
	mu        sync.Mutex
	ip        string
	pps       float64
	limiter   *rate.Limiter
	godmode   bool
	connected bool
	lastWrite time.Time
	hasWrite  bool
}

// IP returns the session's key.
func (s *Session) IP() string { return s.ip }

// PPS returns the client's current pixels-per-second budget.
func (s *Session) PPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pps
}

// Godmode reports whether cooldown is currently waived for this session.
func (s *Session) Godmode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.godmode
}

// Connected reports whether a TCP session currently exists for this IP.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) setRate(pps float64) {
	s.pps = pps
	s.limiter.SetLimit(rate.Limit(pps))
}

// Registry is a mapping from source IP string to Session. Lookup is
// lazy-create; the registry grows monotonically for the process lifetime
// (sessions are never destroyed, only marked disconnected).
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	defaultPPS float64
	godmodePPS float64
}

// New creates a registry. defaultPPS is the pps assigned to a session on
// first observation and whenever godmode is turned off; godmodePPS is the
// pps assigned (and cooldown waived) while godmode is on.
func New(defaultPPS, godmodePPS float64) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		defaultPPS: defaultPPS,
		godmodePPS: godmodePPS,
	}
}

// Ensure returns the session for ip, creating it with the default pps if
// this is the first observation of ip.
func (r *Registry) Ensure(ip string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[ip]; ok {
		return s
	}
	s := &Session{
		ip:      ip,
		pps:     r.defaultPPS,
		limiter: rate.NewLimiter(rate.Limit(r.defaultPPS), 1),
	}
	r.sessions[ip] = s
	return s
}

// Get returns the session for ip and whether it exists, without creating one.
func (r *Registry) Get(ip string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[ip]
	return s, ok
}

// Connect marks ip's session as having an active TCP connection, creating
// the session if needed.
func (r *Registry) Connect(ip string) *Session {
	s := r.Ensure(ip)
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return s
}

// Disconnect flips ip's connected bit off. It is a no-op if ip has no
// session yet.
func (r *Registry) Disconnect(ip string) {
	if s, ok := r.Get(ip); ok {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}
}

// SetGodmode toggles ip's godmode flag, adjusting pps to the god rate or
// back to the registry's configured default.
func (r *Registry) SetGodmode(ip string, on bool) {
	s := r.Ensure(ip)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.godmode = on
	if on {
		s.setRate(r.godmodePPS)
	} else {
		s.setRate(r.defaultPPS)
	}
}

// CooldownRemaining reports how long ip must wait before its next pixel
// write, without consuming a write token (a peek, not a reservation commit).
// Godmode sessions always report zero.
func (r *Registry) CooldownRemaining(ip string) time.Duration {
	s := r.Ensure(ip)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.godmode {
		return 0
	}
	// Reserve a token to ask the limiter how long we'd have to wait, then
	// cancel immediately so the peek has no side effect on the bucket --
	// the actual consumption happens in MarkWrite, which runs only once
	// the caller's write has actually been accepted.
	now := time.Now()
	res := s.limiter.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	res.CancelAt(now)
	if delay < 0 {
		delay = 0
	}
	return delay
}

// MarkWrite records that ip performed a successful pixel write now,
// consuming one token from its rate limiter.
func (r *Registry) MarkWrite(ip string) {
	s := r.Ensure(ip)
	s.mu.Lock()
	s.limiter.AllowN(time.Now(), 1)
	s.lastWrite = time.Now()
	s.hasWrite = true
	s.mu.Unlock()
}

// Count returns the number of distinct IPs ever observed.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
