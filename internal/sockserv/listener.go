package sockserv

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/framegrace/pixelwell/internal/clients"
	"github.com/framegrace/pixelwell/internal/dispatcher"
)

// Listener binds host:port and accepts TCP connections, demoting any prior
// session from the same source IP before attaching the new one, per
// spec.md §4.6. Grounded on original_source/sockets.py's Server.loop and
// the teacher's server/server.go acceptLoop goroutine-per-connection shape.
type Listener struct {
	addr        string
	registry    *clients.Registry
	dispatcher  *dispatcher.Dispatcher
	readTimeout time.Duration
	logger      *log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
	disabled bool
}

// NewListener creates a listener for addr ("host:port"). Call Start to
// begin accepting.
func NewListener(addr string, registry *clients.Registry, d *dispatcher.Dispatcher, readTimeout time.Duration, logger *log.Logger) *Listener {
	return &Listener{
		addr:        addr,
		registry:    registry,
		dispatcher:  d,
		readTimeout: readTimeout,
		logger:      logger,
		sessions:    make(map[string]*Session),
		quit:        make(chan struct{}),
	}
}

// Start binds the listening socket and spawns the accept loop. On bind
// failure it logs a critical message and disables itself for the process
// lifetime; other frontends continue unaffected, per spec.md §4.6/§7.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		if l.logger != nil {
			l.logger.Printf("CRITICAL: sockserv: bind %s failed: %v; TCP frontend disabled", l.addr, err)
		}
		l.disabled = true
		return err
	}
	l.listener = ln
	l.wg.Add(1)
	go l.acceptLoop()
	return nil
}

// Disabled reports whether Start failed to bind.
func (l *Listener) Disabled() bool { return l.disabled }

// Addr returns the configured listen address.
func (l *Listener) Addr() string { return l.addr }

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.quit:
				return
			default:
			}
			if l.logger != nil {
				l.logger.Printf("sockserv: accept error: %v", err)
			}
			continue
		}
		l.handleAccept(conn)
	}
}

func (l *Listener) handleAccept(conn net.Conn) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	l.mu.Lock()
	if prior, ok := l.sessions[host]; ok {
		l.mu.Unlock()
		prior.Takeover()
	} else {
		l.mu.Unlock()
	}

	var session *Session
	session = NewSession(conn, host, l.registry, l.dispatcher, l.readTimeout, l.logger, func() {
		l.mu.Lock()
		if l.sessions[host] == session {
			delete(l.sessions, host)
		}
		l.mu.Unlock()
	})

	l.mu.Lock()
	l.sessions[host] = session
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		session.Serve()
	}()
}

// Stop closes the listening socket and waits for in-flight sessions to
// terminate their goroutines (the sessions themselves are not force-closed
// here; callers that want an immediate shutdown should close each tracked
// session's socket first).
func (l *Listener) Stop() {
	close(l.quit)
	if l.listener != nil {
		_ = l.listener.Close()
	}
	l.wg.Wait()
}

// ActiveSessions returns the number of source IPs with a currently tracked
// session goroutine.
func (l *Listener) ActiveSessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}
