// Package sockserv implements the line-framed TCP protocol state machine
// and listener described in spec.md §4.5-§4.6. Grounded on
// original_source/sockets.py's Client.connect loop for the state machine
// shape, and on the teacher's internal/runtime/server/connection.go for the
// per-connection goroutine and writeMu-guarded socket ownership pattern.
package sockserv

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/framegrace/pixelwell/internal/clients"
	"github.com/framegrace/pixelwell/internal/dispatcher"
)

// maxLineBytes is the maximum accepted length of one command line,
// per spec.md §4.5.
const maxLineBytes = 1024

// Session drives one TCP connection's read/dispatch/reply loop. Its socket
// is owned exclusively by this session's goroutine; sends and closes are
// mutually exclusive via writeMu.
type Session struct {
	conn        net.Conn
	ip          string
	registry    *clients.Registry
	dispatcher  *dispatcher.Dispatcher
	readTimeout time.Duration
	logger      *log.Logger

	writeMu sync.Mutex
	closed  bool

	onClose func()
}

// NewSession wraps conn as a protocol session for ip. onClose, if non-nil,
// is invoked exactly once when the session terminates (used by Listener to
// clear its socket-slot bookkeeping).
func NewSession(conn net.Conn, ip string, registry *clients.Registry, d *dispatcher.Dispatcher, readTimeout time.Duration, logger *log.Logger, onClose func()) *Session {
	return &Session{
		conn:        conn,
		ip:          ip,
		registry:    registry,
		dispatcher:  d,
		readTimeout: readTimeout,
		logger:      logger,
		onClose:     onClose,
	}
}

// Reply implements dispatcher.Replier: every server reply is prefixed "> "
// and newline-terminated, per spec.md §4.5.
func (s *Session) Reply(line string) {
	s.send(line)
}

func (s *Session) send(line string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	_, _ = s.conn.Write([]byte("> " + line + "\n"))
}

// Takeover sends a best-effort disconnect notice and closes the socket, for
// use by Listener when a new connection from the same IP supersedes this
// session. Safe to call concurrently with the session's own read loop.
func (s *Session) Takeover() {
	s.send("You were disconnected due to another connection with your IP address.")
	s.closeSocket()
}

func (s *Session) closeSocket() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
}

// Serve runs the session's read/dispatch loop until EOF, an empty line, a
// transport error, read timeout, or a QUIT/EXIT command. It always invokes
// onClose and clears the registry's connected bit before returning.
func (s *Session) Serve() {
	s.registry.Connect(s.ip)
	defer func() {
		s.registry.Disconnect(s.ip)
		s.closeSocket()
		if s.onClose != nil {
			s.onClose()
		}
	}()

	reader := bufio.NewReaderSize(s.conn, maxLineBytes+1)
	for {
		if s.readTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
				return
			}
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			if line == "" {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					s.send("Connection Timeout, goodbye.")
				}
				return
			}
			// Fall through: treat a trailing line with no terminator the
			// same as a terminated one (e.g. EOF right after the payload).
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return
		}
		if len(line) > maxLineBytes {
			s.send("Wrong arguments")
			continue
		}
		if !s.handleLine(line) {
			return
		}
	}
}

// handleLine parses one command line and dispatches it, returning false if
// the session should terminate.
func (s *Session) handleLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	verb := strings.ToUpper(fields[0])
	args := fields[1:]

	if verb == "QUIT" || verb == "EXIT" {
		s.send("Goodbye.")
		return false
	}

	if verb == "PX" && len(args) != 2 {
		remaining := s.registry.CooldownRemaining(s.ip)
		if remaining > 0 {
			s.sendCooldown(remaining)
			return true
		}
		ok := s.dispatcher.Trigger(Prefix+verb, s, args...)
		s.registry.MarkWrite(s.ip)
		if !ok {
			s.send("Wrong arguments")
		}
		return true
	}

	if !s.dispatcher.Trigger(Prefix+verb, s, args...) {
		s.send("Wrong arguments")
	}
	return true
}

func (s *Session) sendCooldown(remaining time.Duration) {
	if remaining >= time.Second {
		s.send(fmt.Sprintf("You are on cooldown for %.2f seconds", remaining.Seconds()))
		return
	}
	s.send(fmt.Sprintf("You are on cooldown for %.2f milliseconds", float64(remaining.Microseconds())/1000.0))
}

// IP returns the session's source IP.
func (s *Session) IP() string { return s.ip }
