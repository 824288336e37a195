package sockserv

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/framegrace/pixelwell/internal/canvas"
	"github.com/framegrace/pixelwell/internal/clients"
	"github.com/framegrace/pixelwell/internal/dispatcher"
	"github.com/framegrace/pixelwell/internal/heart"
)

func newHarness(t *testing.T) (*Listener, *canvas.Canvas, string) {
	t.Helper()
	store := heart.New(64, 64, heart.NewClock())
	cv := canvas.New(store, heart.NewStats(), time.Millisecond, nil)
	cv.Start()
	t.Cleanup(cv.Stop)

	registry := clients.New(1000000, 1000000) // effectively no cooldown by default
	d := dispatcher.New(nil)
	RegisterVerbs(d, cv, registry, VerbOptions{GodmodeEnabled: true, ServerName: "pixelwell", ServerVersion: "test"})

	l := NewListener("127.0.0.1:0", registry, d, 2*time.Second, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	l.listener = ln
	l.wg.Add(1)
	go l.acceptLoop()
	t.Cleanup(l.Stop)
	return l, cv, ln.Addr().String()
}

func dialAndRead(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn, bufio.NewReader(conn)
}

func TestTCPWriteThenReadBack(t *testing.T) {
	_, cv, addr := newHarness(t)
	_ = cv
	conn, r := dialAndRead(t, addr)
	defer conn.Close()

	mustWrite(t, conn, "PX 10 20 ff8800\n")
	line := mustReadLine(t, r)
	if line != "> PX Success" {
		t.Fatalf("got %q, want PX Success reply", line)
	}

	time.Sleep(20 * time.Millisecond) // let the render tick drain
	mustWrite(t, conn, "PX 10 20\n")
	line = mustReadLine(t, r)
	if line != "> PX 10 20 ff8800" {
		t.Fatalf("got %q, want echoed color", line)
	}
}

func TestSizeVerb(t *testing.T) {
	_, _, addr := newHarness(t)
	conn, r := dialAndRead(t, addr)
	defer conn.Close()
	mustWrite(t, conn, "SIZE\n")
	line := mustReadLine(t, r)
	if line != "> SIZE 64 64" {
		t.Fatalf("got %q, want SIZE 64 64", line)
	}
}

func TestWrongArgumentsReply(t *testing.T) {
	_, _, addr := newHarness(t)
	conn, r := dialAndRead(t, addr)
	defer conn.Close()
	mustWrite(t, conn, "SIZE extra\n")
	line := mustReadLine(t, r)
	if line != "> Wrong arguments" {
		t.Fatalf("got %q, want Wrong arguments", line)
	}
}

func TestCooldownReply(t *testing.T) {
	store := heart.New(8, 8, heart.NewClock())
	cv := canvas.New(store, heart.NewStats(), time.Millisecond, nil)
	cv.Start()
	defer cv.Stop()
	registry := clients.New(1, 1) // 1 pps -> 1s cooldown
	d := dispatcher.New(nil)
	RegisterVerbs(d, cv, registry, VerbOptions{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	l := &Listener{registry: registry, dispatcher: d, readTimeout: 2 * time.Second, sessions: make(map[string]*Session), quit: make(chan struct{})}
	l.listener = ln
	l.wg.Add(1)
	go l.acceptLoop()
	defer l.Stop()

	conn, r := dialAndRead(t, ln.Addr().String())
	defer conn.Close()

	mustWrite(t, conn, "PX 0 0 000000\n")
	mustReadLine(t, r) // "> PX Success"

	mustWrite(t, conn, "PX 1 0 000000\n")
	line := mustReadLine(t, r)
	if !strings.HasPrefix(line, "> You are on cooldown for ") {
		t.Fatalf("got %q, want cooldown message", line)
	}
}

func TestQuitTerminatesSession(t *testing.T) {
	l, _, addr := newHarness(t)
	conn, r := dialAndRead(t, addr)
	defer conn.Close()
	mustWrite(t, conn, "QUIT\n")
	mustReadLine(t, r) // goodbye
	deadline := time.Now().Add(time.Second)
	for l.ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session still active after QUIT")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestMarkWriteOnFailedDispatchEngagesCooldown guards against a rate-limit
// bypass: a PX write with a malformed color must still mark_write once the
// cooldown check has cleared, per spec.md §4.5's "else dispatch and
// mark_write" transition (original_source/sockets.py:113-121 sets
// cooldown_until unconditionally, regardless of the dispatch outcome).
func TestMarkWriteOnFailedDispatchEngagesCooldown(t *testing.T) {
	store := heart.New(8, 8, heart.NewClock())
	cv := canvas.New(store, heart.NewStats(), time.Millisecond, nil)
	cv.Start()
	defer cv.Stop()
	registry := clients.New(1, 1) // 1 pps -> 1s cooldown
	d := dispatcher.New(nil)
	RegisterVerbs(d, cv, registry, VerbOptions{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	l := &Listener{registry: registry, dispatcher: d, readTimeout: 2 * time.Second, sessions: make(map[string]*Session), quit: make(chan struct{})}
	l.listener = ln
	l.wg.Add(1)
	go l.acceptLoop()
	defer l.Stop()

	conn, r := dialAndRead(t, ln.Addr().String())
	defer conn.Close()

	mustWrite(t, conn, "PX 0 0 ZZZZZZ\n")
	line := mustReadLine(t, r)
	if line != "> Wrong arguments" {
		t.Fatalf("got %q, want Wrong arguments for malformed color", line)
	}

	mustWrite(t, conn, "PX 0 0 000000\n")
	line = mustReadLine(t, r)
	if !strings.HasPrefix(line, "> You are on cooldown for ") {
		t.Fatalf("got %q, want cooldown message after failed-dispatch write", line)
	}
}

// TestTakeoverDisconnectsPriorSessionFromSameIP covers spec.md §4.6: a new
// connection from an already-connected source IP sends a best-effort
// disconnect notice on the old socket, closes it, and becomes authoritative.
func TestTakeoverDisconnectsPriorSessionFromSameIP(t *testing.T) {
	l, _, addr := newHarness(t)

	firstConn, firstR := dialAndRead(t, addr)
	defer firstConn.Close()

	deadline := time.Now().Add(time.Second)
	for l.ActiveSessions() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("first session never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	secondConn, secondR := dialAndRead(t, addr)
	defer secondConn.Close()

	line := mustReadLine(t, firstR)
	if line != "> You were disconnected due to another connection with your IP address." {
		t.Fatalf("got %q, want takeover notice on the prior connection", line)
	}
	if _, err := firstR.ReadString('\n'); err == nil {
		t.Fatalf("expected prior connection's socket to be closed after takeover")
	}

	mustWrite(t, secondConn, "SIZE\n")
	line = mustReadLine(t, secondR)
	if line != "> SIZE 64 64" {
		t.Fatalf("got %q, want SIZE 64 64 on the new authoritative session", line)
	}

	deadline = time.Now().Add(time.Second)
	for l.ActiveSessions() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected exactly one tracked session after takeover, got %d", l.ActiveSessions())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func mustWrite(t *testing.T, conn net.Conn, s string) {
	t.Helper()
	if _, err := conn.Write([]byte(s)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func mustReadLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}
