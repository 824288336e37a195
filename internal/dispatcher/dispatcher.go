// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// Package dispatcher implements the process-wide named-event registry that
// decouples protocol frontends (TCP, HTTP, admin) from the canvas mutation
// semantics they share. Grounded on texel/dispatcher.go's EventDispatcher,
// generalized from broadcast-to-all-listeners into a name->handler map,
// since frontends invoke commands by name rather than subscribing to a
// broadcast stream.
package dispatcher

import (
	"log"
	"sync"
)

// Replier is whatever a Handler needs to talk back to the caller that
// triggered it -- a TCP session sending a reply line, an HTTP handler
// writing a response, or nothing at all (NopReplier) for commands that
// produce no per-caller output.
type Replier interface {
	Reply(line string)
}

// NopReplier discards replies; useful for callers that only care about a
// handler's boolean result (e.g. the viewer refresh event fired after each
// render tick). Trigger substitutes it when given a nil session.
type NopReplier struct{}

// Reply implements Replier by doing nothing.
func (NopReplier) Reply(string) {}

// Handler is the fixed signature every registered command implements:
// (session, args...) -> result, per spec.md §9's dispatch-table strategy.
// args are the whitespace-split arguments following the verb; Handler
// reports whether the arguments were well-formed and applies its effect as
// a side effect (typically a canvas.Enqueue or PutNow call), replying to
// session directly for query-style verbs.
type Handler func(session Replier, args ...string) bool

// Dispatcher is a name -> Handler registry. The convention for names is
// "<PREFIX>-<VERB>", e.g. "SOCKSERV-PX", so that multiple frontends can
// register their own verbs under the same table without colliding.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *log.Logger
}

// New creates an empty dispatcher. A nil logger discards dispatcher-level
// diagnostics (recovered panics from handlers).
func New(logger *log.Logger) *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler), logger: logger}
}

// Register installs fn under name. Last writer wins.
func (d *Dispatcher) Register(name string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = fn
}

// Trigger invokes the handler registered under name, if any. It returns
// false if no handler is registered. A handler that panics is recovered
// and logged; Trigger then returns false as if the call had failed, since
// the dispatcher provides no ordering guarantee beyond "runs synchronously
// in the caller's goroutine" and a crashing handler must not propagate.
func (d *Dispatcher) Trigger(name string, session Replier, args ...string) (ok bool) {
	d.mu.RLock()
	fn, found := d.handlers[name]
	d.mu.RUnlock()
	if !found {
		return false
	}
	if session == nil {
		session = NopReplier{}
	}
	defer func() {
		if r := recover(); r != nil {
			if d.logger != nil {
				d.logger.Printf("dispatcher: handler %q panicked: %v", name, r)
			}
			ok = false
		}
	}()
	return fn(session, args...)
}

// Registered reports whether a handler is installed under name.
func (d *Dispatcher) Registered(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, found := d.handlers[name]
	return found
}
