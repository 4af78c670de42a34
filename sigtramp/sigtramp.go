// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package sigtramp implements deferred signal dispatch: a handler
// registered with SetHandler is never run from inside a real signal
// handler. Instead, an async-signal-safe "catcher" only records that the
// signal arrived; the registered handler runs later, replayed from
// caller-driven code via HandleOne/HandleAll. This is the same
// trampoline the original C daemon library uses to keep application
// handlers free of the restrictions POSIX places on code run from a
// signal handler, adapted to Go's runtime: the catcher here is a
// goroutine reading from the channel os/signal.Notify delivers to,
// rather than a SA_SIGINFO trampoline.
//
// Catastrophic signals (SIGILL, SIGABRT, SIGFPE, SIGSEGV, SIGBUS,
// SIGSYS) bypass the trampoline entirely: their handlers, if any, run
// directly off the notification channel, on the theory that a process
// which just corrupted its own state shouldn't wait for someone to call
// HandleOne before reacting.
package sigtramp

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler is invoked for a dispatched signal. Go's runtime does not
// expose siginfo_t (pid/uid/si_code of the sender) without cgo, so
// unlike the C original's 3-arg handler form, Handler only ever learns
// the signal number.
type Handler func(signo syscall.Signal)

// Catastrophic lists the signals whose handlers, if installed, run
// immediately off the notification channel instead of being deferred.
var Catastrophic = []syscall.Signal{
	syscall.SIGILL,
	syscall.SIGABRT,
	syscall.SIGFPE,
	syscall.SIGSEGV,
	syscall.SIGBUS,
	syscall.SIGSYS,
}

func isCatastrophic(signo syscall.Signal) bool {
	for _, c := range Catastrophic {
		if c == signo {
			return true
		}
	}
	return false
}

type entry struct {
	handler     Handler
	siginfo     bool
	catastrophic bool
	pending     int64
	blockedWith []syscall.Signal
}

// registry is the package-level signal table. A process has exactly one
// set of signal dispositions no matter how many daemon.Context values
// it creates, so the table is package-level rather than per-value, the
// same way the original keeps one process-wide table.
var registry = struct {
	mu       sync.Mutex
	entries  map[syscall.Signal]*entry
	notifyCh chan os.Signal
	started  bool
	// dispatch serialises handler invocations: HandleOne/HandleAll and
	// the catastrophic direct-dispatch path all take this before calling
	// into application code. This is the Go-native stand-in for the
	// per-handler sa_mask the original installs: instead of blocking
	// only the specific signals named by AddSet while one handler runs,
	// no two handlers ever run concurrently at all. AddSet's blockedWith
	// list is kept for inspection (BlockedWith) but isn't separately
	// enforced beyond that global serialisation.
	dispatch sync.Mutex
}{entries: make(map[syscall.Signal]*entry)}

func entryFor(signo syscall.Signal) *entry {
	e, ok := registry.entries[signo]
	if !ok {
		e = &entry{}
		registry.entries[signo] = e
	}
	return e
}

// ensureCatcher lazily starts the trampoline goroutine and subscribes
// signo to it. Must be called with registry.mu held.
func ensureCatcher(signo syscall.Signal) {
	if registry.notifyCh == nil {
		registry.notifyCh = make(chan os.Signal, 64)
		go catch()
	}
	signal.Notify(registry.notifyCh, signo)
}

// catch is the "async-signal-safe" half of the trampoline: all it does
// is bump a pending counter. Real handler code never runs here.
func catch() {
	for sig := range registry.notifyCh {
		signo, ok := sig.(syscall.Signal)
		if !ok {
			continue
		}

		registry.mu.Lock()
		e, tracked := registry.entries[signo]
		registry.mu.Unlock()

		if !tracked {
			continue
		}
		if e.catastrophic || e.siginfo {
			registry.dispatch.Lock()
			if h := e.handler; h != nil {
				h(signo)
			}
			registry.dispatch.Unlock()
			continue
		}

		registry.mu.Lock()
		e.pending++
		registry.mu.Unlock()
	}
}

// SetHandler installs handler as the deferred handler for signo,
// resetting any previously pending count for signo, exactly as
// (re)installing a handler does in the original.
func SetHandler(signo syscall.Signal, handler Handler) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	e := entryFor(signo)
	e.handler = handler
	e.siginfo = false
	e.catastrophic = isCatastrophic(signo)
	e.pending = 0

	ensureCatcher(signo)
	return nil
}

// SetSiginfoHandler installs handler to run immediately off the
// notification channel, with no deferral — the Go analogue of the
// original's SA_SIGINFO direct-dispatch handlers. As with Handler in
// general, no siginfo_t detail is available; the name is kept for
// parity with the original API surface.
func SetSiginfoHandler(signo syscall.Signal, handler Handler) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	e := entryFor(signo)
	e.handler = handler
	e.siginfo = true
	e.catastrophic = false
	e.pending = 0

	ensureCatcher(signo)
	return nil
}

// AddSet records extra as signals considered related to signo's
// handler for inspection via BlockedWith. See the note on
// registry.dispatch for what this does and doesn't enforce in this
// port.
func AddSet(signo syscall.Signal, extra ...syscall.Signal) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	e := entryFor(signo)
	e.blockedWith = append(e.blockedWith, extra...)
	return nil
}

// BlockedWith returns the signals previously passed to AddSet for signo.
func BlockedWith(signo syscall.Signal) []syscall.Signal {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	e, ok := registry.entries[signo]
	if !ok {
		return nil
	}
	return append([]syscall.Signal(nil), e.blockedWith...)
}

// Pending reports how many deliveries of signo are waiting to be
// replayed.
func Pending(signo syscall.Signal) int64 {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	e, ok := registry.entries[signo]
	if !ok {
		return 0
	}
	return e.pending
}

// HandleOne invokes signo's registered handler once if any deliveries of
// signo are pending, and zeroes the pending count regardless of how many
// arrivals were coalesced into it — one invocation clears the count to
// zero no matter the multiplicity, the standard deferred-handler
// contract. It reports whether a delivery was pending (and so whether
// the handler ran).
func HandleOne(signo syscall.Signal) bool {
	registry.mu.Lock()
	e, ok := registry.entries[signo]
	if !ok || e.pending == 0 {
		registry.mu.Unlock()
		return false
	}
	e.pending = 0
	handler := e.handler
	registry.mu.Unlock()

	if handler != nil {
		registry.dispatch.Lock()
		handler(signo)
		registry.dispatch.Unlock()
	}
	return true
}

// HandleAll is HandleOne for signo. It's kept as a distinct name for
// symmetry with HandleAllRegistered and to read naturally at call sites
// ("handle everything pending for this signal"), but since HandleOne
// already coalesces every pending arrival into a single invocation,
// there is never more than one replay to do. It reports whether a
// delivery was pending.
func HandleAll(signo syscall.Signal) bool {
	return HandleOne(signo)
}

// HandleAllRegistered calls HandleAll for every signal with a handler
// currently installed, in an unspecified order, and reports which
// signals had a pending delivery replayed. It's the convenience entry
// point for a daemon's main loop: call it once per iteration to replay
// everything that arrived since the last call.
func HandleAllRegistered() map[syscall.Signal]bool {
	registry.mu.Lock()
	signos := make([]syscall.Signal, 0, len(registry.entries))
	for signo, e := range registry.entries {
		if !e.catastrophic && !e.siginfo {
			signos = append(signos, signo)
		}
	}
	registry.mu.Unlock()

	result := make(map[syscall.Signal]bool, len(signos))
	for _, signo := range signos {
		if HandleAll(signo) {
			result[signo] = true
		}
	}
	return result
}

// Raise simulates a signal delivery without sending a real OS signal,
// for use by tests and by callers that want to fire a handler
// programmatically (the Go analogue of calling raise(2) on yourself).
func Raise(signo syscall.Signal) {
	registry.mu.Lock()
	e, tracked := registry.entries[signo]
	registry.mu.Unlock()

	if !tracked {
		return
	}
	if e.catastrophic || e.siginfo {
		registry.dispatch.Lock()
		if h := e.handler; h != nil {
			h(signo)
		}
		registry.dispatch.Unlock()
		return
	}

	registry.mu.Lock()
	e.pending++
	registry.mu.Unlock()
}
