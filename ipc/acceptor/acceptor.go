/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package acceptor implements AcceptorImpl and the public Acceptor façade
// (spec §4.5): the outermost state machine of the connection-establishment
// subsystem, gating a single pending user accept-completion callback
// behind one mutex shared with every other public entry point.
package acceptor

import (
	"sync"

	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"

	"github.com/sabouaram/safeipc/ipc/connection"
	"github.com/sabouaram/safeipc/ipc/ipcerr"
	"github.com/sabouaram/safeipc/ipc/reactor"
	"github.com/sabouaram/safeipc/ipc/server"
	"github.com/sabouaram/safeipc/ipc/shmem"
)

// State is the three-way AcceptorImpl state machine of spec §4.5.
type State uint8

const (
	StateClosed State = iota
	StateOpenAndIdle
	StateOpenAndAccepting
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpenAndIdle:
		return "open-idle"
	case StateOpenAndAccepting:
		return "open-accepting"
	default:
		return "unknown"
	}
}

// AcceptCallback receives the result of one accept_async completion:
// either a fully initialised connection.Connection, or a non-nil error
// (notably ErrorDisconnected, sticky once the Server has latched a fatal
// error).
type AcceptCallback func(connection.Connection, liberr.Error)

// AcceptorImpl is the outermost state machine of spec §4.5. One process-
// wide mutex guards every field; a user callback is always invoked
// outside that mutex (spec's reacquisition rationale: callbacks may
// legally reinvoke AcceptAsync or Close).
type AcceptorImpl struct {
	mu sync.Mutex

	state   State
	pending AcceptCallback
	// executing is true for the duration of a user callback invocation,
	// observed by IsInUse and enforced by CloseAndAssertNoCallbackExecuting.
	executing bool

	disp   *reactor.Dispatcher
	srv    *server.Server
	selfID reactor.Id
	log    liblog.FuncLog
}

// NewImpl constructs an AcceptorImpl in StateClosed. r is the shared
// external Reactor (GLOSSARY); cfg configures the owned Server; shm and
// tm are forwarded to every connection the Server's backlog creates. The
// dispatcher is sized at Server.max_used_slots + 2 per spec §4.5's
// capacity bookkeeping (one slot for the acceptor's own software event,
// one to absorb a re-init while a stale slot's destruction is deferred).
func NewImpl(r reactor.Reactor, cfg server.Config, shm *shmem.Manager, tm connection.TimerManager, log liblog.FuncLog) *AcceptorImpl {
	srvMaxUsed := cfg.BacklogCapacity + 2
	disp := reactor.NewDispatcher(r, srvMaxUsed+2)
	return &AcceptorImpl{
		disp: disp,
		srv:  server.New(cfg, disp, shm, tm, log),
		log:  log,
	}
}

func (a *AcceptorImpl) logf(lvl loglvl.Level, msg string, data interface{}) {
	if a.log == nil {
		return
	}
	if l := a.log(); l != nil {
		l.Entry(lvl, msg).DataSet(data).Log()
	}
}

// State reports the current state machine value (supplemented
// observability beyond IsOpen/IsInUse, matching spec §12's invitation to
// expose internal counters/states for diagnostics).
func (a *AcceptorImpl) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// IsOpen reports state != StateClosed.
func (a *AcceptorImpl) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state != StateClosed
}

// IsInUse reports whether destruction would be unsafe right now: open,
// or a user callback is currently executing on the reactor thread.
func (a *AcceptorImpl) IsInUse() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state != StateClosed || a.executing
}

// Init registers the acceptor-level software event, starts the owned
// Server advertising bufferHint as its s2c buffer size hint, and
// transitions to StateOpenAndIdle. Precondition: StateClosed.
func (a *AcceptorImpl) Init(bufferHint uint64) liberr.Error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateClosed {
		return ErrorAlreadyInitialised.Error(nil)
	}

	id, rerr := a.disp.RegisterSoftwareEvent(a.onReactorEvent)
	if rerr != nil {
		// Spec §7: every reactor registration failure except a full slot
		// table is a programming error (the dispatcher was sized wrong).
		if !ipcerr.Is(rerr, ipcerr.KindResourceExhausted) {
			ipcerr.Abort(a.log, "acceptor", "failed to register acceptor software event with the reactor", rerr)
		}
		return ErrorResourceExhausted.Error(rerr)
	}

	if serr := a.srv.Start(bufferHint, id); serr != nil {
		a.disp.Unregister(id)
		return serr
	}

	a.selfID = id
	a.state = StateOpenAndIdle
	return nil
}

// AcceptAsync stores cb as the single pending accept completion and
// transitions to StateOpenAndAccepting. It rejects with ErrorBusy if a
// callback is already pending, ErrorUninitialised if closed, and the
// sticky ErrorDisconnected if the Server has latched an unrecoverable
// error since Init. On success it also triggers the acceptor software
// event immediately, so an already-established connection (or an
// already-latched error) is delivered without waiting on further reactor
// activity.
func (a *AcceptorImpl) AcceptAsync(cb AcceptCallback) liberr.Error {
	a.mu.Lock()

	if a.state == StateClosed {
		a.mu.Unlock()
		return ErrorUninitialised.Error(nil)
	}
	if a.pending != nil {
		a.mu.Unlock()
		return ErrorBusy.Error(nil)
	}
	if serr := a.srv.Status(); serr != nil {
		a.mu.Unlock()
		return ErrorDisconnected.Error(serr)
	}

	a.pending = cb
	a.state = StateOpenAndAccepting
	id := a.selfID
	a.mu.Unlock()

	_ = a.disp.TriggerSoftwareEvent(id)
	return nil
}

// Close unregisters every reactor entry owned by this acceptor (the
// Dispatcher defers destruction of any entry currently executing until
// its callback returns), destroys the Server, and transitions to
// StateClosed. Idempotent.
func (a *AcceptorImpl) Close() liberr.Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked()
}

func (a *AcceptorImpl) closeLocked() liberr.Error {
	if a.state == StateClosed {
		return nil
	}
	a.disp.Unregister(a.selfID)
	if serr := a.srv.Stop(); serr != nil {
		a.logf(loglvl.WarnLevel, "server stop reported an error during acceptor close", serr)
	}
	a.pending = nil
	a.state = StateClosed
	return nil
}

// CloseAndAssertNoCallbackExecuting behaves like Close but additionally
// aborts the process (via ipcerr.Abort) if a user callback is currently
// executing, for deterministic shutdown (spec §4.5).
func (a *AcceptorImpl) CloseAndAssertNoCallbackExecuting() liberr.Error {
	a.mu.Lock()
	if a.executing {
		a.mu.Unlock()
		ipcerr.Abort(a.log, "acceptor", "close invoked while a user callback is executing", ErrorBusy.Error(nil))
		return nil
	}
	defer a.mu.Unlock()
	return a.closeLocked()
}

// onReactorEvent is the acceptor-level software-event handler (spec
// §4.5's "acceptor/server/backlog software-event handler" case of
// ReactorDispatcher.dispatch). It fires whenever the Server triggers the
// id passed to Start — on every newly established connection and on
// every coalesced backlog-error reap — as well as once synchronously from
// AcceptAsync itself.
func (a *AcceptorImpl) onReactorEvent(_ reactor.Id, _ reactor.IOEvents) {
	a.mu.Lock()

	if a.state != StateOpenAndAccepting || a.pending == nil {
		a.mu.Unlock()
		return
	}

	established := a.srv.HasEstablished()
	fatal := a.srv.Status()
	if !established && fatal == nil {
		a.mu.Unlock()
		return
	}

	cb := a.pending
	a.pending = nil
	a.executing = true
	a.mu.Unlock()

	var conn connection.Connection
	var cerr liberr.Error
	if fatal != nil {
		cerr = ErrorDisconnected.Error(fatal)
	} else {
		conn, cerr = a.srv.InitNextConnection()
	}

	cb(conn, cerr)

	a.mu.Lock()
	a.executing = false
	a.state = StateOpenAndIdle
	a.mu.Unlock()
}
