//go:build linux || darwin

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

// Package server implements Server (spec §4.4): listening-socket
// lifecycle, admission control into the ConnectionBacklog, and
// coalesced upward notification of its parent (normally AcceptorImpl).
package server

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"

	"github.com/sabouaram/safeipc/ipc/backlog"
	"github.com/sabouaram/safeipc/ipc/connection"
	"github.com/sabouaram/safeipc/ipc/ipcerr"
	"github.com/sabouaram/safeipc/ipc/reactor"
	"github.com/sabouaram/safeipc/ipc/shmem"
)

// Server owns the listening socket and the backlog it feeds. disp, shm
// and tm must outlive the Server.
type Server struct {
	mu sync.Mutex

	cfg  Config
	log  liblog.FuncLog
	disp *reactor.Dispatcher
	shm  *shmem.Manager
	tm   connection.TimerManager

	running  bool
	lnFD     int
	listenID reactor.Id
	parentID reactor.Id

	bl        *backlog.Backlog
	backlogID reactor.Id

	err liberr.Error
}

// New constructs a Server; it does not bind anything until Start.
func New(cfg Config, disp *reactor.Dispatcher, shm *shmem.Manager, tm connection.TimerManager, log liblog.FuncLog) *Server {
	return &Server{cfg: cfg, disp: disp, shm: shm, tm: tm, log: log}
}

// MaxUsedSlots is the largest number of Dispatcher slots this Server
// will ever hold at once: one per backlog connection, plus the
// listening socket, plus the backlog's establishment-error software
// event (spec §4.5 capacity bookkeeping: "AcceptorImpl sizes its
// dispatcher at Server.max_used_slots + 2").
func (s *Server) MaxUsedSlots() int {
	return s.cfg.BacklogCapacity + 2
}

func (s *Server) logf(lvl loglvl.Level, msg string, data interface{}) {
	if s.log == nil {
		return
	}
	if l := s.log(); l != nil {
		l.Entry(lvl, msg).DataSet(data).Log()
	}
}

// Start creates and binds the listening socket, registers it for
// readable events, and creates the backlog. bufferHint is the server's
// advertised s2c buffer size hint (spec §4.2 negotiation);
// parentSoftEventID is the software event this Server triggers on
// every "newly established" and (coalesced) "accept error occurred"
// wake-up, per spec §4.4.
func (s *Server) Start(bufferHint uint64, parentSoftEventID reactor.Id) liberr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrorAlreadyRunning.Error(nil)
	}
	if verr := s.cfg.Validate(); verr != nil {
		return verr
	}

	if cur, _, raised, ferr := ensureFileDescriptorCapacity(s.cfg.BacklogCapacity); ferr != nil {
		s.logf(loglvl.WarnLevel, "could not query or raise the process file descriptor limit", ferr)
	} else if raised {
		s.logf(loglvl.InfoLevel, "raised process file descriptor limit for the configured backlog capacity", cur)
	}

	fd, berr := bindListener(s.cfg)
	if berr != nil {
		return berr
	}

	listenID, rerr := s.disp.RegisterFD(fd, reactor.EventRead, s.onAcceptable)
	if rerr != nil {
		_ = unix.Close(fd)
		_ = os.Remove(s.cfg.Address)
		// Spec §7: every reactor registration failure except a full slot
		// table is a programming error (the dispatcher was sized wrong).
		if !ipcerr.Is(rerr, ipcerr.KindResourceExhausted) {
			ipcerr.Abort(s.log, "server", "failed to register listening socket with the reactor", rerr)
		}
		return rerr
	}

	backlogID, serr := s.disp.RegisterSoftwareEvent(s.onBacklogErrorEvent)
	if serr != nil {
		s.disp.Unregister(listenID)
		_ = unix.Close(fd)
		_ = os.Remove(s.cfg.Address)
		if !ipcerr.Is(serr, ipcerr.KindResourceExhausted) {
			ipcerr.Abort(s.log, "server", "failed to register backlog error software event with the reactor", serr)
		}
		return serr
	}

	connCfg := connection.Config{
		MinBufferSize:    s.cfg.MinBufferSize,
		ServerBufferHint: bufferHint,
		Timeout:          s.cfg.ConnectionTimeout,
	}
	s.bl = backlog.New(s.cfg.BacklogCapacity, s.disp, s.shm, s.tm, connCfg, backlog.Events{
		OnEstablished: func() { _ = s.disp.TriggerSoftwareEvent(parentSoftEventID) },
		OnError:       func() { _ = s.disp.TriggerSoftwareEvent(backlogID) },
	})

	s.lnFD = fd
	s.listenID = listenID
	s.backlogID = backlogID
	s.parentID = parentSoftEventID
	s.running = true
	s.err = nil

	return nil
}

// Stop unregisters the listening socket, destroys the backlog (and
// every in-flight slot with it), and unregisters the
// establishment-error software event.
func (s *Server) Stop() liberr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrorNotRunning.Error(nil)
	}

	s.disp.Unregister(s.listenID)
	s.disp.Unregister(s.backlogID)
	if s.bl != nil {
		s.bl.CloseAll()
	}
	_ = unix.Close(s.lnFD)
	_ = os.Remove(s.cfg.Address)

	s.running = false
	s.bl = nil
	s.err = nil
	return nil
}

// Status returns the latched unrecoverable error, if any, without
// consuming it.
func (s *Server) Status() liberr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// HasEstablished forwards to the backlog.
func (s *Server) HasEstablished() bool {
	s.mu.Lock()
	bl := s.bl
	s.mu.Unlock()
	if bl == nil {
		return false
	}
	return bl.HasEstablished()
}

// InitNextConnection drains one established slot from the backlog and
// returns its hand-off Connection.
func (s *Server) InitNextConnection() (connection.Connection, liberr.Error) {
	s.mu.Lock()
	bl := s.bl
	s.mu.Unlock()

	if bl == nil {
		return connection.Connection{}, ErrorNotRunning.Error(nil)
	}

	c, terr := bl.TakeNextEstablished()
	if terr != nil {
		return connection.Connection{}, ErrorNoConnectionAvailable.Error(terr)
	}
	if perr := bl.PopLast(); perr != nil {
		s.logf(loglvl.ErrorLevel, "pop_last failed after take_next_established", perr)
	}
	return c, nil
}

// onAcceptable is the listening socket's reactor callback (spec §4.4
// "handling of the listening-socket readable event").
func (s *Server) onAcceptable(_ reactor.Id, events reactor.IOEvents) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	if events.Has(reactor.EventError) || events.Has(reactor.EventHangup) {
		s.latchErrorLocked(ErrorUnexpected.Error(nil))
		return
	}

	for {
		nfd, ok, aerr := acceptOne(s.lnFD)
		if aerr != nil {
			s.latchErrorLocked(aerr)
			return
		}
		if !ok {
			return
		}

		if s.bl.IsFull() {
			// Admission control: the client will retry (spec §4.4 step 2).
			_ = unix.Close(nfd)
			continue
		}
		if addErr := s.bl.Add(nfd); addErr != nil {
			_ = unix.Close(nfd)
			s.logf(loglvl.WarnLevel, "failed to add accepted descriptor to backlog", addErr)
		}
	}
}

// onBacklogErrorEvent is the backlog's establishment-error software
// event handler (spec §4.4's second paragraph).
func (s *Server) onBacklogErrorEvent(_ reactor.Id, _ reactor.IOEvents) {
	s.mu.Lock()
	if !s.running || s.bl == nil {
		s.mu.Unlock()
		return
	}
	bl := s.bl
	parent := s.parentID
	s.mu.Unlock()

	if n := bl.ReapFailed(); n > 0 {
		_ = s.disp.TriggerSoftwareEvent(parent)
	}
}

// latchErrorLocked stores the first unrecoverable error and removes the
// listening socket from the monitored set (spec §4.4 Server invariant:
// "once the error latch holds an error, the listening socket is removed
// ... and no new accepts are taken"). s.mu must already be held.
func (s *Server) latchErrorLocked(err liberr.Error) {
	if s.err != nil {
		return
	}
	s.err = err
	s.disp.Unregister(s.listenID)
	s.logf(loglvl.ErrorLevel, "server latched a fatal accept error", err)
	_ = s.disp.TriggerSoftwareEvent(s.parentID)
}
