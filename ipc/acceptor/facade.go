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

package acceptor

import (
	liberr "github.com/nabbar/golib/errors"
	liblog "github.com/nabbar/golib/logger"

	"github.com/sabouaram/safeipc/ipc/connection"
	"github.com/sabouaram/safeipc/ipc/reactor"
	"github.com/sabouaram/safeipc/ipc/server"
	"github.com/sabouaram/safeipc/ipc/shmem"
)

// Acceptor is the public façade of spec §4.5's line 177: exactly the four
// commands (Init, AcceptAsync, Close, CloseAndAssertNoCallbackExecuting)
// and the two queries (IsOpen, IsInUse), forwarding to an owned
// AcceptorImpl. There is no CLI and no persisted state: every dependency
// (reactor handle, control-socket address, timer manager) is supplied at
// construction, the same way the teacher's thin protocol wrappers forward
// to their *Impl without adding behaviour of their own.
type Acceptor struct {
	impl *AcceptorImpl
}

// New constructs an Acceptor, closed until Init is called. r is the
// shared external Reactor; cfg names the control-socket address and the
// backlog/connection limits; shm is the shared-memory manager every
// established connection's segments are created through; tm is the
// timer policy (connection.NewRealTimerManager() in production, a
// connection.NewDummyTimerManager() in deterministic tests); log may be
// nil to disable diagnostics.
func New(r reactor.Reactor, cfg server.Config, shm *shmem.Manager, tm connection.TimerManager, log liblog.FuncLog) *Acceptor {
	return &Acceptor{impl: NewImpl(r, cfg, shm, tm, log)}
}

// Init initialises the acceptor: binds and starts the control socket,
// arming it to deliver established connections with an advertised s2c
// buffer size hint of bufferHint bytes.
func (a *Acceptor) Init(bufferHint uint64) liberr.Error {
	return a.impl.Init(bufferHint)
}

// AcceptAsync requests delivery of the next established connection (or
// the sticky disconnection error) to cb.
func (a *Acceptor) AcceptAsync(cb AcceptCallback) liberr.Error {
	return a.impl.AcceptAsync(cb)
}

// Close tears down the acceptor and its owned Server.
func (a *Acceptor) Close() liberr.Error {
	return a.impl.Close()
}

// CloseAndAssertNoCallbackExecuting is Close, but aborts the process if a
// user callback is executing at the time of the call.
func (a *Acceptor) CloseAndAssertNoCallbackExecuting() liberr.Error {
	return a.impl.CloseAndAssertNoCallbackExecuting()
}

// IsOpen reports whether the acceptor has been initialised and not yet
// closed.
func (a *Acceptor) IsOpen() bool {
	return a.impl.IsOpen()
}

// IsInUse reports whether the acceptor is open or a user callback is
// currently executing — i.e. whether destroying it right now would be
// unsafe.
func (a *Acceptor) IsInUse() bool {
	return a.impl.IsInUse()
}
