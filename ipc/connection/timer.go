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

package connection

import (
	"time"

	"github.com/nabbar/golib/duration"

	"github.com/sabouaram/safeipc/ipc/reactor"
)

// TimerManager is the "timer policy" design note of spec §9: a sum type
// of {none, user-driven} consulted at slot construction, modelled here
// as two implementations of one interface rather than a boolean flag
// threaded through every call site.
type TimerManager interface {
	// Arm schedules fire to run on the reactor's dispatch thread after d
	// elapses, and returns a handle to cancel it. fire is delivered
	// through a software event registered on disp, so it always runs on
	// the same thread as every other callback touching the connection.
	Arm(disp *reactor.Dispatcher, d duration.Duration, fire func()) TimerHandle
	// Disarm cancels a previously armed timer. Safe to call on an
	// already-fired or already-disarmed handle.
	Disarm(TimerHandle)
}

// TimerHandle is an opaque cancellation token returned by Arm.
type TimerHandle interface {
	cancel()
}

// realTimer is the "user-driven" policy: a genuine wall-clock deadline
// backed by time.AfterFunc, whose fire callback crosses onto the
// reactor thread via a software event rather than running inline on
// Go's timer goroutine.
type realTimer struct{}

// NewRealTimerManager returns the TimerManager used in production: every
// Arm call starts a real wall-clock countdown.
func NewRealTimerManager() TimerManager { return realTimer{} }

type realTimerHandle struct {
	t  *time.Timer
	id reactor.Id
	d  *reactor.Dispatcher
}

func (h *realTimerHandle) cancel() {
	h.t.Stop()
	if h.d != nil && !h.id.Zero() {
		h.d.Unregister(h.id)
	}
}

func (realTimer) Arm(disp *reactor.Dispatcher, d duration.Duration, fire func()) TimerHandle {
	h := &realTimerHandle{d: disp}
	id, err := disp.RegisterSoftwareEvent(func(reactor.Id, reactor.IOEvents) {
		fire()
	})
	if err == nil {
		h.id = id
	}
	h.t = time.AfterFunc(d.Time(), func() {
		if !h.id.Zero() {
			_ = disp.TriggerSoftwareEvent(h.id)
		}
	})
	return h
}

func (realTimer) Disarm(h TimerHandle) {
	if h != nil {
		h.cancel()
	}
}

// dummyTimer is the "none" policy: matches the "never give up" Acceptor
// constructor variant (spec §4.2) where no timeout ever fires.
type dummyTimer struct{}

// NewDummyTimerManager returns a TimerManager whose Arm never actually
// schedules anything.
func NewDummyTimerManager() TimerManager { return dummyTimer{} }

type dummyHandle struct{}

func (dummyHandle) cancel() {}

func (dummyTimer) Arm(*reactor.Dispatcher, duration.Duration, func()) TimerHandle {
	return dummyHandle{}
}

func (dummyTimer) Disarm(TimerHandle) {}
