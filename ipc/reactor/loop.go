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

package reactor

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/golib/errors"
)

// Loop is the concrete Reactor backing this module, grounded on
// joeycumines-go-utilpkg/eventloop's poller_linux.go wiring idiom: a
// direct-indexed file-descriptor table polled through a kernel readiness
// call, woken early by a self-pipe when state changes from another
// goroutine. Unlike poller_linux.go this uses unix.Poll rather than epoll
// so the same implementation covers both build-tagged platforms without a
// second kqueue-specific file.
type Loop struct {
	mu      sync.Mutex
	fds     map[int]*fdEntry
	soft    map[SoftwareEventHandle]func()
	pending map[SoftwareEventHandle]struct{}
	nextSE  uint64

	wakeR int
	wakeW int

	closed atomic.Bool
}

type fdEntry struct {
	events IOEvents
	cb     FDCallback
}

// NewLoop constructs a Loop and arms its internal wake-up pipe. Callers
// must eventually call Close to release the pipe's file descriptors.
func NewLoop() (*Loop, liberr.Error) {
	fds, e := newPipe()
	if e != nil {
		return nil, ErrorPollFailed.Error(e)
	}

	l := &Loop{
		fds:     make(map[int]*fdEntry),
		soft:    make(map[SoftwareEventHandle]func()),
		pending: make(map[SoftwareEventHandle]struct{}),
		wakeR:   fds[0],
		wakeW:   fds[1],
	}

	return l, nil
}

func newPipe() ([2]int, error) {
	var fds [2]int
	p := make([]int, 2)
	if err := unix.Pipe2(p, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return fds, err
	}
	fds[0], fds[1] = p[0], p[1]
	return fds, nil
}

func (l *Loop) wake() {
	var b [1]byte
	_, _ = unix.Write(l.wakeW, b[:])
}

func (l *Loop) RegisterFD(fd int, events IOEvents, cb FDCallback) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return ErrorLoopClosed.Error(nil)
	}
	if _, ok := l.fds[fd]; ok {
		return ErrorFDAlreadyRegistered.Error(nil)
	}
	l.fds[fd] = &fdEntry{events: events, cb: cb}
	l.wake()
	return nil
}

func (l *Loop) UnregisterFD(fd int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.fds[fd]; !ok {
		return ErrorFDNotRegistered.Error(nil)
	}
	delete(l.fds, fd)
	l.wake()
	return nil
}

func (l *Loop) SetFDEvents(fd int, events IOEvents) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.fds[fd]
	if !ok {
		return ErrorFDNotRegistered.Error(nil)
	}
	e.events = events
	l.wake()
	return nil
}

func (l *Loop) AddFDEvents(fd int, extra IOEvents) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.fds[fd]
	if !ok {
		return ErrorFDNotRegistered.Error(nil)
	}
	e.events |= extra
	l.wake()
	return nil
}

func (l *Loop) RemoveFDEvents(fd int, remove IOEvents) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.fds[fd]
	if !ok {
		return ErrorFDNotRegistered.Error(nil)
	}
	e.events &^= remove
	l.wake()
	return nil
}

func (l *Loop) RegisterSoftwareEvent(cb func()) (SoftwareEventHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return 0, ErrorLoopClosed.Error(nil)
	}
	l.nextSE++
	h := SoftwareEventHandle(l.nextSE)
	l.soft[h] = cb
	return h, nil
}

func (l *Loop) UnregisterSoftwareEvent(h SoftwareEventHandle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.soft[h]; !ok {
		return ErrorSoftwareEventNotRegistered.Error(nil)
	}
	delete(l.soft, h)
	delete(l.pending, h)
	return nil
}

func (l *Loop) TriggerSoftwareEvent(h SoftwareEventHandle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.soft[h]; !ok {
		return ErrorSoftwareEventNotRegistered.Error(nil)
	}
	l.pending[h] = struct{}{}
	l.wake()
	return nil
}

// Run polls registered descriptors until ctx is cancelled or Close is
// called. It is intended to run on a single, dedicated goroutine; all
// registration methods are safe to call from any other goroutine while
// Run is active.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if l.closed.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		pollfds, order := l.buildPollSet()

		n, err := unix.Poll(pollfds, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return ErrorPollFailed.Error(err)
		}
		if n == 0 {
			continue
		}

		l.dispatchReady(pollfds, order)
	}
}

func (l *Loop) buildPollSet() ([]unix.PollFd, []int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pollfds := make([]unix.PollFd, 0, len(l.fds)+1)
	order := make([]int, 0, len(l.fds)+1)

	pollfds = append(pollfds, unix.PollFd{Fd: int32(l.wakeR), Events: unix.POLLIN})
	order = append(order, -1)

	for fd, e := range l.fds {
		var mask int16
		if e.events.Has(EventRead) {
			mask |= unix.POLLIN
		}
		if e.events.Has(EventWrite) {
			mask |= unix.POLLOUT
		}
		pollfds = append(pollfds, unix.PollFd{Fd: int32(fd), Events: mask})
		order = append(order, fd)
	}

	return pollfds, order
}

func (l *Loop) dispatchReady(pollfds []unix.PollFd, order []int) {
	var drainWake bool
	type ready struct {
		cb     FDCallback
		events IOEvents
	}
	var callbacks []ready

	l.mu.Lock()
	for i, pfd := range pollfds {
		if pfd.Revents == 0 {
			continue
		}
		if order[i] == -1 {
			drainWake = true
			continue
		}
		e, ok := l.fds[order[i]]
		if !ok {
			continue
		}
		var got IOEvents
		if pfd.Revents&unix.POLLIN != 0 {
			got |= EventRead
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			got |= EventWrite
		}
		if pfd.Revents&unix.POLLERR != 0 {
			got |= EventError
		}
		if pfd.Revents&(unix.POLLHUP|unix.POLLNVAL) != 0 {
			got |= EventHangup
		}
		callbacks = append(callbacks, ready{cb: e.cb, events: got})
	}

	var softCallbacks []func()
	if drainWake {
		var buf [64]byte
		for {
			n, _ := unix.Read(l.wakeR, buf[:])
			if n <= 0 {
				break
			}
		}
		for h := range l.pending {
			if cb, ok := l.soft[h]; ok {
				softCallbacks = append(softCallbacks, cb)
			}
		}
		l.pending = make(map[SoftwareEventHandle]struct{})
	}
	l.mu.Unlock()

	for _, r := range callbacks {
		r.cb(r.events)
	}
	for _, cb := range softCallbacks {
		cb()
	}
}

func (l *Loop) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.wake()
	_ = unix.Close(l.wakeR)
	_ = unix.Close(l.wakeW)
	return nil
}
