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

// Package backlog implements ConnectionBacklog (spec §4.3): the
// fixed-capacity slot table of IncomingConnection handshakes, with the
// two observable counters (free_slots, established_count) and the
// extract-one-then-free protocol its consumer (Server) drives.
package backlog

import (
	"sync"

	liberr "github.com/nabbar/golib/errors"

	"github.com/sabouaram/safeipc/ipc/connection"
	"github.com/sabouaram/safeipc/ipc/reactor"
	"github.com/sabouaram/safeipc/ipc/shmem"
)

// Events are the two upward notifications a Backlog raises on its
// parent (spec §4.3 "triggers its software event on the backlog's
// parent"). The parent decides what triggering means — typically a
// reactor software event of its own.
type Events struct {
	OnEstablished func()
	OnError       func()
}

// Stats is a point-in-time occupancy snapshot, a supplemented
// observability surface the distilled spec omits but the original
// backlog's slot table trivially supports.
type Stats struct {
	Capacity    int
	Free        int
	Used        int
	Established int
	Failed      int
}

// Backlog is ConnectionBacklog: capacity fixed at construction,
// slots addressed only internally by index.
type Backlog struct {
	mu sync.Mutex

	disp *reactor.Dispatcher
	shm  *shmem.Manager
	tm   connection.TimerManager
	cfg  connection.Config
	ev   Events

	slots   []*connection.IncomingConnection
	free    []int
	taken   int // index returned by the last TakeNextEstablished, or -1
	estCnt  int
}

// New constructs a Backlog of the given capacity (32 in the reference
// deployment). disp, shm, tm and cfg are forwarded unchanged to every
// IncomingConnection the backlog creates via Add.
func New(capacity int, disp *reactor.Dispatcher, shm *shmem.Manager, tm connection.TimerManager, cfg connection.Config, ev Events) *Backlog {
	free := make([]int, capacity)
	for i := range free {
		free[i] = capacity - 1 - i
	}
	return &Backlog{
		disp:  disp,
		shm:   shm,
		tm:    tm,
		cfg:   cfg,
		ev:    ev,
		slots: make([]*connection.IncomingConnection, capacity),
		free:  free,
		taken: -1,
	}
}

// Capacity returns B, the fixed slot count.
func (b *Backlog) Capacity() int {
	return len(b.slots)
}

// IsFull reports whether no free slot remains.
func (b *Backlog) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.free) == 0
}

// Add allocates the first free slot, constructs an IncomingConnection
// on fd there, and starts its handshake. Precondition: not full; the
// caller (Server) must have already checked IsFull and closed fd
// itself otherwise (spec §4.4 admission control).
func (b *Backlog) Add(fd int) liberr.Error {
	b.mu.Lock()
	if len(b.free) == 0 {
		b.mu.Unlock()
		return ErrorBacklogFull.Error(nil)
	}
	idx := b.free[len(b.free)-1]
	b.free = b.free[:len(b.free)-1]
	b.mu.Unlock()

	cb := connection.Callbacks{
		ReportEstablished: func(*connection.IncomingConnection) { b.onEstablished(idx) },
		ReportError:       func(*connection.IncomingConnection) { b.onError(idx) },
	}
	conn := connection.New(fd, b.disp, b.shm, b.tm, b.cfg, cb)

	b.mu.Lock()
	b.slots[idx] = conn
	b.mu.Unlock()
	return nil
}

func (b *Backlog) onEstablished(idx int) {
	b.mu.Lock()
	b.estCnt++
	b.mu.Unlock()
	if b.ev.OnEstablished != nil {
		b.ev.OnEstablished()
	}
}

func (b *Backlog) onError(idx int) {
	if b.ev.OnError != nil {
		b.ev.OnError()
	}
}

// HasEstablished reports established_count > 0. Precondition-free: the
// "backlog is not full" precondition in the original source is believed
// to be a copy-paste artifact (this is a pure counter read).
func (b *Backlog) HasEstablished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.estCnt > 0
}

// TakeNextEstablished scans for the first slot in StateEstablished and
// returns its hand-off Connection. The returned value is invalidated by
// the subsequent PopLast. At most one slot may be taken at a time.
func (b *Backlog) TakeNextEstablished() (connection.Connection, liberr.Error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.taken != -1 {
		return connection.Connection{}, ErrorNoEstablishedSlot.Error(nil)
	}
	for i, s := range b.slots {
		if s == nil {
			continue
		}
		if c, ok := s.Established(); ok {
			b.taken = i
			return c, nil
		}
	}
	return connection.Connection{}, ErrorNoEstablishedSlot.Error(nil)
}

// PopLast destroys the slot previously returned by TakeNextEstablished,
// freeing it and decrementing established_count. Precondition: exactly
// one TakeNextEstablished since the last PopLast.
func (b *Backlog) PopLast() liberr.Error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.taken == -1 {
		return ErrorPopWithoutTake.Error(nil)
	}
	idx := b.taken
	b.taken = -1
	b.slots[idx] = nil
	b.free = append(b.free, idx)
	b.estCnt--
	return nil
}

// ReapFailed destroys every slot in StateFailed, returning each fd to
// the free pool. Called by Server in response to the backlog's
// establishment-error software event.
func (b *Backlog) ReapFailed() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for i, s := range b.slots {
		if s == nil || i == b.taken {
			continue
		}
		if s.State() == connection.StateFailed {
			s.Close()
			b.slots[i] = nil
			b.free = append(b.free, i)
			n++
		}
	}
	return n
}

// CloseAll destroys every occupied slot regardless of state, returning
// the backlog to free_slots == capacity. Used by Server.Stop (spec
// §4.4: "destroy backlog, which in turn destroys all in-flight slots").
func (b *Backlog) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.slots {
		if s == nil {
			continue
		}
		s.Close()
		b.slots[i] = nil
	}
	b.free = b.free[:0]
	for i := len(b.slots) - 1; i >= 0; i-- {
		b.free = append(b.free, i)
	}
	b.taken = -1
	b.estCnt = 0
}

// Stats returns a point-in-time occupancy snapshot.
func (b *Backlog) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := Stats{Capacity: len(b.slots), Free: len(b.free)}
	st.Used = st.Capacity - st.Free
	for _, s := range b.slots {
		if s == nil {
			continue
		}
		switch s.State() {
		case connection.StateEstablished:
			st.Established++
		case connection.StateFailed:
			st.Failed++
		}
	}
	return st
}
