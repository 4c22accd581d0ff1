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
	"sync"

	liberr "github.com/nabbar/golib/errors"
)

// Id addresses one entry in a Dispatcher's slot table. Index selects the
// slot; Sequence disambiguates a slot across its reuse history, so an Id
// captured before a slot was unregistered and reused for something else
// is detected as stale rather than silently firing the new owner's
// callback.
type Id struct {
	index    int
	sequence uint64
}

// Zero reports whether this Id was never assigned (the zero value).
func (id Id) Zero() bool { return id.sequence == 0 }

// EntryKind distinguishes the two kinds of registration a slot can hold.
type EntryKind uint8

const (
	kindFD EntryKind = iota
	kindSoftware
)

type slot struct {
	sequence uint64
	kind     EntryKind
	inUse    bool
	executing bool
	pendingDestroy bool

	fd     int
	events IOEvents
	se     SoftwareEventHandle

	cb func(Id, IOEvents)
}

// Dispatcher is the ReactorDispatcher of spec §4.1: a fixed-capacity
// table of callback entries multiplexed through a single Reactor and a
// single owner entry point. One Dispatcher instance belongs to exactly
// one owner (e.g. one Server, one IncomingConnection); the owner never
// touches the Reactor directly once it holds a Dispatcher.
//
// All public methods are safe to call from the owner's own callbacks
// (including from within Dispatch, where unregistering the currently
// executing slot defers destruction of its bookkeeping until Dispatch
// returns) but are not safe to call concurrently with Dispatch from a
// second goroutine — the owner is expected to serialise access to its
// own Dispatcher exactly as it serialises access to its own state.
type Dispatcher struct {
	mu      sync.Mutex
	r       Reactor
	slots   []slot
	free    []int
}

// NewDispatcher creates a Dispatcher of the given fixed capacity backed
// by r. capacity must be at least 1.
func NewDispatcher(r Reactor, capacity int) *Dispatcher {
	d := &Dispatcher{
		r:     r,
		slots: make([]slot, capacity),
		free:  make([]int, capacity),
	}
	for i := 0; i < capacity; i++ {
		d.free[i] = capacity - 1 - i
	}
	return d
}

func (d *Dispatcher) allocate() (int, liberr.Error) {
	if len(d.free) == 0 {
		return 0, ErrorSlotTableFull.Error(nil)
	}
	idx := d.free[len(d.free)-1]
	d.free = d.free[:len(d.free)-1]
	return idx, nil
}

// RegisterFD registers fd for events, invoking cb(id, events) on the
// owner's single dispatch entry point whenever fd becomes ready. The
// returned Id is the handle to use for SetEvents/AddEvents/RemoveEvents
// and Unregister.
func (d *Dispatcher) RegisterFD(fd int, events IOEvents, cb func(Id, IOEvents)) (Id, liberr.Error) {
	d.mu.Lock()
	idx, e := d.allocate()
	if e != nil {
		d.mu.Unlock()
		return Id{}, e
	}

	s := &d.slots[idx]
	s.sequence++
	s.kind = kindFD
	s.inUse = true
	s.executing = false
	s.pendingDestroy = false
	s.fd = fd
	s.events = events
	s.cb = cb
	id := Id{index: idx, sequence: s.sequence}
	d.mu.Unlock()

	if err := d.r.RegisterFD(fd, events, func(ev IOEvents) { d.dispatch(id, ev) }); err != nil {
		d.mu.Lock()
		d.release(idx)
		d.mu.Unlock()
		return Id{}, liberr.Make(err)
	}

	return id, nil
}

// RegisterSoftwareEvent registers a zero-payload wake-up. cb(id, 0) runs
// on the owner's dispatch entry point each time TriggerSoftwareEvent
// fires (coalesced: multiple triggers before the callback runs collapse
// into one invocation).
func (d *Dispatcher) RegisterSoftwareEvent(cb func(Id, IOEvents)) (Id, liberr.Error) {
	d.mu.Lock()
	idx, e := d.allocate()
	if e != nil {
		d.mu.Unlock()
		return Id{}, e
	}

	s := &d.slots[idx]
	s.sequence++
	s.kind = kindSoftware
	s.inUse = true
	s.executing = false
	s.pendingDestroy = false
	s.cb = cb
	id := Id{index: idx, sequence: s.sequence}
	d.mu.Unlock()

	h, err := d.r.RegisterSoftwareEvent(func() { d.dispatch(id, 0) })
	if err != nil {
		d.mu.Lock()
		d.release(idx)
		d.mu.Unlock()
		return Id{}, liberr.Make(err)
	}

	d.mu.Lock()
	d.slots[idx].se = h
	d.mu.Unlock()

	return id, nil
}

// SetEvents replaces the event mask for the fd registration at id.
func (d *Dispatcher) SetEvents(id Id, events IOEvents) liberr.Error {
	s, ok := d.lookup(id)
	if !ok {
		return ErrorStaleId.Error(nil)
	}
	if err := d.r.SetFDEvents(s.fd, events); err != nil {
		return liberr.Make(err)
	}
	d.mu.Lock()
	d.slots[id.index].events = events
	d.mu.Unlock()
	return nil
}

// AddEvents ORs extra into the event mask for the fd registration at id.
func (d *Dispatcher) AddEvents(id Id, extra IOEvents) liberr.Error {
	s, ok := d.lookup(id)
	if !ok {
		return ErrorStaleId.Error(nil)
	}
	if err := d.r.AddFDEvents(s.fd, extra); err != nil {
		return liberr.Make(err)
	}
	d.mu.Lock()
	d.slots[id.index].events |= extra
	d.mu.Unlock()
	return nil
}

// RemoveEvents clears bits in the event mask for the fd registration at id.
func (d *Dispatcher) RemoveEvents(id Id, remove IOEvents) liberr.Error {
	s, ok := d.lookup(id)
	if !ok {
		return ErrorStaleId.Error(nil)
	}
	if err := d.r.RemoveFDEvents(s.fd, remove); err != nil {
		return liberr.Make(err)
	}
	d.mu.Lock()
	d.slots[id.index].events &^= remove
	d.mu.Unlock()
	return nil
}

// TriggerSoftwareEvent schedules the software-event callback at id to run.
func (d *Dispatcher) TriggerSoftwareEvent(id Id) liberr.Error {
	s, ok := d.lookup(id)
	if !ok {
		return ErrorStaleId.Error(nil)
	}
	if err := d.r.TriggerSoftwareEvent(s.se); err != nil {
		return liberr.Make(err)
	}
	return nil
}

// Unregister releases the slot at id. If id currently identifies the slot
// whose callback is executing (a self-unregister from within Dispatch),
// destruction of the underlying Reactor registration is deferred until
// Dispatch finishes invoking it, so the slot's fields remain valid for
// the remainder of the callback. A stale id is a silent no-op, since the
// caller cannot distinguish "already gone" from "never existed" and
// spec §4.1 requires neither to be an error.
func (d *Dispatcher) Unregister(id Id) {
	d.mu.Lock()
	if id.index < 0 || id.index >= len(d.slots) {
		d.mu.Unlock()
		return
	}
	s := &d.slots[id.index]
	if !s.inUse || s.sequence != id.sequence {
		d.mu.Unlock()
		return
	}
	if s.executing {
		s.pendingDestroy = true
		d.mu.Unlock()
		return
	}
	kind, fd := s.kind, s.fd
	d.release(id.index)
	d.mu.Unlock()

	if kind == kindFD {
		_ = d.r.UnregisterFD(fd)
	} else {
		_ = d.r.UnregisterSoftwareEvent(s.se)
	}
}

// release returns idx to the free list. Callers must hold d.mu.
func (d *Dispatcher) release(idx int) {
	d.slots[idx].inUse = false
	d.slots[idx].cb = nil
	d.free = append(d.free, idx)
}

func (d *Dispatcher) lookup(id Id) (*slot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id.index < 0 || id.index >= len(d.slots) {
		return nil, false
	}
	s := &d.slots[id.index]
	if !s.inUse || s.sequence != id.sequence {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// dispatch is the trampoline installed with the underlying Reactor. It
// suppresses stale ids (slots that were unregistered and possibly reused
// since this callback was armed) and guarantees the owner's callback is
// never invoked twice for a single event delivery.
func (d *Dispatcher) dispatch(id Id, events IOEvents) {
	d.mu.Lock()
	if id.index < 0 || id.index >= len(d.slots) {
		d.mu.Unlock()
		return
	}
	s := &d.slots[id.index]
	if !s.inUse || s.sequence != id.sequence {
		d.mu.Unlock()
		return
	}
	cb := s.cb
	s.executing = true
	d.mu.Unlock()

	if cb != nil {
		cb(id, events)
	}

	d.mu.Lock()
	s.executing = false
	destroy := s.pendingDestroy
	kind, fd, se := s.kind, s.fd, s.se
	if destroy {
		d.release(id.index)
	}
	d.mu.Unlock()

	if destroy {
		if kind == kindFD {
			_ = d.r.UnregisterFD(fd)
		} else {
			_ = d.r.UnregisterSoftwareEvent(se)
		}
	}
}

// Len reports how many slots are currently in use, for diagnostics and tests.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.slots) - len(d.free)
}

// Cap reports the fixed slot-table capacity.
func (d *Dispatcher) Cap() int {
	return len(d.slots)
}
