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

// Package reactor provides the ReactorDispatcher indirection described in
// spec §4.1: a fixed-capacity table of callback entries, each addressed by
// an opaque (index, sequence) Id, multiplexed through a single external
// Reactor and a single owner entry point (Dispatch).
//
// Reactor itself is the external collaborator (spec §1 lists "the
// external reactor shared across many subsystems" as a given); Loop is
// this module's concrete implementation of it, grounded on
// joeycumines-go-utilpkg/eventloop's epoll/poll wiring idiom (see
// DESIGN.md) rather than on a hand-rolled busy loop.
package reactor

import "context"

// IOEvents is a bitmask of the I/O readiness conditions a Reactor can
// report for a registered file descriptor.
type IOEvents uint8

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

func (e IOEvents) Has(f IOEvents) bool { return e&f != 0 }

// FDCallback is invoked by the Reactor when a registered file descriptor
// becomes ready for one or more of its registered events.
type FDCallback func(events IOEvents)

// SoftwareEventHandle opaquely identifies a software event registration
// with the underlying Reactor. It is private to a Reactor implementation;
// ReactorDispatcher never inspects it, only stores and replays it.
type SoftwareEventHandle uint64

// Reactor is the external event-loop facility to which file descriptors
// and software events are registered (GLOSSARY). A Reactor instance may
// be shared across many subsystems; ReactorDispatcher is the per-subsystem
// indirection that serialises access to one owner's callbacks (spec
// §4.1). All methods must be safe to call from arbitrary goroutines;
// callback invocation itself always happens on the Reactor's single
// dispatch thread (spec §5).
type Reactor interface {
	// RegisterFD arms cb to run on readiness matching events. Returns
	// ErrFDAlreadyRegistered if fd is already registered.
	RegisterFD(fd int, events IOEvents, cb FDCallback) error
	// UnregisterFD disarms fd. Returns ErrFDNotRegistered if fd was never
	// registered (or was already unregistered).
	UnregisterFD(fd int) error
	// SetFDEvents replaces the event mask monitored for fd.
	SetFDEvents(fd int, events IOEvents) error
	// AddFDEvents ORs extra into the event mask monitored for fd.
	AddFDEvents(fd int, extra IOEvents) error
	// RemoveFDEvents clears bits in the event mask monitored for fd.
	RemoveFDEvents(fd int, remove IOEvents) error

	// RegisterSoftwareEvent allocates a new zero-payload, coalescable
	// wake-up (GLOSSARY "Software event"). The callback runs on the
	// Reactor's dispatch thread the next time the event is triggered.
	RegisterSoftwareEvent(cb func()) (SoftwareEventHandle, error)
	// UnregisterSoftwareEvent releases a software event. Triggering it
	// afterwards is a no-op.
	UnregisterSoftwareEvent(h SoftwareEventHandle) error
	// TriggerSoftwareEvent schedules h's callback to run. Idempotent:
	// triggering an already-pending event does nothing until it runs.
	TriggerSoftwareEvent(h SoftwareEventHandle) error

	// Run drives the Reactor's dispatch loop until ctx is cancelled or
	// Close is called.
	Run(ctx context.Context) error
	// Close stops the Reactor and releases its kernel resources. Safe to
	// call concurrently with Run from another goroutine.
	Close() error
}
