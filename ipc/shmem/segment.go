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

// Package shmem is the boundary-only shared-memory abstraction of spec
// §6: the core creates a server-to-client segment sized by negotiation
// and maps the two client-provided ids from message 1, but never
// interprets what lives inside any of them. Segment is deliberately thin
// — an id, a size, and a mapped byte slice — so downstream data-plane
// code (out of scope here) owns the ring-buffer layout.
package shmem

// Direction records which side of the handshake owns the write end of a
// mapped segment, mirroring the "matching directions" requirement of
// spec §6.
type Direction uint8

const (
	// DirectionServerToClient: this process writes, the peer reads.
	DirectionServerToClient Direction = iota
	// DirectionClientToServer: the peer writes, this process reads.
	DirectionClientToServer
	// DirectionNotification: the peer writes, used only as a wake-up
	// channel rather than a data carrier.
	DirectionNotification
)

// Segment is one mapped shared-memory region, either freshly created by
// this process or mapped from an id the peer supplied during the
// handshake.
type Segment interface {
	// ID is the per-process-unique identifier assigned at creation, or
	// the peer-supplied identifier this segment was mapped from.
	ID() uint64
	// Size is the mapped region's length in bytes.
	Size() int
	// Direction reports which side owns the write end.
	Direction() Direction
	// Bytes exposes the mapped region. The core never reads or writes
	// through it; it is handed to the constructed Connection verbatim.
	Bytes() []byte
	// Close unmaps the region and releases its backing resource.
	Close() error
}
