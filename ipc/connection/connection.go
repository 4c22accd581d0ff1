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

// Package connection implements IncomingConnection (spec §4.2): the
// per-slot handshake state machine that takes one freshly accepted
// control-socket file descriptor through the three-message exchange to
// an established Connection, or fails it out within a bounded timeout.
package connection

import (
	"golang.org/x/sys/unix"

	"github.com/nabbar/golib/duration"

	"github.com/sabouaram/safeipc/ipc/reactor"
	"github.com/sabouaram/safeipc/ipc/shmem"
	"github.com/sabouaram/safeipc/ipc/wire"
)

// State is one of the six per-slot handshake states of spec §4.2.
type State uint8

const (
	StateReceivingMsg1 State = iota
	StateCreatingShm
	StateSendingMsg1
	StateReceivingMsg2
	StateEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceivingMsg1:
		return "receiving-msg1"
	case StateCreatingShm:
		return "creating-shm"
	case StateSendingMsg1:
		return "sending-msg1"
	case StateReceivingMsg2:
		return "receiving-msg2"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Config carries everything an IncomingConnection needs that is fixed
// for the lifetime of the Server owning it (spec §6: "configuration is
// passed by construction").
type Config struct {
	MinBufferSize    uint64
	ServerBufferHint uint64
	Timeout          duration.Duration
}

// Callbacks are the slot's two upward notifications into its
// ConnectionBacklog (spec §4.2 "success signalling").
type Callbacks struct {
	ReportEstablished func(*IncomingConnection)
	ReportError       func(*IncomingConnection)
}

// Connection is the fully initialised hand-off object produced by a slot
// that reached StateEstablished: the post-handshake control socket plus
// the three mapped shared-memory segments. The data plane (out of scope)
// owns everything past this point.
type Connection struct {
	FD               int
	ServerToClient   shmem.Segment
	ClientToServer   shmem.Segment
	Notification     shmem.Segment
	PeerCredentials  PeerCredentials
	HasPeerCreds     bool
}

// IncomingConnection is one backlog slot: one accepted peer, its
// handshake progress, and every resource it has acquired so far.
type IncomingConnection struct {
	fd   int
	cfg  Config
	disp *reactor.Dispatcher
	shm  *shmem.Manager
	cb   Callbacks
	tm   TimerManager

	state State
	ioID  reactor.Id
	timer TimerHandle

	peerCreds    PeerCredentials
	hasPeerCreds bool

	c2s  wire.ClientToServerMessage1
	recv []byte

	s2c     shmem.Segment
	sendBuf []byte
	sent    int

	c2sSeg  shmem.Segment
	notifSeg shmem.Segment

	failReason string
}

// New constructs a slot for a freshly accepted fd and immediately arms
// the handshake: registers fd for readable events and starts the
// per-connection timer. disp must outlive the slot.
func New(fd int, disp *reactor.Dispatcher, shm *shmem.Manager, tm TimerManager, cfg Config, cb Callbacks) *IncomingConnection {
	c := &IncomingConnection{
		fd:   fd,
		cfg:  cfg,
		disp: disp,
		shm:  shm,
		cb:   cb,
		tm:   tm,
		state: StateReceivingMsg1,
		recv:  make([]byte, 0, wire.ClientToServerMessage1Size),
	}

	c.peerCreds, c.hasPeerCreds = peerCredentialsFromFD(fd)

	id, err := disp.RegisterFD(fd, reactor.EventRead, c.onReactorEvent)
	if err != nil {
		c.fail("fd registration failed")
		return c
	}
	c.ioID = id
	c.timer = tm.Arm(disp, cfg.Timeout, func() { c.fail("timeout") })

	return c
}

// State reports the slot's current state.
func (c *IncomingConnection) State() State { return c.state }

// PeerCredentials returns the credentials captured at accept time, and
// whether capture is supported on this platform.
func (c *IncomingConnection) PeerCredentials() (PeerCredentials, bool) {
	return c.peerCreds, c.hasPeerCreds
}

// Established returns the hand-off Connection if the slot has reached
// StateEstablished.
func (c *IncomingConnection) Established() (Connection, bool) {
	if c.state != StateEstablished {
		return Connection{}, false
	}
	return Connection{
		FD:              c.fd,
		ServerToClient:  c.s2c,
		ClientToServer:  c.c2sSeg,
		Notification:    c.notifSeg,
		PeerCredentials: c.peerCreds,
		HasPeerCreds:    c.hasPeerCreds,
	}, true
}

// FailReason returns a short diagnostic string for a slot in StateFailed.
func (c *IncomingConnection) FailReason() string { return c.failReason }

func (c *IncomingConnection) onReactorEvent(_ reactor.Id, events reactor.IOEvents) {
	if events.Has(reactor.EventError) || events.Has(reactor.EventHangup) {
		c.fail("control socket error")
		return
	}

	switch c.state {
	case StateReceivingMsg1:
		c.handleReceiveMsg1()
	case StateSendingMsg1:
		c.handleSendMsg1()
	case StateReceivingMsg2:
		c.handleReceiveMsg2()
	default:
		// A stray readable/writable event for a state that does no I/O
		// (e.g. the synchronous StateCreatingShm) is not itself an error;
		// it is simply ignored until the state machine rearms the fd.
	}
}

func (c *IncomingConnection) handleReceiveMsg1() {
	buf := make([]byte, wire.ClientToServerMessage1Size-len(c.recv))
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.fail("read error on msg1")
		return
	}
	if n == 0 {
		c.fail("peer closed during msg1")
		return
	}
	c.recv = append(c.recv, buf[:n]...)
	if len(c.recv) < wire.ClientToServerMessage1Size {
		return
	}

	c.c2s = wire.DecodeClientToServerMessage1(c.recv)
	if c.c2s.ProtocolVersion != wire.SupportedProtocolVersion {
		c.fail("protocol mismatch")
		return
	}

	c2sSeg, err1 := c.shm.Map(c.c2s.C2SShmID, int(c.c2s.RequestedS2CBufferSize), shmem.DirectionClientToServer)
	if err1 != nil {
		c.fail("client-to-server shm map failed")
		return
	}
	c.c2sSeg = c2sSeg

	notifSeg, err2 := c.shm.Map(c.c2s.NotificationShmID, int(c.cfg.MinBufferSize), shmem.DirectionNotification)
	if err2 != nil {
		c.fail("notification shm map failed")
		return
	}
	c.notifSeg = notifSeg

	c.state = StateCreatingShm
	c.handleCreateShm()
}

func (c *IncomingConnection) handleCreateShm() {
	size := shmem.EffectiveSize(c.cfg.MinBufferSize, c.c2s.RequestedS2CBufferSize, c.cfg.ServerBufferHint)

	seg, err := c.shm.Create(int(size), shmem.DirectionServerToClient)
	if err != nil {
		c.fail("server-to-client shm create failed")
		return
	}
	c.s2c = seg

	msg := wire.ServerToClientMessage1{S2CShmID: seg.ID()}
	c.sendBuf = msg.Encode()
	c.sent = 0

	if err := c.disp.SetEvents(c.ioID, reactor.EventWrite); err != nil {
		c.fail("rearm writable failed")
		return
	}
	c.state = StateSendingMsg1
}

func (c *IncomingConnection) handleSendMsg1() {
	n, err := unix.Write(c.fd, c.sendBuf[c.sent:])
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.fail("write error on msg1")
		return
	}
	c.sent += n
	if c.sent < len(c.sendBuf) {
		return
	}

	if err := c.disp.SetEvents(c.ioID, reactor.EventRead); err != nil {
		c.fail("rearm readable failed")
		return
	}
	c.state = StateReceivingMsg2
}

func (c *IncomingConnection) handleReceiveMsg2() {
	var b [wire.ClientToServerMessage2Size]byte
	n, err := unix.Read(c.fd, b[:])
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.fail("read error on msg2")
		return
	}
	if n == 0 {
		c.fail("peer closed during msg2")
		return
	}

	// The sentinel byte's value is explicitly immaterial (spec §4.2,
	// §6): any single byte completes the handshake.
	c.tm.Disarm(c.timer)
	c.state = StateEstablished

	if c.cb.ReportEstablished != nil {
		c.cb.ReportEstablished(c)
	}
}

// fail transitions the slot to StateFailed, releasing every resource
// acquired so far, exactly once. It is idempotent: calling it on an
// already-failed or already-established slot is a no-op.
func (c *IncomingConnection) fail(reason string) {
	if c.state == StateFailed || c.state == StateEstablished {
		return
	}
	c.failReason = reason
	c.state = StateFailed
	c.releaseResources()

	if c.cb.ReportError != nil {
		c.cb.ReportError(c)
	}
}

// Close releases a non-terminal slot exactly as a failure would (spec
// §4.2: "the destructor performs exactly the cleanup of a kFailed
// transition"), without reporting an error for slots already terminal.
func (c *IncomingConnection) Close() {
	if c.state != StateFailed && c.state != StateEstablished {
		c.fail("closed")
	}
}

func (c *IncomingConnection) releaseResources() {
	if c.tm != nil {
		c.tm.Disarm(c.timer)
	}
	if c.disp != nil && !c.ioID.Zero() {
		c.disp.Unregister(c.ioID)
	}
	if c.c2sSeg != nil {
		_ = c.c2sSeg.Close()
		c.c2sSeg = nil
	}
	if c.notifSeg != nil {
		_ = c.notifSeg.Close()
		c.notifSeg = nil
	}
	if c.s2c != nil {
		_ = c.s2c.Close()
		c.s2c = nil
	}
	_ = unix.Close(c.fd)
}
