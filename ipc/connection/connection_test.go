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

package connection_test

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/golib/duration"

	"github.com/sabouaram/safeipc/ipc/connection"
	"github.com/sabouaram/safeipc/ipc/shmem"
	"github.com/sabouaram/safeipc/ipc/wire"
)

func socketpair() (serverFD, clientFD int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	Expect(err).To(BeNil())
	Expect(unix.SetNonblock(fds[0], true)).To(BeNil())
	return fds[0], fds[1]
}

var _ = Describe("IncomingConnection", func() {
	var (
		tr  *testReactor
		mgr *shmem.Manager
		cfg connection.Config
	)

	BeforeEach(func() {
		tr = startTestReactor(8)

		var err error
		mgr, err = shmem.NewManager(GinkgoT().TempDir())
		Expect(err).To(BeNil())

		cfg = connection.Config{
			MinBufferSize:    4096,
			ServerBufferHint: 65536,
			Timeout:          shortTimeout(),
		}
	})

	AfterEach(func() {
		tr.stop()
	})

	It("completes the three-message handshake and establishes a buffer sized by negotiation (scenario 1)", func() {
		serverFD, clientFD := socketpair()
		defer unix.Close(clientFD)

		var mu sync.Mutex
		var established *connection.IncomingConnection

		cb := connection.Callbacks{
			ReportEstablished: func(c *connection.IncomingConnection) {
				mu.Lock()
				established = c
				mu.Unlock()
			},
		}

		c2sSeg, err := mgr.Create(4096, shmem.DirectionClientToServer)
		Expect(err).To(BeNil())
		defer c2sSeg.Close()
		notifSeg, err := mgr.Create(4096, shmem.DirectionNotification)
		Expect(err).To(BeNil())
		defer notifSeg.Close()

		conn := connection.New(serverFD, tr.disp, mgr, connection.NewRealTimerManager(), cfg, cb)
		Expect(conn.State()).To(Equal(connection.StateReceivingMsg1))

		msg1 := wire.ClientToServerMessage1{
			ProtocolVersion:        wire.SupportedProtocolVersion,
			C2SShmID:               c2sSeg.ID(),
			NotificationShmID:      notifSeg.ID(),
			RequestedS2CBufferSize: 32768,
		}
		_, err = unix.Write(clientFD, msg1.Encode())
		Expect(err).To(BeNil())

		var reply [wire.ServerToClientMessage1Size]byte
		Eventually(func() int {
			n, _ := unix.Read(clientFD, reply[:])
			return n
		}, time.Second, 5*time.Millisecond).Should(Equal(wire.ServerToClientMessage1Size))
		s2c := wire.DecodeServerToClientMessage1(reply[:])
		Expect(s2c.S2CShmID).ToNot(BeZero())

		_, err = unix.Write(clientFD, []byte{0xAA})
		Expect(err).To(BeNil())

		Eventually(func() *connection.IncomingConnection {
			mu.Lock()
			defer mu.Unlock()
			return established
		}, time.Second, 5*time.Millisecond).ShouldNot(BeNil())

		got, ok := conn.Established()
		Expect(ok).To(BeTrue())
		Expect(got.ServerToClient.Size()).To(Equal(32768))
	})

	It("clamps the buffer size below the configured minimum (scenario 2)", func() {
		serverFD, clientFD := socketpair()
		defer unix.Close(clientFD)

		done := make(chan struct{})
		cb := connection.Callbacks{
			ReportEstablished: func(*connection.IncomingConnection) { close(done) },
		}

		c2sSeg, _ := mgr.Create(4096, shmem.DirectionClientToServer)
		defer c2sSeg.Close()
		notifSeg, _ := mgr.Create(4096, shmem.DirectionNotification)
		defer notifSeg.Close()

		conn := connection.New(serverFD, tr.disp, mgr, connection.NewRealTimerManager(), cfg, cb)

		msg1 := wire.ClientToServerMessage1{
			ProtocolVersion:        wire.SupportedProtocolVersion,
			C2SShmID:               c2sSeg.ID(),
			NotificationShmID:      notifSeg.ID(),
			RequestedS2CBufferSize: 256,
		}
		_, _ = unix.Write(clientFD, msg1.Encode())

		var reply [wire.ServerToClientMessage1Size]byte
		Eventually(func() int {
			n, _ := unix.Read(clientFD, reply[:])
			return n
		}, time.Second, 5*time.Millisecond).Should(Equal(wire.ServerToClientMessage1Size))

		_, _ = unix.Write(clientFD, []byte{0x00})
		Eventually(done, time.Second, 5*time.Millisecond).Should(BeClosed())

		got, ok := conn.Established()
		Expect(ok).To(BeTrue())
		Expect(got.ServerToClient.Size()).To(Equal(4096))
	})

	It("fails the slot on protocol version mismatch (scenario 4)", func() {
		serverFD, clientFD := socketpair()
		defer unix.Close(clientFD)

		errored := make(chan struct{})
		cb := connection.Callbacks{
			ReportError: func(*connection.IncomingConnection) { close(errored) },
		}

		conn := connection.New(serverFD, tr.disp, mgr, connection.NewRealTimerManager(), cfg, cb)

		msg1 := wire.ClientToServerMessage1{
			ProtocolVersion:        99,
			C2SShmID:               1,
			NotificationShmID:      2,
			RequestedS2CBufferSize: 4096,
		}
		_, _ = unix.Write(clientFD, msg1.Encode())

		Eventually(errored, time.Second, 5*time.Millisecond).Should(BeClosed())
		Expect(conn.State()).To(Equal(connection.StateFailed))

		_, ok := conn.Established()
		Expect(ok).To(BeFalse())
	})

	It("fails the slot after the per-connection timeout elapses with no progress", func() {
		serverFD, clientFD := socketpair()
		defer unix.Close(clientFD)

		errored := make(chan struct{})
		cb := connection.Callbacks{
			ReportError: func(*connection.IncomingConnection) { close(errored) },
		}

		cfg.Timeout = duration.ParseDuration(50 * time.Millisecond)
		conn := connection.New(serverFD, tr.disp, mgr, connection.NewRealTimerManager(), cfg, cb)

		Eventually(errored, time.Second, 5*time.Millisecond).Should(BeClosed())
		Expect(conn.State()).To(Equal(connection.StateFailed))
		Expect(conn.FailReason()).To(Equal("timeout"))
	})
})
