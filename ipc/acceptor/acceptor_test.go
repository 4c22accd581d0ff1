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

package acceptor_test

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	liberr "github.com/nabbar/golib/errors"

	"github.com/sabouaram/safeipc/ipc/acceptor"
	"github.com/sabouaram/safeipc/ipc/connection"
	"github.com/sabouaram/safeipc/ipc/server"
	"github.com/sabouaram/safeipc/ipc/shmem"
)

var _ = Describe("Acceptor", func() {
	var (
		tr   *testReactor
		mgr  *shmem.Manager
		path string
		a    *acceptor.Acceptor
	)

	BeforeEach(func() {
		tr = startTestReactor()

		var err error
		mgr, err = shmem.NewManager(GinkgoT().TempDir())
		Expect(err).To(BeNil())

		path = filepath.Join(GinkgoT().TempDir(), "ctrl.sock")

		cfg := server.Config{
			Address:           path,
			GroupPerm:         -1,
			BacklogCapacity:   4,
			MinBufferSize:     4096,
			ConnectionTimeout: shortTimeout(),
		}
		a = acceptor.New(tr.loop, cfg, mgr, connection.NewRealTimerManager(), nil)
	})

	AfterEach(func() {
		_ = a.Close()
		tr.stop()
	})

	It("starts closed and transitions to open on Init", func() {
		Expect(a.IsOpen()).To(BeFalse())
		Expect(a.Init(65536)).To(BeNil())
		Expect(a.IsOpen()).To(BeTrue())
	})

	It("rejects a second Init with ErrorAlreadyInitialised", func() {
		Expect(a.Init(65536)).To(BeNil())
		err := a.Init(65536)
		Expect(err).ToNot(BeNil())
		Expect(err.IsCode(acceptor.ErrorAlreadyInitialised)).To(BeTrue())
	})

	It("rejects AcceptAsync before Init with ErrorUninitialised", func() {
		err := a.AcceptAsync(func(connection.Connection, liberr.Error) {})
		Expect(err).ToNot(BeNil())
	})

	It("delivers an established connection to the pending callback", func() {
		Expect(a.Init(65536)).To(BeNil())

		var got int32
		var connOK int32
		Expect(a.AcceptAsync(func(c connection.Connection, cerr liberr.Error) {
			atomic.AddInt32(&got, 1)
			if cerr == nil && c.ServerToClient.Size() == 32768 {
				atomic.AddInt32(&connOK, 1)
			}
		})).To(BeNil())

		clientFD := dialControlSocket(path)
		defer unix.Close(clientFD)

		c2sSeg, err := mgr.Create(4096, shmem.DirectionClientToServer)
		Expect(err).To(BeNil())
		defer c2sSeg.Close()
		notifSeg, err := mgr.Create(4096, shmem.DirectionNotification)
		Expect(err).To(BeNil())
		defer notifSeg.Close()

		writeMsg1(clientFD, c2sSeg.ID(), notifSeg.ID(), 32768)
		readReply(clientFD)
		_, _ = unix.Write(clientFD, []byte{0x01})

		Eventually(func() int32 { return atomic.LoadInt32(&got) }, time.Second, 5*time.Millisecond).Should(Equal(int32(1)))
		Expect(atomic.LoadInt32(&connOK)).To(Equal(int32(1)))
	})

	It("rejects a second AcceptAsync while one is pending with ErrorBusy", func() {
		Expect(a.Init(65536)).To(BeNil())
		Expect(a.AcceptAsync(func(connection.Connection, liberr.Error) {})).To(BeNil())

		err := a.AcceptAsync(func(connection.Connection, liberr.Error) {})
		Expect(err).ToNot(BeNil())
		Expect(err.IsCode(acceptor.ErrorBusy)).To(BeTrue())
	})

	It("reports IsInUse while open and not in use once closed", func() {
		Expect(a.Init(65536)).To(BeNil())
		Expect(a.IsInUse()).To(BeTrue())
		Expect(a.Close()).To(BeNil())
		Expect(a.IsInUse()).To(BeFalse())
		Expect(a.IsOpen()).To(BeFalse())
	})
})
