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
	liberr "github.com/nabbar/golib/errors"

	"github.com/sabouaram/safeipc/ipc/ipcerr"
)

const (
	ErrorProtocolMismatch liberr.CodeError = iota + liberr.MinPkgIpcConnection
	ErrorShmMapFailed
	ErrorTimeout
	ErrorIO
	ErrorWrongState
)

func init() {
	liberr.RegisterIdFctMessage(ErrorProtocolMismatch, getMessage)
	ipcerr.Register(ErrorProtocolMismatch, ipcerr.KindUnexpected)
	ipcerr.Register(ErrorShmMapFailed, ipcerr.KindFilesystemError)
	ipcerr.Register(ErrorTimeout, ipcerr.KindUnexpected)
	ipcerr.Register(ErrorIO, ipcerr.KindUnexpected)
	ipcerr.Register(ErrorWrongState, ipcerr.KindUnexpected)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorProtocolMismatch:
		return "client protocol version is not supported"
	case ErrorShmMapFailed:
		return "failed to map a peer-provided shared-memory id"
	case ErrorTimeout:
		return "handshake exceeded the per-connection establishment timeout"
	case ErrorIO:
		return "control-socket I/O error during handshake"
	case ErrorWrongState:
		return "operation is not valid in the connection's current state"
	}
	return ""
}
