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
	liberr "github.com/nabbar/golib/errors"

	"github.com/sabouaram/safeipc/ipc/ipcerr"
)

const (
	ErrorFDAlreadyRegistered liberr.CodeError = iota + liberr.MinPkgIpcReactor
	ErrorFDNotRegistered
	ErrorSoftwareEventNotRegistered
	ErrorSlotTableFull
	ErrorStaleId
	ErrorLoopClosed
	ErrorPollFailed
)

func init() {
	liberr.RegisterIdFctMessage(ErrorFDAlreadyRegistered, getMessage)
	ipcerr.Register(ErrorFDAlreadyRegistered, ipcerr.KindUnexpected)
	ipcerr.Register(ErrorFDNotRegistered, ipcerr.KindUnexpected)
	ipcerr.Register(ErrorSoftwareEventNotRegistered, ipcerr.KindUnexpected)
	ipcerr.Register(ErrorSlotTableFull, ipcerr.KindResourceExhausted)
	ipcerr.Register(ErrorStaleId, ipcerr.KindUnexpected)
	ipcerr.Register(ErrorLoopClosed, ipcerr.KindDisconnected)
	ipcerr.Register(ErrorPollFailed, ipcerr.KindUnexpected)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorFDAlreadyRegistered:
		return "file descriptor is already registered with the reactor"
	case ErrorFDNotRegistered:
		return "file descriptor is not registered with the reactor"
	case ErrorSoftwareEventNotRegistered:
		return "software event handle is not registered with the reactor"
	case ErrorSlotTableFull:
		return "dispatcher slot table is at capacity"
	case ErrorStaleId:
		return "dispatcher id refers to a slot that has since been reused"
	case ErrorLoopClosed:
		return "reactor loop is closed"
	case ErrorPollFailed:
		return "reactor loop poll syscall failed"
	}
	return ""
}
