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

package server

import (
	liberr "github.com/nabbar/golib/errors"

	"github.com/sabouaram/safeipc/ipc/ipcerr"
)

const (
	ErrorInvalidConfig liberr.CodeError = iota + liberr.MinPkgIpcServer
	ErrorInsufficientPrivileges
	ErrorAddressNotAvailable
	ErrorResourceExhausted
	ErrorFilesystemError
	ErrorUnexpected
	ErrorNoConnectionAvailable
	ErrorAlreadyRunning
	ErrorNotRunning
)

func init() {
	liberr.RegisterIdFctMessage(ErrorInvalidConfig, getMessage)
	ipcerr.Register(ErrorInvalidConfig, ipcerr.KindUnexpected)
	ipcerr.Register(ErrorInsufficientPrivileges, ipcerr.KindInsufficientPrivileges)
	ipcerr.Register(ErrorAddressNotAvailable, ipcerr.KindAddressNotAvailable)
	ipcerr.Register(ErrorResourceExhausted, ipcerr.KindResourceExhausted)
	ipcerr.Register(ErrorFilesystemError, ipcerr.KindFilesystemError)
	ipcerr.Register(ErrorUnexpected, ipcerr.KindUnexpected)
	ipcerr.Register(ErrorNoConnectionAvailable, ipcerr.KindResourceExhausted)
	ipcerr.Register(ErrorAlreadyRunning, ipcerr.KindUnexpected)
	ipcerr.Register(ErrorNotRunning, ipcerr.KindUnexpected)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorInvalidConfig:
		return "server configuration is invalid"
	case ErrorInsufficientPrivileges:
		return "caller lacks permission to bind or accept at the configured address"
	case ErrorAddressNotAvailable:
		return "configured address is already bound or unavailable"
	case ErrorResourceExhausted:
		return "kernel resource limit reached while starting the server"
	case ErrorFilesystemError:
		return "filesystem does not support the configured control socket"
	case ErrorUnexpected:
		return "unexpected error starting or running the server"
	case ErrorNoConnectionAvailable:
		return "no established connection is available to extract"
	case ErrorAlreadyRunning:
		return "server is already running"
	case ErrorNotRunning:
		return "server is not running"
	}
	return ""
}
