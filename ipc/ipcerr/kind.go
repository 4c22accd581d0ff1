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

// Package ipcerr defines the cross-package error taxonomy shared by the
// SafeIPC connection-establishment subsystem (reactor, connection, backlog,
// server, acceptor). Each package still registers its own CodeError range
// and messages the way github.com/nabbar/golib/errors expects (see
// httpserver/error.go for the pattern this mirrors); ipcerr only adds the
// kind classification on top so callers can switch on the taxonomy of
// spec §7 without depending on every package's private codes.
package ipcerr

import (
	"sync"

	liberr "github.com/nabbar/golib/errors"
)

// Kind classifies an error the way spec §7 ("Error taxonomy (kinds, not
// names)") describes it: a small closed set of recoverable/fatal buckets
// shared across every component of the core.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindResourceExhausted covers no free dispatcher slot, no free backlog
	// slot, or a kernel resource limit. Recoverable by the caller.
	KindResourceExhausted
	// KindInsufficientPrivileges: caller lacks permission to bind/accept at
	// the configured address.
	KindInsufficientPrivileges
	// KindAddressNotAvailable: configured address already bound or unusable.
	KindAddressNotAvailable
	// KindFilesystemError: the filesystem can't support the control socket
	// or shared-memory object being created.
	KindFilesystemError
	// KindUnexpected marks a programming error. Never surfaced to the user
	// in recoverable form; the process is expected to abort with Abort.
	KindUnexpected
	// KindBusy: the at-most-one-pending-callback rule was violated.
	KindBusy
	// KindUninitialised: a public API call before init().
	KindUninitialised
	// KindAlreadyInitialised: init() called more than once.
	KindAlreadyInitialised
	// KindDisconnected is sticky: produced once the Server has latched an
	// unrecoverable error, surfaced on every accept_async until close+init.
	KindDisconnected
)

func (k Kind) String() string {
	switch k {
	case KindResourceExhausted:
		return "resource-exhausted"
	case KindInsufficientPrivileges:
		return "insufficient-privileges"
	case KindAddressNotAvailable:
		return "address-not-available"
	case KindFilesystemError:
		return "filesystem-error"
	case KindUnexpected:
		return "unexpected"
	case KindBusy:
		return "busy"
	case KindUninitialised:
		return "uninitialised"
	case KindAlreadyInitialised:
		return "already-initialised"
	case KindDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Recoverable reports whether a caller may reasonably retry after this
// kind of error, per spec §7's propagation policy. KindUnexpected is
// never recoverable: the implementation classifies it as a programming
// error and expects the process to abort (see Abort).
func (k Kind) Recoverable() bool {
	switch k {
	case KindUnexpected:
		return false
	default:
		return true
	}
}

var (
	mu       sync.RWMutex
	registry = make(map[liberr.CodeError]Kind, 64)
)

// Register associates a package-local CodeError with a Kind. Called once
// from each package's init(), the same way the teacher's per-package
// error.go files call errors.RegisterIdFctMessage for messages.
func Register(code liberr.CodeError, kind Kind) {
	mu.Lock()
	defer mu.Unlock()
	registry[code] = kind
}

// KindOf returns the Kind registered for err's CodeError, or KindUnknown
// if err is not a liberr.Error or its code was never registered.
func KindOf(err error) Kind {
	e, ok := err.(liberr.Error)
	if !ok || e == nil {
		return KindUnknown
	}

	mu.RLock()
	defer mu.RUnlock()

	if k, ok := registry[e.GetCode()]; ok {
		return k
	}
	return KindUnknown
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
