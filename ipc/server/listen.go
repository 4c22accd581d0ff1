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

package server

import (
	"os"

	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/golib/errors"

	"github.com/nabbar/golib/ioutils/fileDescriptor"
)

// fileDescriptorHeadroom is the number of fds a Server needs beyond the
// backlog itself: the listening socket plus a small margin for the two
// shared-memory segments each in-flight handshake briefly holds open.
const fileDescriptorHeadroom = 16

// ensureFileDescriptorCapacity raises the process's open-file soft limit
// to cover capacity backlog slots if the current limit is tight, logging
// rather than failing when the kernel denies the increase (raising past
// the hard limit needs privileges this process may not have).
func ensureFileDescriptorCapacity(capacity int) (current, max int, raised bool, err error) {
	current, max, err = fileDescriptor.SystemFileDescriptor(0)
	if err != nil {
		return 0, 0, false, err
	}
	needed := capacity + fileDescriptorHeadroom
	if current >= needed {
		return current, max, false, nil
	}
	newCurrent, newMax, rerr := fileDescriptor.SystemFileDescriptor(needed)
	if rerr != nil {
		return current, max, false, rerr
	}
	return newCurrent, newMax, true, nil
}

// bindListener creates, binds and starts listening on a Unix-domain
// stream socket at cfg.Address, applying the configured file mode and
// group ownership after bind (matching the teacher's socket/server/unix
// post-bind chmod/chown convention). The returned fd is non-blocking.
func bindListener(cfg Config) (int, liberr.Error) {
	_ = os.Remove(cfg.Address)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, classifyErrno(err)
	}

	sa := &unix.SockaddrUnix{Name: cfg.Address}
	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, classifyErrno(err)
	}

	if err = unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(cfg.Address)
		return -1, classifyErrno(err)
	}

	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(cfg.Address)
		return -1, classifyErrno(err)
	}

	if cfg.PermFile != 0 {
		_ = os.Chmod(cfg.Address, cfg.PermFile.FileMode())
	}
	if cfg.GroupPerm >= 0 {
		_ = os.Chown(cfg.Address, -1, cfg.GroupPerm)
	}

	return fd, nil
}

// acceptOne accepts a single pending connection on fd, returning
// (-1, false, nil) when the socket would block (no more to accept this
// wake-up) and (-1, false, err) on a fatal accept error.
func acceptOne(fd int) (int, bool, liberr.Error) {
	nfd, _, err := unix.Accept(fd)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return -1, false, nil
		}
		if err == unix.ECONNABORTED || err == unix.EINTR {
			return -1, false, nil
		}
		return -1, false, classifyErrno(err)
	}
	_ = unix.SetNonblock(nfd, true)
	return nfd, true, nil
}

// classifyErrno maps a raw syscall errno onto the server's error
// taxonomy (spec §4.4's failure modes for start()).
func classifyErrno(err error) liberr.Error {
	switch err {
	case unix.EACCES, unix.EPERM:
		return ErrorInsufficientPrivileges.Error(err)
	case unix.EADDRINUSE, unix.EADDRNOTAVAIL:
		return ErrorAddressNotAvailable.Error(err)
	case unix.EMFILE, unix.ENFILE, unix.ENOMEM, unix.ENOBUFS:
		return ErrorResourceExhausted.Error(err)
	case unix.ENOENT, unix.ENOTDIR, unix.EROFS, unix.ENAMETOOLONG:
		return ErrorFilesystemError.Error(err)
	default:
		return ErrorUnexpected.Error(err)
	}
}
