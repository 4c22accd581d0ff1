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
	"github.com/nabbar/golib/duration"
	libprm "github.com/nabbar/golib/file/perm"

	liberr "github.com/nabbar/golib/errors"
)

// Config mirrors the Unix-domain-only subset of the teacher's
// socket/config.Server shape (Address, PermFile, GroupPerm) plus the
// connection-establishment subsystem's own attributes (spec §4.4):
// the backlog capacity, the minimum negotiated s2c buffer, and the
// per-connection handshake timeout.
type Config struct {
	// Address is the filesystem path of the control socket.
	Address string
	// PermFile is the mode applied to the socket file after bind.
	PermFile libprm.Perm
	// GroupPerm is the gid applied to the socket file after bind, or -1
	// to leave ownership unchanged (matching the teacher's convention).
	GroupPerm int

	BacklogCapacity   int
	MinBufferSize     uint64
	ConnectionTimeout duration.Duration
}

// Validate checks the configuration is usable, in the style of the
// teacher's socket/config.Client.Validate().
func (c Config) Validate() liberr.Error {
	if c.Address == "" {
		return ErrorInvalidConfig.Error(nil)
	}
	if c.BacklogCapacity <= 0 {
		return ErrorInvalidConfig.Error(nil)
	}
	if c.MinBufferSize == 0 {
		return ErrorInvalidConfig.Error(nil)
	}
	return nil
}
