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

package shmem

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/golib/errors"
)

// Manager creates and maps Segments, naming each backing object by a
// per-process-unique id so a peer-supplied id (received over the wire
// during the handshake, spec §6) can be resolved to the same object the
// peer created. The reference implementation shares a directory on the
// local filesystem between client and server, matching a same-host IPC
// substrate where both ends run under a common namespace.
type Manager struct {
	dir    string
	nextID atomic.Uint64
}

// NewManager creates a Manager rooted at dir. If dir is empty, a
// directory under os.TempDir() is used.
func NewManager(dir string) (*Manager, liberr.Error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "safeipc-shmem")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, ErrorCreateFailed.Error(err)
	}
	return &Manager{dir: dir}, nil
}

func (m *Manager) path(id uint64) string {
	return filepath.Join(m.dir, fmt.Sprintf("seg-%016x", id))
}

// Create allocates a fresh segment of size bytes and returns it mapped
// for this process's write direction.
func (m *Manager) Create(size int, dir Direction) (Segment, liberr.Error) {
	id := m.nextID.Add(1)
	path := m.path(id)

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_EXCL, 0600)
	if err != nil {
		return nil, ErrorCreateFailed.Error(err)
	}

	if err = unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(path)
		return nil, ErrorTruncateFailed.Error(err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(path)
		return nil, ErrorMapFailed.Error(err)
	}

	return &segment{id: id, size: size, dir: dir, data: data, fd: fd, path: path, owner: true}, nil
}

// Map opens a segment previously created by the peer under id, mapped
// read-write or read-only according to dir.
func (m *Manager) Map(id uint64, size int, dir Direction) (Segment, liberr.Error) {
	path := m.path(id)

	flags := unix.O_RDWR
	prot := unix.PROT_READ | unix.PROT_WRITE
	if dir == DirectionClientToServer || dir == DirectionNotification {
		flags = unix.O_RDONLY
		prot = unix.PROT_READ
	}

	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, ErrorMapFailed.Error(err)
	}

	data, err := unix.Mmap(fd, 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, ErrorMapFailed.Error(err)
	}

	return &segment{id: id, size: size, dir: dir, data: data, fd: fd, path: path, owner: false}, nil
}

type segment struct {
	id    uint64
	size  int
	dir   Direction
	data  []byte
	fd    int
	path  string
	owner bool
}

func (s *segment) ID() uint64          { return s.id }
func (s *segment) Size() int           { return s.size }
func (s *segment) Direction() Direction { return s.dir }
func (s *segment) Bytes() []byte       { return s.data }

func (s *segment) Close() error {
	if s.data != nil {
		_ = unix.Munmap(s.data)
		s.data = nil
	}
	_ = unix.Close(s.fd)
	if s.owner {
		_ = os.Remove(s.path)
	}
	return nil
}

var _ Segment = (*segment)(nil)
