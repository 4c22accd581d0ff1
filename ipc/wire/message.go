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

// Package wire implements the three-message handshake exchanged on the
// SafeIPC control socket (spec §4.2, §6). All multi-byte integers are
// little-endian; messages are positional with no framing delimiters.
//
// Endianness note: spec §4.2 ("Message layout") describes the exchange as
// "big-endian-on-wire" while spec §6 ("External Interfaces"), which owns
// the authoritative byte-for-byte layout, says little-endian. This
// package follows §6 — see SPEC_FULL.md §13 for the recorded decision.
package wire

import (
	"encoding/binary"
)

// SupportedProtocolVersion is the only protocol_version this implementation
// accepts in ClientToServerMessage1.
const SupportedProtocolVersion uint16 = 1

// ClientToServerMessage1Size is the wire size of ClientToServerMessage1:
// u16 + u64 + u64 + u64 = 26 bytes, packed, no padding.
const ClientToServerMessage1Size = 2 + 8 + 8 + 8

// ServerToClientMessage1Size is the wire size of ServerToClientMessage1:
// u64 = 8 bytes.
const ServerToClientMessage1Size = 8

// ClientToServerMessage2Size is the single sentinel byte that completes
// the handshake. Its value is immaterial.
const ClientToServerMessage2Size = 1

// ClientToServerMessage1 is the first message sent by the client: its
// requested protocol version and the shared-memory identifiers it wants
// the server to map.
type ClientToServerMessage1 struct {
	ProtocolVersion        uint16
	C2SShmID                uint64
	NotificationShmID       uint64
	RequestedS2CBufferSize uint64
}

// Encode serialises m into its 26-byte wire representation.
func (m ClientToServerMessage1) Encode() []byte {
	buf := make([]byte, ClientToServerMessage1Size)
	binary.LittleEndian.PutUint16(buf[0:2], m.ProtocolVersion)
	binary.LittleEndian.PutUint64(buf[2:10], m.C2SShmID)
	binary.LittleEndian.PutUint64(buf[10:18], m.NotificationShmID)
	binary.LittleEndian.PutUint64(buf[18:26], m.RequestedS2CBufferSize)
	return buf
}

// DecodeClientToServerMessage1 parses a 26-byte buffer previously produced
// by Encode. The caller is responsible for ensuring buf has exactly
// ClientToServerMessage1Size bytes (the connection state machine reads
// exactly that many bytes before calling this).
func DecodeClientToServerMessage1(buf []byte) ClientToServerMessage1 {
	return ClientToServerMessage1{
		ProtocolVersion:        binary.LittleEndian.Uint16(buf[0:2]),
		C2SShmID:               binary.LittleEndian.Uint64(buf[2:10]),
		NotificationShmID:      binary.LittleEndian.Uint64(buf[10:18]),
		RequestedS2CBufferSize: binary.LittleEndian.Uint64(buf[18:26]),
	}
}

// ServerToClientMessage1 is the server's reply: the id of the freshly
// created server-to-client shared memory.
type ServerToClientMessage1 struct {
	S2CShmID uint64
}

// Encode serialises m into its 8-byte wire representation.
func (m ServerToClientMessage1) Encode() []byte {
	buf := make([]byte, ServerToClientMessage1Size)
	binary.LittleEndian.PutUint64(buf, m.S2CShmID)
	return buf
}

// DecodeServerToClientMessage1 parses an 8-byte buffer previously produced
// by Encode.
func DecodeServerToClientMessage1(buf []byte) ServerToClientMessage1 {
	return ServerToClientMessage1{S2CShmID: binary.LittleEndian.Uint64(buf)}
}

// Sentinel is an out-of-band byte exchanged on the control socket after
// the handshake completes (spec §6). These values are a boundary contract
// only: the core's handshake never inspects them, since
// ClientToServerMessage2 is a single byte whose value is immaterial. They
// are documented here because the data-plane (out of scope) and the core
// share the same control socket and must agree on the byte values.
type Sentinel byte

const (
	// SentinelPeerClosed: "connection closed by peer" (graceful shutdown).
	SentinelPeerClosed Sentinel = 0xFD
	// SentinelFDAncillary: "ancillary message carries a file descriptor"
	// (tied to an SCM_RIGHTS delivery).
	SentinelFDAncillary Sentinel = 0xFE
	// SentinelShmNotify: "shared-memory readable/writable notification".
	SentinelShmNotify Sentinel = 0xFF
)
