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

// Package wire defines the two frame formats exchanged between the daemon
// and a worker over their per-worker IPC socket: the request frame (daemon
// -> worker) and the response frame (worker -> daemon). This package is
// the single place both sides encode/decode it, so the layout can never
// drift between them.
package wire

import (
	"encoding/binary"
	"io"
)

// Flag is the one-byte sentinel-action bitset at the head of every
// response frame.
type Flag uint8

const (
	FlagInline     Flag = 1 << 0
	FlagFile       Flag = 1 << 1
	FlagFileDelete Flag = 1 << 2
	FlagKeepAlive  Flag = 1 << 3
	FlagWSUpgrade  Flag = 1 << 4
	FlagShutdown   Flag = 1 << 5
	FlagSuspend    Flag = 1 << 6
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// RequestHeaderSize is the reserved little-endian length prefix at the
// front of every ProtoRequest.data buffer.
const RequestHeaderSize = 4

// PutRequestLength backfills the 4-byte length prefix in place once the
// full request is known, since the prefix can't be computed up front
// while the body is still streaming in.
func PutRequestLength(data []byte) {
	binary.LittleEndian.PutUint32(data[:RequestHeaderSize], uint32(len(data)-RequestHeaderSize))
}

// ReadRequestFrame reads one length-prefixed request frame from r and
// returns the payload bytes (request-line + headers + body, no length
// prefix).
func ReadRequestFrame(r io.Reader) ([]byte, error) {
	var lenBuf [RequestHeaderSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// WriteRequestFrame writes payload prefixed by its little-endian length.
func WriteRequestFrame(w io.Writer, payload []byte) error {
	var lenBuf [RequestHeaderSize]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// responseHeaderSize is 1 flags byte + 8 bytes of little-endian content
// length (a fixed 64-bit width rather than the host's native word size,
// so the frame is portable between a 32-bit and 64-bit worker).
const responseHeaderSize = 1 + 8

// WorkerPayload is the fixed-layout header a worker writes before the
// response body.
type WorkerPayload struct {
	Flags         Flag
	ContentLength uint64
}

func (p WorkerPayload) Encode() []byte {
	buf := make([]byte, responseHeaderSize)
	buf[0] = byte(p.Flags)
	binary.LittleEndian.PutUint64(buf[1:], p.ContentLength)
	return buf
}

func DecodeWorkerPayload(buf []byte) (WorkerPayload, bool) {
	if len(buf) < responseHeaderSize {
		return WorkerPayload{}, false
	}
	return WorkerPayload{
		Flags:         Flag(buf[0]),
		ContentLength: binary.LittleEndian.Uint64(buf[1:responseHeaderSize]),
	}, true
}

// ResponseHeaderSize exposes the header width so callers can slice past it.
func ResponseHeaderSize() int { return responseHeaderSize }
