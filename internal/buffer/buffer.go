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

// Package buffer provides ByteBuffer, an amortized-growth append buffer
// used for outgoing frames and header-parsing scratch space. It is a thin
// wrapper rather than a bare []byte slice so callers share one Reset/Append
// API; growth is left to Go's built-in append.
package buffer

// ByteBuffer is a growable byte buffer, reused across requests on the same
// Communicator to avoid a per-request allocation.
type ByteBuffer struct {
	buf []byte
}

// New returns a ByteBuffer with cap bytes of initial capacity.
func New(cap int) *ByteBuffer {
	return &ByteBuffer{buf: make([]byte, 0, cap)}
}

func (b *ByteBuffer) Len() int { return len(b.buf) }

func (b *ByteBuffer) Bytes() []byte { return b.buf }

// Reset empties the buffer without releasing its backing array.
func (b *ByteBuffer) Reset() { b.buf = b.buf[:0] }

// Append copies p in, growing the backing array with Go's append as needed.
func (b *ByteBuffer) Append(p []byte) {
	b.buf = append(b.buf, p...)
}

// Slice returns buf[from:], reusing the backing array.
func (b *ByteBuffer) Slice(from int) []byte {
	if from >= len(b.buf) {
		return nil
	}
	return b.buf[from:]
}
