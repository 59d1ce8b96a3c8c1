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

package runtime

// ResponseWriter is the single boundary a user Handler writes through.
// A response is either the bytes given to Write or a file given to
// SendFile (SendFile wins if both are used); with Upgrade, the Write bytes
// are the handshake. The runtime buffers what is written and frames it
// after the handler returns, since the wire header needs the final
// content length up front.
type ResponseWriter interface {
	// Write appends raw HTTP response bytes (status line, headers, body -
	// the daemon injects nothing).
	Write(p []byte) (int, error)

	// SendFile streams path's contents to the client after writing
	// headers (which must already end in "\r\n\r\n"); if deleteAfter, the
	// daemon removes path once it has been fully sent.
	SendFile(headers []byte, path string, deleteAfter bool) error

	// SetKeepAlive sets FlagKeepAlive on the response frame. The daemon
	// keeps or closes the connection according to the request's own
	// disposition and does not read this flag.
	SetKeepAlive(keepAlive bool)

	// Upgrade flags this response as a websocket upgrade; the daemon sends
	// the Write bytes as the handshake, then hands the client fd off to a
	// websocket child via wsproc.
	Upgrade()
}

type responseWriter struct {
	body         []byte
	sendFile     bool
	fileHeaders  []byte
	filePath     string
	deleteAfter  bool
	keepAlive    bool
	keepAliveSet bool
	upgrade      bool
}

func (w *responseWriter) Write(p []byte) (int, error) {
	w.body = append(w.body, p...)
	return len(p), nil
}

func (w *responseWriter) SendFile(headers []byte, path string, deleteAfter bool) error {
	w.sendFile = true
	w.fileHeaders = headers
	w.filePath = path
	w.deleteAfter = deleteAfter
	return nil
}

func (w *responseWriter) SetKeepAlive(keepAlive bool) {
	w.keepAlive = keepAlive
	w.keepAliveSet = true
}

func (w *responseWriter) Upgrade() {
	w.upgrade = true
}

// Handler is the user-supplied request dispatch boundary.
type Handler func(r *Request, w ResponseWriter)
