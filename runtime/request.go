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

// Package runtime implements WorkerRuntime, the in-process-of-worker half
// of serverino: it reads one framed request off the IPC socket,
// reconstructs a Request, invokes the user handler exactly once, and
// frames the response back. Form/multipart/cookie parsing is left to the
// handler and not implemented here.
package runtime

import (
	"strconv"
	"strings"
)

// Request is the reconstructed view of one HTTP message handed off by the
// daemon.
type Request struct {
	Method  string
	Path    string
	Query   string
	Version string
	Headers map[string]string
	Body    []byte
}

// Header returns the lower-cased header value, matching the daemon's
// lower-casing of keys before framing.
func (r *Request) Header(key string) string {
	return r.Headers[strings.ToLower(key)]
}

// ContentLength parses the content-length header, or 0 if absent/invalid.
func (r *Request) ContentLength() int64 {
	n, _ := strconv.ParseInt(r.Header("content-length"), 10, 64)
	return n
}

// parseMessage splits a raw framed message (request-line CRLF headers CRLF
// CRLF body) into a Request.
func parseMessage(data []byte) *Request {
	s := string(data)
	idx := strings.Index(s, "\r\n\r\n")
	if idx < 0 {
		return &Request{Headers: map[string]string{}}
	}

	head := s[:idx]
	body := data[idx+4:]

	lines := strings.Split(head, "\r\n")
	req := &Request{Headers: make(map[string]string, len(lines)), Body: body}

	if len(lines) > 0 {
		fields := strings.Fields(lines[0])
		if len(fields) == 3 {
			req.Method = fields[0]
			req.Version = fields[2]

			full := fields[1]
			if q := strings.IndexByte(full, '?'); q >= 0 {
				req.Path = full[:q]
				req.Query = full[q+1:]
			} else {
				req.Path = full
			}
		}
	}

	for _, line := range lines[1:] {
		c := strings.IndexByte(line, ':')
		if c <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:c]))
		req.Headers[key] = strings.TrimSpace(line[c+1:])
	}

	return req
}
