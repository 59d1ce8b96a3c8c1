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

package proto

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// FindHeaderEnd searches buf for "\r\n\r\n" within the first MaxHeaderWindow
// bytes and returns the index just past it. ok is false if not found; the
// caller (Communicator) compares len(buf) against MaxHeaderWindow itself
// to decide whether to still wait for more bytes or fail with 431.
func FindHeaderEnd(buf []byte) (end int, ok bool) {
	window := buf
	if len(window) > MaxHeaderWindow {
		window = window[:MaxHeaderWindow]
	}
	idx := bytes.Index(window, []byte(crlfcrlf))
	if idx < 0 {
		return 0, false
	}
	return idx + len(crlfcrlf), true
}

// ParseHeaders parses buf[:headerEnd] (request-line + headers, including
// the trailing CRLFCRLF) into a ProtoRequest. remoteAddr is injected as
// "x-remote-ip" when withRemoteIP is set.
//
// The returned ProtoRequest.Data holds a 4-byte zeroed length prefix
// followed by the canonicalized header block; callers append the body (if
// any) before dispatch and then call wire.PutRequestLength.
func ParseHeaders(buf []byte, headerEnd int, remoteAddr string, withRemoteIP bool) (*ProtoRequest, error) {
	raw := buf[:headerEnd]
	lines := strings.Split(string(raw[:len(raw)-len(crlfcrlf)]), "\r\n")
	if len(lines) == 0 {
		return nil, statusErr(ErrorBadRequestLine, "400 Bad Request")
	}

	requestLine := lines[0]
	// "GET / HTTP/1.0" (14 bytes) is the shortest line that holds a method,
	// an absolute path and a version.
	if len(requestLine) < 14 {
		return nil, statusErr(ErrorBadRequestLine, "400 Bad Request")
	}

	fields := strings.Fields(requestLine)
	if len(fields) != 3 {
		return nil, statusErr(ErrorBadRequestLine, "400 Bad Request")
	}

	method, uri, versionStr := fields[0], fields[1], fields[2]
	if !validMethods[method] {
		return nil, statusErr(ErrorBadRequestLine, "400 Bad Request")
	}
	if !strings.HasPrefix(uri, "/") || strings.Contains(uri, "://") {
		return nil, statusErr(ErrorBadURI, "400 Bad Request")
	}

	var version Version
	switch versionStr {
	case "HTTP/1.0":
		version = Version10
	case "HTTP/1.1":
		version = Version11
	default:
		return nil, statusErr(ErrorBadVersion, "400 Bad Request")
	}

	req := &ProtoRequest{
		Method:      method,
		URI:         uri,
		HTTPVersion: version,
	}

	headerLines := make([]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return nil, statusErr(ErrorBadHeader, "400 Bad Request")
		}
		key := strings.TrimSpace(line[:colon])
		val := strings.TrimSpace(line[colon+1:])
		if key == "" || !isASCII(key) || !isASCII(val) {
			return nil, statusErr(ErrorBadHeader, "400 Bad Request")
		}
		key = strings.ToLower(key)

		switch key {
		case "expect":
			if strings.HasPrefix(strings.ToLower(val), "100-") {
				req.Expect100 = true
			}
		case "connection":
			lower := strings.ToLower(val)
			switch {
			case lower == "keep-alive":
				req.Connection = ConnectionKeepAlive
			case lower == "close":
				req.Connection = ConnectionClose
			case strings.Contains(lower, "upgrade"):
				req.Connection = ConnectionUpgrade
			default:
				req.Connection = ConnectionUnknown
			}
		case "content-length":
			n, err := parseContentLength(val)
			if err != nil {
				return nil, statusErr(ErrorBadContentLength, "400 Bad Request")
			}
			req.ContentLength = n
		}

		headerLines = append(headerLines, key+": "+val)
	}

	if req.Connection == ConnectionUnknown {
		if version == Version11 {
			req.Connection = ConnectionKeepAlive
		} else {
			req.Connection = ConnectionClose
		}
	}

	if withRemoteIP && remoteAddr != "" {
		headerLines = append([]string{"x-remote-ip: " + remoteAddr}, headerLines...)
	}

	var out bytes.Buffer
	out.Write(make([]byte, 4)) // length prefix, backfilled at dispatch
	out.WriteString(requestLine)
	out.WriteString("\r\n")
	for _, h := range headerLines {
		out.WriteString(h)
		out.WriteString("\r\n")
	}
	out.WriteString("\r\n")

	req.Data = out.Bytes()
	req.HeadersLength = len(req.Data)
	req.Valid = true

	return req, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x7F {
			return false
		}
	}
	return true
}

func parseContentLength(s string) (uint64, error) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt64 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
