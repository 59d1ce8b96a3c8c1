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

// Package proto parses raw bytes off a client socket into ProtoRequest
// values. Parsing itself never touches a socket; Communicator feeds it
// accumulated bytes and gets back either "need more", a completed
// request, or a protocol error carrying the minimal status line to write
// back to the client.
package proto

import (
	liberr "github.com/sabouaram/serverino/errors"
	"github.com/sabouaram/serverino/wire"
)

const (
	ErrorHeaderTooLarge liberr.CodeError = iota + liberr.MinPkgProto
	ErrorBadRequestLine
	ErrorBadVersion
	ErrorBadURI
	ErrorBadHeader
	ErrorBadContentLength
	ErrorEntityTooLarge
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgProto, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorHeaderTooLarge:
		return "request header fields too large"
	case ErrorBadRequestLine:
		return "malformed request line"
	case ErrorBadVersion:
		return "unrecognized http version"
	case ErrorBadURI:
		return "malformed request uri"
	case ErrorBadHeader:
		return "malformed header line"
	case ErrorBadContentLength:
		return "invalid content-length"
	case ErrorEntityTooLarge:
		return "request entity too large"
	}
	return ""
}

// Connection is the resolved Connection-header disposition.
type Connection uint8

const (
	ConnectionUnknown Connection = iota
	ConnectionKeepAlive
	ConnectionClose
	ConnectionUpgrade
)

// Version is the accepted HTTP version.
type Version uint8

const (
	VersionUnknown Version = iota
	Version10
	Version11
)

func (v Version) String() string {
	if v == Version11 {
		return "HTTP/1.1"
	}
	return "HTTP/1.0"
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "HEAD": true, "PUT": true, "DELETE": true,
	"CONNECT": true, "OPTIONS": true, "PATCH": true, "TRACE": true,
}

// ProtoRequest is one parsed-so-far HTTP request. Data is the
// full wire-frame body: a 4-byte length prefix (zeroed until dispatch)
// followed by request-line CRLF headers CRLF CRLF body.
type ProtoRequest struct {
	Valid         bool
	Expect100     bool
	ContentLength uint64
	HeadersLength int
	Method        string
	URI           string
	Connection    Connection
	HTTPVersion   Version

	Data []byte

	Next *ProtoRequest
}

// StatusError is a protocol violation paired with the minimal status line
// the Communicator must write back before resetting.
type StatusError struct {
	Code    liberr.CodeError
	Status  string // e.g. "400 Bad Request"
	Message string
}

func (e *StatusError) Error() string { return e.Message }

func statusErr(code liberr.CodeError, status string) error {
	return &StatusError{Code: code, Status: status, Message: code.Text()}
}

// ResponseLine renders the minimal "HTTP/1.0 NNN Reason\r\n\r\n" response
// written back to the client before the connection is reset.
func (e *StatusError) ResponseLine() []byte {
	return []byte("HTTP/1.0 " + e.Status + "\r\n\r\n")
}

// MaxHeaderWindow is the 16 KiB search window for the header terminator.
const MaxHeaderWindow = 16 * 1024

const crlfcrlf = "\r\n\r\n"

// Detach unlinks and returns the next queued request. A ProtoRequest is
// dispatched once; its next pointer is cleared on dispatch.
func (p *ProtoRequest) Detach() *ProtoRequest {
	n := p.Next
	p.Next = nil
	return n
}

// AppendBody appends received body bytes to Data, keeping the
// "data.len == headers_length + content_length" invariant intact once the
// full body has arrived.
func (p *ProtoRequest) AppendBody(b []byte) {
	p.Data = append(p.Data, b...)
}

// BodyReceived reports how many body bytes have been appended so far.
func (p *ProtoRequest) BodyReceived() uint64 {
	return uint64(len(p.Data) - p.HeadersLength)
}

// Finalize backfills the wire length prefix; call immediately before
// handing Data to the worker IPC socket.
func (p *ProtoRequest) Finalize() {
	wire.PutRequestLength(p.Data)
}
