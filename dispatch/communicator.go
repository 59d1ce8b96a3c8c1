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

// Package dispatch implements the daemon side of serverino: Communicator
// (per-connection protocol state machine), WorkerProc (per-worker IPC
// handle), and the Dispatcher event loop that ties them together.
// Communicator and WorkerProc hold direct back-references to each other
// while paired, so they live in one package rather than two that would
// otherwise import-cycle.
package dispatch

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	liberr "github.com/sabouaram/serverino/errors"
	liblog "github.com/sabouaram/serverino/logger"
	"github.com/sabouaram/serverino/internal/buffer"
	"github.com/sabouaram/serverino/internal/readiness"
	"github.com/sabouaram/serverino/proto"
)

const (
	ErrorAccept liberr.CodeError = iota + liberr.MinPkgDispatch
	ErrorListen
	ErrorSpawnWorker
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgDispatch, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorAccept:
		return "accept failed"
	case ErrorListen:
		return "listen failed"
	case ErrorSpawnWorker:
		return "failed to spawn worker"
	}
	return ""
}

// State is a Communicator's protocol state.
type State uint8

const (
	StateReady State = iota
	StatePaired
	StateReadingHeaders
	StateReadingBody
	StateKeepAlive
	StateWebsocket
)

// Communicator is the per-connection state machine.
type Communicator struct {
	state State

	fd         int
	remoteAddr string

	leftover []byte

	reqHead, reqTail *proto.ProtoRequest

	worker *WorkerProc

	sendBuf    *buffer.ByteBuffer
	bufferSent int

	responseLength uint64
	responseSent   uint64

	isSendFile   bool
	file         *os.File
	fileToDelete string

	isKeepAlive bool

	lastRecv    time.Time
	lastRequest time.Time

	requestDataReceived bool

	// alives/deads list linkage
	listPrev, listNext *Communicator

	// execWaitingList linkage
	execPrev, execNext *Communicator

	log liblog.Logger
}

func newCommunicator(log liblog.Logger) *Communicator {
	return &Communicator{
		state:   StateReady,
		sendBuf: buffer.New(32 * 1024),
		log:     log,
	}
}

// attach moves a dead Communicator back into service on an accepted fd.
func (c *Communicator) attach(fd int, remoteAddr string, now time.Time) {
	c.state = StatePaired
	c.fd = fd
	c.remoteAddr = remoteAddr
	c.leftover = c.leftover[:0]
	c.reqHead, c.reqTail = nil, nil
	c.worker = nil
	c.sendBuf.Reset()
	c.bufferSent = 0
	c.responseLength, c.responseSent = 0, 0
	c.isSendFile = false
	c.file = nil
	c.fileToDelete = ""
	c.isKeepAlive = false
	c.lastRecv = now
	c.lastRequest = now
	c.requestDataReceived = false
	c.state = StateReadingHeaders
}

// hasBuffer reports whether WRITE interest should be registered.
func (c *Communicator) hasBuffer() bool {
	return c.isSendFile || c.sendBuf.Len() > c.bufferSent
}

func (c *Communicator) enqueue(r *proto.ProtoRequest) {
	if c.reqTail != nil {
		c.reqTail.Next = r
	} else {
		c.reqHead = r
	}
	c.reqTail = r
}

func (c *Communicator) dequeue() *proto.ProtoRequest {
	r := c.reqHead
	if r == nil {
		return nil
	}
	c.reqHead = r.Detach()
	if c.reqHead == nil {
		c.reqTail = nil
	}
	return r
}

// onReadable implements reception, header parsing, and body accumulation.
// d is the owning Dispatcher: its cfg supplies the read size and parser
// settings, and it is used to push this Communicator onto execWaitingList
// and to enqueue a 100-continue/error write.
func (c *Communicator) onReadable(d *Dispatcher) {
	scratch := make([]byte, d.cfg.RecvBufferSize)

	for {
		n, err := unix.Read(c.fd, scratch)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return
			}
			d.reset(c)
			return
		}
		if n == 0 {
			d.reset(c)
			return
		}

		c.lastRecv = time.Now()
		c.requestDataReceived = true
		c.leftover = append(c.leftover, scratch[:n]...)

		if !c.parseLeftover(d) {
			return
		}

		if n < len(scratch) {
			// short read: no more to drain from this fd right now
			return
		}
	}
}

// parseLeftover consumes as many complete requests as are available in
// leftover. Returns false if the Communicator was reset (caller must stop
// touching it).
func (c *Communicator) parseLeftover(d *Dispatcher) bool {
	for {
		if c.state == StateReadingBody {
			if !c.consumeBody(d) {
				return false
			}
			if c.state == StateReadingBody {
				return true // still need more bytes
			}
			continue
		}

		end, ok := proto.FindHeaderEnd(c.leftover)
		if !ok {
			if len(c.leftover) >= proto.MaxHeaderWindow {
				d.writeErrorAndReset(c, "431 Request Header Fields Too Large")
				return false
			}
			return true
		}

		req, perr := proto.ParseHeaders(c.leftover, end, c.remoteAddr, d.cfg.WithRemoteIP)
		if perr != nil {
			se, _ := perr.(*proto.StatusError)
			status := "400 Bad Request"
			if se != nil {
				status = se.Status
			}
			d.writeErrorAndReset(c, status)
			return false
		}

		c.leftover = c.leftover[end:]
		c.enqueue(req)

		if req.ContentLength > 0 {
			if uint64(req.HeadersLength)+req.ContentLength > uint64(d.cfg.MaxRequestSize) {
				d.writeErrorAndReset(c, "413 Request Entity Too Large")
				return false
			}
			if req.Expect100 {
				d.writeRaw(c, []byte(req.HTTPVersion.String()+" 100 continue\r\n\r\n"))
			}
			c.state = StateReadingBody
			if !c.consumeBody(d) {
				return false
			}
			if c.state == StateReadingBody {
				return true
			}
			continue
		}

		c.finishRequest(d, req)
	}
}

// consumeBody moves bytes from leftover into the tail request's body until
// content_length is satisfied.
func (c *Communicator) consumeBody(d *Dispatcher) bool {
	req := c.reqTail
	need := req.ContentLength - req.BodyReceived()
	take := uint64(len(c.leftover))
	if take > need {
		take = need
	}
	req.AppendBody(c.leftover[:take])
	c.leftover = c.leftover[take:]

	if req.BodyReceived() < req.ContentLength {
		return true // still StateReadingBody, need more
	}

	c.state = StatePaired
	c.finishRequest(d, req)
	return true
}

func (c *Communicator) finishRequest(d *Dispatcher, req *proto.ProtoRequest) {
	req.Connection = resolveConnection(req)
	d.execList.pushBack(c)
}

func resolveConnection(req *proto.ProtoRequest) proto.Connection {
	return req.Connection
}

// onWritable implements transmission.
func (c *Communicator) onWritable(d *Dispatcher) {
	if c.isSendFile {
		if !c.flushSendBuffer(d) {
			return
		}
		if c.sendBuf.Len() == c.bufferSent {
			buf := make([]byte, d.cfg.RecvBufferSize)
			n, err := c.file.Read(buf)
			if n > 0 {
				c.sendBuf.Reset()
				c.sendBuf.Append(buf[:n])
				c.bufferSent = 0
			}
			if err != nil && n == 0 {
				c.file.Close()
				c.file = nil
				c.isSendFile = false
				if c.fileToDelete != "" {
					os.Remove(c.fileToDelete)
					c.fileToDelete = ""
				}
			}
		}
	} else {
		if !c.flushSendBuffer(d) {
			return
		}
		if c.sendBuf.Len() == c.bufferSent {
			c.sendBuf.Reset()
			c.bufferSent = 0
			d.setInterest(c.fd, readiness.InterestRead)
		}
	}

	if c.responseSent == c.responseLength {
		d.completeResponse(c)
	}
}

// flushSendBuffer writes up to one buffer's worth of sendBuf[bufferSent:].
// Returns false if the Communicator was reset mid-write.
func (c *Communicator) flushSendBuffer(d *Dispatcher) bool {
	for c.bufferSent < c.sendBuf.Len() {
		n, err := unix.Write(c.fd, c.sendBuf.Bytes()[c.bufferSent:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return true
			}
			d.reset(c)
			return false
		}
		c.bufferSent += n
		c.responseSent += uint64(n)
	}
	return true
}
