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

// Package wsproc hands a client socket fd from the daemon to a freshly
// spawned websocket child process over a Unix-domain socket, using
// SCM_RIGHTS ancillary data.
package wsproc

import (
	liberr "github.com/sabouaram/serverino/errors"
	"golang.org/x/sys/unix"
)

const (
	ErrorBadTagByte liberr.CodeError = iota + liberr.MinPkgWSProc
	ErrorBadControlMessage
	ErrorBadRights
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgWSProc, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorBadTagByte:
		return "expected exactly one tag byte"
	case ErrorBadControlMessage:
		return "expected exactly one ancillary control message"
	case ErrorBadRights:
		return "expected exactly one file descriptor in SCM_RIGHTS"
	}
	return ""
}

// SendFD passes fd across the Unix-domain socket sockFd using SCM_RIGHTS.
// tag is sent as the accompanying regular byte payload (the websocket
// child commonly uses it to correlate the fd with request metadata
// already sent over its own IPC frame).
func SendFD(sockFd int, fd int, tag byte) error {
	rights := unix.UnixRights(fd)
	return unix.Sendmsg(sockFd, []byte{tag}, rights, nil, 0)
}

// RecvFD reads one fd plus its tag byte off sockFd. The websocket child
// calls it on the socket it inherits from the daemon.
func RecvFD(sockFd int) (fd int, tag byte, err error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := unix.Recvmsg(sockFd, buf, oob, 0)
	if err != nil {
		return -1, 0, err
	}
	if n != 1 {
		return -1, 0, ErrorBadTagByte.Error(nil)
	}

	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, 0, err
	}
	if len(scms) != 1 {
		return -1, 0, ErrorBadControlMessage.Error(nil)
	}

	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return -1, 0, err
	}
	if len(fds) != 1 {
		return -1, 0, ErrorBadRights.Error(nil)
	}

	return fds[0], buf[0], nil
}
