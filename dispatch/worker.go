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

package dispatch

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/sabouaram/serverino/internal/readiness"
	"github.com/sabouaram/serverino/proto"
	"github.com/sabouaram/serverino/wire"
)

// WorkerStatus is a WorkerProc's lifecycle state.
type WorkerStatus uint8

const (
	WorkerStopped WorkerStatus = iota
	WorkerIdling
	WorkerProcessing
)

// WorkerProc is the daemon's handle to a child worker process.
type WorkerProc struct {
	id  int
	pid int

	fd int // ipc socket, connected

	status          WorkerStatus
	statusChangedAt time.Time
	reloadRequested bool

	communicator *Communicator

	dynamic      bool
	slotReleased bool

	// partial-reply accumulation
	headerBuf      []byte
	responseLength uint64
	gotHeader      bool
}

// spawnWorker starts a worker child. It creates the daemon-side listening
// socket for this worker itself, then accepts the child's connect and
// performs the 1-byte handshake.
func (d *Dispatcher) spawnWorker(id int, dynamic bool) (*WorkerProc, error) {
	sockAddr, listenFd, err := newWorkerListener(id)
	if err != nil {
		return nil, err
	}
	defer unix.Close(listenFd)

	cmd := exec.Command(d.workerExecPath, d.workerArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("SERVERINO_DAEMON=%d", os.Getpid()),
		fmt.Sprintf("SERVERINO_SOCKET=%s", sockAddr),
		fmt.Sprintf("SERVERINO_BUILD=%s", d.buildHash),
		fmt.Sprintf("SERVERINO_DYNAMIC_WORKER=%s", boolEnv(dynamic)),
	)

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	connFd, _, err := acceptWithTimeout(listenFd, 10*time.Second)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	var hs [1]byte
	if _, err := unix.Read(connFd, hs[:]); err != nil {
		unix.Close(connFd)
		_ = cmd.Process.Kill()
		return nil, err
	}

	if err := unix.SetNonblock(connFd, true); err != nil {
		unix.Close(connFd)
		_ = cmd.Process.Kill()
		return nil, err
	}

	return &WorkerProc{
		id:              id,
		pid:             cmd.Process.Pid,
		fd:              connFd,
		status:          WorkerIdling,
		statusChangedAt: time.Now(),
		dynamic:         dynamic,
	}, nil
}

func boolEnv(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// newWorkerListener creates the per-worker IPC listening socket at an
// abstract-namespace address on Linux; other
// platforms bind a filesystem path under os.TempDir instead.
func newWorkerListener(id int) (addr string, fd int, err error) {
	addr = workerSocketAddr(id)

	fd, err = unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return "", -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return "", -1, err
	}

	sa := unixSockaddr(addr)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return "", -1, err
	}
	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return "", -1, err
	}
	return addr, fd, nil
}

func workerSocketAddr(id int) string {
	name := "SERVERINO_SOCKET/" + uuid.NewString()
	if runtime.GOOS == "linux" {
		return "\x00" + name
	}
	return os.TempDir() + "/" + name
}

func unixSockaddr(addr string) *unix.SockaddrUnix {
	return &unix.SockaddrUnix{Name: addr}
}

func acceptWithTimeout(listenFd int, timeout time.Duration) (int, unix.Sockaddr, error) {
	deadline := time.Now().Add(timeout)
	for {
		connFd, sa, err := unix.Accept(listenFd)
		if err == nil {
			return connFd, sa, nil
		}
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			return -1, nil, err
		}
		if time.Now().After(deadline) {
			return -1, nil, err
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// setWorker pairs wp with c.
func (d *Dispatcher) setWorker(wp *WorkerProc, c *Communicator) {
	req := c.dequeue()
	if req == nil {
		return
	}

	wp.status = WorkerProcessing
	wp.statusChangedAt = time.Now()
	wp.communicator = c

	c.worker = wp
	c.state = StatePaired
	c.isKeepAlive = req.Connection == proto.ConnectionKeepAlive

	req.Finalize()

	if err := wire.WriteRequestFrame(fdWriter{wp.fd}, req.Data[wire.RequestHeaderSize:]); err != nil {
		d.reapWorker(wp)
		d.reset(c)
		return
	}

	wp.headerBuf = wp.headerBuf[:0]
	wp.gotHeader = false

	if d.metrics != nil {
		d.metrics.observeRequestDispatched()
	}
}

// fdWriter adapts a raw fd to io.Writer for wire.WriteRequestFrame.
type fdWriter struct{ fd int }

func (w fdWriter) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Write(w.fd, p[total:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return total, err
		}
		total += n
	}
	return total, nil
}

// onWorkerReadable drains a worker's reply, decoding its header and
// dispatching to file-streaming, websocket-upgrade, or inline delivery
// based on the flags it carries.
func (d *Dispatcher) onWorkerReadable(wp *WorkerProc) {
	buf := make([]byte, 32*1024)
	n, err := unix.Read(wp.fd, buf)
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN {
			return
		}
		d.onWorkerGone(wp)
		return
	}
	if n == 0 {
		d.onWorkerGone(wp)
		return
	}

	chunk := buf[:n]
	c := wp.communicator

	if !wp.gotHeader {
		wp.headerBuf = append(wp.headerBuf, chunk...)
		if len(wp.headerBuf) < wire.ResponseHeaderSize() {
			return
		}
		payload, _ := wire.DecodeWorkerPayload(wp.headerBuf)
		wp.gotHeader = true
		wp.responseLength = payload.ContentLength
		body := wp.headerBuf[wire.ResponseHeaderSize():]

		if c == nil {
			return
		}
		c.responseLength = payload.ContentLength
		c.responseSent = 0

		switch {
		case payload.Flags.Has(wire.FlagWSUpgrade):
			d.upgradeToWebsocket(c, wp, body)
			return
		case payload.Flags.Has(wire.FlagFile), payload.Flags.Has(wire.FlagFileDelete):
			d.startSendFile(c, body, payload.Flags.Has(wire.FlagFileDelete))
		default:
			c.sendBuf.Append(body)
		}

		if payload.Flags.Has(wire.FlagShutdown) || payload.Flags.Has(wire.FlagSuspend) {
			wp.reloadRequested = true
		}

		d.setInterest(c.fd, readiness.InterestRead|readiness.InterestWrite)
		return
	}

	if c != nil {
		c.sendBuf.Append(chunk)
		d.setInterest(c.fd, readiness.InterestRead|readiness.InterestWrite)
	}
}

func (d *Dispatcher) onWorkerGone(wp *WorkerProc) {
	wp.status = WorkerStopped
	wp.statusChangedAt = time.Now()
	delete(d.fdWorker, wp.fd)
	d.backend.Remove(wp.fd)
	unix.Close(wp.fd)
	d.releaseDynamic(wp)

	if c := wp.communicator; c != nil {
		wp.communicator = nil
		d.reset(c)
	}
}

func (d *Dispatcher) reapWorker(wp *WorkerProc) {
	d.onWorkerGone(wp)
}
