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
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/serverino/wsproc"
)

// upgradeToWebsocket handles a worker reply flagged WEBSOCKET_UPGRADE: a
// websocket child is spawned and the client fd is handed to it via
// SCM_RIGHTS ancillary data. handshake carries the response bytes the
// daemon still owes the client before handing the connection off.
func (d *Dispatcher) upgradeToWebsocket(c *Communicator, wp *WorkerProc, handshake []byte) {
	sockFd, err := d.spawnWebsocketChild()
	if err != nil {
		d.log.Errorf("spawn websocket child: %v", err)
		d.reset(c)
		return
	}
	defer unix.Close(sockFd)

	if len(handshake) > 0 {
		total := 0
		for total < len(handshake) {
			n, werr := unix.Write(c.fd, handshake[total:])
			if werr != nil {
				d.reset(c)
				return
			}
			total += n
		}
	}

	if err := wsproc.SendFD(sockFd, c.fd, 1); err != nil {
		d.log.Errorf("websocket fd handoff: %v", err)
		d.reset(c)
		return
	}

	// sendmsg(2) duplicates the fd into the child; the daemon's own copy
	// stays open and must be closed here once the child has its own.
	clientFd := c.fd

	c.worker = nil
	wp.communicator = nil
	wp.status = WorkerIdling
	wp.statusChangedAt = time.Now()

	if c.onExecList(&d.execList) {
		d.execList.remove(c)
	}
	d.alives.remove(c)
	delete(d.fdComm, clientFd)
	d.backend.Remove(clientFd)
	unix.Close(clientFd)

	c.reqHead, c.reqTail = nil, nil
	c.state = StateReady
	c.fd = -1
	d.deads.pushBack(c)
}

// spawnWebsocketChild starts the websocket child binary and returns a
// connected Unix-domain socket the daemon can pass the client fd over.
func (d *Dispatcher) spawnWebsocketChild() (int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	daemonSide, childSide := fds[0], fds[1]

	childFile := os.NewFile(uintptr(childSide), "wsproc-child")
	defer childFile.Close()

	// workerArgs starts with the worker subcommand; the websocket child
	// runs the websocket subcommand with the same remaining flags.
	args := []string{"websocket"}
	if len(d.workerArgs) > 1 {
		args = append(args, d.workerArgs[1:]...)
	}
	cmd := exec.Command(d.workerExecPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{childFile}
	cmd.Env = append(os.Environ(), "SERVERINO_WS_FD=3")

	if err := cmd.Start(); err != nil {
		unix.Close(daemonSide)
		return -1, err
	}

	return daemonSide, nil
}
