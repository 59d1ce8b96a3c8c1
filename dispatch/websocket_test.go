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
	"os/exec"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/serverino/internal/readiness"
	liblog "github.com/sabouaram/serverino/logger"
)

// TestUpgradeToWebsocketClosesOriginalFd exercises the full handoff path
// with a real child process (spawnWebsocketChild execs d.workerExecPath),
// guarding against the daemon leaking its own copy of the client fd after
// sendmsg(2) has duplicated it into the child.
func TestUpgradeToWebsocketClosesOriginalFd(t *testing.T) {
	trueBin, err := exec.LookPath("true")
	if err != nil {
		t.Skip(`no "true" binary on PATH`)
	}

	d := newTestDispatcher(t)
	d.workerExecPath = trueBin
	d.workerArgs = nil

	_, commFd := socketpair(t)
	if err := d.backend.Add(commFd, readiness.InterestRead); err != nil {
		t.Fatalf("Add: %v", err)
	}

	c := newCommunicator(liblog.Discard)
	c.fd = commFd
	d.alives.pushBack(c)
	d.fdComm[commFd] = c

	wp := &WorkerProc{status: WorkerProcessing, communicator: c}
	c.worker = wp

	d.upgradeToWebsocket(c, wp, nil)

	if c.fd != -1 {
		t.Fatalf("fd = %d, want -1 after handoff", c.fd)
	}
	if _, ok := d.fdComm[commFd]; ok {
		t.Fatal("expected fd removed from fdComm")
	}
	if d.deads.head != c {
		t.Fatal("expected Communicator pushed onto deads")
	}
	if wp.status != WorkerIdling {
		t.Fatalf("worker status = %v, want WorkerIdling", wp.status)
	}

	// The daemon's own copy of commFd must be closed once the child has its
	// duplicate: operating on the now-closed fd number must fail with
	// EBADF. If upgradeToWebsocket regresses back to never closing it, this
	// fails because the fd is still valid.
	if err := unix.SetNonblock(commFd, true); err == nil {
		t.Fatal("expected commFd to already be closed after the handoff")
	}
}

func TestUpgradeToWebsocketResetsOnSpawnFailure(t *testing.T) {
	d := newTestDispatcher(t)
	d.workerExecPath = "/nonexistent/binary/that/does/not/exist"
	d.workerArgs = nil

	_, commFd := socketpair(t)
	if err := d.backend.Add(commFd, readiness.InterestRead); err != nil {
		t.Fatalf("Add: %v", err)
	}

	c := newCommunicator(liblog.Discard)
	c.fd = commFd
	d.alives.pushBack(c)
	d.fdComm[commFd] = c

	wp := &WorkerProc{status: WorkerProcessing, communicator: c}
	c.worker = wp

	d.upgradeToWebsocket(c, wp, nil)

	if d.deads.head != c {
		t.Fatal("expected Communicator reset onto deads when the child fails to spawn")
	}
}
