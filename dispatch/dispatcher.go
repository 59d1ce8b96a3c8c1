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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	libatomic "github.com/sabouaram/serverino/atomic"
	"github.com/sabouaram/serverino/config"
	"github.com/sabouaram/serverino/internal/readiness"
	liblog "github.com/sabouaram/serverino/logger"
)

// Dispatcher is the daemon event loop.
type Dispatcher struct {
	cfg config.Config
	log liblog.Logger

	backend readiness.Backend

	listenFds []int

	workers []*WorkerProc
	sem     *semaphore.Weighted

	alives, deads commList
	execList      execWaitList

	fdComm   map[int]*Communicator
	fdWorker map[int]*WorkerProc

	workerExecPath string
	workerArgs     []string
	buildHash      string

	canaryPath    string
	watcher       *fsnotify.Watcher
	canaryRemoved *libatomic.Value[bool]

	exitRequested atomic.Bool

	metrics *Metrics
}

// EnableMetrics attaches a Metrics instance the event loop refreshes once
// per tick; call before Run. Metrics stay nil (a no-op) unless an embedding
// application opts in.
func (d *Dispatcher) EnableMetrics(m *Metrics) {
	d.metrics = m
}

// NewDispatcher builds a Dispatcher ready to Run. workerExecPath/workerArgs
// describe how to re-exec this same binary in worker mode.
func NewDispatcher(cfg config.Config, log liblog.Logger, workerExecPath string, workerArgs []string) (*Dispatcher, error) {
	backend, err := readiness.New()
	if err != nil {
		return nil, err
	}

	dynamicBudget := int64(cfg.MaxWorkers - cfg.MinWorkers)
	if dynamicBudget < 0 {
		dynamicBudget = 0
	}

	d := &Dispatcher{
		cfg:            cfg,
		log:            log,
		backend:        backend,
		sem:            semaphore.NewWeighted(dynamicBudget),
		fdComm:         make(map[int]*Communicator),
		fdWorker:       make(map[int]*WorkerProc),
		workerExecPath: workerExecPath,
		workerArgs:     workerArgs,
		buildHash:      buildHash(workerExecPath),
		canaryRemoved:  libatomic.NewValue(false),
	}
	return d, nil
}

func buildHash(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return "unknown"
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Listen binds every configured listener.
func (d *Dispatcher) Listen() error {
	for _, addr := range d.cfg.Listeners {
		fd, err := listenTCP(addr, d.cfg.ListenerBacklog)
		if err != nil {
			return ErrorListen.Error(err)
		}
		d.listenFds = append(d.listenFds, fd)
		if err := d.backend.Add(fd, readiness.InterestRead); err != nil {
			return err
		}
	}
	return nil
}

func listenTCP(hostport string, backlog int) (int, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return -1, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}

	sa := &unix.SockaddrInet4{Port: port}
	if host != "" && host != "0.0.0.0" {
		ip := net.ParseIP(host).To4()
		if ip != nil {
			copy(sa.Addr[:], ip)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// writeCanary creates the reload-signal file.
func (d *Dispatcher) writeCanary() error {
	sum := sha256.Sum256([]byte(d.workerExecPath))
	d.canaryPath = filepath.Join(os.TempDir(), fmt.Sprintf("serverino-%d-%s.canary", os.Getpid(), hex.EncodeToString(sum[:])[:8]))

	if err := os.WriteFile(d.canaryPath, []byte{}, 0o600); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(os.TempDir()); err != nil {
		w.Close()
		return err
	}
	d.watcher = w

	go d.watchCanary()
	return nil
}

// watchCanary drains the fsnotify watcher and latches canaryRemoved; the
// main loop only ever reads that flag, so this goroutine never touches
// Dispatcher state directly ("no shared memory" applies between
// processes, but within the daemon this keeps the event loop itself
// single-threaded).
func (d *Dispatcher) watchCanary() {
	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if ev.Name == d.canaryPath && (ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0) {
				d.canaryRemoved.Store(true)
			}
		case _, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Run drives the event loop until a SIGINT or SIGTERM requests exit.
func (d *Dispatcher) Run() error {
	if err := d.writeCanary(); err != nil {
		d.log.Warnf("canary setup failed: %v", err)
	}
	defer d.cleanupCanary()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for i := 0; i < d.cfg.MinWorkers; i++ {
		if err := d.addWorker(false); err != nil {
			d.log.Errorf("spawn worker: %v", err)
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	events := make([]readiness.Event, 0, 256)

	for {
		select {
		case sig := <-sigCh:
			if d.exitRequested.Load() {
				os.Exit(-1)
			}
			d.exitRequested.Store(true)
			d.log.Infof("received %v, shutting down", sig)
		default:
		}

		if d.exitRequested.Load() {
			d.shutdownAll()
			return nil
		}

		d.checkWorkers()
		d.checkCanary()
		d.refreshMetrics()

		var err error
		events, err = d.backend.Wait(events[:0], time.Second)
		if err != nil {
			return err
		}

		d.handleTimeouts()
		d.processEvents(events)
		d.pair()
	}
}

// checkWorkers tops the pool back up to MinWorkers and kills any
// reload-flagged worker that has gone idle.
func (d *Dispatcher) checkWorkers() {
	alive := 0
	for _, wp := range d.workers {
		switch wp.status {
		case WorkerIdling:
			if wp.reloadRequested {
				d.killWorker(wp)
				continue
			}
			alive++
		case WorkerProcessing:
			alive++
		}
	}

	for alive < d.cfg.MinWorkers {
		if err := d.addWorker(false); err != nil {
			d.log.Errorf("spawn worker: %v", err)
			break
		}
		alive++
	}
}

// addWorker re-initializes a STOPPED slot if one exists, else appends a
// new one.
func (d *Dispatcher) addWorker(dynamic bool) error {
	for i, old := range d.workers {
		if old.status == WorkerStopped {
			wp, err := d.spawnWorker(i, dynamic)
			if err != nil {
				return ErrorSpawnWorker.Error(err)
			}
			d.workers[i] = wp
			d.fdWorker[wp.fd] = wp
			return d.backend.Add(wp.fd, readiness.InterestRead)
		}
	}

	id := len(d.workers)
	wp, err := d.spawnWorker(id, dynamic)
	if err != nil {
		return ErrorSpawnWorker.Error(err)
	}
	d.workers = append(d.workers, wp)
	d.fdWorker[wp.fd] = wp
	return d.backend.Add(wp.fd, readiness.InterestRead)
}

func (d *Dispatcher) killWorker(wp *WorkerProc) {
	if wp.pid > 0 {
		_ = syscall.Kill(wp.pid, syscall.SIGKILL)
	}
	d.backend.Remove(wp.fd)
	delete(d.fdWorker, wp.fd)
	unix.Close(wp.fd)
	wp.status = WorkerStopped
	wp.statusChangedAt = time.Now()
	d.releaseDynamic(wp)
}

// releaseDynamic returns a dynamically-spawned worker's semaphore slot
// exactly once, guarding against killWorker/onWorkerGone both firing for
// the same worker.
func (d *Dispatcher) releaseDynamic(wp *WorkerProc) {
	if wp.dynamic && !wp.slotReleased {
		wp.slotReleased = true
		d.sem.Release(1)
	}
}

// checkCanary consumes the canaryRemoved flag latched by watchCanary and,
// if set, requests a graceful reload and recreates the canary file.
func (d *Dispatcher) checkCanary() {
	if libatomic.CompareAndSwap(d.canaryRemoved, true, false) {
		d.requestReload()
		_ = os.WriteFile(d.canaryPath, []byte{}, 0o600)
	}
}

func (d *Dispatcher) requestReload() {
	for _, wp := range d.workers {
		switch wp.status {
		case WorkerIdling:
			d.killWorker(wp)
		case WorkerProcessing:
			wp.reloadRequested = true
		}
	}
}

func (d *Dispatcher) cleanupCanary() {
	if d.watcher != nil {
		d.watcher.Close()
	}
	if d.canaryPath != "" {
		os.Remove(d.canaryPath)
	}
}

func (d *Dispatcher) shutdownAll() {
	for _, fd := range d.listenFds {
		unix.Close(fd)
	}
	for _, wp := range d.workers {
		if wp.status != WorkerStopped {
			d.killWorker(wp)
		}
	}
}

// handleTimeouts resets Communicators that have sat idle past their
// configured keep-alive or header-read timeout.
func (d *Dispatcher) handleTimeouts() {
	now := time.Now()
	d.alives.each(func(c *Communicator) {
		switch c.state {
		case StateKeepAlive:
			if c.worker == nil && now.Sub(c.lastRequest) > d.cfg.KeepAliveTimeout {
				d.reset(c)
			}
		case StatePaired, StateReadingHeaders, StateReadingBody:
			if now.Sub(c.lastRecv) > d.cfg.MaxHTTPWaiting {
				if c.requestDataReceived {
					d.writeErrorAndReset(c, "408 Request Timeout")
				} else {
					d.reset(c)
				}
			}
		}
	})
}

// processEvents dispatches each readiness event to the matching worker,
// Communicator, or listener.
func (d *Dispatcher) processEvents(events []readiness.Event) {
	for _, ev := range events {
		if wp, ok := d.fdWorker[ev.Fd]; ok {
			if ev.Read {
				d.onWorkerReadable(wp)
			}
			continue
		}
		if c, ok := d.fdComm[ev.Fd]; ok {
			if ev.Read {
				c.onReadable(d)
			}
			if ev.Write {
				c.onWritable(d)
			}
			continue
		}
		for _, lfd := range d.listenFds {
			if lfd == ev.Fd && ev.Read {
				d.accept(lfd)
			}
		}
	}
}

// pair greedily matches queued requests in execWaitingList against idle
// workers, spawning a dynamic worker when none is free.
func (d *Dispatcher) pair() {
	var deferred []*Communicator

	for {
		c := d.execList.popFront()
		if c == nil {
			break
		}
		if c.worker != nil {
			continue
		}

		if wp := d.findIdleWorker(); wp != nil {
			d.setWorker(wp, c)
			continue
		}

		if d.sem.TryAcquire(1) {
			if err := d.addWorker(true); err == nil {
				// addWorker may reuse a STOPPED slot anywhere in d.workers;
				// no worker was idle before it, so the idle one is the new one.
				wp := d.findIdleWorker()
				d.setWorker(wp, c)
				continue
			}
			d.sem.Release(1)
		}

		deferred = append(deferred, c)
	}

	for _, c := range deferred {
		d.execList.pushBack(c)
	}
}

func (d *Dispatcher) findIdleWorker() *WorkerProc {
	for _, wp := range d.workers {
		if wp.status == WorkerIdling && !wp.reloadRequested {
			return wp
		}
	}
	return nil
}

// accept drains one pending connection off listenFd and attaches it to a
// Communicator pulled from the deads pool.
func (d *Dispatcher) accept(listenFd int) {
	connFd, sa, err := unix.Accept(listenFd)
	if err != nil {
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			d.log.Warnf("accept: %v", err)
		}
		return
	}

	unix.SetNonblock(connFd, true)
	unix.SetsockoptInt(connFd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	c := d.popDead()
	c.attach(connFd, peerString(sa), time.Now())

	d.alives.pushBack(c)
	d.fdComm[connFd] = c
	d.backend.Add(connFd, readiness.InterestRead)
}

func peerString(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3], v.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%x]:%d", v.Addr, v.Port)
	}
	return ""
}

func (d *Dispatcher) popDead() *Communicator {
	if d.deads.head != nil {
		c := d.deads.head
		d.deads.remove(c)
		return c
	}
	return newCommunicator(d.log)
}

// setInterest updates a fd's registered readiness interest.
func (d *Dispatcher) setInterest(fd int, interest readiness.Interest) {
	d.backend.Modify(fd, interest)
}

// completeResponse runs once a Communicator finishes sending its response:
// it detaches the worker (idling it or killing it on a pending reload),
// re-enqueues pipelined requests, and then either closes the connection
// and returns the Communicator to the deads pool (no keep-alive) or leaves
// it open in KEEP_ALIVE.
func (d *Dispatcher) completeResponse(c *Communicator) {
	if c.worker != nil {
		wp := c.worker
		c.worker = nil
		wp.communicator = nil
		if wp.reloadRequested {
			d.killWorker(wp)
		} else {
			wp.status = WorkerIdling
			wp.statusChangedAt = time.Now()
		}
	}

	if c.reqHead != nil {
		c.lastRequest = time.Now()
		c.state = StateKeepAlive
		d.execList.pushBack(c)
		return
	}

	if !c.isKeepAlive {
		unix.Shutdown(c.fd, unix.SHUT_WR)
		d.reset(c)
		return
	}

	c.state = StateKeepAlive
	c.lastRequest = time.Now()
	d.setInterest(c.fd, readiness.InterestRead)
}

// reset cancels a Communicator: shuts down and closes the client socket,
// detaches the worker without killing it, and discards any queued
// ProtoRequests.
func (d *Dispatcher) reset(c *Communicator) {
	if c.worker != nil {
		wp := c.worker
		c.worker = nil
		wp.communicator = nil
		if wp.status != WorkerStopped {
			wp.status = WorkerIdling
			wp.statusChangedAt = time.Now()
		}
	}

	if c.onExecList(&d.execList) {
		d.execList.remove(c)
	}

	d.alives.remove(c)

	delete(d.fdComm, c.fd)
	d.backend.Remove(c.fd)
	unix.Close(c.fd)

	if c.file != nil {
		c.file.Close()
		c.file = nil
	}

	c.reqHead, c.reqTail = nil, nil
	c.state = StateReady
	c.fd = -1

	d.deads.pushBack(c)
}

func (l *execWaitList) remove(c *Communicator) {
	if c.execPrev != nil {
		c.execPrev.execNext = c.execNext
	} else if l.head == c {
		l.head = c.execNext
	}
	if c.execNext != nil {
		c.execNext.execPrev = c.execPrev
	} else if l.tail == c {
		l.tail = c.execPrev
	}
	c.execPrev, c.execNext = nil, nil
}

// writeRaw appends raw bytes to c's send buffer and flips interest to
// READ|WRITE if needed.
func (d *Dispatcher) writeRaw(c *Communicator, b []byte) {
	c.sendBuf.Append(b)
	c.responseLength += uint64(len(b))
	d.setInterest(c.fd, readiness.InterestRead|readiness.InterestWrite)
}

// writeErrorAndReset writes a minimal status line for a protocol error,
// then resets the connection.
func (d *Dispatcher) writeErrorAndReset(c *Communicator, status string) {
	line := []byte("HTTP/1.0 " + status + "\r\n\r\n")
	total := 0
	for total < len(line) {
		n, err := unix.Write(c.fd, line[total:])
		if err != nil {
			break
		}
		total += n
	}
	d.reset(c)
}
