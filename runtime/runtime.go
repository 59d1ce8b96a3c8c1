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

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	liberr "github.com/sabouaram/serverino/errors"
	liblog "github.com/sabouaram/serverino/logger"
	"github.com/sabouaram/serverino/wire"
)

const (
	ErrorNoSocketEnv liberr.CodeError = iota + liberr.MinPkgRuntime
	ErrorBuildHashMismatch
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgRuntime, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorNoSocketEnv:
		return "SERVERINO_SOCKET environment variable is not set"
	case ErrorBuildHashMismatch:
		return "worker binary hash %s does not match daemon SERVERINO_BUILD %s"
	}
	return ""
}

// Config is the subset of daemon config a worker needs to enforce its own
// timers.
type Config struct {
	MaxWorkerLifetime time.Duration
	MaxWorkerIdling   time.Duration
	MaxRequestTime    time.Duration

	// Dynamic marks a worker spawned above MinWorkers to cover a demand
	// spike (SERVERINO_DYNAMIC_WORKER); it is killed sooner on idle than a
	// baseline worker so the pool shrinks back down once demand subsides.
	Dynamic bool
}

// dynamicIdleDivisor shrinks a dynamic worker's idle budget relative to a
// baseline worker's MaxWorkerIdling.
const dynamicIdleDivisor = 4

// Runtime is the in-process-of-worker side of serverino.
type Runtime struct {
	conn net.Conn
	cfg  Config
	log  liblog.Logger

	lastActivity atomic.Int64 // unix nanos
	processing   atomic.Bool
	startedAt    time.Time
}

// Dial connects to the daemon's per-worker listening socket, announced via
// SERVERINO_SOCKET, and performs the 1-byte handshake.
func Dial(cfg Config, log liblog.Logger) (*Runtime, error) {
	addr := os.Getenv("SERVERINO_SOCKET")
	if addr == "" {
		return nil, ErrorNoSocketEnv.Error(nil)
	}

	network := "unix"
	dialAddr := addr
	if len(addr) > 0 && addr[0] == 0 {
		dialAddr = "@" + addr[1:] // Go's net package abstract-socket convention
	}

	conn, err := net.Dial(network, dialAddr)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Write([]byte{1}); err != nil {
		conn.Close()
		return nil, err
	}

	r := &Runtime{conn: conn, cfg: cfg, log: log, startedAt: time.Now()}
	r.lastActivity.Store(time.Now().UnixNano())
	return r, nil
}

// Serve blocks reading framed requests and dispatching them to handler,
// one at a time, until the IPC connection closes or a killer-monitor
// threshold fires. The worker blocks on its IPC socket between requests
// by design.
func (r *Runtime) Serve(handler Handler) error {
	go r.killer()

	for {
		r.processing.Store(false)
		r.lastActivity.Store(time.Now().UnixNano())

		payload, err := wire.ReadRequestFrame(r.conn)
		if err != nil {
			return err
		}

		r.processing.Store(true)
		r.lastActivity.Store(time.Now().UnixNano())

		resp := r.handleOne(handler, payload)
		if err := r.writeResponse(resp); err != nil {
			return err
		}
	}
}

func (r *Runtime) handleOne(handler Handler, payload []byte) *responseWriter {
	req := parseMessage(payload)
	w := &responseWriter{}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				w.body = []byte("HTTP/1.1 500 Internal Server Error\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")
				w.sendFile = false
				w.keepAliveSet = true
				w.keepAlive = false
				r.log.Errorf("handler panic: %v", rec)
			}
		}()
		handler(req, w)
	}()

	return w
}

func (r *Runtime) writeResponse(w *responseWriter) error {
	var flags wire.Flag
	var contentLength uint64
	var body []byte

	switch {
	case w.sendFile:
		fi, err := os.Stat(w.filePath)
		if err != nil {
			return err
		}
		flags = wire.FlagFile
		if w.deleteAfter {
			flags = wire.FlagFileDelete
		}
		contentLength = uint64(len(w.fileHeaders)) + uint64(fi.Size())
		body = append(append([]byte{}, w.fileHeaders...), []byte(w.filePath)...)
	case w.upgrade:
		flags = wire.FlagWSUpgrade
		contentLength = uint64(len(w.body))
		body = w.body
	default:
		flags = wire.FlagInline
		contentLength = uint64(len(w.body))
		body = w.body
	}

	if w.keepAliveSet && w.keepAlive {
		flags |= wire.FlagKeepAlive
	}

	header := wire.WorkerPayload{Flags: flags, ContentLength: contentLength}.Encode()

	if _, err := r.conn.Write(header); err != nil {
		return err
	}
	_, err := r.conn.Write(body)
	return err
}

// killer enforces the worker's three wall-clock thresholds and exits
// cleanly when any is crossed, causing the daemon to observe recv == 0 on
// the IPC socket.
func (r *Runtime) killer() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()

		if r.cfg.MaxWorkerLifetime > 0 && now.Sub(r.startedAt) > r.cfg.MaxWorkerLifetime {
			r.log.Infof("worker lifetime exceeded, exiting")
			os.Exit(0)
		}

		last := time.Unix(0, r.lastActivity.Load())
		if r.processing.Load() {
			if r.cfg.MaxRequestTime > 0 && now.Sub(last) > r.cfg.MaxRequestTime {
				r.log.Errorf("request exceeded max_request_time, exiting")
				os.Exit(1)
			}
		} else {
			if b := r.idleBound(); b > 0 && now.Sub(last) > b {
				r.log.Infof("worker idling exceeded, exiting")
				os.Exit(0)
			}
		}
	}
}

// idleBound is the wall-clock idle duration after which this worker is
// killed: a dynamic worker gets a fraction of MaxWorkerIdling so the pool
// sheds capacity sooner once a demand spike subsides.
func (r *Runtime) idleBound() time.Duration {
	b := r.cfg.MaxWorkerIdling
	if r.cfg.Dynamic && b > 0 {
		b /= dynamicIdleDivisor
	}
	return b
}

// BuildHash returns the SERVERINO_BUILD value the worker was spawned with,
// so a handler can sanity-check it matches what it expects.
func BuildHash() string {
	return os.Getenv("SERVERINO_BUILD")
}

// VerifyBuildHash hashes the worker's own on-disk executable the same way
// the daemon hashed it at spawn time and compares the result against
// SERVERINO_BUILD, refusing a worker left running against a binary that has
// since been replaced on disk (e.g. by a deploy). A worker started without
// SERVERINO_BUILD set (manual invocation outside the daemon) skips the
// check.
func VerifyBuildHash() error {
	want := BuildHash()
	if want == "" {
		return nil
	}

	path, err := os.Executable()
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	got := hex.EncodeToString(h.Sum(nil))[:16]

	if got != want {
		return ErrorBuildHashMismatch.Errorf(got, want)
	}
	return nil
}

// IsDynamic reports SERVERINO_DYNAMIC_WORKER.
func IsDynamic() bool {
	return os.Getenv("SERVERINO_DYNAMIC_WORKER") == "1"
}

// DaemonPID returns the parent daemon's PID from SERVERINO_DAEMON.
func DaemonPID() int {
	n, _ := strconv.Atoi(os.Getenv("SERVERINO_DAEMON"))
	return n
}
