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

// Package readiness abstracts the OS readiness-notification facility the
// Dispatcher polls: epoll on Linux,
// kqueue on the BSDs/Darwin, and a select-based fallback everywhere else.
// Every fd registered with a Backend is level-triggered: a fd that is
// still readable/writable after being handled fires again on the next
// Wait, matching non-blocking-retry style seen across the
// httpserver package.
package readiness

import "time"

// Interest is the set of events a registered fd is waited on for.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// Event reports one ready fd and which of its registered interests fired.
type Event struct {
	Fd     int
	Read   bool
	Write  bool
	Hangup bool
	Err    bool
}

// Backend is the minimal readiness-notification surface the Dispatcher
// event loop needs: register/modify/remove a fd's interest set, and block
// until at least one registered fd is ready or timeout elapses.
type Backend interface {
	// Add registers fd with the given interest set.
	Add(fd int, interest Interest) error

	// Modify changes fd's interest set. fd must already be registered.
	Modify(fd int, interest Interest) error

	// Remove deregisters fd. It is not an error to remove an fd that was
	// already closed out from under the backend.
	Remove(fd int) error

	// Wait blocks up to timeout for readiness events, appending them to
	// dst and returning the extended slice. timeout <= 0 blocks forever;
	// timeout's zero value outside that is never used by the Dispatcher,
	// which always polls at a fixed ~1s cadence.
	Wait(dst []Event, timeout time.Duration) ([]Event, error)

	// Close releases the backend's own fd (epoll/kqueue instance). The
	// select backend's Close is a no-op.
	Close() error
}
