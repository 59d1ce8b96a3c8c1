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

//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package readiness

import (
	"time"

	"golang.org/x/sys/unix"
)

// selectBackend is the portable fallback for platforms without epoll or
// kqueue. It re-derives the fd_set on every Wait from the registration
// map, which bounds it to FD_SETSIZE connections - acceptable since this
// path only exists for platforms the daemon does not target in production.
type selectBackend struct {
	regs map[int]Interest
}

func New() (Backend, error) {
	return &selectBackend{regs: make(map[int]Interest)}, nil
}

func (b *selectBackend) Add(fd int, interest Interest) error {
	b.regs[fd] = interest
	return nil
}

func (b *selectBackend) Modify(fd int, interest Interest) error {
	b.regs[fd] = interest
	return nil
}

func (b *selectBackend) Remove(fd int) error {
	delete(b.regs, fd)
	return nil
}

func (b *selectBackend) Wait(dst []Event, timeout time.Duration) ([]Event, error) {
	var rfds, wfds unix.FdSet
	maxFd := 0

	for fd, interest := range b.regs {
		if interest&InterestRead != 0 {
			fdSet(&rfds, fd)
		}
		if interest&InterestWrite != 0 {
			fdSet(&wfds, fd)
		}
		if fd > maxFd {
			maxFd = fd
		}
	}

	var tv *unix.Timeval
	if timeout > 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	for {
		_, err := unix.Select(maxFd+1, &rfds, &wfds, nil, tv)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return dst, err
		}
		break
	}

	for fd, interest := range b.regs {
		ev := Event{Fd: fd}
		if interest&InterestRead != 0 && fdIsSet(&rfds, fd) {
			ev.Read = true
		}
		if interest&InterestWrite != 0 && fdIsSet(&wfds, fd) {
			ev.Write = true
		}
		if ev.Read || ev.Write {
			dst = append(dst, ev)
		}
	}
	return dst, nil
}

func (b *selectBackend) Close() error { return nil }

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
