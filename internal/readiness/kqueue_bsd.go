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

//go:build darwin || freebsd || netbsd || openbsd

package readiness

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueue tracks read/write interest per fd separately since each is its
// own filter, unlike epoll's single combined event mask.
type kqueueBackend struct {
	kq      int
	changes []unix.Kevent_t
	events  []unix.Kevent_t
	regs    map[int]Interest
}

func New() (Backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueueBackend{kq: kq, events: make([]unix.Kevent_t, 256), regs: make(map[int]Interest)}, nil
}

func (b *kqueueBackend) apply(fd int, old, new Interest) error {
	var changes []unix.Kevent_t

	addOrDel := func(filter int16, want bool) {
		flags := uint16(unix.EV_DELETE)
		if want {
			flags = unix.EV_ADD | unix.EV_ENABLE
		}
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags})
	}

	if (old&InterestRead != 0) != (new&InterestRead != 0) {
		addOrDel(unix.EVFILT_READ, new&InterestRead != 0)
	}
	if (old&InterestWrite != 0) != (new&InterestWrite != 0) {
		addOrDel(unix.EVFILT_WRITE, new&InterestWrite != 0)
	}

	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(b.kq, changes, nil, nil)
	return err
}

func (b *kqueueBackend) Add(fd int, interest Interest) error {
	if err := b.apply(fd, 0, interest); err != nil {
		return err
	}
	b.regs[fd] = interest
	return nil
}

func (b *kqueueBackend) Modify(fd int, interest Interest) error {
	old := b.regs[fd]
	if err := b.apply(fd, old, interest); err != nil {
		return err
	}
	b.regs[fd] = interest
	return nil
}

func (b *kqueueBackend) Remove(fd int) error {
	old, ok := b.regs[fd]
	if !ok {
		return nil
	}
	delete(b.regs, fd)
	err := b.apply(fd, old, 0)
	if err == unix.EBADF || err == unix.ENOENT {
		return nil
	}
	return err
}

func (b *kqueueBackend) Wait(dst []Event, timeout time.Duration) ([]Event, error) {
	var ts *unix.Timespec
	if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	for {
		n, err := unix.Kevent(b.kq, nil, b.events, ts)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return dst, err
		}
		for i := 0; i < n; i++ {
			e := b.events[i]
			ev := Event{
				Fd:     int(e.Ident),
				Hangup: e.Flags&unix.EV_EOF != 0,
				Err:    e.Flags&unix.EV_ERROR != 0,
			}
			switch e.Filter {
			case unix.EVFILT_READ:
				ev.Read = true
			case unix.EVFILT_WRITE:
				ev.Write = true
			}
			dst = append(dst, ev)
		}
		return dst, nil
	}
}

func (b *kqueueBackend) Close() error {
	return unix.Close(b.kq)
}
