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

//go:build linux

package readiness

import (
	"time"

	"golang.org/x/sys/unix"
)

type epollBackend struct {
	epfd   int
	events []unix.EpollEvent
}

// New returns the platform's preferred Backend.
func New() (Backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{epfd: epfd, events: make([]unix.EpollEvent, 256)}, nil
}

func toEpollEvents(i Interest) uint32 {
	var ev uint32 = unix.EPOLLRDHUP
	if i&InterestRead != 0 {
		ev |= unix.EPOLLIN
	}
	if i&InterestWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (b *epollBackend) Add(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (b *epollBackend) Modify(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (b *epollBackend) Remove(fd int) error {
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT || err == unix.EBADF {
		return nil
	}
	return err
}

func (b *epollBackend) Wait(dst []Event, timeout time.Duration) ([]Event, error) {
	ms := -1
	if timeout > 0 {
		ms = int(timeout / time.Millisecond)
	}

	for {
		n, err := unix.EpollWait(b.epfd, b.events, ms)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return dst, err
		}
		for i := 0; i < n; i++ {
			e := b.events[i]
			dst = append(dst, Event{
				Fd:     int(e.Fd),
				Read:   e.Events&(unix.EPOLLIN|unix.EPOLLHUP) != 0,
				Write:  e.Events&unix.EPOLLOUT != 0,
				Hangup: e.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
				Err:    e.Events&unix.EPOLLERR != 0,
			})
		}
		return dst, nil
	}
}

func (b *epollBackend) Close() error {
	return unix.Close(b.epfd)
}
