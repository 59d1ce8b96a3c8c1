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

// commList is an intrusive doubly-linked list of Communicators. A
// Communicator carries its own prev/next pointers for whichever of
// alives/deads it currently sits on, and a separate pair of pointers for
// execWaitingList membership, so insertion/removal from either list is
// O(1) without a map lookup.
type commList struct {
	head, tail *Communicator
	len        int
}

func (l *commList) pushBack(c *Communicator) {
	c.listPrev, c.listNext = l.tail, nil
	if l.tail != nil {
		l.tail.listNext = c
	} else {
		l.head = c
	}
	l.tail = c
	l.len++
}

func (l *commList) remove(c *Communicator) {
	if c.listPrev != nil {
		c.listPrev.listNext = c.listNext
	} else if l.head == c {
		l.head = c.listNext
	}
	if c.listNext != nil {
		c.listNext.listPrev = c.listPrev
	} else if l.tail == c {
		l.tail = c.listPrev
	}
	c.listPrev, c.listNext = nil, nil
	l.len--
}

func (l *commList) each(f func(*Communicator)) {
	for c := l.head; c != nil; {
		next := c.listNext
		f(c)
		c = next
	}
}

// execWaitList is the FIFO of Communicators with a fully-parsed request
// pending worker assignment; pairing is greedy in list order.
type execWaitList struct {
	head, tail *Communicator
}

// onExecList reports whether c is linked into the list: idempotent, it is
// on the list iff execPrev is set or c is the list's front.
func (c *Communicator) onExecList(l *execWaitList) bool {
	return c.execPrev != nil || l.head == c
}

func (l *execWaitList) pushBack(c *Communicator) {
	if c.onExecList(l) {
		return
	}
	c.execPrev, c.execNext = l.tail, nil
	if l.tail != nil {
		l.tail.execNext = c
	} else {
		l.head = c
	}
	l.tail = c
}

func (l *execWaitList) popFront() *Communicator {
	c := l.head
	if c == nil {
		return nil
	}
	l.head = c.execNext
	if l.head != nil {
		l.head.execPrev = nil
	} else {
		l.tail = nil
	}
	c.execNext = nil
	return c
}
