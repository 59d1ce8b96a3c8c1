/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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

// Package atomic provides a generic, type-safe wrapper over sync/atomic.Value
// with a configurable default, used for state shared between the event loop
// and a helper goroutine that must never take a lock on the hot path.
package atomic

import "sync/atomic"

type Value[T any] struct {
	v   atomic.Value
	def T
}

// NewValue returns a Value[T] that reports def until the first Store.
func NewValue[T any](def T) *Value[T] {
	return &Value[T]{def: def}
}

// box avoids atomic.Value's "inconsistent concrete type" panic when T is an
// interface type whose dynamic type varies between Store calls.
type box[T any] struct {
	v T
}

func (o *Value[T]) Load() T {
	i := o.v.Load()
	if i == nil {
		return o.def
	}
	b, ok := i.(box[T])
	if !ok {
		return o.def
	}
	return b.v
}

func (o *Value[T]) Store(val T) {
	o.v.Store(box[T]{val})
}

// Swap stores val and returns the previous value.
func (o *Value[T]) Swap(val T) (old T) {
	old = o.Load()
	o.Store(val)
	return old
}

// CompareAndSwap stores new if the current value equals old, reporting
// whether the swap happened. It retries on the underlying atomic.Value's
// own CompareAndSwap rather than doing a Load-then-Store, so it stays
// race-free under multiple concurrent writers. T must be comparable so the
// boxed values compare by ==.
func CompareAndSwap[T comparable](o *Value[T], old, new T) bool {
	for {
		cur := o.v.Load()
		curBox := box[T]{o.def}
		if cur != nil {
			curBox = cur.(box[T])
		}
		if curBox.v != old {
			return false
		}
		if o.v.CompareAndSwap(cur, box[T]{new}) {
			return true
		}
	}
}
