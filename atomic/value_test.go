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

package atomic

import "testing"

func TestValueLoadReportsDefaultUntilStore(t *testing.T) {
	v := NewValue(42)
	if got := v.Load(); got != 42 {
		t.Fatalf("Load() = %d, want default 42", got)
	}

	v.Store(7)
	if got := v.Load(); got != 7 {
		t.Fatalf("Load() = %d, want 7", got)
	}
}

func TestValueSwap(t *testing.T) {
	v := NewValue("a")
	v.Store("b")

	old := v.Swap("c")
	if old != "b" {
		t.Fatalf("Swap returned %q, want b", old)
	}
	if got := v.Load(); got != "c" {
		t.Fatalf("Load() = %q, want c", got)
	}
}

func TestCompareAndSwapSucceedsOnMatch(t *testing.T) {
	v := NewValue(false)
	v.Store(true)

	if !CompareAndSwap(v, true, false) {
		t.Fatal("expected swap to succeed")
	}
	if v.Load() != false {
		t.Fatal("expected value to be false after swap")
	}
}

func TestCompareAndSwapFailsOnMismatch(t *testing.T) {
	v := NewValue(false)
	v.Store(true)

	if CompareAndSwap(v, false, true) {
		t.Fatal("expected swap to fail when old does not match current value")
	}
	if v.Load() != true {
		t.Fatal("expected value unchanged after failed swap")
	}
}

func TestCompareAndSwapAgainstUnsetDefault(t *testing.T) {
	v := NewValue(false)

	if !CompareAndSwap(v, false, true) {
		t.Fatal("expected swap to succeed against the never-stored default value")
	}
	if v.Load() != true {
		t.Fatal("expected value true after swap")
	}
}

func TestValueWithInterfaceType(t *testing.T) {
	v := NewValue[any](nil)
	v.Store(1)
	if v.Load() != 1 {
		t.Fatal("expected to load int 1")
	}
	v.Store("switched dynamic type")
	if v.Load() != "switched dynamic type" {
		t.Fatal("expected box wrapper to tolerate a dynamic type change across Store calls")
	}
}
