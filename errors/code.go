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

// Package errors provides a small typed-error system shared by every
// serverino package: a numeric CodeError (HTTP-status-like), a registry of
// message functions per package, and a chaining Error type.
package errors

import (
	"sort"
	"strconv"
)

// CodeError is a package-scoped numeric error code. Packages register a
// contiguous range starting at their MinPkg* constant (see modules.go) and
// a Message function covering that range.
type CodeError uint16

const (
	UnknownError   CodeError = 0
	UnknownMessage           = "unknown error"
)

var idMsgFct = make(map[CodeError]Message)

// Message renders a CodeError into a human string. Packages register one
// of these per MinPkg* range with RegisterIdFctMessage.
type Message func(code CodeError) string

func (c CodeError) Uint16() uint16 { return uint16(c) }

func (c CodeError) String() string { return strconv.Itoa(int(c)) }

// Text returns the registered message for this code, or UnknownMessage.
func (c CodeError) Text() string {
	if c == UnknownError {
		return UnknownMessage
	}
	if f, ok := idMsgFct[floorRegistered(c)]; ok {
		if m := f(c); m != "" {
			return m
		}
	}
	return UnknownMessage
}

// Error builds a chainable Error value from this code and optional parents.
func (c CodeError) Error(parents ...error) Error {
	return newError(c, c.Text(), parents...)
}

// Errorf builds a chainable Error value, formatting the registered message.
func (c CodeError) Errorf(args ...interface{}) Error {
	return newErrorf(c, c.Text(), args...)
}

// RegisterIdFctMessage associates a Message function with every code at or
// above minCode until the next registered range. Call once from each
// package's init().
func RegisterIdFctMessage(minCode CodeError, fct Message) {
	idMsgFct[minCode] = fct
}

// ExistInMapMessage reports whether minCode already has a registered
// range.
func ExistInMapMessage(minCode CodeError) bool {
	_, ok := idMsgFct[minCode]
	return ok
}

func floorRegistered(c CodeError) CodeError {
	keys := make([]int, 0, len(idMsgFct))
	for k := range idMsgFct {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)

	var best CodeError
	for _, k := range keys {
		if CodeError(k) <= c {
			best = CodeError(k)
		}
	}
	return best
}
