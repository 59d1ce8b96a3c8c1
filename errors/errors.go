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

package errors

import (
	"fmt"
	"strings"
)

// Error chains a CodeError with zero or more parent errors, the way a
// wrapped stdlib error chains with %w but with a stable numeric code
// usable for logging and metrics.
type Error interface {
	error
	Code() CodeError
	HasParent() bool
	AddParent(err ...error)
	Unwrap() error
}

type erro struct {
	code CodeError
	msg  string
	prnt []error
}

func newError(code CodeError, msg string, parents ...error) Error {
	e := &erro{code: code, msg: msg}
	e.AddParent(parents...)
	return e
}

func newErrorf(code CodeError, msg string, args ...interface{}) Error {
	if strings.Contains(msg, "%") && len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &erro{code: code, msg: msg}
}

func (e *erro) Code() CodeError { return e.code }

func (e *erro) Error() string {
	if !e.HasParent() {
		return e.msg
	}

	parts := make([]string, 0, len(e.prnt)+1)
	parts = append(parts, e.msg)
	for _, p := range e.prnt {
		if p != nil {
			parts = append(parts, p.Error())
		}
	}
	return strings.Join(parts, ": ")
}

func (e *erro) HasParent() bool { return len(e.prnt) > 0 }

func (e *erro) AddParent(err ...error) {
	for _, er := range err {
		if er != nil {
			e.prnt = append(e.prnt, er)
		}
	}
}

func (e *erro) Unwrap() error {
	if len(e.prnt) == 0 {
		return nil
	}
	return e.prnt[0]
}
