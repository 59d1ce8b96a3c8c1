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
	"errors"
	"testing"
)

const testMinPkg CodeError = 50000

func testMessage(code CodeError) string {
	switch code {
	case testMinPkg:
		return "test: first error"
	case testMinPkg + 1:
		return "test: second error"
	}
	return ""
}

func TestMain_registersTestRange(t *testing.T) {
	if !ExistInMapMessage(testMinPkg) {
		RegisterIdFctMessage(testMinPkg, testMessage)
	}
}

func TestCodeErrorTextFallsBackToUnknown(t *testing.T) {
	var c CodeError = 9999
	if got := c.Text(); got != UnknownMessage {
		t.Fatalf("Text() = %q, want %q for an unregistered code", got, UnknownMessage)
	}
}

func TestCodeErrorTextResolvesRegisteredRange(t *testing.T) {
	RegisterIdFctMessage(testMinPkg, testMessage)

	if got := testMinPkg.Text(); got != "test: first error" {
		t.Fatalf("Text() = %q, want %q", got, "test: first error")
	}
	if got := (testMinPkg + 1).Text(); got != "test: second error" {
		t.Fatalf("Text() = %q, want %q", got, "test: second error")
	}
}

func TestCodeErrorErrorChainsParents(t *testing.T) {
	RegisterIdFctMessage(testMinPkg, testMessage)

	parent := errors.New("underlying cause")
	err := testMinPkg.Error(parent)

	if err.Code() != testMinPkg {
		t.Fatalf("Code() = %v, want %v", err.Code(), testMinPkg)
	}
	if !err.HasParent() {
		t.Fatal("expected HasParent() true")
	}
	want := "test: first error: underlying cause"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if err.Unwrap() != parent {
		t.Fatal("expected Unwrap() to return the parent error")
	}
}

func TestCodeErrorErrorWithoutParents(t *testing.T) {
	RegisterIdFctMessage(testMinPkg, testMessage)

	err := testMinPkg.Error()
	if err.HasParent() {
		t.Fatal("expected no parents")
	}
	if err.Unwrap() != nil {
		t.Fatal("expected Unwrap() nil with no parents")
	}
}

func TestCodeErrorErrorfFormatsMessage(t *testing.T) {
	const fmtCode CodeError = testMinPkg + 2
	RegisterIdFctMessage(testMinPkg, func(code CodeError) string {
		if code == fmtCode {
			return "value is %d"
		}
		return testMessage(code)
	})

	err := fmtCode.Errorf(7)
	if err.Error() != "value is 7" {
		t.Fatalf("Errorf result = %q, want %q", err.Error(), "value is 7")
	}
}

func TestAddParentIgnoresNil(t *testing.T) {
	e := newError(testMinPkg, "msg")
	e.AddParent(nil, nil)
	if e.HasParent() {
		t.Fatal("expected nil parents to be discarded")
	}
}

func TestUnknownErrorText(t *testing.T) {
	if UnknownError.Text() != UnknownMessage {
		t.Fatalf("UnknownError.Text() = %q, want %q", UnknownError.Text(), UnknownMessage)
	}
}
