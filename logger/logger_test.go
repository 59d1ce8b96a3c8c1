/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
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

package logger

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

// captureStderr redirects os.Stderr for the duration of fn and returns
// whatever was written to it.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	orig := os.Stderr
	os.Stderr = w

	fn()

	os.Stderr = orig
	_ = w.Close()

	out, _ := io.ReadAll(r)
	_ = r.Close()
	return string(out)
}

func TestNewLogsAtOrAboveConfiguredLevel(t *testing.T) {
	var l Logger
	out := captureStderr(t, func() {
		l = New(WarnLevel)
		l.Debug("should not appear")
		l.Info("should not appear either")
		l.Warn("visible warning")
		l.Error("visible error")
	})

	if strings.Contains(out, "should not appear") {
		t.Fatalf("expected debug/info to be suppressed at WarnLevel, got:\n%s", out)
	}
	if !strings.Contains(out, "visible warning") || !strings.Contains(out, "visible error") {
		t.Fatalf("expected warn/error lines, got:\n%s", out)
	}
	_ = l
}

func TestWithFieldsAttachesKeyValues(t *testing.T) {
	out := captureStderr(t, func() {
		l := New(DebugLevel)
		l.WithFields(Fields{"worker_id": 3, "pid": 1234}).Info("worker ready")
	})

	if !strings.Contains(out, "worker_id=3") || !strings.Contains(out, "pid=1234") {
		t.Fatalf("expected fields in output, got:\n%s", out)
	}
}

func TestFormattedVariants(t *testing.T) {
	out := captureStderr(t, func() {
		l := New(DebugLevel)
		l.Infof("conn %d established in %s", 7, time.Millisecond)
	})

	if !strings.Contains(out, "conn 7 established") {
		t.Fatalf("expected formatted message, got:\n%s", out)
	}
}

func TestDiscardNeverWrites(t *testing.T) {
	out := captureStderr(t, func() {
		Discard.Debug("x")
		Discard.Info("x")
		Discard.Warn("x")
		Discard.Error("x")
		Discard.WithFields(Fields{"a": 1}).Errorf("y %d", 2)
	})

	if out != "" {
		t.Fatalf("expected Discard to write nothing, got:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"DEBUG":   DebugLevel,
		" warn ":  WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"info":    InfoLevel,
		"bogus":   InfoLevel,
		"":        InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelLogrusMapping(t *testing.T) {
	if DebugLevel.logrus().String() != "debug" {
		t.Fatalf("DebugLevel should map to logrus debug")
	}
	if ErrorLevel.logrus().String() != "error" {
		t.Fatalf("ErrorLevel should map to logrus error")
	}
	if InfoLevel.logrus().String() != "info" {
		t.Fatalf("InfoLevel should map to logrus info")
	}
	if WarnLevel.logrus().String() != "warning" {
		t.Fatalf("WarnLevel should map to logrus warning")
	}
}

func TestFieldsWithDoesNotMutateReceiver(t *testing.T) {
	base := Fields{"a": 1}
	derived := base.With("b", 2)

	if _, ok := base["b"]; ok {
		t.Fatal("With must not mutate the receiver")
	}
	if derived["a"] != 1 || derived["b"] != 2 {
		t.Fatalf("derived fields missing entries: %#v", derived)
	}
}

func TestFieldsLogrusConversion(t *testing.T) {
	f := Fields{"x": "y"}
	lf := f.Logrus()
	if lf["x"] != "y" {
		t.Fatalf("Logrus() conversion lost key: %#v", lf)
	}
}
