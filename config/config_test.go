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

package config

import "testing"

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Listeners = []string{"127.0.0.1:8080"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults + a listener to validate, got %v", err)
	}
}

func TestValidateRejectsMissingListeners(t *testing.T) {
	cfg := Defaults()

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error with no listeners")
	}
}

func TestValidateRejectsMaxWorkersBelowMin(t *testing.T) {
	cfg := Defaults()
	cfg.Listeners = []string{"127.0.0.1:8080"}
	cfg.MinWorkers = 4
	cfg.MaxWorkers = 2

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when MaxWorkers < MinWorkers")
	}
}

func TestValidateFillsZeroDefaults(t *testing.T) {
	cfg := Defaults()
	cfg.Listeners = []string{"127.0.0.1:8080"}
	cfg.MaxHeaderSize = 0
	cfg.RecvBufferSize = 0
	cfg.KeepAliveTimeout = 0
	cfg.MaxHTTPWaiting = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxHeaderSize != DefaultMaxHeaderSize {
		t.Errorf("MaxHeaderSize = %d, want %d", cfg.MaxHeaderSize, DefaultMaxHeaderSize)
	}
	if cfg.RecvBufferSize != DefaultRecvBufferSize {
		t.Errorf("RecvBufferSize = %d, want %d", cfg.RecvBufferSize, DefaultRecvBufferSize)
	}
	if cfg.KeepAliveTimeout != DefaultKeepAliveTO {
		t.Errorf("KeepAliveTimeout = %v, want %v", cfg.KeepAliveTimeout, DefaultKeepAliveTO)
	}
	if cfg.MaxHTTPWaiting != DefaultMaxHTTPWaiting {
		t.Errorf("MaxHTTPWaiting = %v, want %v", cfg.MaxHTTPWaiting, DefaultMaxHTTPWaiting)
	}
}

func TestCloneCopiesListeners(t *testing.T) {
	cfg := Defaults()
	cfg.Listeners = []string{"127.0.0.1:8080"}

	clone := cfg.Clone()
	clone.Listeners[0] = "mutated"

	if cfg.Listeners[0] == "mutated" {
		t.Fatal("Clone should deep-copy Listeners")
	}
}
