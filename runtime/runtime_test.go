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

package runtime

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	liberr "github.com/sabouaram/serverino/errors"
	liblog "github.com/sabouaram/serverino/logger"
	"github.com/sabouaram/serverino/wire"
)

func TestHandleOneNormal(t *testing.T) {
	r := &Runtime{log: liblog.Discard}
	payload := []byte("GET /x HTTP/1.1\r\nHost: h\r\n\r\n")

	w := r.handleOne(func(req *Request, rw ResponseWriter) {
		rw.Write([]byte("hi"))
		rw.SetKeepAlive(true)
	}, payload)

	if string(w.body) != "hi" {
		t.Fatalf("body = %q, want %q", w.body, "hi")
	}
	if !w.keepAliveSet || !w.keepAlive {
		t.Fatal("expected keep-alive to be set")
	}
}

func TestHandleOnePanicRecovered(t *testing.T) {
	r := &Runtime{log: liblog.Discard}
	payload := []byte("GET / HTTP/1.1\r\n\r\n")

	w := r.handleOne(func(req *Request, rw ResponseWriter) {
		panic("boom")
	}, payload)

	if !strings.Contains(string(w.body), "500 Internal Server Error") {
		t.Fatalf("expected 500 response, got %q", w.body)
	}
	if w.keepAlive {
		t.Fatal("expected keep-alive false after a panic")
	}
}

func TestWriteResponseInline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	r := &Runtime{conn: server, log: liblog.Discard}
	w := &responseWriter{body: []byte("pong")}

	done := make(chan error, 1)
	go func() { done <- r.writeResponse(w) }()

	header := make([]byte, wire.ResponseHeaderSize())
	if _, err := readFull(client, header); err != nil {
		t.Fatalf("reading header: %v", err)
	}
	payload, ok := wire.DecodeWorkerPayload(header)
	if !ok {
		t.Fatal("expected decodable header")
	}
	if payload.Flags != wire.FlagInline {
		t.Fatalf("flags = %v, want FlagInline", payload.Flags)
	}
	if payload.ContentLength != 4 {
		t.Fatalf("content length = %d, want 4", payload.ContentLength)
	}

	body := make([]byte, payload.ContentLength)
	if _, err := readFull(client, body); err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !bytes.Equal(body, []byte("pong")) {
		t.Fatalf("body = %q, want %q", body, "pong")
	}

	if err := <-done; err != nil {
		t.Fatalf("writeResponse: %v", err)
	}
}

func selfHash(t *testing.T) string {
	t.Helper()
	path, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("os.Open: %v", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		t.Fatalf("hashing self: %v", err)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func TestVerifyBuildHashSkipsWhenEnvUnset(t *testing.T) {
	t.Setenv("SERVERINO_BUILD", "")
	if err := VerifyBuildHash(); err != nil {
		t.Fatalf("expected no error with SERVERINO_BUILD unset, got %v", err)
	}
}

func TestVerifyBuildHashAcceptsMatch(t *testing.T) {
	t.Setenv("SERVERINO_BUILD", selfHash(t))
	if err := VerifyBuildHash(); err != nil {
		t.Fatalf("expected matching hash to pass, got %v", err)
	}
}

func TestVerifyBuildHashRejectsMismatch(t *testing.T) {
	t.Setenv("SERVERINO_BUILD", "0000000000000000")
	err := VerifyBuildHash()
	if err == nil {
		t.Fatal("expected an error for a stale build hash")
	}
	ce, ok := err.(liberr.Error)
	if !ok {
		t.Fatalf("expected a liberr.Error, got %T", err)
	}
	if ce.Code() != ErrorBuildHashMismatch {
		t.Fatalf("code = %v, want ErrorBuildHashMismatch", ce.Code())
	}
}

func TestIdleBoundShrinksForDynamicWorkers(t *testing.T) {
	full := 40 * time.Millisecond

	dynamic := &Runtime{cfg: Config{MaxWorkerIdling: full, Dynamic: true}}
	if got, want := dynamic.idleBound(), full/dynamicIdleDivisor; got != want {
		t.Fatalf("dynamic idleBound() = %v, want %v", got, want)
	}

	baseline := &Runtime{cfg: Config{MaxWorkerIdling: full, Dynamic: false}}
	if got := baseline.idleBound(); got != full {
		t.Fatalf("baseline idleBound() = %v, want %v (unchanged)", got, full)
	}

	disabled := &Runtime{cfg: Config{MaxWorkerIdling: 0, Dynamic: true}}
	if got := disabled.idleBound(); got != 0 {
		t.Fatalf("disabled idleBound() = %v, want 0", got)
	}
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
