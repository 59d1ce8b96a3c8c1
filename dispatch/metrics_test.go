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

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsHandlerExposesRegisteredSeries(t *testing.T) {
	m := NewMetrics()
	m.observeRequestDispatched()
	m.workers.WithLabelValues("idling").Set(2)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	if !strings.Contains(body, "serverino_requests_dispatched_total 1") {
		t.Fatalf("expected dispatched-requests counter at 1, got:\n%s", body)
	}
	if !strings.Contains(body, `serverino_workers{status="idling"} 2`) {
		t.Fatalf("expected idling worker gauge at 2, got:\n%s", body)
	}
}

func TestRefreshMetricsNoopWithoutMetrics(t *testing.T) {
	d := &Dispatcher{}
	d.refreshMetrics() // must not panic when metrics were never enabled
}

func TestRefreshMetricsCountsWorkersByStatus(t *testing.T) {
	d := newTestDispatcher(t)
	m := NewMetrics()
	d.EnableMetrics(m)

	d.workers = []*WorkerProc{
		{status: WorkerIdling},
		{status: WorkerIdling},
		{status: WorkerProcessing},
		{status: WorkerStopped},
	}
	d.alives.pushBack(newCommunicator(nil))

	d.refreshMetrics()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()

	if !strings.Contains(body, `serverino_workers{status="idling"} 2`) {
		t.Fatalf("expected 2 idling workers, got:\n%s", body)
	}
	if !strings.Contains(body, `serverino_workers{status="processing"} 1`) {
		t.Fatalf("expected 1 processing worker, got:\n%s", body)
	}
	if !strings.Contains(body, "serverino_communicators_active 1") {
		t.Fatalf("expected 1 active communicator, got:\n%s", body)
	}
}
