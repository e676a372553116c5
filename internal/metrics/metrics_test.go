// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// histogramCount reads the sample count of one histogram series.
func histogramCount(t *testing.T, h *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	observer, err := h.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatal(err)
	}
	var m dto.Metric
	if err := observer.(prometheus.Metric).Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestRecordCacheWait(t *testing.T) {
	before := testutil.ToFloat64(CacheWaitTimeouts.WithLabelValues("games"))

	samples := histogramCount(t, CacheWaitDuration, "games")

	RecordCacheWait("games", 10*time.Millisecond, false)
	if got := histogramCount(t, CacheWaitDuration, "games"); got != samples+1 {
		t.Errorf("wait samples = %d, want %d", got, samples+1)
	}
	if got := testutil.ToFloat64(CacheWaitTimeouts.WithLabelValues("games")); got != before {
		t.Errorf("timeouts = %v after successful wait, want %v", got, before)
	}

	RecordCacheWait("games", 90*time.Second, true)
	if got := testutil.ToFloat64(CacheWaitTimeouts.WithLabelValues("games")); got != before+1 {
		t.Errorf("timeouts = %v after timed out wait, want %v", got, before+1)
	}
}

func TestRecordRunLoopExit(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		canceled bool
		label    string
	}{
		{name: "clean", label: "clean"},
		{name: "error", err: errors.New("connection reset"), label: "error"},
		{name: "canceled wins over error", err: errors.New("context canceled"), canceled: true, label: "canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(RunLoopExits.WithLabelValues(tt.label))
			RecordRunLoopExit(tt.err, tt.canceled)
			if got := testutil.ToFloat64(RunLoopExits.WithLabelValues(tt.label)); got != before+1 {
				t.Errorf("%s exits = %v, want %v", tt.label, got, before+1)
			}
		})
	}
}

func TestRecordAPIRequest(t *testing.T) {
	RecordAPIRequest("GET", "/api/v1/games", "200", 5*time.Millisecond)
	if n := testutil.CollectAndCount(APIRequestDuration); n == 0 {
		t.Error("expected at least one api request series")
	}
	if got := histogramCount(t, APIRequestDuration, "GET", "/api/v1/games", "200"); got == 0 {
		t.Error("expected a recorded api request sample")
	}
}
