// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/steambridge/internal/models"
)

func TestReadinessReleasesAllWaitersTogether(t *testing.T) {
	t.Parallel()

	r := NewReadiness()
	const waiters = 2

	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	released := make(chan time.Time, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Wait(context.Background(), 5*time.Second)
			released <- time.Now()
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	setAt := time.Now()
	r.Set()
	wg.Wait()
	close(errs)
	close(released)

	for err := range errs {
		if err != nil {
			t.Errorf("waiter returned %v, want nil", err)
		}
	}
	for at := range released {
		if at.Before(setAt) {
			t.Error("waiter released before the signal was set")
		}
	}
}

func TestReadinessSetIsIdempotent(t *testing.T) {
	t.Parallel()

	r := NewReadiness()
	if r.IsSet() {
		t.Fatal("new signal should not be set")
	}
	r.Set()
	r.Set()
	if !r.IsSet() {
		t.Fatal("signal should be set")
	}
	if err := r.Wait(context.Background(), time.Nanosecond); err != nil {
		t.Errorf("Wait on set signal = %v, want nil", err)
	}
}

func TestReadinessTimeoutIsBackendTimeout(t *testing.T) {
	t.Parallel()

	err := NewReadiness().Wait(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, models.ErrBackendTimeout) {
		t.Fatalf("Wait = %v, want ErrBackendTimeout", err)
	}
	if errors.Is(err, models.ErrAuthenticationRequired) || errors.Is(err, models.ErrUnrecognizedBackendResponse) {
		t.Error("timeout must be distinguishable from other failures")
	}
}

func TestReadinessContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewReadiness().Wait(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}
}

func TestWaitReadyNamesCache(t *testing.T) {
	t.Parallel()

	err := NewGamesCache().WaitReady(context.Background(), 5*time.Millisecond)
	if !errors.Is(err, models.ErrBackendTimeout) {
		t.Fatalf("WaitReady = %v, want ErrBackendTimeout", err)
	}
	if got := err.Error(); !strings.Contains(got, "games cache not ready") {
		t.Errorf("error %q should name the cache", got)
	}
}
