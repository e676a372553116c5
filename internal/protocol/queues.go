// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package protocol

import (
	"context"
	"time"

	"github.com/tomtom215/steambridge/internal/logging"
	"github.com/tomtom215/steambridge/internal/metrics"
)

// CredentialSubmission is one round of the login handshake. TwoFactorCode is
// empty on the first round and on a resend request.
type CredentialSubmission struct {
	Password      string
	TwoFactorCode string
}

// HandshakeResult is the outcome of one credential submission.
type HandshakeResult int

// Handshake outcomes.
const (
	NoActionRequired HandshakeResult = iota
	EmailTwoFactorRequired
	PhoneTwoFactorRequired
	OtherFailure
)

// String returns the metric label for r.
func (r HandshakeResult) String() string {
	switch r {
	case NoActionRequired:
		return "no_action_required"
	case EmailTwoFactorRequired:
		return "email_two_factor_required"
	case PhoneTwoFactorRequired:
		return "phone_two_factor_required"
	default:
		return "other_failure"
	}
}

// Queues is the typed channel pair between the login controller and the
// session run loop. Each submission produces exactly one result.
type Queues struct {
	submissions chan CredentialSubmission
	results     chan HandshakeResult
}

// NewQueues returns an empty queue pair.
func NewQueues() *Queues {
	return &Queues{
		submissions: make(chan CredentialSubmission, 1),
		results:     make(chan HandshakeResult, 4),
	}
}

// Submit hands a submission to the run loop. Results left over from an
// earlier round whose wait timed out are discarded first.
func (q *Queues) Submit(ctx context.Context, s CredentialSubmission) error {
	q.drainResults()
	select {
	case q.submissions <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queues) drainResults() {
	for {
		select {
		case r := <-q.results:
			logging.Debug().Str("result", r.String()).Msg("Discarding stale handshake result")
		default:
			return
		}
	}
}

// Await waits for the result of the latest submission. When timeout elapses
// the handshake is assumed to have moved on and NoActionRequired is returned.
func (q *Queues) Await(ctx context.Context, timeout time.Duration) (HandshakeResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-q.results:
		metrics.HandshakeResults.WithLabelValues(r.String()).Inc()
		return r, nil
	case <-timer.C:
		metrics.HandshakeResults.WithLabelValues("timeout").Inc()
		logging.Warn().Dur("timeout", timeout).Msg("No handshake result received, assuming no action required")
		return NoActionRequired, nil
	case <-ctx.Done():
		return OtherFailure, ctx.Err()
	}
}

// Submissions is read by the run loop.
func (q *Queues) Submissions() <-chan CredentialSubmission {
	return q.submissions
}

// Publish reports the result of a submission. It never blocks the run loop.
func (q *Queues) Publish(r HandshakeResult) {
	select {
	case q.results <- r:
	default:
		logging.Warn().Str("result", r.String()).Msg("Handshake result queue full, dropping result")
	}
}
