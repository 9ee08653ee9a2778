package dataproject

import "errors"

// Error taxonomy. Record-level parse problems are swallowed (skip + log) at
// the smallest scope and never surface here; these sentinels cover the
// call-level outcomes.
var (
	// ErrTransient marks an upstream call that failed and will simply be
	// retried on the next scan cycle.
	ErrTransient = errors.New("dataproject: transient upstream failure")

	// ErrProtocol marks a session-token problem. The client refreshes the
	// token and retries once internally; if it still fails the caller sees
	// ErrTransient.
	ErrProtocol = errors.New("dataproject: session token rejected")

	// ErrConfiguration marks a request for an unknown federation or
	// competition. Never retried; propagates synchronously.
	ErrConfiguration = errors.New("dataproject: unknown federation or competition")
)
