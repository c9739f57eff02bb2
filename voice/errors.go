// ABOUTME: Sentinel errors shared across the voice package
// ABOUTME: Callers branch on these with errors.Is

package voice

import "errors"

// ErrResponseClosed is returned when an action or wait is requested on a
// response whose handler has already returned. Guards against user code
// retaining a builder reference past its request's lifetime.
var ErrResponseClosed = errors.New("response already closed")

// ErrWaitTimeout is returned by WaitForEvent when no matching event arrives
// within the timeout. Recoverable; the handler decides how to proceed.
var ErrWaitTimeout = errors.New("timed out waiting for event")

// ErrBusClosed is returned when a wait is attempted against a bus that has
// been shut down, typically during server shutdown.
var ErrBusClosed = errors.New("event bus closed")
