// Package atomic provides small atomic-value wrappers used by the agent
// to avoid a mutex for state that is read far more often than written.
// Grounded on the atomicx.Error pattern used by the vendored pion/ice
// agent.go (a.err.Load()/a.err.Store()).
package atomic

import "sync/atomic"

// Error is an atomically-stored error, safe to read from any goroutine
// without a lock.
type Error struct {
	v atomic.Value
}

type errorWrapper struct{ err error }

// Store records err, overwriting any previous value. Storing nil clears it.
func (e *Error) Store(err error) {
	e.v.Store(errorWrapper{err: err})
}

// Load returns the last stored error, or nil if none was stored.
func (e *Error) Load() error {
	w, ok := e.v.Load().(errorWrapper)
	if !ok {
		return nil
	}
	return w.err
}
