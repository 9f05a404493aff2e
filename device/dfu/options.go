package dfu

import "time"

// Option configures an Engine.
type Option func(*Engine)

// WithPollTimeout sets the bwPollTimeout value reported in GETSTATUS
// responses.
func WithPollTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.pollTimeout = d
	}
}

// WithDetach sets the function called after a DFU_DETACH request has been
// acknowledged.
func WithDetach(fn func()) Option {
	return func(e *Engine) {
		e.onDetach = fn
	}
}

// WithManifest sets the function called when a download completes. It
// receives the total number of bytes committed.
func WithManifest(fn func(size int)) Option {
	return func(e *Engine) {
		e.onManifest = fn
	}
}

// WithIdle sets the function Run calls between requests, and at least
// once per interval while no request arrives.
func WithIdle(interval time.Duration, fn func()) Option {
	return func(e *Engine) {
		e.idleInterval = interval
		e.onIdle = fn
	}
}
