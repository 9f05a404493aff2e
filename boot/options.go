package boot

import "time"

type config struct {
	watchdogTimeout time.Duration
	magic           []byte
}

// Option configures Run.
type Option func(*config)

// WithWatchdogTimeout sets the watchdog period armed before the jump.
func WithWatchdogTimeout(d time.Duration) Option {
	return func(c *config) {
		c.watchdogTimeout = d
	}
}

// WithMagic replaces the loader marker pattern.
func WithMagic(magic []byte) Option {
	return func(c *config) {
		c.magic = magic
	}
}
