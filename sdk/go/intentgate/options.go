package intentgate

import "time"

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	configPath string
	ledgerPath string
	confirmDir string
	now        func() time.Time
}

// WithConfig sets the path to a config YAML file.
func WithConfig(path string) Option {
	return func(c *clientConfig) { c.configPath = path }
}

// WithLedger sets the path to the ledger database.
func WithLedger(path string) Option {
	return func(c *clientConfig) { c.ledgerPath = path }
}

// WithConfirmDir sets the multi-factor confirmation store directory.
func WithConfirmDir(dir string) Option {
	return func(c *clientConfig) { c.confirmDir = dir }
}

// WithClock overrides the admission clock. Intended for tests and replay.
func WithClock(now func() time.Time) Option {
	return func(c *clientConfig) { c.now = now }
}
