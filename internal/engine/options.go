package engine

import "go.uber.org/zap"

// Option configures an Engine at Open/OpenCompact time. The pattern is
// grounded on rezkam/kashk's OptionSetter functional options
// (WithMaxLogSize, WithMaxKeySize, WithTombStone) — see DESIGN.md.
type Option func(*config)

type config struct {
	logger      *zap.SugaredLogger
	syncOnClose bool
}

func defaultConfig() *config {
	return &config{
		logger:      zap.NewNop().Sugar(),
		syncOnClose: true,
	}
}

// WithLogger injects a structured logger for lifecycle, recovery, and
// compaction events. Defaults to a no-op logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSyncOnClose controls whether Close attempts a final flush before
// releasing the file lock. Defaults to true, per spec.md §4.3 "close".
func WithSyncOnClose(sync bool) Option {
	return func(c *config) {
		c.syncOnClose = sync
	}
}
