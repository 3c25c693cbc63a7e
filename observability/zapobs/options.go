package zapobs

import "go.uber.org/zap"

// Option configures the zap-based Observer.
type Option func(*config)

type config struct {
	logger *zap.Logger
}

func applyOptions(opts ...Option) *config {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithLogger uses an existing zap.Logger instead of constructing a
// production logger. Tests typically pass a logger built on a
// zaptest/observer core to capture emitted entries.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}
