package tracking

// Config holds the tunable parameters of the tracker.
type Config struct {
	MaxAge      int // Evict a track once it has missed more than this many cycles
	StableHits  int // Consecutive hits after which a track is stable for good
	HistorySize int // Bboxes kept per track

	// MetricEvery publishes the active track count every N frames (0 disables).
	MetricEvery int
}

// DefaultConfig returns the standard tracker configuration.
func DefaultConfig() Config {
	return Config{
		MaxAge:      30,
		StableHits:  3,
		HistorySize: 5,
		MetricEvery: 100,
	}
}

// Option modifies a Config.
type Option func(*Config)

// WithMaxAge sets the eviction age.
func WithMaxAge(n int) Option {
	return func(c *Config) { c.MaxAge = n }
}

// WithStableHits sets the hit count needed for stability.
func WithStableHits(n int) Option {
	return func(c *Config) { c.StableHits = n }
}

// WithMetricEvery sets how often the active track metric is published.
func WithMetricEvery(n int) Option {
	return func(c *Config) { c.MetricEvery = n }
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.HistorySize < 2 {
		c.HistorySize = 2
	}
	if c.StableHits < 1 {
		c.StableHits = 1
	}
}
