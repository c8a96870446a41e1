package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for the renewal worker.
type Config struct {
	// Interval is how often due subscriptions are settled.
	// Default: 1 hour
	Interval time.Duration

	// RunTimeout bounds a single renewal run. Its context is canceled when exceeded.
	// Default: 5 minutes
	RunTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for an in-flight run.
	// Default: 30 seconds
	ShutdownTimeout time.Duration

	// RunOnStart settles anything already due as soon as the worker starts.
	RunOnStart bool
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Interval:        time.Hour,
		RunTimeout:      5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		RunOnStart:      true,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Interval < time.Second {
		return fmt.Errorf("interval must be at least 1 second, got %v", c.Interval)
	}
	if c.RunTimeout < time.Second {
		return fmt.Errorf("run timeout must be at least 1 second, got %v", c.RunTimeout)
	}
	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	return nil
}
