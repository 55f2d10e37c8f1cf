package config

import (
	"fmt"
	"strings"
	"time"
)

type ShutdownConfig struct {
	// Timeout bounds the graceful stop of every server.
	Timeout time.Duration `koanf:"timeout"`
	// DrainDelay is how long the health service reports NOT_SERVING before the servers stop accepting requests.
	DrainDelay time.Duration `koanf:"draindelay"`
}

// String returns a string representation of the ShutdownConfig.
func (c *ShutdownConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Shutdown ---\n")
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(fmt.Sprintf("  draindelay: %s\n", c.DrainDelay))
	return b.String()
}

func (c *ShutdownConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("shutdown timeout is not configured")
	}
	if c.DrainDelay < 0 || c.DrainDelay >= c.Timeout {
		return fmt.Errorf("shutdown drain delay must be in [0, timeout): %s", c.DrainDelay)
	}
	return nil
}
