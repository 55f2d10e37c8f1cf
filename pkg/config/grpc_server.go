package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GrpcServerConfig configures the gRPC listener that serves health checks.
type GrpcServerConfig struct {
	Port              string        `koanf:"port"`
	ReflectionEnabled bool          `koanf:"reflection"`
	HealthInterval    time.Duration `koanf:"healthinterval"`
}

// String returns a string representation of the GrpcServerConfig.
func (c *GrpcServerConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- gRPC ---\n")
	b.WriteString(fmt.Sprintf("  port: %s\n", c.Port))
	b.WriteString(fmt.Sprintf("  reflection: %t\n", c.ReflectionEnabled))
	b.WriteString(fmt.Sprintf("  healthinterval: %s\n", c.HealthInterval))
	return b.String()
}

func (c *GrpcServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("gRPC port is not configured")
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("invalid gRPC port: %s", c.Port)
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("gRPC health interval must be greater than 0")
	}
	return nil
}
