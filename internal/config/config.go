// Package config assembles the stock service configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/abgdnv/shelfstock/internal/allocation"
	"github.com/abgdnv/shelfstock/internal/inventory"
	"github.com/abgdnv/shelfstock/pkg/config"
	"github.com/abgdnv/shelfstock/pkg/config/configloader"
)

var _ configloader.Validator = (*Config)(nil)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Event brokers.
const (
	BrokerNone  = "none"
	BrokerNATS  = "nats"
	BrokerKafka = "kafka"
)

type Config struct {
	HTTPServer config.HTTPConfig       `koanf:"server"`
	GRPC       config.GrpcServerConfig `koanf:"grpc"`
	Database   config.DatabaseConfig   `koanf:"database"`
	Log        config.LogConfig        `koanf:"log"`
	PProf      config.PProfConfig      `koanf:"pprof"`
	Shutdown   config.ShutdownConfig   `koanf:"shutdown"`
	Telemetry  config.TelemetryConfig  `koanf:"telemetry"`
	Storage    StorageConfig           `koanf:"storage"`
	Inventory  InventoryConfig         `koanf:"inventory"`
	Events     EventsConfig            `koanf:"events"`
	Resilience config.ResilienceConfig `koanf:"resilience"`
	Cache      config.RedisConfig      `koanf:"cache"`
}

type StorageConfig struct {
	Driver string `koanf:"driver"`
}

// InventoryConfig tunes allocation, low-stock alerts and pricing.
type InventoryConfig struct {
	Strategy          string        `koanf:"strategy"`
	LowStockThreshold int           `koanf:"lowstockthreshold"`
	SafetyHorizon     time.Duration `koanf:"safetyhorizon"`
	NotifyMode        string        `koanf:"notifymode"`
	// MinPricingQuantity is the shelf quantity a product must exceed before discounts apply.
	MinPricingQuantity int `koanf:"minpricingquantity"`
}

type EventsConfig struct {
	Broker         string             `koanf:"broker"`
	PublishTimeout time.Duration      `koanf:"publishtimeout"`
	NATS           config.NATSConfig  `koanf:"nats"`
	Kafka          config.KafkaConfig `koanf:"kafka"`
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.GRPC.String())
	b.WriteString(fmt.Sprintf("\n--- Storage ---\n  driver: %s\n", c.Storage.Driver))
	if c.Storage.Driver == DriverPostgres {
		b.WriteString(c.Database.String())
	}
	b.WriteString(c.Cache.String())

	b.WriteString("\n--- Inventory ---\n")
	b.WriteString(fmt.Sprintf("  strategy: %s\n", c.Inventory.Strategy))
	b.WriteString(fmt.Sprintf("  lowstockthreshold: %d\n", c.Inventory.LowStockThreshold))
	b.WriteString(fmt.Sprintf("  safetyhorizon: %s\n", c.Inventory.SafetyHorizon))
	b.WriteString(fmt.Sprintf("  notifymode: %s\n", c.Inventory.NotifyMode))
	b.WriteString(fmt.Sprintf("  minpricingquantity: %d\n", c.Inventory.MinPricingQuantity))

	b.WriteString("\n--- Events ---\n")
	b.WriteString(fmt.Sprintf("  broker: %s\n", c.Events.Broker))
	b.WriteString(fmt.Sprintf("  publishtimeout: %s\n", c.Events.PublishTimeout))
	switch c.Events.Broker {
	case BrokerNATS:
		b.WriteString(c.Events.NATS.String())
	case BrokerKafka:
		b.WriteString(c.Events.Kafka.String())
	}
	if c.Events.Broker != BrokerNone {
		b.WriteString(c.Resilience.String())
	}

	b.WriteString(c.Log.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())
	return b.String()
}

// Validate checks the sections that the selected drivers use.
func (c *Config) Validate() error {
	if err := c.HTTPServer.Validate(); err != nil {
		return err
	}
	if err := c.GRPC.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.PProf.Validate(); err != nil {
		return err
	}
	if err := c.Shutdown.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if err := c.Database.Validate(); err != nil {
			return err
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if err := c.Inventory.Validate(); err != nil {
		return err
	}
	return c.Events.validate(&c.Resilience)
}

func (c *InventoryConfig) Validate() error {
	switch c.Strategy {
	case allocation.NameFIFO, allocation.NameClosestExpiry, allocation.NameExpiryAwareFIFO:
	default:
		return fmt.Errorf("unknown inventory strategy %q", c.Strategy)
	}
	if c.LowStockThreshold <= 0 {
		return fmt.Errorf("inventory lowstockthreshold must be greater than 0")
	}
	if c.Strategy == allocation.NameExpiryAwareFIFO && c.SafetyHorizon <= 0 {
		return fmt.Errorf("inventory safetyhorizon must be greater than 0")
	}
	if _, err := inventory.ParseNotifyMode(c.NotifyMode); err != nil {
		return err
	}
	if c.MinPricingQuantity < 0 {
		return fmt.Errorf("inventory minpricingquantity must not be negative")
	}
	return nil
}

func (c *EventsConfig) validate(resilience *config.ResilienceConfig) error {
	switch c.Broker {
	case BrokerNone:
		return nil
	case BrokerNATS:
		if err := c.NATS.Validate(); err != nil {
			return err
		}
	case BrokerKafka:
		if err := c.Kafka.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown events broker %q", c.Broker)
	}
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("events publishtimeout must be greater than 0")
	}
	return resilience.Validate()
}
