package config

import (
	"time"

	"unshub/internal/api"
	"unshub/internal/automap"
	"unshub/internal/cache"
	"unshub/internal/mcpserver"
	"unshub/internal/queue"
)

// HubConfig is the top-level configuration structure for unshub.
type HubConfig struct {
	Logging     LoggingConfig                 `yaml:"logging"`
	DataDir     string                        `yaml:"dataDir,omitempty"` // entity storage root (default: <configPath>/data)
	History     HistoryConfig                 `yaml:"history"`
	Cache       CacheConfig                   `yaml:"cache"`
	Queue       QueueConfig                   `yaml:"queue"`
	AutoMapper  automap.Config                `yaml:"autoMapper"`
	MCP         mcpserver.Config              `yaml:"mcp"`
	Metrics     MetricsConfig                 `yaml:"metrics"`
	Model       ModelConfig                   `yaml:"model"`
	Connections []api.ConnectionConfiguration `yaml:"connections,omitempty"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error (default: info)
}

// HistoryConfig toggles historical storage globally.
type HistoryConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxPerTopic int  `yaml:"maxPerTopic,omitempty"` // in-memory store bound (default 10000)
}

// CacheConfig sizes the cache tiers with YAML-friendly units.
type CacheConfig struct {
	L1Size int `yaml:"l1Size,omitempty"`
	L2Size int `yaml:"l2Size,omitempty"`
	L3Size int `yaml:"l3Size,omitempty"`

	L1MaxIdleMinutes int `yaml:"l1MaxIdleMinutes,omitempty"`
	L2MaxIdleHours   int `yaml:"l2MaxIdleHours,omitempty"`
	L3MaxIdleHours   int `yaml:"l3MaxIdleHours,omitempty"`

	MaintenanceIntervalMinutes int `yaml:"maintenanceIntervalMinutes,omitempty"`
	WarmIntervalMinutes        int `yaml:"warmIntervalMinutes,omitempty"`
	WarmTopK                   int `yaml:"warmTopK,omitempty"`
}

// ToCacheConfig maps the YAML units onto the cache manager's configuration.
// Zero values stay zero so the manager applies its own defaults.
func (c CacheConfig) ToCacheConfig() cache.Config {
	return cache.Config{
		L1Size:              c.L1Size,
		L2Size:              c.L2Size,
		L3Size:              c.L3Size,
		L1MaxIdle:           time.Duration(c.L1MaxIdleMinutes) * time.Minute,
		L2MaxIdle:           time.Duration(c.L2MaxIdleHours) * time.Hour,
		L3MaxIdle:           time.Duration(c.L3MaxIdleHours) * time.Hour,
		MaintenanceInterval: time.Duration(c.MaintenanceIntervalMinutes) * time.Minute,
		WarmInterval:        time.Duration(c.WarmIntervalMinutes) * time.Minute,
		WarmTopK:            c.WarmTopK,
	}
}

// QueueConfig sizes the point processor.
type QueueConfig struct {
	Lanes                int `yaml:"lanes,omitempty"`
	MaxConcurrentPerLane int `yaml:"maxConcurrentPerLane,omitempty"`
	LaneCapacity         int `yaml:"laneCapacity,omitempty"`
	PriorityMultiplier   int `yaml:"priorityMultiplier,omitempty"`
}

// ToQueueConfig maps onto the processor configuration.
func (c QueueConfig) ToQueueConfig() queue.Config {
	return queue.Config{
		Lanes:                c.Lanes,
		MaxConcurrentPerLane: c.MaxConcurrentPerLane,
		LaneCapacity:         c.LaneCapacity,
		PriorityMultiplier:   c.PriorityMultiplier,
	}
}

// MetricsConfig toggles the otel pipeline.
type MetricsConfig struct {
	Enabled               bool `yaml:"enabled"`
	ExportIntervalSeconds int  `yaml:"exportIntervalSeconds,omitempty"`
}

// ModelConfig drives the periodic namespace-model publisher.
type ModelConfig struct {
	RepublishIntervalMinutes int `yaml:"republishIntervalMinutes,omitempty"` // default 10
}
