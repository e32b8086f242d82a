package config

import (
	"unshub/internal/automap"
	"unshub/internal/mcpserver"
)

// GetDefaultConfig returns the configuration used when no config.yaml
// exists: an auto-mapping hub with history enabled and the query server on
// its stock port.
func GetDefaultConfig() HubConfig {
	return HubConfig{
		Logging:    LoggingConfig{Level: "info"},
		History:    HistoryConfig{Enabled: true},
		AutoMapper: automap.DefaultConfig(),
		MCP:        mcpserver.DefaultConfig(),
		Model:      ModelConfig{RepublishIntervalMinutes: 10},
	}
}
