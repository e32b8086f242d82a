package config

import (
	"fmt"
	"strings"
)

// Validate checks a loaded configuration for structural problems the hub
// cannot run with. Warnings are not modelled here: anything Validate
// rejects would fail at startup anyway, just later and more confusingly.
func Validate(cfg HubConfig) error {
	collection := &ConfigurationErrorCollection{}

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		collection.AddError(configFileName, "logging", "validation",
			fmt.Sprintf("unknown log level %q", cfg.Logging.Level))
	}

	if cfg.MCP.Port < 0 || cfg.MCP.Port > 65535 {
		collection.AddError(configFileName, "mcp", "validation",
			fmt.Sprintf("port %d out of range", cfg.MCP.Port))
	}

	if cfg.AutoMapper.MinimumConfidence < 0 || cfg.AutoMapper.MinimumConfidence > 1 {
		collection.AddError(configFileName, "autoMapper", "validation",
			fmt.Sprintf("minimumConfidence %.2f must be within [0, 1]", cfg.AutoMapper.MinimumConfidence))
	}
	for i, rule := range cfg.AutoMapper.CustomRules {
		if rule.Pattern == "" {
			collection.AddError(configFileName, "autoMapper", "validation",
				fmt.Sprintf("rule %d has an empty pattern", i))
		}
		if rule.Confidence < 0 || rule.Confidence > 1 {
			collection.AddError(configFileName, "autoMapper", "validation",
				fmt.Sprintf("rule %d confidence %.2f must be within [0, 1]", i, rule.Confidence))
		}
	}

	seen := make(map[string]bool)
	for i, conn := range cfg.Connections {
		if conn.ID == "" {
			collection.AddError(configFileName, "connections", "validation",
				fmt.Sprintf("connection %d has an empty id", i))
			continue
		}
		if seen[conn.ID] {
			collection.AddError(configFileName, "connections", "validation",
				fmt.Sprintf("duplicate connection id %s", conn.ID))
		}
		seen[conn.ID] = true
		if conn.ConnectionType == "" {
			collection.AddError(configFileName, "connections", "validation",
				fmt.Sprintf("connection %s has no connectionType", conn.ID))
		}
	}

	if collection.HasErrors() {
		return collection
	}
	return nil
}
