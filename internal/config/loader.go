package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"unshub/pkg/logging"
)

const (
	userConfigDir  = ".config/unshub"
	configFileName = "config.yaml"
)

// GetDefaultConfigPathOrPanic resolves ~/.config/unshub.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}
	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads configuration from a single directory: config.yaml plus
// the data/ subdirectory holding persisted entities. A missing config.yaml
// yields the defaults.
func LoadConfig(configPath string) (HubConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			config.DataDir = defaultDataDir(configPath)
			return config, nil
		}
		return HubConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return HubConfig{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	if config.DataDir == "" {
		config.DataDir = defaultDataDir(configPath)
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)

	if err := Validate(config); err != nil {
		return HubConfig{}, err
	}
	return config, nil
}

func defaultDataDir(configPath string) string {
	return filepath.Join(configPath, "data")
}
