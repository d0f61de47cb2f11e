package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/canonical/cos-configuration-k8s-operator/pkg/logging"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from the given file path, applying defaults
// for any omitted fields. A missing file is not an error: the defaults are
// returned and the daemon starts Uninitialized.
func LoadConfig(configFilePath string) (Config, error) {
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config file found at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	if verrs := Validate(config); verrs.HasErrors() {
		return Config{}, fmt.Errorf("invalid config in %s: %w", configFilePath, verrs)
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}
