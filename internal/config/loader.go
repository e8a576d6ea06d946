package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".sensorstats"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for sensorstats settings.
const envPrefix = "SENSORSTATS"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("output_prefix", DefaultOutputPrefix)
	viperCfg.SetDefault("chunk_size", DefaultChunkSize)
	viperCfg.SetDefault("workers", DefaultWorkers)
	viperCfg.SetDefault("plot", false)

	viperCfg.SetDefault("filter.site", "")
	viperCfg.SetDefault("filter.device", "")
	viperCfg.SetDefault("filter.metric", "")
	viperCfg.SetDefault("filter.time_start", "")
	viperCfg.SetDefault("filter.time_end", "")

	viperCfg.SetDefault("outliers.enabled", true)

	viperCfg.SetDefault("snapshot.enabled", false)
	viperCfg.SetDefault("snapshot.dir", DefaultSnapshotDir)
	viperCfg.SetDefault("snapshot.resume", false)
	viperCfg.SetDefault("snapshot.interval_blocks", DefaultSnapshotIntervalBlocks)

	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.log_json", false)
}
