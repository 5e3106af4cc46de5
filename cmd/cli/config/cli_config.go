package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/inferloop/tabsdc/pkg/constants"
)

type CLIConfig struct {
	DefaultOutput string          `mapstructure:"default_output"`
	DefaultFormat string          `mapstructure:"default_format"`
	Privacy       PrivacyDefaults `mapstructure:"privacy"`
}

// PrivacyDefaults supplies privatize parameters when the corresponding
// flags are left unset.
type PrivacyDefaults struct {
	Epsilon     float64 `mapstructure:"epsilon"`
	NoiseScale  float64 `mapstructure:"noise_scale"`
	TotalBudget float64 `mapstructure:"total_budget"`
	Seed        int64   `mapstructure:"seed"`
}

func LoadConfig(cfgFile string) (*CLIConfig, error) {
	config := &CLIConfig{
		DefaultOutput: "-",
		DefaultFormat: "text",
		Privacy: PrivacyDefaults{
			Epsilon:     constants.DefaultEpsilon,
			NoiseScale:  constants.DefaultNoiseScale,
			TotalBudget: constants.DefaultTotalBudget,
			Seed:        constants.DefaultSeed,
		},
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		configPath := filepath.Join(home, ".tabsdc")
		viper.AddConfigPath(configPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TABSDC")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("default_output", config.DefaultOutput)
	viper.SetDefault("default_format", config.DefaultFormat)
	viper.SetDefault("privacy.epsilon", config.Privacy.Epsilon)
	viper.SetDefault("privacy.noise_scale", config.Privacy.NoiseScale)
	viper.SetDefault("privacy.total_budget", config.Privacy.TotalBudget)
	viper.SetDefault("privacy.seed", config.Privacy.Seed)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

func SaveConfig(config *CLIConfig, cfgFile string) error {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		configDir := filepath.Join(home, ".tabsdc")
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		cfgFile = filepath.Join(configDir, "config.yaml")
	}

	viper.Set("default_output", config.DefaultOutput)
	viper.Set("default_format", config.DefaultFormat)
	viper.Set("privacy.epsilon", config.Privacy.Epsilon)
	viper.Set("privacy.noise_scale", config.Privacy.NoiseScale)
	viper.Set("privacy.total_budget", config.Privacy.TotalBudget)
	viper.Set("privacy.seed", config.Privacy.Seed)

	return viper.WriteConfigAs(cfgFile)
}

func GetDefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tabsdc", "config.yaml")
}
