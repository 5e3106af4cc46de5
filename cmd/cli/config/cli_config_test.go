package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "-", cfg.DefaultOutput)
	assert.Equal(t, "text", cfg.DefaultFormat)
	assert.Equal(t, 1.0, cfg.Privacy.Epsilon)
	assert.Equal(t, 0.1, cfg.Privacy.NoiseScale)
	assert.Equal(t, 1.0, cfg.Privacy.TotalBudget)
	assert.Equal(t, int64(42), cfg.Privacy.Seed)
}

func TestLoadConfigExplicitFile(t *testing.T) {
	viper.Reset()
	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	content := "default_format: json\nprivacy:\n  epsilon: 0.25\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0644))

	cfg, err := LoadConfig(cfgFile)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.DefaultFormat)
	assert.Equal(t, 0.25, cfg.Privacy.Epsilon)
	assert.Equal(t, "-", cfg.DefaultOutput)
	assert.Equal(t, 0.1, cfg.Privacy.NoiseScale)
}

func TestSaveAndReloadConfig(t *testing.T) {
	viper.Reset()
	cfgFile := filepath.Join(t.TempDir(), "config.yaml")

	saved := &CLIConfig{
		DefaultOutput: "out.csv",
		DefaultFormat: "json",
		Privacy: PrivacyDefaults{
			Epsilon:     0.5,
			NoiseScale:  0.2,
			TotalBudget: 2.0,
			Seed:        7,
		},
	}
	require.NoError(t, SaveConfig(saved, cfgFile))

	viper.Reset()
	loaded, err := LoadConfig(cfgFile)
	require.NoError(t, err)

	assert.Equal(t, "out.csv", loaded.DefaultOutput)
	assert.Equal(t, "json", loaded.DefaultFormat)
	assert.Equal(t, 0.5, loaded.Privacy.Epsilon)
	assert.Equal(t, 0.2, loaded.Privacy.NoiseScale)
	assert.Equal(t, 2.0, loaded.Privacy.TotalBudget)
	assert.Equal(t, int64(7), loaded.Privacy.Seed)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	viper.Reset()
	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("default_format: [unclosed"), 0644))

	_, err := LoadConfig(cfgFile)
	assert.Error(t, err)
}
