package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/inferloop/tabsdc/cmd/cli/config"
)

// loadCLIConfig resolves the configuration the root command initialized.
func loadCLIConfig() (*config.CLIConfig, error) {
	cfg, err := config.LoadConfig(viper.ConfigFileUsed())
	if err != nil {
		return nil, fmt.Errorf("failed to load CLI config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the logger the commands hand to the engines. Engine
// logs go to stderr so report output on stdout stays parseable.
func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if viper.GetBool("verbose") {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// splitColumns parses a comma-separated column list, dropping empty names.
func splitColumns(s string) []string {
	parts := strings.Split(s, ",")
	columns := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			columns = append(columns, name)
		}
	}
	return columns
}

func checkFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
