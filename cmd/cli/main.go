package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inferloop/tabsdc/cmd/cli/commands"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := newRootCmd()

	// Initialize Viper
	cobra.OnInitialize(initConfig)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tabsdc-cli",
		Short: "Statistical Disclosure Control CLI",
		Long: `A command-line interface for anonymizing, privatizing, and inspecting
tabular health records before sharing them.`,
		Version: "0.1.0",
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tabsdc/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add commands
	rootCmd.AddCommand(commands.NewInspectCmd())
	rootCmd.AddCommand(commands.NewAnonymizeCmd())
	rootCmd.AddCommand(commands.NewPrivatizeCmd())
	rootCmd.AddCommand(commands.NewEvaluateCmd())
	rootCmd.AddCommand(commands.NewAccessCmd())

	return rootCmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(filepath.Join(home, ".tabsdc"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TABSDC")
	viper.Set("verbose", verbose)

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
