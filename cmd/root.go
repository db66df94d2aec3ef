// Package cmd implements the agent-q command line interface.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ryaneggz/agent-q/internal/config"
	"github.com/ryaneggz/agent-q/internal/log"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:     "agent-q",
	Short:   "Asynchronous request broker for a single AI worker",
	Long: `agent-q queues natural-language prompts over HTTP, processes them
one at a time in priority order, and streams incremental output back to
subscribers via server-sent events. Prompts can be grouped into threads
that expose aggregate metadata and ordered history.`,
	Version: version,
	RunE:    runServe,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/agentq/config.yaml)")
	rootCmd.Flags().String("addr", "", "listen address (overrides config)")

	_ = viper.BindPFlag("server.addr", rootCmd.Flags().Lookup("addr"))
}

func initConfig() {
	config.BindDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .agentq/config.yaml (current directory)
		// 2. ~/.config/agentq/config.yaml (user config)
		if _, err := os.Stat(".agentq/config.yaml"); err == nil {
			viper.SetConfigFile(".agentq/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "agentq"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .agentq/config.yaml
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := filepath.Join(".agentq", "config.yaml")
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	var err error
	cfg, err = config.Load(viper.GetViper())
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(os.Stderr, cfg.Log.Level)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string shown by --version.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
