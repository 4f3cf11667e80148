package config

// Package config provides a reusable loader for the proxy's configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"anarcast/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for one proxy process.
type Config struct {
	Network struct {
		ListenAddr     string `mapstructure:"listen_addr" json:"listen_addr"`
		MembershipAddr string `mapstructure:"membership_addr" json:"membership_addr"`
	} `mapstructure:"network" json:"network"`

	Transfer struct {
		Concurrency    int `mapstructure:"concurrency" json:"concurrency"`
		RequestRetries int `mapstructure:"request_retries" json:"request_retries"`
	} `mapstructure:"transfer" json:"transfer"`

	Graph struct {
		Max int `mapstructure:"max" json:"max"`
	} `mapstructure:"graph" json:"graph"`

	Metrics struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"metrics" json:"metrics"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// Default returns the configuration used when no file is present: an
// 8-wide concurrency window, 3 request retries, graph-table support up to
// 256 data blocks, client socket on :8787, info-level logging.
func Default() Config {
	var c Config
	c.Network.ListenAddr = ":8787"
	c.Transfer.Concurrency = 8
	c.Transfer.RequestRetries = 3
	c.Graph.Max = 256
	c.Metrics.ListenAddr = ":9787"
	c.Logging.Level = "info"
	return c
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig = Default()

// Load reads the default configuration file and merges an optional
// environment-specific overlay, then applies environment variable
// overrides. The resulting configuration is stored in AppConfig and
// returned. A missing config file is not an error — the built-in defaults
// from Default apply and only environment variables override them.
func Load(env string) (*Config, error) {
	AppConfig = Default()

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("ANARCAST")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the ANARCAST_ENV environment
// variable to select an overlay file.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("ANARCAST_ENV", ""))
}
