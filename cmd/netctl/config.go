package main

import (
	"strings"

	"github.com/spf13/viper"
)

// Config is netctl's runtime configuration: log level/output and the
// demo network parameters used by `netctl demo`.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	Rotation struct {
		MaxSizeMB  int  `mapstructure:"max_size_mb"`
		MaxAgeDays int  `mapstructure:"max_age_days"`
		MaxBackups int  `mapstructure:"max_backups"`
		Compress   bool `mapstructure:"compress"`
	} `mapstructure:"rotation"`

	Demo struct {
		TapInterface string `mapstructure:"tap_interface"`
	} `mapstructure:"demo"`
}

// loadConfig reads optional config file path (may be empty, in which
// case only defaults and environment overrides apply) with
// NETCTL_-prefixed environment variable overrides, matching the
// config-file-plus-env-override convention used elsewhere in the
// example pack's configuration loader.
func loadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("rotation.max_size_mb", 10)
	v.SetDefault("rotation.max_age_days", 7)
	v.SetDefault("rotation.max_backups", 3)
	v.SetDefault("rotation.compress", false)
	v.SetDefault("demo.tap_interface", "")

	v.SetEnvPrefix("NETCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
