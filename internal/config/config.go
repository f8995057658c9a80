package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`

	// Client side.
	ServerURL  string        `mapstructure:"server_url"`
	APIURL     string        `mapstructure:"api_url"`
	LocalName  string        `mapstructure:"local_name"`
	ICEServers []string      `mapstructure:"ice_servers"`
	OutputDir  string        `mapstructure:"output_dir"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	// Relay side.
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("server_url", "ws://localhost:8080")
	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("local_name", "Me")
	v.SetDefault("output_dir", ".")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("port", 8080)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
