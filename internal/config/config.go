package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "chargehub/libs/config"
)

// Config defines server configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
	} `yaml:"redis"`
	OCPP struct {
		HeartbeatInterval time.Duration `yaml:"heartbeatInterval" env:"OCPP_HEARTBEAT_INTERVAL"`
		CallTimeout       time.Duration `yaml:"callTimeout" env:"OCPP_CALL_TIMEOUT"`
		PingInterval      time.Duration `yaml:"pingInterval" env:"OCPP_PING_INTERVAL"`
		WriteTimeout      time.Duration `yaml:"writeTimeout" env:"OCPP_WRITE_TIMEOUT"`
	} `yaml:"ocpp"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"JWT_SECRET"`
	} `yaml:"auth"`
}

// Load uses the shared loader and validates required fields.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "9000"
	cfg.OCPP.HeartbeatInterval = 30 * time.Second
	cfg.OCPP.CallTimeout = 30 * time.Second
	cfg.OCPP.PingInterval = 30 * time.Second
	cfg.OCPP.WriteTimeout = 15 * time.Second

	if err := libconfig.Load(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database DSN is required")
	}

	return cfg, nil
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "9000"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
