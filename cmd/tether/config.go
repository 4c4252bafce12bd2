package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creachadair/tether"
)

// Config holds the settings of the tether command.
type Config struct {
	Server ServerConfig
	Client ClientConfig
	Log    LogConfig
}

type ServerConfig struct {
	Address string
	Port    int
	Reply   string // if set, sent back in response to every frame
	Echo    bool   // send each unrecognized frame back to its sender
}

type ClientConfig struct {
	Host    string
	Port    int
	Timeout time.Duration
}

type LogConfig struct {
	Level   string
	NoColor bool
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{Address: "127.0.0.1", Port: 8080},
		Client: ClientConfig{Host: "127.0.0.1", Port: 8080, Timeout: tether.DefaultConnectTimeout},
		Log:    LogConfig{Level: "info"},
	}
}

type fileConfig struct {
	Server struct {
		Address string `toml:"address"`
		Port    int    `toml:"port"`
		Reply   string `toml:"reply"`
		Echo    bool   `toml:"echo"`
	} `toml:"server"`
	Client struct {
		Host    string `toml:"host"`
		Port    int    `toml:"port"`
		Timeout string `toml:"timeout"`
	} `toml:"client"`
	Log struct {
		Level   string `toml:"level"`
		NoColor bool   `toml:"no_color"`
	} `toml:"log"`
}

// loadConfig reads the configuration file at path over the defaults.  If path
// is empty, the defaults are returned unchanged.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if keys := meta.Undecoded(); len(keys) != 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", keys[0].String())
	}

	if meta.IsDefined("server", "address") {
		cfg.Server.Address = strings.TrimSpace(raw.Server.Address)
	}
	if meta.IsDefined("server", "port") {
		cfg.Server.Port = raw.Server.Port
	}
	if meta.IsDefined("server", "reply") {
		cfg.Server.Reply = raw.Server.Reply
	}
	if meta.IsDefined("server", "echo") {
		cfg.Server.Echo = raw.Server.Echo
	}

	if meta.IsDefined("client", "host") {
		cfg.Client.Host = strings.TrimSpace(raw.Client.Host)
	}
	if meta.IsDefined("client", "port") {
		cfg.Client.Port = raw.Client.Port
	}
	if meta.IsDefined("client", "timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Client.Timeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse client timeout: %w", err)
		}
		cfg.Client.Timeout = d
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports an error if cfg has settings that cannot work.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Client.Port <= 0 || c.Client.Port > 65535 {
		return fmt.Errorf("client port %d out of range", c.Client.Port)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("client timeout must be positive")
	}
	if strings.Contains(c.Server.Reply, ";") {
		return fmt.Errorf("server reply may not contain %q", ";")
	}
	return nil
}
