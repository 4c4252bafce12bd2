package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tether.toml")
	if err := os.WriteFile(path, []byte(text), 0600); err != nil {
		t.Fatalf("Write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		cfg, err := loadConfig("")
		if err != nil {
			t.Fatalf("loadConfig: unexpected error: %v", err)
		}
		if diff := cmp.Diff(defaultConfig(), cfg); diff != "" {
			t.Errorf("Config (-want, +got):\n%s", diff)
		}
	})

	t.Run("Partial", func(t *testing.T) {
		path := writeConfig(t, `
[server]
port = 9000
echo = true

[client]
host = " example.com "
timeout = "250ms"

[log]
level = "debug"
`)
		cfg, err := loadConfig(path)
		if err != nil {
			t.Fatalf("loadConfig: unexpected error: %v", err)
		}
		want := defaultConfig()
		want.Server.Port = 9000
		want.Server.Echo = true
		want.Client.Host = "example.com"
		want.Client.Timeout = 250 * time.Millisecond
		want.Log.Level = "debug"
		if diff := cmp.Diff(want, cfg); diff != "" {
			t.Errorf("Config (-want, +got):\n%s", diff)
		}
	})

	t.Run("PortZero", func(t *testing.T) {
		cfg, err := loadConfig(writeConfig(t, "[server]\nport = 0\n"))
		if err != nil {
			t.Fatalf("loadConfig: unexpected error: %v", err)
		}
		if cfg.Server.Port != 0 {
			t.Errorf("Server port: got %d, want 0", cfg.Server.Port)
		}
	})

	tests := []struct {
		name, text, want string
	}{
		{"UnknownKey", "[server]\nbogus = 1\n", "unknown key"},
		{"BadTimeout", "[client]\ntimeout = \"soon\"\n", "parse client timeout"},
		{"NegativeTimeout", "[client]\ntimeout = \"-1s\"\n", "timeout must be positive"},
		{"ServerPortRange", "[server]\nport = 70000\n", "out of range"},
		{"ClientPortZero", "[client]\nport = 0\n", "out of range"},
		{"ReplyDelimiter", "[server]\nreply = \"a;b\"\n", "may not contain"},
		{"Syntax", "[server\n", "load config"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, tc.text))
			if err == nil {
				t.Fatalf("loadConfig: got %+v, want error", cfg)
			} else if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("loadConfig: got error %v, want %q", err, tc.want)
			}
		})
	}

	t.Run("Missing", func(t *testing.T) {
		if _, err := loadConfig(filepath.Join(t.TempDir(), "nonesuch.toml")); err == nil {
			t.Error("loadConfig: got nil, want error")
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"off", zerolog.Disabled},
		{"none", zerolog.Disabled},
		{"garbage", zerolog.InfoLevel},
	}
	for _, tc := range tests {
		if got := parseLevel(tc.input); got != tc.want {
			t.Errorf("parseLevel(%q): got %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvLogNoColor, "true")

	var buf bytes.Buffer
	log := newLogger(&buf, LogConfig{Level: "debug"})
	log.Info().Msg("hidden")
	log.Warn().Str("key", "value").Msg("shown")

	got := buf.String()
	if strings.Contains(got, "hidden") {
		t.Errorf("Log includes info message despite override:\n%s", got)
	}
	if !strings.Contains(got, "shown") || !strings.Contains(got, "key=value") {
		t.Errorf("Log is missing warning:\n%s", got)
	}
	if strings.Contains(got, "\x1b[") {
		t.Errorf("Log contains color escapes:\n%q", got)
	}
}

func TestSplitHostPort(t *testing.T) {
	host, port, err := splitHostPort("localhost:8080")
	if err != nil {
		t.Fatalf("splitHostPort: unexpected error: %v", err)
	}
	if host != "localhost" || port != 8080 {
		t.Errorf("splitHostPort: got %q, %d; want localhost, 8080", host, port)
	}
	for _, bad := range []string{"localhost", "localhost:http", ""} {
		if _, _, err := splitHostPort(bad); err == nil {
			t.Errorf("splitHostPort(%q): got nil, want error", bad)
		}
	}
}
