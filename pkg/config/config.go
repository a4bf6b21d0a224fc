// Package config loads the server configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/astromechza/noteboard/pkg/board"
	"github.com/astromechza/noteboard/pkg/journal"
)

type Config struct {
	Addr    string        `yaml:"addr"`
	Journal JournalConfig `yaml:"journal"`
	History HistoryConfig `yaml:"history"`
	Peer    PeerConfig    `yaml:"peer"`
	// Seed replaces the built-in board when set.
	Seed *board.State `yaml:"seed"`
}

type JournalConfig struct {
	DSN string `yaml:"dsn"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DumpDir string `yaml:"dump_dir"`
}

type PeerConfig struct {
	SendBuffer int `yaml:"send_buffer"`
}

func Default() Config {
	return Config{
		Addr:    "localhost:8080",
		Journal: JournalConfig{DSN: journal.DefaultDSN},
		History: HistoryConfig{DumpDir: os.TempDir()},
		Peer:    PeerConfig{SendBuffer: 16},
	}
}

// Load reads path on top of the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes YAML on top of the defaults, rejecting unknown keys.
func Parse(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must be set")
	}
	if c.Peer.SendBuffer <= 0 {
		return fmt.Errorf("peer.send_buffer must be positive, got %d", c.Peer.SendBuffer)
	}
	if c.Seed != nil {
		for id, note := range c.Seed.Notes {
			if note.ID != id {
				return fmt.Errorf("seed note %q has mismatched id %q", id, note.ID)
			}
		}
	}
	return nil
}

// SeedState returns the configured seed or the built-in board.
func (c Config) SeedState() board.State {
	if c.Seed == nil {
		return board.Seed()
	}
	return c.Seed.Normalized()
}
