// Package config reads the optional swiftlet.toml sitting next to a
// script: execution limits, strict mode and the plugins to load.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const FileName = "swiftlet.toml"

type Method struct {
	Name  string `toml:"name"`
	Arity int    `toml:"arity"`
}

type Plugin struct {
	Name    string   `toml:"name"`
	Exec    string   `toml:"exec"`
	Methods []Method `toml:"method"`
}

type Config struct {
	GasLimit uint64   `toml:"gas_limit"`
	Strict   bool     `toml:"strict"`
	Plugins  []Plugin `toml:"plugin"`
}

func Default() *Config {
	return &Config{}
}

// Load reads dir/swiftlet.toml. A missing file is not an error: the
// defaults apply.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}
