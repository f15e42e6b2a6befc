package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Encode renders the config as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteProjectConfig writes c to dir/assetrev.toml. It refuses to replace
// an existing file unless force is set.
func WriteProjectConfig(dir string, c *Config, force bool) (string, error) {
	path := filepath.Join(dir, ConfigFileName)
	if !force && fileExists(path) {
		return "", fmt.Errorf("%s already exists", path)
	}
	data, err := c.Encode()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
