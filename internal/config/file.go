package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// fileNames are tried in order; the first existing file wins.
var fileNames = []string{"config.toml", "config.json"}

// projectFileNames are looked up in the working directory.
var projectFileNames = []string{".popterm.toml", ".popterm.json"}

// Dir returns the popterm config directory:
// $XDG_CONFIG_HOME/popterm or ~/.config/popterm.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "popterm"), nil
}

// LoadGlobal reads the user-level config file.
// Returns nil (no error) if no file is present.
func LoadGlobal() (*Overrides, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	for _, name := range fileNames {
		o, err := LoadFile(filepath.Join(dir, name))
		if err != nil || o != nil {
			return o, err
		}
	}
	return nil, nil
}

// LoadProject reads the project config file in the current working directory.
// Returns nil (no error) if no file is present.
func LoadProject() (*Overrides, error) {
	for _, name := range projectFileNames {
		o, err := LoadFile(name)
		if err != nil || o != nil {
			return o, err
		}
	}
	return nil, nil
}

// LoadFile reads overrides from path, decoding TOML or JSON by extension.
// Returns nil (no error) if the file is absent.
func LoadFile(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var o Overrides
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &o); err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
	case ".json":
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
	default:
		return nil, &ParseError{Path: path, Err: fmt.Errorf("unsupported config format %q", filepath.Ext(path))}
	}
	return &o, nil
}

// SaveGlobal writes o as TOML to the user-level config file, creating the
// config directory if needed. Returns the path written.
func SaveGlobal(o *Overrides) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(o); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}

	path := filepath.Join(dir, fileNames[0])
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing config: %w", err)
	}
	return path, nil
}
