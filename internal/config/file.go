package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the file name searched in the working and home
// directories.
const DefaultConfigFile = ".torcheck"

// xdgConfigFile is the file name searched in XDGConfigDir.
const xdgConfigFile = "config.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the structure of the .torcheck YAML file. Unset fields leave the
// defaults in place.
type File struct {
	// Method is "page", "api" or "both".
	Method string `yaml:"method,omitempty"`

	// ExternalTor is the SOCKS5 address of a running Tor. When set, no
	// embedded daemon is started.
	ExternalTor string `yaml:"externalTor,omitempty"`

	Timeout           time.Duration `yaml:"timeout,omitempty"`
	TorStartupTimeout time.Duration `yaml:"torStartupTimeout,omitempty"`

	// Retries is a pointer so that an explicit 0 disables retries.
	Retries *int `yaml:"retries,omitempty"`

	UserAgent string            `yaml:"userAgent,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`

	Endpoints Endpoints `yaml:"endpoints,omitempty"`

	// DBDir overrides the history database directory.
	DBDir string `yaml:"dbDir,omitempty"`
}

// Endpoints overrides the URLs of the check service, e.g. for a mirror.
type Endpoints struct {
	Page string `yaml:"page,omitempty"`
	API  string `yaml:"api,omitempty"`
}

// LoadConfigFile reads a File from path. A missing file yields
// ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cf.Headers == nil {
		cf.Headers = make(map[string]string)
	}
	return &cf, nil
}

// FindConfigFile returns the first configuration file found in this order:
//  1. configPath, when given
//  2. .torcheck in the current directory
//  3. .torcheck in the home directory
//  4. config.yaml in XDGConfigDir
//
// It returns "" when nothing is found. An explicit configPath that does not
// exist is not replaced by the other locations.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), xdgConfigFile))

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
