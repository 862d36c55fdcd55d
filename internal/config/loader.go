package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read by Load.
// TORCHECK_EXTERNAL_TOR maps to the external-tor key, and so on.
const EnvPrefix = "TORCHECK_"

// Configuration keys. They match the CLI flag names.
const (
	KeyExternalTor = "external-tor"
	KeyTorTimeout  = "tor-timeout"
	KeyTimeout     = "timeout"
	KeyMethod      = "method"
	KeyRetries     = "retries"
	KeyJSON        = "json"
	KeyMarkdown    = "markdown"
	KeyOutput      = "output"
	KeyDBDir       = "db-dir"
	KeyNoSave      = "no-save"
	KeyVerbose     = "verbose"
	KeyUserAgent   = "user-agent"
	KeyPageURL     = "page-url"
	KeyAPIURL      = "api-url"
	KeyConfig      = "config"
)

// settings is the flat view unmarshalled from koanf.
type settings struct {
	ExternalTor string        `koanf:"external-tor"`
	TorTimeout  time.Duration `koanf:"tor-timeout"`
	Timeout     time.Duration `koanf:"timeout"`
	Method      string        `koanf:"method"`
	Retries     int           `koanf:"retries"`
	JSON        bool          `koanf:"json"`
	Markdown    bool          `koanf:"markdown"`
	Output      string        `koanf:"output"`
	DBDir       string        `koanf:"db-dir"`
	NoSave      bool          `koanf:"no-save"`
	Verbose     bool          `koanf:"verbose"`
	UserAgent   string        `koanf:"user-agent"`
	PageURL     string        `koanf:"page-url"`
	APIURL      string        `koanf:"api-url"`
}

// Loader assembles a Config. The zero value skips the .env step.
type Loader struct {
	// DotEnvDir is searched for a .env file. Empty skips the .env step.
	DotEnvDir string
}

// NewLoader returns a Loader reading .env from XDGConfigDir.
func NewLoader() *Loader {
	return &Loader{DotEnvDir: XDGConfigDir()}
}

// Load builds the configuration for a command whose flags have been
// parsed. Precedence, lowest first: defaults, YAML file, .env, environment,
// flags that were set explicitly.
func (l *Loader) Load(flags *pflag.FlagSet) (*Config, error) {
	var explicitPath string
	if flags != nil && flags.Lookup(KeyConfig) != nil {
		explicitPath, _ = flags.GetString(KeyConfig)
	}

	cfg := NewConfig()
	k := koanf.New(".")
	if err := setDefaults(k, cfg); err != nil {
		return nil, err
	}

	path := FindConfigFile(explicitPath)
	if explicitPath != "" && path == "" {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, explicitPath)
	}
	if path != "" {
		file, err := LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := applyFile(k, file); err != nil {
			return nil, err
		}
		cfg.Headers = file.Headers
		cfg.ConfigFilePath = path
	}

	if err := LoadDotEnv(l.DotEnvDir); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var s settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	s.apply(cfg)
	return cfg, nil
}

// envKey turns TORCHECK_EXTERNAL_TOR into external-tor.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
}

// LoadDotEnv exports the variables of dir/.env that are not already set.
// A missing file is not an error.
func LoadDotEnv(dir string) error {
	if dir == "" {
		return nil
	}
	path := filepath.Join(dir, ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

func setDefaults(k *koanf.Koanf, cfg *Config) error {
	defaults := map[string]any{
		KeyTorTimeout: cfg.TorStartupTimeout,
		KeyTimeout:    cfg.Timeout,
		KeyMethod:     cfg.Method,
		KeyRetries:    cfg.Retries,
		KeyDBDir:      cfg.DBDir,
		KeyUserAgent:  cfg.UserAgent,
		KeyPageURL:    cfg.PageURL,
		KeyAPIURL:     cfg.APIURL,
	}
	return setAll(k, defaults)
}

func applyFile(k *koanf.Koanf, file *File) error {
	values := map[string]any{}
	if file.Method != "" {
		values[KeyMethod] = file.Method
	}
	if file.ExternalTor != "" {
		values[KeyExternalTor] = file.ExternalTor
	}
	if file.Timeout != 0 {
		values[KeyTimeout] = file.Timeout
	}
	if file.TorStartupTimeout != 0 {
		values[KeyTorTimeout] = file.TorStartupTimeout
	}
	if file.Retries != nil {
		values[KeyRetries] = *file.Retries
	}
	if file.UserAgent != "" {
		values[KeyUserAgent] = file.UserAgent
	}
	if file.Endpoints.Page != "" {
		values[KeyPageURL] = file.Endpoints.Page
	}
	if file.Endpoints.API != "" {
		values[KeyAPIURL] = file.Endpoints.API
	}
	if file.DBDir != "" {
		values[KeyDBDir] = file.DBDir
	}
	return setAll(k, values)
}

func setAll(k *koanf.Koanf, values map[string]any) error {
	for key, value := range values {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

func (s settings) apply(cfg *Config) {
	if s.ExternalTor != "" {
		cfg.TorProxyAddress = s.ExternalTor
		cfg.UseExternalTor = true
	}
	cfg.TorStartupTimeout = s.TorTimeout
	cfg.Timeout = s.Timeout
	cfg.Method = s.Method
	cfg.Retries = s.Retries
	cfg.JSONReport = s.JSON
	cfg.MarkdownReport = s.Markdown
	cfg.ReportFile = s.Output
	cfg.DBDir = s.DBDir
	cfg.SaveToDB = !s.NoSave && s.DBDir != ""
	cfg.Verbose = s.Verbose
	cfg.UserAgent = s.UserAgent
	cfg.PageURL = s.PageURL
	cfg.APIURL = s.APIURL
}
