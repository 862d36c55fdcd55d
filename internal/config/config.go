package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/torcheck"
)

// Default configuration values.
const (
	// DefaultTorProxyAddress is Tor's standard SOCKS port.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTimeout bounds one HTTP exchange with the check service.
	// Circuits are slow, so this is far above clearnet norms.
	DefaultTimeout = 60 * time.Second

	// DefaultTorStartupTimeout bounds bootstrap of the embedded daemon.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultRetries is the number of extra attempts after a transport error.
	DefaultRetries = 2

	// DefaultMethod runs both checks.
	DefaultMethod = MethodBoth

	// AppName is used for XDG directory paths.
	AppName = "torcheck"

	// DefaultUserAgent matches Tor Browser so the check request does not
	// stand out.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; rv:128.0) Gecko/20100101 Firefox/128.0"
)

// MethodBoth selects the page and the API check.
const MethodBoth = "both"

// Config holds the options of a torcheck run.
type Config struct {
	// TorProxyAddress is the external SOCKS5 proxy, "host:port".
	TorProxyAddress string

	// UseExternalTor is true when TorProxyAddress was configured. When false,
	// the CLI starts an embedded daemon.
	UseExternalTor bool

	// Timeout bounds each HTTP exchange.
	Timeout time.Duration

	// TorStartupTimeout bounds bootstrap of the embedded daemon.
	TorStartupTimeout time.Duration

	// Method is "page", "api" or "both".
	Method string

	PageURL string
	APIURL  string

	UserAgent string

	// Headers are added to every check request.
	Headers map[string]string

	// Retries is the number of extra attempts after a transport error.
	Retries int

	Verbose        bool
	JSONReport     bool
	MarkdownReport bool

	// ReportFile receives the report instead of stdout when set.
	ReportFile string

	// DBDir holds torcheck.db. Defaults to the XDG data directory.
	DBDir string

	// SaveToDB stores results in the history database.
	SaveToDB bool

	// ConfigFilePath is the YAML file the configuration was read from, if any.
	ConfigFilePath string
}

// NewConfig returns a Config holding the defaults.
func NewConfig() *Config {
	return &Config{
		TorProxyAddress:   DefaultTorProxyAddress,
		Timeout:           DefaultTimeout,
		TorStartupTimeout: DefaultTorStartupTimeout,
		Method:            DefaultMethod,
		PageURL:           torcheck.PageURL,
		APIURL:            torcheck.APIURL,
		UserAgent:         DefaultUserAgent,
		Retries:           DefaultRetries,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
	}
}

// XDGDataDir returns the data directory, ~/.local/share/torcheck on Linux.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory, ~/.config/torcheck on Linux.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Methods returns the checks selected by Method.
func (c *Config) Methods() ([]torcheck.Method, error) {
	if strings.EqualFold(strings.TrimSpace(c.Method), MethodBoth) {
		return []torcheck.Method{torcheck.MethodPage, torcheck.MethodAPI}, nil
	}
	m, err := torcheck.ParseMethod(c.Method)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, c.Method)
	}
	return []torcheck.Method{m}, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if !c.UseExternalTor && c.TorStartupTimeout <= 0 {
		return ErrInvalidTorStartupTimeout
	}
	if c.Retries < 0 {
		return ErrInvalidRetries
	}
	if _, err := c.Methods(); err != nil {
		return err
	}
	for _, endpoint := range []string{c.PageURL, c.APIURL} {
		if !isHTTPURL(endpoint) {
			return fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
		}
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Options returns the library options for the configured endpoints and
// User-Agent.
func (c *Config) Options() []torcheck.Option {
	return []torcheck.Option{
		torcheck.WithPageURL(c.PageURL),
		torcheck.WithAPIURL(c.APIURL),
		torcheck.WithUserAgent(c.UserAgent),
	}
}
