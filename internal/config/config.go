// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/library-gateway/config.toml",
	"configs/config.toml",
}

// reservedPrefixes are public paths owned by the gateway itself.
var reservedPrefixes = []string{"/api", "/health", "/healthz", "/gateway/status"}

// Access levels a route may require.
const (
	AccessPublic = "public"
	AccessToken  = "token"
	AccessAdmin  = "admin"
)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config                string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host                  string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port                  int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel              string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	AuthServiceURL        string `kong:"help='Auth service base URL (overrides config).',env='AUTH_SERVICE_URL'"`
	BookServiceURL        string `kong:"help='Book service base URL (overrides config).',env='BOOK_SERVICE_URL'"`
	TransactionServiceURL string `kong:"help='Transaction service base URL (overrides config).',env='TRANSACTION_SERVICE_URL'"`
	FrontendOrigin        string `kong:"help='Frontend origin allowed by CORS (added to config).',env='FRONTEND_ORIGIN'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig      `toml:"server"`
	Services map[string]string `toml:"services"`
	Upstream UpstreamConfig    `toml:"upstream"`
	Auth     AuthConfig        `toml:"auth"`
	CORS     CORSConfig        `toml:"cors"`
	Log      LogConfig         `toml:"log"`
	Metrics  MetricsConfig     `toml:"metrics"`
	Routes   []RouteConfig     `toml:"routes"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8080)
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// UpstreamConfig holds outbound connection settings shared by all downstream services.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections"`
}

// AuthConfig describes how bearer tokens are validated and how identity is injected.
type AuthConfig struct {
	Service        string `toml:"service"`
	ValidatePath   string `toml:"validate_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	UserIDHeader   string `toml:"user_id_header"`
	RoleHeader     string `toml:"role_header"`
}

// CORSConfig lists browser origins allowed to call the gateway.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// RouteConfig declares one public route. An empty Routes list selects the built-in table.
type RouteConfig struct {
	Method          string          `toml:"method"`
	Path            string          `toml:"path"`
	Service         string          `toml:"service"`
	Target          string          `toml:"target"`
	Access          string          `toml:"access"`
	InjectUserField string          `toml:"inject_user_field"`
	VersionQuery    string          `toml:"version_query"`
	Variants        []VariantConfig `toml:"variants"`
}

// VariantConfig is an alternative downstream target chosen by content negotiation.
type VariantConfig struct {
	Version     string   `toml:"version"`
	Target      string   `toml:"target"`
	QueryValues []string `toml:"query_values"`
	MediaType   string   `toml:"media_type"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/library-gateway/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}

	overrides := map[string]string{
		"auth":        cli.AuthServiceURL,
		"book":        cli.BookServiceURL,
		"transaction": cli.TransactionServiceURL,
	}
	for name, u := range overrides {
		if u == "" {
			continue
		}
		if c.Services == nil {
			c.Services = make(map[string]string)
		}
		c.Services[name] = u
	}

	if cli.FrontendOrigin != "" {
		c.CORS.AllowedOrigins = append(c.CORS.AllowedOrigins, cli.FrontendOrigin)
	}
}

// validate reports every problem at once.
func (c *Config) validate() error {
	var result *multierror.Error

	if len(c.Services) == 0 {
		result = multierror.Append(result, fmt.Errorf("services: at least one downstream service is required"))
	}
	for _, name := range c.ServiceNames() {
		if err := validateServiceURL(c.Services[name]); err != nil {
			result = multierror.Append(result, fmt.Errorf("services.%s: %w", name, err))
		}
	}
	if _, ok := c.Services[c.Auth.Service]; !ok {
		result = multierror.Append(result, fmt.Errorf("auth.service %q is not a configured service", c.Auth.Service))
	}
	if !strings.HasPrefix(c.Auth.ValidatePath, "/") {
		result = multierror.Append(result, fmt.Errorf("auth.validate_path must start with '/'; got %q", c.Auth.ValidatePath))
	}
	if strings.EqualFold(c.Auth.UserIDHeader, c.Auth.RoleHeader) {
		result = multierror.Append(result, fmt.Errorf("auth.user_id_header and auth.role_header must differ"))
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port))
	}
	if c.Server.BodyMaxBytes < 0 {
		result = multierror.Append(result, fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes))
	}
	if c.Upstream.TimeoutSeconds < 0 {
		result = multierror.Append(result, fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds))
	}
	if c.Upstream.IdleConnections < 0 {
		result = multierror.Append(result, fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections))
	}
	if c.Auth.TimeoutSeconds < 0 {
		result = multierror.Append(result, fmt.Errorf("auth.timeout_seconds must be non-negative; got %d", c.Auth.TimeoutSeconds))
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		result = multierror.Append(result, fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond))
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		result = multierror.Append(result, fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format))
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p == "" || p[0] != '/' {
			result = multierror.Append(result, fmt.Errorf("metrics.path must start with '/'; got %q", p))
		} else {
			for _, reserved := range reservedPrefixes {
				if p == reserved || strings.HasPrefix(p, reserved+"/") {
					result = multierror.Append(result, fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved))
				}
			}
		}
	}

	for i, r := range c.Routes {
		for _, err := range c.validateRoute(r) {
			result = multierror.Append(result, fmt.Errorf("routes[%d] %s %s: %w", i, r.Method, r.Path, err))
		}
	}
	seen := make(map[string]int, len(c.Routes))
	for i, r := range c.Routes {
		key := strings.ToUpper(r.Method) + " " + r.Path
		if j, ok := seen[key]; ok {
			result = multierror.Append(result, fmt.Errorf("routes[%d] duplicates routes[%d] (%s)", i, j, key))
			continue
		}
		seen[key] = i
	}

	return result.ErrorOrNil()
}

func (c *Config) validateRoute(r RouteConfig) []error {
	var errs []error
	switch strings.ToUpper(r.Method) {
	case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS":
	default:
		errs = append(errs, fmt.Errorf("unsupported method %q", r.Method))
	}
	if !strings.HasPrefix(r.Path, "/") {
		errs = append(errs, fmt.Errorf("path must start with '/'"))
	}
	if _, ok := c.Services[r.Service]; !ok {
		errs = append(errs, fmt.Errorf("unknown service %q", r.Service))
	}
	if r.Target == "" {
		errs = append(errs, fmt.Errorf("target is required"))
	}
	switch r.Access {
	case AccessPublic, AccessToken, AccessAdmin:
	default:
		errs = append(errs, fmt.Errorf("access must be one of: public, token, admin; got %q", r.Access))
	}

	needsIdentity := r.InjectUserField != "" || strings.Contains(r.Target, "{user_id}")
	for _, v := range r.Variants {
		if v.Target == "" {
			errs = append(errs, fmt.Errorf("variant %q: target is required", v.Version))
		}
		if len(v.QueryValues) == 0 && v.MediaType == "" {
			errs = append(errs, fmt.Errorf("variant %q: needs query_values or media_type", v.Version))
		}
		if len(v.QueryValues) > 0 && r.VersionQuery == "" {
			errs = append(errs, fmt.Errorf("variant %q: query_values set without version_query", v.Version))
		}
		needsIdentity = needsIdentity || strings.Contains(v.Target, "{user_id}")
	}
	if needsIdentity && r.Access == AccessPublic {
		errs = append(errs, fmt.Errorf("user identity is used but access is public"))
	}
	return errs
}

func validateServiceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https; got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required; got %q", raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 10
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Auth.Service == "" {
		c.Auth.Service = "auth"
	}
	if c.Auth.ValidatePath == "" {
		c.Auth.ValidatePath = "/auth/validate"
	}
	if c.Auth.TimeoutSeconds == 0 {
		c.Auth.TimeoutSeconds = 5
	}
	if c.Auth.UserIDHeader == "" {
		c.Auth.UserIDHeader = "X-User-ID"
	}
	if c.Auth.RoleHeader == "" {
		c.Auth.RoleHeader = "X-User-Role"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	for i := range c.Routes {
		c.Routes[i].Method = strings.ToUpper(c.Routes[i].Method)
		if c.Routes[i].Access == "" {
			c.Routes[i].Access = AccessPublic
		}
	}
}

// ServiceNames returns the configured service names in sorted order.
func (c *Config) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UpstreamTimeout returns the fixed downstream call timeout.
func (c *UpstreamConfig) UpstreamTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ValidateTimeout returns the token validation call timeout.
func (c *AuthConfig) ValidateTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
