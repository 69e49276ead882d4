package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultOrigin        = "https://www.facebook.com"
	DefaultPrimaryDomain = "facebook.com"
	DefaultBundlePath    = "facebook_cookies.txt"
	DefaultEndpoint      = "https://api.rpa4edu.shop/api_bai_viet.php"
	DefaultMaxItems      = 50

	DefaultProbePattern     = "//input[@placeholder='Tìm kiếm trên Facebook' or @placeholder='Search Facebook']"
	DefaultContainerPattern = "//div[@role='main']"
	DefaultDocumentPattern  = "//a[contains(@href, '/groups/') and contains(@href, '/posts/')]"

	ScopeContainer = "container"
	ScopeDocument  = "document"

	// accepted range for crawl.stale_bound
	MinStaleBound = 5
	MaxStaleBound = 10
)

// DefaultAnchorPatterns are tried in order; the first that yields elements wins.
var DefaultAnchorPatterns = []string{
	"//div[@role='article']//a[contains(@href, '/groups/') and contains(@href, '/posts/') and not(ancestor::div[contains(@class, 'text_exposed_root')])]",
	"//div[contains(@data-pagelet, 'FeedUnit')]//a[contains(@href, '/groups/') and contains(@href, '/posts/')]",
}

// Config holds all configuration options for the feed crawler
type Config struct {
	// Feeds to crawl
	Targets []TargetConfig `yaml:"targets" json:"targets"`

	// Cookie bundle and login probe
	Session SessionConfig `yaml:"session" json:"session"`

	// Scroll loop tuning
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Ingestion endpoint and delivery policy
	Submission SubmissionConfig `yaml:"submission" json:"submission"`

	// Durable delivered-reference store
	Ledger LedgerConfig `yaml:"ledger" json:"ledger"`

	// Browser engine settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// TargetConfig describes one feed to crawl
type TargetConfig struct {
	URL      string `yaml:"url" json:"url"`
	MaxItems int    `yaml:"max_items" json:"max_items"`
}

// SessionConfig holds cookie bundle and login verification settings
type SessionConfig struct {
	BundlePath    string        `yaml:"bundle_path" json:"bundle_path"`
	Origin        string        `yaml:"origin" json:"origin"`
	PrimaryDomain string        `yaml:"primary_domain" json:"primary_domain"`
	ProbePattern  string        `yaml:"probe_pattern" json:"probe_pattern"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
	SettleDelay   time.Duration `yaml:"settle_delay" json:"settle_delay"`
	Attempts      int           `yaml:"attempts" json:"attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// CrawlConfig holds scroll loop configuration
type CrawlConfig struct {
	ContainerPattern string        `yaml:"container_pattern" json:"container_pattern"`
	ContainerTimeout time.Duration `yaml:"container_timeout" json:"container_timeout"`
	Scope            string        `yaml:"scope" json:"scope"`
	AnchorPatterns   []string      `yaml:"anchor_patterns" json:"anchor_patterns"`
	DocumentPattern  string        `yaml:"document_pattern" json:"document_pattern"`
	LinkAttribute    string        `yaml:"link_attribute" json:"link_attribute"`
	ScrollStep       float64       `yaml:"scroll_step" json:"scroll_step"`
	SettleMin        time.Duration `yaml:"settle_min" json:"settle_min"`
	SettleMax        time.Duration `yaml:"settle_max" json:"settle_max"`
	StaleBound       int           `yaml:"stale_bound" json:"stale_bound"`
	StaleBackoff     time.Duration `yaml:"stale_backoff" json:"stale_backoff"`
	ReloadSettle     time.Duration `yaml:"reload_settle" json:"reload_settle"`
	MaxRecoveries    int           `yaml:"max_recoveries" json:"max_recoveries"`
	RunAttempts      int           `yaml:"run_attempts" json:"run_attempts"`
	RunRetryDelay    time.Duration `yaml:"run_retry_delay" json:"run_retry_delay"`
	Parallelism      int           `yaml:"parallelism" json:"parallelism"`
	DefaultMaxItems  int           `yaml:"default_max_items" json:"default_max_items"`
}

// SubmissionConfig holds ingestion endpoint and pacing configuration
type SubmissionConfig struct {
	Endpoint          string        `yaml:"endpoint" json:"endpoint"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
	RetryPolicy       string        `yaml:"retry_policy" json:"retry_policy"`
	PaceMin           time.Duration `yaml:"pace_min" json:"pace_min"`
	PaceMax           time.Duration `yaml:"pace_max" json:"pace_max"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	Token             string        `yaml:"token" json:"token"`
	TokenName         string        `yaml:"token_name" json:"token_name"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
}

// LedgerConfig selects and locates the ledger backend
type LedgerConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
	DSN     string `yaml:"dsn" json:"dsn"`
}

// BrowserConfig holds browser engine configuration
type BrowserConfig struct {
	Headless          bool          `yaml:"headless" json:"headless"`
	RemoteURL         string        `yaml:"remote_url" json:"remote_url"`
	Stealth           bool          `yaml:"stealth" json:"stealth"`
	ResourceBlocking  []string      `yaml:"resource_blocking" json:"resource_blocking"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnComplete       bool   `yaml:"on_complete" json:"on_complete"`
	OnError          bool   `yaml:"on_error" json:"on_error"`
	NotificationType string `yaml:"notification_type" json:"notification_type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	Console bool   `yaml:"console" json:"console"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			BundlePath:    DefaultBundlePath,
			Origin:        DefaultOrigin,
			PrimaryDomain: DefaultPrimaryDomain,
			ProbePattern:  DefaultProbePattern,
			ProbeTimeout:  10 * time.Second,
			SettleDelay:   2 * time.Second,
			Attempts:      3,
			RetryDelay:    5 * time.Second,
		},
		Crawl: CrawlConfig{
			ContainerPattern: DefaultContainerPattern,
			ContainerTimeout: 15 * time.Second,
			Scope:            ScopeContainer,
			AnchorPatterns:   append([]string(nil), DefaultAnchorPatterns...),
			DocumentPattern:  DefaultDocumentPattern,
			LinkAttribute:    "href",
			ScrollStep:       1200,
			SettleMin:        1 * time.Second,
			SettleMax:        3 * time.Second,
			StaleBound:       5,
			StaleBackoff:     2 * time.Second,
			ReloadSettle:     5 * time.Second,
			MaxRecoveries:    3,
			RunAttempts:      3,
			RunRetryDelay:    5 * time.Second,
			Parallelism:      1,
			DefaultMaxItems:  DefaultMaxItems,
		},
		Submission: SubmissionConfig{
			Endpoint:          DefaultEndpoint,
			Timeout:           30 * time.Second,
			MaxAttempts:       3,
			RetryDelay:        2 * time.Second,
			RetryPolicy:       "fixed",
			PaceMin:           500 * time.Millisecond,
			PaceMax:           1500 * time.Millisecond,
			RequestsPerMinute: 0,
			BurstSize:         1,
			TokenName:         "default",
			UserAgent:         "feedcrawler/1.0",
		},
		Ledger: LedgerConfig{
			Backend: "file",
		},
		Browser: BrowserConfig{
			Headless:          true,
			Stealth:           true,
			NavigationTimeout: 30 * time.Second,
		},
		Notifications: NotificationConfig{
			Enabled:          false,
			OnComplete:       true,
			OnError:          true,
			NotificationType: "terminal",
		},
		Logging: LoggingConfig{
			Level:   "info",
			File:    "",
			Console: true,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Single target shorthand
	if target := os.Getenv("FEEDCRAWLER_TARGET_URL"); target != "" {
		c.Targets = []TargetConfig{{URL: target}}
	}
	if maxItems := os.Getenv("FEEDCRAWLER_MAX_ITEMS"); maxItems != "" {
		var val int
		fmt.Sscanf(maxItems, "%d", &val)
		if val > 0 {
			c.Crawl.DefaultMaxItems = val
		}
	}

	// Session
	if bundle := os.Getenv("FEEDCRAWLER_COOKIE_FILE"); bundle != "" {
		c.Session.BundlePath = bundle
	}

	// Submission
	if endpoint := os.Getenv("FEEDCRAWLER_ENDPOINT"); endpoint != "" {
		c.Submission.Endpoint = endpoint
	}
	if token := os.Getenv("FEEDCRAWLER_API_TOKEN"); token != "" {
		c.Submission.Token = token
	}
	if rpm := os.Getenv("FEEDCRAWLER_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.Submission.RequestsPerMinute = val
		}
	}

	// Ledger
	if backend := os.Getenv("FEEDCRAWLER_LEDGER_BACKEND"); backend != "" {
		c.Ledger.Backend = backend
	}
	if path := os.Getenv("FEEDCRAWLER_LEDGER_PATH"); path != "" {
		c.Ledger.Path = path
	}
	if dsn := os.Getenv("FEEDCRAWLER_LEDGER_DSN"); dsn != "" {
		c.Ledger.DSN = dsn
	}

	// Browser; CI runs are always headless
	if headless := os.Getenv("FEEDCRAWLER_HEADLESS"); headless != "" {
		c.Browser.Headless = strings.ToLower(headless) == "true"
	}
	if os.Getenv("CI") == "true" {
		c.Browser.Headless = true
	}
	if remote := os.Getenv("FEEDCRAWLER_BROWSER_URL"); remote != "" {
		c.Browser.RemoteURL = remote
	}

	// Notifications
	if notifEnabled := os.Getenv("FEEDCRAWLER_NOTIFICATIONS_ENABLED"); notifEnabled != "" {
		c.Notifications.Enabled = strings.ToLower(notifEnabled) == "true"
	}

	// Logging
	if logLevel := os.Getenv("FEEDCRAWLER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile := os.Getenv("FEEDCRAWLER_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".feedcrawler.yaml",
		".feedcrawler.yml",
		filepath.Join(home, ".config", "feedcrawler", "config.yaml"),
		filepath.Join(home, ".config", "feedcrawler", "config.yml"),
		filepath.Join(home, ".feedcrawler.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Targets
	for i, t := range c.Targets {
		if err := validateURL(t.URL); err != nil {
			errs = append(errs, fmt.Errorf("target %d: %w", i, err))
		}
		if t.MaxItems < 0 {
			errs = append(errs, fmt.Errorf("target %d: max items cannot be negative", i))
		}
	}

	// Session
	if c.Session.BundlePath == "" {
		errs = append(errs, errors.New("cookie bundle path is required"))
	}
	if err := validateURL(c.Session.Origin); err != nil {
		errs = append(errs, fmt.Errorf("session origin: %w", err))
	}
	if c.Session.PrimaryDomain == "" {
		errs = append(errs, errors.New("primary domain is required"))
	}
	if c.Session.ProbePattern == "" {
		errs = append(errs, errors.New("login probe pattern is required"))
	}
	if c.Session.Attempts < 1 {
		errs = append(errs, errors.New("session attempts must be at least 1"))
	}

	// Crawl
	if c.Crawl.ContainerPattern == "" {
		errs = append(errs, errors.New("container pattern is required"))
	}
	switch c.Crawl.Scope {
	case ScopeContainer:
		if len(c.Crawl.AnchorPatterns) == 0 {
			errs = append(errs, errors.New("at least one anchor pattern is required"))
		}
	case ScopeDocument:
		if c.Crawl.DocumentPattern == "" {
			errs = append(errs, errors.New("document pattern is required for document scope"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid crawl scope %q", c.Crawl.Scope))
	}
	if c.Crawl.ScrollStep <= 0 {
		errs = append(errs, errors.New("scroll step must be positive"))
	}
	if c.Crawl.SettleMin < 0 || c.Crawl.SettleMax < c.Crawl.SettleMin {
		errs = append(errs, errors.New("settle range is invalid"))
	}
	if c.Crawl.StaleBound < MinStaleBound || c.Crawl.StaleBound > MaxStaleBound {
		errs = append(errs, fmt.Errorf("stale bound must be between %d and %d, got %d", MinStaleBound, MaxStaleBound, c.Crawl.StaleBound))
	}
	if c.Crawl.MaxRecoveries < 0 {
		errs = append(errs, errors.New("max recoveries cannot be negative"))
	}
	if c.Crawl.RunAttempts < 1 {
		errs = append(errs, errors.New("run attempts must be at least 1"))
	}
	if c.Crawl.Parallelism < 1 {
		errs = append(errs, errors.New("parallelism must be at least 1"))
	}
	if c.Crawl.DefaultMaxItems < 0 {
		errs = append(errs, errors.New("default max items cannot be negative"))
	}

	// Submission
	if err := validateURL(c.Submission.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("submission endpoint: %w", err))
	}
	if c.Submission.MaxAttempts < 1 {
		errs = append(errs, errors.New("submission max attempts must be at least 1"))
	}
	if c.Submission.Timeout <= 0 {
		errs = append(errs, errors.New("submission timeout must be positive"))
	}
	if c.Submission.PaceMin < 0 || c.Submission.PaceMax < c.Submission.PaceMin {
		errs = append(errs, errors.New("pacing range is invalid"))
	}
	switch c.Submission.RetryPolicy {
	case "fixed", "exponential":
	default:
		errs = append(errs, fmt.Errorf("invalid retry policy %q", c.Submission.RetryPolicy))
	}

	// Ledger
	switch c.Ledger.Backend {
	case "file", "bolt", "sqlite", "memory":
	case "postgres":
		if c.Ledger.DSN == "" {
			errs = append(errs, errors.New("postgres ledger requires a DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid ledger backend %q", c.Ledger.Backend))
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	// Notification type
	validNotifTypes := map[string]bool{
		"terminal": true, "desktop": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

// AnchorPatterns returns the anchor patterns for the configured scope
func (c *Config) AnchorPatterns() []string {
	if c.Crawl.Scope == ScopeDocument {
		return []string{c.Crawl.DocumentPattern}
	}
	return c.Crawl.AnchorPatterns
}

// ResolvedTargets fills in the default item budget for targets without one
func (c *Config) ResolvedTargets() []TargetConfig {
	out := make([]TargetConfig, 0, len(c.Targets))
	for _, t := range c.Targets {
		if t.MaxItems == 0 {
			t.MaxItems = c.Crawl.DefaultMaxItems
		}
		out = append(out, t)
	}
	return out
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if targets, ok := flags["targets"].([]string); ok && len(targets) > 0 {
		c.Targets = c.Targets[:0]
		for _, t := range targets {
			c.Targets = append(c.Targets, TargetConfig{URL: t})
		}
	}
	if maxItems, ok := flags["max-items"].(int); ok && maxItems > 0 {
		c.Crawl.DefaultMaxItems = maxItems
		for i := range c.Targets {
			c.Targets[i].MaxItems = maxItems
		}
	}
	if bundle, ok := flags["cookies"].(string); ok && bundle != "" {
		c.Session.BundlePath = bundle
	}
	if endpoint, ok := flags["endpoint"].(string); ok && endpoint != "" {
		c.Submission.Endpoint = endpoint
	}
	if backend, ok := flags["ledger"].(string); ok && backend != "" {
		c.Ledger.Backend = backend
	}
	if path, ok := flags["ledger-path"].(string); ok && path != "" {
		c.Ledger.Path = path
	}
	if dsn, ok := flags["ledger-dsn"].(string); ok && dsn != "" {
		c.Ledger.DSN = dsn
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if parallel, ok := flags["parallel"].(int); ok && parallel > 0 {
		c.Crawl.Parallelism = parallel
	}
	if scope, ok := flags["scope"].(string); ok && scope != "" {
		c.Crawl.Scope = scope
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile, ok := flags["log-file"].(string); ok && logFile != "" {
		c.Logging.File = logFile
	}
	if console, ok := flags["log-console"].(bool); ok {
		c.Logging.Console = console
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".feedcrawler.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// DataDir returns the directory holding the ledger and run history
func DataDir() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "feedcrawler")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "feedcrawler")
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "feedcrawler")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "feedcrawler")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
