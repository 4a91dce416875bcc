package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/projecteru2/core/log"
	coretypes "github.com/projecteru2/core/types"
	"github.com/spf13/viper"
)

// Settings keys, shared by the config file, PVEWATCH_* env vars and flags.
const (
	KeyHost           = "host"
	KeyPort           = "port"
	KeyUsername       = "username"
	KeyToken          = "token"
	KeyWebhookURL     = "webhook_url"
	KeyInsecureTLS    = "insecure_tls"
	KeyInterval       = "interval"
	KeyErrorBackoff   = "error_backoff"
	KeyRequestTimeout = "request_timeout"
	KeyConcurrency    = "concurrency"
	KeyIgnoreFrom     = "ignore_vmid_from"
	KeyIgnoreTo       = "ignore_vmid_to"
	KeyMetricsAddr    = "metrics_addr"
	KeyDryRun         = "dry_run"
	KeyLogLevel       = "log.level"
	KeyLogFilename    = "log.filename"
	KeyLogMaxSize     = "log.maxsize"
	KeyLogMaxAge      = "log.maxage"
	KeyLogMaxBackups  = "log.maxbackups"
)

const EnvPrefix = "PVEWATCH"

// Config is the resolved runtime configuration.
type Config struct {
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Token      string `mapstructure:"token"`
	WebhookURL string `mapstructure:"webhook_url"`
	// InsecureTLS skips certificate checks; Proxmox installs are self-signed by default.
	InsecureTLS    bool          `mapstructure:"insecure_tls"`
	Interval       time.Duration `mapstructure:"interval"`
	ErrorBackoff   time.Duration `mapstructure:"error_backoff"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Concurrency    int           `mapstructure:"concurrency"`
	IgnoreFrom     int           `mapstructure:"ignore_vmid_from"`
	IgnoreTo       int           `mapstructure:"ignore_vmid_to"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	DryRun         bool          `mapstructure:"dry_run"`

	Log coretypes.ServerLogConfig `mapstructure:"log"`
}

func Default() *Config {
	return &Config{
		Port:           "8006",
		InsecureTLS:    true,
		Interval:       5 * time.Second,
		ErrorBackoff:   60 * time.Second,
		RequestTimeout: 10 * time.Second,
		Concurrency:    1,
		IgnoreFrom:     9000,
		IgnoreTo:       10000,
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    100,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// NewViper returns a viper instance reading PVEWATCH_* variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Resolve merges, lowest priority first: built-in defaults, stored
// credentials, the config file already read into v, environment, flags.
// Unreadable stored credentials are skipped with a warning so that setup and
// config delete can still replace them.
func Resolve(ctx context.Context, v *viper.Viper) (*Config, error) {
	base := Default()
	switch creds, err := Load(); {
	case err == nil:
		base.ApplyCredentials(creds)
	case !errors.Is(err, ErrNotExist):
		log.WithFunc("config.Resolve").Warnf(ctx, "ignoring stored credentials: %v", err)
	}

	setDefaults(v, base)

	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return conf, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault(KeyHost, c.Host)
	v.SetDefault(KeyPort, c.Port)
	v.SetDefault(KeyUsername, c.Username)
	v.SetDefault(KeyToken, c.Token)
	v.SetDefault(KeyWebhookURL, c.WebhookURL)
	v.SetDefault(KeyInsecureTLS, c.InsecureTLS)
	v.SetDefault(KeyInterval, c.Interval)
	v.SetDefault(KeyErrorBackoff, c.ErrorBackoff)
	v.SetDefault(KeyRequestTimeout, c.RequestTimeout)
	v.SetDefault(KeyConcurrency, c.Concurrency)
	v.SetDefault(KeyIgnoreFrom, c.IgnoreFrom)
	v.SetDefault(KeyIgnoreTo, c.IgnoreTo)
	v.SetDefault(KeyMetricsAddr, c.MetricsAddr)
	v.SetDefault(KeyDryRun, c.DryRun)
	v.SetDefault(KeyLogLevel, c.Log.Level)
	v.SetDefault(KeyLogFilename, c.Log.Filename)
	v.SetDefault(KeyLogMaxSize, c.Log.MaxSize)
	v.SetDefault(KeyLogMaxAge, c.Log.MaxAge)
	v.SetDefault(KeyLogMaxBackups, c.Log.MaxBackups)
}

// ApplyCredentials copies the non-empty stored fields onto c.
func (c *Config) ApplyCredentials(creds *Credentials) {
	if creds == nil {
		return
	}
	for dst, src := range map[*string]string{
		&c.Host:       creds.Host,
		&c.Port:       creds.Port,
		&c.Username:   creds.Username,
		&c.Token:      creds.Token,
		&c.WebhookURL: creds.WebhookURL,
	} {
		if src != "" {
			*dst = src
		}
	}
}

func (c *Config) Credentials() *Credentials {
	return &Credentials{
		Host:       c.Host,
		Port:       c.Port,
		Username:   c.Username,
		Token:      c.Token,
		WebhookURL: c.WebhookURL,
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if strings.TrimSpace(c.Token) == "" {
		errs = append(errs, errors.New("token is required"))
	}
	if c.WebhookURL == "" && !c.DryRun {
		errs = append(errs, errors.New("webhook_url is required unless dry_run is set"))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if c.ErrorBackoff <= 0 {
		errs = append(errs, fmt.Errorf("error_backoff must be positive, got %s", c.ErrorBackoff))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.IgnoreFrom >= c.IgnoreTo {
		errs = append(errs, fmt.Errorf("ignore_vmid_from (%d) must be below ignore_vmid_to (%d)", c.IgnoreFrom, c.IgnoreTo))
	}
	return errors.Join(errs...)
}

// LockPath is the single-instance lock file.
func LockPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pvewatch.lock"), nil
}

// DefaultLogFile is used when the dashboard owns the terminal.
func DefaultLogFile() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pvewatch.log"), nil
}
