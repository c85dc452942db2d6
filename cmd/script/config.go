package main

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL   = "https://digitfellascrm.preview.emergentagent.com"
	defaultEmail     = "admin@digitfellas.com"
	defaultPassword  = "admin123"
	defaultBrandName = "Digitfellas"

	apiPathSuffix = "/api"
)

// Config is the resolved configuration of one tester process.
type Config struct {
	BaseURL       string
	Email         string
	Password      string
	ExpectedBrand string

	Timeout       time.Duration
	Interval      time.Duration
	StrictRestore bool

	MetricsAddr    string
	MetricsPushURL string

	LogLevel  string
	LogFormat string
	Color     bool
}

// APIBase returns the API root every check path is appended to.
func (c *Config) APIBase() string {
	return strings.TrimRight(c.BaseURL, "/") + apiPathSuffix
}

// Check validates the configuration.
func (c *Config) Check() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return errors.Wrap(err, "invalid base URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("base URL %q must use http or https", c.BaseURL)
	}
	if u.Host == "" {
		return errors.Errorf("base URL %q has no host", c.BaseURL)
	}
	if c.Email == "" || c.Password == "" {
		return errors.New("email and password are required")
	}
	if c.Timeout < 0 {
		return errors.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.Interval < 0 {
		return errors.Errorf("interval must not be negative, got %s", c.Interval)
	}
	if c.MetricsPushURL != "" {
		if _, err := url.ParseRequestURI(c.MetricsPushURL); err != nil {
			return errors.Wrap(err, "invalid metrics push URL")
		}
	}
	return nil
}

// fileConfig mirrors Config in the optional YAML file. Unset keys stay nil.
type fileConfig struct {
	BaseURL        *string        `yaml:"base_url"`
	Email          *string        `yaml:"email"`
	Password       *string        `yaml:"password"`
	ExpectedBrand  *string        `yaml:"expected_brand"`
	Timeout        *time.Duration `yaml:"timeout"`
	Interval       *time.Duration `yaml:"interval"`
	StrictRestore  *bool          `yaml:"strict_restore"`
	MetricsAddr    *string        `yaml:"metrics_addr"`
	MetricsPushURL *string        `yaml:"metrics_push_url"`
	LogLevel       *string        `yaml:"log_level"`
	LogFormat      *string        `yaml:"log_format"`
	Color          *bool          `yaml:"color"`
}

func loadConfigFile(path string) (*fileConfig, error) {
	fc := &fileConfig{}
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, errors.Wrapf(err, "error parsing config file %s", path)
	}
	return fc, nil
}

// loadEnv loads a dotenv file into the process environment. Variables that are
// already set win, and a missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "error reading %s", path)
	}
	return nil
}

// NewConfig resolves the configuration for a command invocation. Precedence is
// flag or real environment, then the YAML file, then the dotenv file, then the
// flag default.
func NewConfig(ctx *cli.Context) (*Config, error) {
	if err := loadEnv(ctx.String(EnvFileFlag.Name)); err != nil {
		return nil, err
	}
	fc, err := loadConfigFile(ctx.String(ConfigFileFlag.Name))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BaseURL:        stringSetting(ctx, BaseURLFlag, fc.BaseURL),
		Email:          stringSetting(ctx, EmailFlag, fc.Email),
		Password:       stringSetting(ctx, PasswordFlag, fc.Password),
		ExpectedBrand:  stringSetting(ctx, ExpectedBrandFlag, fc.ExpectedBrand),
		MetricsAddr:    stringSetting(ctx, MetricsAddrFlag, fc.MetricsAddr),
		MetricsPushURL: stringSetting(ctx, MetricsPushURLFlag, fc.MetricsPushURL),
		LogLevel:       stringSetting(ctx, LogLevelFlag, fc.LogLevel),
		LogFormat:      stringSetting(ctx, LogFormatFlag, fc.LogFormat),
	}
	if cfg.Timeout, err = durationSetting(ctx, TimeoutFlag, fc.Timeout); err != nil {
		return nil, err
	}
	if cfg.Interval, err = durationSetting(ctx, IntervalFlag, fc.Interval); err != nil {
		return nil, err
	}
	if cfg.StrictRestore, err = boolSetting(ctx, StrictRestoreFlag, fc.StrictRestore); err != nil {
		return nil, err
	}
	if cfg.Color, err = boolSetting(ctx, ColorFlag, fc.Color); err != nil {
		return nil, err
	}

	cfg.Email = strings.TrimSpace(cfg.Email)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if err := cfg.Check(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// lookupEnv returns the first of the flag's env vars present in the
// environment. Flags resolve their env vars before the dotenv file is loaded,
// so values that only exist in the dotenv file are picked up here.
func lookupEnv(envVars []string) (string, bool) {
	for _, name := range envVars {
		if v, ok := os.LookupEnv(name); ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func stringSetting(ctx *cli.Context, f *cli.StringFlag, fromFile *string) string {
	if ctx.IsSet(f.Name) {
		return ctx.String(f.Name)
	}
	if fromFile != nil {
		return *fromFile
	}
	if v, ok := lookupEnv(f.EnvVars); ok {
		return v
	}
	return f.Value
}

func durationSetting(ctx *cli.Context, f *cli.DurationFlag, fromFile *time.Duration) (time.Duration, error) {
	if ctx.IsSet(f.Name) {
		return ctx.Duration(f.Name), nil
	}
	if fromFile != nil {
		return *fromFile, nil
	}
	if v, ok := lookupEnv(f.EnvVars); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid value for %s", f.Name)
		}
		return d, nil
	}
	return f.Value, nil
}

func boolSetting(ctx *cli.Context, f *cli.BoolFlag, fromFile *bool) (bool, error) {
	if ctx.IsSet(f.Name) {
		return ctx.Bool(f.Name), nil
	}
	if fromFile != nil {
		return *fromFile, nil
	}
	if v, ok := lookupEnv(f.EnvVars); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, errors.Wrapf(err, "invalid value for %s", f.Name)
		}
		return b, nil
	}
	return f.Value, nil
}
