package main

import (
	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "DF_SMOKE"

func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	BaseURLFlag = &cli.StringFlag{
		Name:    "base-url",
		Value:   defaultBaseURL,
		EnvVars: []string{"NEXT_PUBLIC_BASE_URL"},
		Usage:   "Base URL of the site under test; the API root is <base-url>/api",
	}
	EmailFlag = &cli.StringFlag{
		Name:    "email",
		Value:   defaultEmail,
		EnvVars: prefixEnvVar("EMAIL"),
		Usage:   "Admin email used by the login checks",
	}
	PasswordFlag = &cli.StringFlag{
		Name:    "password",
		Value:   defaultPassword,
		EnvVars: prefixEnvVar("PASSWORD"),
		Usage:   "Admin password used by the login checks",
	}
	ExpectedBrandFlag = &cli.StringFlag{
		Name:    "expected-brand",
		Value:   defaultBrandName,
		EnvVars: prefixEnvVar("EXPECTED_BRAND"),
		Usage:   "brand.name the site read check expects (mismatch is logged, not fatal)",
	}
	ConfigFileFlag = &cli.StringFlag{
		Name:    "config",
		EnvVars: prefixEnvVar("CONFIG"),
		Usage:   "Optional YAML file with the same settings as the flags",
	}
	EnvFileFlag = &cli.StringFlag{
		Name:    "env-file",
		Value:   ".env",
		EnvVars: prefixEnvVar("ENV_FILE"),
		Usage:   "dotenv file loaded when present; never overrides the process environment",
	}
	TimeoutFlag = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: prefixEnvVar("TIMEOUT"),
		Usage:   "HTTP client timeout per request (0 disables it)",
	}
	IntervalFlag = &cli.DurationFlag{
		Name:    "interval",
		Value:   0,
		EnvVars: prefixEnvVar("INTERVAL"),
		Usage:   "Interval between runs (e.g. '5m'). 0 runs once and exits with the result code",
	}
	StrictRestoreFlag = &cli.BoolFlag{
		Name:    "strict-restore",
		EnvVars: prefixEnvVar("STRICT_RESTORE"),
		Usage:   "Fail the authorized write check when restoring the original brand name fails",
	}
	MetricsAddrFlag = &cli.StringFlag{
		Name:    "metrics.addr",
		Value:   ":2112",
		EnvVars: prefixEnvVar("METRICS_ADDR"),
		Usage:   "Listen address of the Prometheus endpoint in interval mode",
	}
	MetricsPushURLFlag = &cli.StringFlag{
		Name:    "metrics.push-url",
		EnvVars: prefixEnvVar("METRICS_PUSH_URL"),
		Usage:   "Prometheus Pushgateway URL; metrics are pushed after every run when set",
	}
	LogLevelFlag = &cli.StringFlag{
		Name:    "log.level",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Log level: trace, debug, info, warn, error, crit",
	}
	LogFormatFlag = &cli.StringFlag{
		Name:    "log.format",
		Value:   "terminal",
		EnvVars: prefixEnvVar("LOG_FORMAT"),
		Usage:   "Log format: terminal or json",
	}
	ColorFlag = &cli.BoolFlag{
		Name:    "color",
		EnvVars: prefixEnvVar("COLOR"),
		Usage:   "Color terminal log output and the summary table",
	}
)

var Flags = []cli.Flag{
	BaseURLFlag,
	EmailFlag,
	PasswordFlag,
	ExpectedBrandFlag,
	ConfigFileFlag,
	EnvFileFlag,
	TimeoutFlag,
	IntervalFlag,
	StrictRestoreFlag,
	MetricsAddrFlag,
	MetricsPushURLFlag,
	LogLevelFlag,
	LogFormatFlag,
	ColorFlag,
}

// Flags of the twin command.
var (
	TwinPortFlag = &cli.IntFlag{
		Name:    "port",
		Value:   3000,
		EnvVars: []string{"PORT"},
		Usage:   "Listen port of the CMS twin",
	}
	TwinFaultsFlag = &cli.StringSliceFlag{
		Name:    "fault",
		EnvVars: prefixEnvVar("TWIN_FAULTS"),
		Usage:   "Twin misbehavior to enable: anonymous-writes, no-session-cookie, sticky-logout, drop-upload-ids, ignore-site-writes",
	}
)
