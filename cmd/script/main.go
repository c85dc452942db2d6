package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"digitfellas_api_smoke/internal/cmstwin"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp().RunContext(ctx, os.Args)
	stop()

	if err != nil && !IsTestFailureError(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "df-smoke"
	app.Usage = "Smoke test the Digitfellas CMS API"
	app.Description = "Runs ten ordered checks against the CMS API (health, content reads, login, " +
		"protected writes, uploads, logout), prints a summary and exits 0 only if all of them pass."
	app.Version = versionString()
	app.Flags = Flags
	app.Action = runAction
	app.Commands = []*cli.Command{
		{
			Name:   "twin",
			Usage:  "Serve an in-memory twin of the CMS API for local dry runs",
			Flags:  []cli.Flag{TwinPortFlag, TwinFaultsFlag},
			Action: twinAction,
		},
	}
	// Exit codes are mapped in main.
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

func versionString() string {
	v := Version
	if GitCommit != "" {
		v += "-" + GitCommit
	}
	if GitDate != "" {
		v += "-" + GitDate
	}
	return v
}

func runAction(c *cli.Context) error {
	cfg, err := NewConfig(c)
	if err != nil {
		return NewRuntimeError(err)
	}
	logger, err := newLogger(c.App.ErrWriter, cfg.LogLevel, cfg.LogFormat, cfg.Color)
	if err != nil {
		return NewRuntimeError(err)
	}
	logger.Debug("Loaded config",
		"api", cfg.APIBase(),
		"email", cfg.Email,
		"timeout", cfg.Timeout,
		"interval", cfg.Interval,
		"strict_restore", cfg.StrictRestore)

	if cfg.Interval > 0 {
		return runMonitor(c.Context, cfg, logger, c.App.Writer)
	}

	result, err := runOnce(c.Context, cfg, logger, c.App.Writer)
	if err != nil {
		return err
	}
	logger.Info("Smoke test finished", "result", result.String())
	if !result.Passed() {
		return &TestFailureError{Failed: result.Stats.Failed, Total: result.Stats.Total}
	}
	return nil
}

var twinFaultNames = map[string]func(*cmstwin.Faults){
	"anonymous-writes":   func(f *cmstwin.Faults) { f.AnonymousWrites = true },
	"no-session-cookie":  func(f *cmstwin.Faults) { f.NoSessionCookie = true },
	"sticky-logout":      func(f *cmstwin.Faults) { f.StickyLogout = true },
	"drop-upload-ids":    func(f *cmstwin.Faults) { f.DropUploadIDs = true },
	"ignore-site-writes": func(f *cmstwin.Faults) { f.IgnoreSiteWrites = true },
}

func parseTwinFaults(names []string) (cmstwin.Faults, error) {
	var f cmstwin.Faults
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		apply, ok := twinFaultNames[name]
		if !ok {
			return f, errors.Errorf("unknown twin fault %q", name)
		}
		apply(&f)
	}
	return f, nil
}

func twinAction(c *cli.Context) error {
	logger, err := newLogger(c.App.ErrWriter, c.String(LogLevelFlag.Name), c.String(LogFormatFlag.Name), c.Bool(ColorFlag.Name))
	if err != nil {
		return NewRuntimeError(err)
	}
	faults, err := parseTwinFaults(c.StringSlice(TwinFaultsFlag.Name))
	if err != nil {
		return NewRuntimeError(err)
	}

	twin := cmstwin.New(cmstwin.Config{
		Email:     c.String(EmailFlag.Name),
		Password:  c.String(PasswordFlag.Name),
		BrandName: c.String(ExpectedBrandFlag.Name),
		Faults:    faults,
	}, logger.New("component", "twin"))

	addr := fmt.Sprintf(":%d", c.Int(TwinPortFlag.Name))
	srv := &http.Server{
		Addr:              addr,
		Handler:           twin.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.ListenAndServe()
	}()
	logger.Info("CMS twin listening", "addr", addr, "base_url", fmt.Sprintf("http://localhost%s", addr))

	select {
	case err := <-srvErr:
		return NewRuntimeError(errors.Wrap(err, "twin server failed"))
	case <-c.Context.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Twin shutdown failed", "err", err)
	}
	logger.Info("CMS twin stopped")
	return nil
}
