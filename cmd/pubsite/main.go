package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/eringen/pubsite"
	"github.com/eringen/pubsite/permalink"
)

var version = "dev"

var CLI struct {
	Config  string   `short:"c" help:"Configuration file path" default:"pubsite.yaml"`
	EnvFile []string `help:"Dotenv files loaded before the environment is read" default:".env"`
	Verbose bool     `short:"v" help:"Enable verbose logging"`

	Serve struct{} `cmd:"" help:"Serve the site, admin and form endpoints"`

	Permalink struct {
		Segment   string `arg:"" optional:"" help:"Logical path, e.g. about or blog/hello"`
		Locale    string `short:"l" help:"Locale to prefix"`
		Kind      string `short:"k" help:"Permalink family" default:"page" enum:"page,home,blog,post,category,tag,asset"`
		Canonical bool   `help:"Print the absolute URL instead of the site-relative path"`
	} `cmd:"" help:"Print the permalink for a segment under the configured policy"`

	Version struct{} `cmd:"" help:"Print the version"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("pubsite"),
		kong.Description("A small publishing site with permalinks and mailed forms."),
	)

	level := slog.LevelInfo
	if CLI.Verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(os.Stderr, level)
	slog.SetDefault(logger)

	var err error
	switch ctx.Command() {
	case "serve":
		err = runServe(logger)
	case "permalink", "permalink <segment>":
		err = runPermalink(os.Stdout)
	case "version":
		fmt.Printf("pubsite %s\n", version)
	}
	if err != nil {
		logger.Error("command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}))
}

func runServe(logger *slog.Logger) error {
	cfg, err := pubsite.LoadConfig(CLI.Config, CLI.EnvFile...)
	if err != nil {
		return err
	}
	app := pubsite.New(cfg, pubsite.ViewFuncs{}, pubsite.WithLogger(logger))
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- app.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Echo.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runPermalink(w io.Writer) error {
	cfg, err := pubsite.LoadConfig(CLI.Config, CLI.EnvFile...)
	if err != nil {
		return err
	}
	out, err := permalinkFor(cfg.Links, CLI.Permalink.Segment, CLI.Permalink.Locale, CLI.Permalink.Kind, CLI.Permalink.Canonical)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func permalinkFor(cfg permalink.Config, segment, locale, kind string, canonical bool) (string, error) {
	b, err := permalink.NewBuilder(cfg)
	if err != nil {
		return "", err
	}
	k, err := permalink.ParseKind(kind)
	if err != nil {
		return "", err
	}
	p := b.For(k, segment, locale)
	if canonical {
		return b.Absolute(p), nil
	}
	return p, nil
}
