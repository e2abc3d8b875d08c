package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/japaniel/vocabify/pkg/background"
	"github.com/japaniel/vocabify/pkg/config"
	"github.com/japaniel/vocabify/pkg/logger"
	"github.com/japaniel/vocabify/pkg/reading"
	"github.com/japaniel/vocabify/pkg/state"
	"github.com/japaniel/vocabify/pkg/syncer"
	"github.com/japaniel/vocabify/pkg/wanikani"
)

const usage = `usage: vocabify [-db PATH] <command> [flags]

commands:
  sync       download WaniKani data and rebuild the vocabulary
  translate  rewrite a page with the current vocabulary
  watch      keep data fresh on a schedule until interrupted
  prefs      show or change preferences
  status     show what is stored`

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "vocabify:", err)
		}
		os.Exit(1)
	}
}

type command func(ctx context.Context, a *app, args []string, stdout io.Writer) error

var commands = map[string]command{
	"sync":      runSync,
	"translate": runTranslate,
	"watch":     runWatch,
	"prefs":     runPrefs,
	"status":    runStatus,
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("vocabify", flag.ContinueOnError)
	dbFlag := fs.String("db", "", "Path to SQLite database (overrides VOCABIFY_DB)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	args = fs.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return flag.ErrHelp
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *dbFlag != "" {
		cfg.Database.Path = *dbFlag
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return cmd(ctx, a, args[1:], stdout)
}

// app holds everything the commands share.
type app struct {
	cfg *config.Config
	log *logger.Logger
	st  *state.State
	svc *background.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	st, err := state.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Debug("database initialized", "path", cfg.Database.Path)

	// A configured token is copied into storage so every updater reads it
	// from one place.
	if cfg.WaniKani.Token != "" {
		cur, err := st.Token(ctx)
		if err != nil {
			st.Close()
			return nil, err
		}
		if cur != cfg.WaniKani.Token {
			if err := st.APIToken.Set(ctx, cfg.WaniKani.Token); err != nil {
				st.Close()
				return nil, err
			}
		}
	}

	client := wanikani.NewClient("")
	client.BaseURL = cfg.WaniKani.BaseURL
	client.Revision = cfg.WaniKani.Revision
	client.HTTPClient = &http.Client{Timeout: cfg.WaniKani.Timeout}

	svc := background.New(st, syncer.New(client, st, log), log)
	if cfg.Vocab.Readings {
		analyzer, err := reading.NewAnalyzer()
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("create analyzer: %w", err)
		}
		svc.Readings = analyzer.Reading
	}
	return &app{cfg: cfg, log: log, st: st, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.st.Close(); err != nil {
		a.log.Warn("close database", "error", err)
	}
	a.log.Sync()
}
