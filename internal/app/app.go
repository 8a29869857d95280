package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"price-tracker/internal/alerting"
	"price-tracker/internal/config"
	"price-tracker/internal/fetcher"
	"price-tracker/internal/history"
	"price-tracker/internal/scheduler"
	"price-tracker/internal/service"
	"price-tracker/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), out: os.Stdout}
}

// SetOutput redirects tabular command output.
func (a *App) SetOutput(w io.Writer) {
	if w != nil {
		a.out = w
	}
}

func (a *App) newSource() (fetcher.PriceSource, error) {
	src := a.Config.Source
	switch src.Kind {
	case config.SourceCoinMarketCap:
		return fetcher.NewCoinMarketCap(fetcher.CoinMarketCapOptions{
			APIKey:     src.CoinMarketCap.APIKey,
			BaseURL:    src.CoinMarketCap.BaseURL,
			Symbol:     src.Symbol,
			Convert:    src.Convert,
			Timeout:    src.RequestTimeout,
			RetryCount: src.CoinMarketCap.RetryCount,
		}, a.Logger), nil
	case config.SourceChainlink:
		return fetcher.NewChainlink(fetcher.ChainlinkOptions{
			RPCURL:      src.Chainlink.RPCURL,
			FeedAddress: src.Chainlink.FeedAddress,
			Timeout:     src.RequestTimeout,
		}, a.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", src.Kind)
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	a.Logger.Warn().Msg("telegram alerting disabled; notifications go to the log")
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) historyStore() *history.FileStore {
	return history.NewFileStore(a.Config.History.Path)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running sampling loop until SIGINT or SIGTERM.
func (a *App) Run(ctx context.Context) error {
	if err := a.Config.RequireRunCredentials(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Info().Msg("database.dsn not configured; postgres mirror disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var mirror storage.ObservationMirror
	var alertStore storage.AlertStore
	if store != nil {
		unlock, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Database.AdvisoryLockKey)
		if err != nil {
			return err
		}
		if !acquired {
			return errors.New("another instance holds the tracker lock; refusing to start")
		}
		defer unlock()
		mirror = store
		alertStore = store
	}

	source, err := a.newSource()
	if err != nil {
		return err
	}

	interval := a.Config.SamplingInterval()
	sched := scheduler.New(scheduler.Options{
		Interval:     interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	hist := a.historyStore()
	svc := service.New(a.Config, sched, source, hist, mirror, alertStore, a.newNotifier(), a.Logger)

	a.Logger.Info().
		Str("source", a.Config.Source.Kind).
		Str("history", hist.Path()).
		Dur("interval", interval).
		Msg("starting price tracker")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("price tracker terminated with error")
		return err
	}

	a.Logger.Info().Msg("price tracker stopped")
	return nil
}

// ExportOptions hold parameters for exporting the observation history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
