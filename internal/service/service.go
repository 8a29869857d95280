package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"price-tracker/internal/alerting"
	"price-tracker/internal/baseline"
	"price-tracker/internal/config"
	"price-tracker/internal/fetcher"
	"price-tracker/internal/history"
	"price-tracker/internal/scheduler"
	"price-tracker/internal/storage"
)

const defaultCallTimeout = 10 * time.Second

// Service is the sampling loop: it pulls a price every tick, records it, and
// announces moves larger than the threshold relative to the tracked baseline.
type Service struct {
	scheduler  *scheduler.Scheduler
	source     fetcher.PriceSource
	tracker    *baseline.Tracker
	history    history.Store
	mirror     storage.ObservationMirror
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	logger     zerolog.Logger

	symbol        string
	threshold     float64
	tickHeartbeat bool
	fetchTimeout  time.Duration
	notifyTimeout time.Duration
}

// New constructs the monitoring service. The history store, mirror, alert store and notifier are optional.
func New(cfg *config.Config, sched *scheduler.Scheduler, source fetcher.PriceSource, hist history.Store, mirror storage.ObservationMirror, alertStore storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	fetchTimeout := cfg.Source.RequestTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultCallTimeout
	}
	notifyTimeout := cfg.Alerting.Telegram.Timeout
	if notifyTimeout <= 0 {
		notifyTimeout = defaultCallTimeout
	}
	symbol := cfg.Source.Symbol
	if symbol == "" {
		symbol = "BTC"
	}

	return &Service{
		scheduler:     sched,
		source:        source,
		tracker:       baseline.New(),
		history:       hist,
		mirror:        mirror,
		alertStore:    alertStore,
		notifier:      notifier,
		logger:        logger.With().Str("component", "service").Logger(),
		symbol:        symbol,
		threshold:     cfg.Tracker.ThresholdPct,
		tickHeartbeat: cfg.Scheduler.TickHeartbeat,
		fetchTimeout:  fetchTimeout,
		notifyTimeout: notifyTimeout,
	}
}

// Run starts tracking and then blocks in the scheduler until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if err := s.Start(ctx); err != nil {
		return err
	}
	s.logger.Info().Dur("interval", s.scheduler.Interval()).Float64("threshold_pct", s.threshold).Msg("sampling loop running")
	return s.scheduler.Run(ctx, s.Tick)
}

// Start takes the first sample as the baseline and announces that tracking began.
// Failure to obtain the first sample is fatal.
func (s *Service) Start(ctx context.Context) error {
	price, err := s.fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch initial price: %w", err)
	}
	s.Initialize(price)

	s.logger.Info().Str("symbol", s.symbol).Float64("price", price).Msg("tracking started")
	s.notify(ctx, alerting.StartupMessage(s.symbol, price))
	return nil
}

// Initialize seeds the baseline without contacting the price source.
func (s *Service) Initialize(price float64) {
	s.tracker.Initialize(price)
}

// Reference exposes the current baseline value.
func (s *Service) Reference() (float64, bool) {
	return s.tracker.Reference()
}

// Tick runs one sample-evaluate-persist-alert cycle. Cancellation of ctx does
// not interrupt a tick already in progress; external calls are bounded by their
// own timeouts instead.
func (s *Service) Tick(ctx context.Context, at time.Time) error {
	ctx = context.WithoutCancel(ctx)

	price, err := s.fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}

	s.logger.Info().Str("symbol", s.symbol).Float64("price", price).Time("at", at).Msg("price sampled")

	result, evalErr := s.tracker.Evaluate(price)
	if evalErr != nil && !errors.Is(evalErr, baseline.ErrDegenerateBaseline) {
		return fmt.Errorf("evaluate price: %w", evalErr)
	}

	obs := history.NewObservation(price, at)
	if err := s.persist(ctx, obs); err != nil {
		return err
	}

	if s.tickHeartbeat {
		s.notify(ctx, alerting.RenderHeartbeat(s.symbol, price, at))
	}

	if evalErr != nil {
		s.logger.Warn().Err(evalErr).Float64("price", price).Msg("baseline collapsed to zero; alerting skipped for this tick")
		if s.tracker.Reseed(price) {
			s.logger.Info().Float64("reference", price).Msg("baseline reseeded")
		}
		return nil
	}

	previous, _ := s.tracker.Reference()
	if !s.tracker.MaybeRebase(price, result, s.threshold) {
		s.logger.Debug().Float64("change_pct", result.Percent).Float64("reference", previous).Msg("within threshold")
		return nil
	}

	event := alerting.Event{
		Symbol:        s.symbol,
		Direction:     result.Direction,
		PercentChange: result.Percent,
		Current:       price,
		Previous:      previous,
		ThresholdPct:  s.threshold,
		Observation:   obs,
	}
	message := alerting.RenderEvent(event)

	s.logger.Info().
		Str("direction", result.Direction.String()).
		Float64("change_pct", result.Percent).
		Float64("current", price).
		Float64("previous", previous).
		Msg("threshold crossed; baseline rebased")

	delivered := s.notify(ctx, message)
	s.recordAlert(ctx, event, message, delivered)
	return nil
}

func (s *Service) fetch(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	return s.source.FetchPrice(ctx)
}

func (s *Service) persist(ctx context.Context, obs history.Observation) error {
	if s.history != nil {
		if err := s.history.Append(ctx, obs); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}

	if s.mirror != nil {
		mctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		defer cancel()
		if err := s.mirror.InsertObservation(mctx, obs.Price, obs.Time.Time()); err != nil {
			s.logger.Error().Err(err).Msg("failed to mirror observation")
		}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, message string) bool {
	if s.notifier == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	outcome, err := s.notifier.Send(ctx, message)
	if err != nil {
		s.logger.Error().Err(err).
			Int("status", outcome.Status).
			Str("details", outcome.Details).
			Msg("failed to dispatch notification")
		return false
	}
	s.logger.Debug().Int("status", outcome.Status).Msg("notification delivered")
	return true
}

func (s *Service) recordAlert(ctx context.Context, event alerting.Event, message string, delivered bool) {
	if s.alertStore == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	record := storage.AlertRecord{
		ObservedAt:    event.Observation.Time.Time(),
		Direction:     event.Direction.String(),
		ChangePct:     event.PercentChange,
		CurrentPrice:  event.Current,
		PreviousPrice: event.Previous,
		ThresholdPct:  event.ThresholdPct,
		Message:       message,
		Delivered:     delivered,
	}
	if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist alert record")
	}
}
