package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"price-tracker/internal/config"
	"price-tracker/internal/fetcher"
	"price-tracker/internal/service"
)

// SimulateAlert 以给定的前值/现值跑一次完整的评估流程，告警走真实的通知通道。
func (a *App) SimulateAlert(ctx context.Context, previous, current float64) error {
	if previous <= 0 || current <= 0 {
		return errors.New("previous and current must be greater than zero")
	}
	if tg := a.Config.Alerting.Telegram; tg.Enabled && (tg.BotToken == "" || tg.ChatID == "") {
		return fmt.Errorf("%w: alerting.telegram.bot_token, alerting.telegram.chat_id", config.ErrConfigurationMissing)
	}

	cfg := *a.Config
	cfg.Scheduler.TickHeartbeat = false

	svc := service.New(&cfg, nil, fetcher.Static{Price: current}, nil, nil, nil, a.newNotifier(), a.Logger)
	svc.Initialize(previous)

	if err := svc.Tick(ctx, time.Now().UTC()); err != nil {
		return fmt.Errorf("simulate tick: %w", err)
	}

	if ref, _ := svc.Reference(); ref == previous {
		a.Logger.Info().
			Float64("previous", previous).
			Float64("current", current).
			Float64("threshold_pct", cfg.Tracker.ThresholdPct).
			Msg("change within threshold; no alert sent")
	}
	return nil
}
