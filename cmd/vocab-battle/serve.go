package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/go-telegram/bot"
	"github.com/smith3v/vocab-battle/pkg/bot/handlers"
	"github.com/smith3v/vocab-battle/pkg/config"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/smith3v/vocab-battle/pkg/metrics"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot with maintenance jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.AppConfig
			svc := newServices(db.DB, cfg)

			metrics.Init()
			if cfg.Metrics.Listen != "" {
				srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metricsMux()}
				go func() {
					logger.Info("metrics listener started", "addr", cfg.Metrics.Listen)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics listener stopped", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			scheduler, err := newScheduler(ctx, svc, cfg.Maintenance)
			if err != nil {
				return err
			}
			scheduler.StartAsync()
			defer scheduler.Stop()

			h := &handlers.Handlers{
				Words:         svc.store,
				Stats:         svc.stats,
				FriendBattles: svc.friendBattles,
				Battles:       svc.battles,
				Sessions:      svc.sessions,
				Parts:         svc.parts,
				Quiz:          svc.quiz,
				Mastery:       svc.mastery,
				Regen:         svc.regen,
				AdminIDs:      cfg.Telegram.AdminIDs,
			}
			b, err := bot.New(cfg.Telegram.Token, bot.WithDefaultHandler(handlers.DefaultHandler))
			if err != nil {
				return fmt.Errorf("create bot: %w", err)
			}
			h.Register(b)

			logger.Info("Starting bot...")
			b.Start(ctx)
			return nil
		},
	}
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// newScheduler runs the expiry sweep and, when an interval is set, the
// periodic regeneration. Jobs never overlap themselves.
func newScheduler(ctx context.Context, svc *services, cfg config.MaintenanceConfig) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	if cfg.SweepIntervalMinutes > 0 {
		if _, err := s.Every(cfg.SweepIntervalMinutes).Minutes().Do(func() {
			if _, _, err := svc.sweep(ctx); err != nil {
				logger.Error("scheduled sweep failed", "error", err)
			}
		}); err != nil {
			return nil, fmt.Errorf("schedule sweep: %w", err)
		}
	}

	if cfg.RegenerateIntervalHours > 0 {
		if _, err := s.Every(cfg.RegenerateIntervalHours).Hours().WaitForSchedule().Do(func() {
			report, err := svc.regen.RegenerateAll(ctx, nil)
			if err != nil {
				logger.Error("scheduled regeneration failed", "error", err, "canceled", report.Canceled)
			}
		}); err != nil {
			return nil, fmt.Errorf("schedule regeneration: %w", err)
		}
	}
	return s, nil
}
