package main

import (
	"context"
	"fmt"

	"github.com/smith3v/vocab-battle/pkg/battle"
	"github.com/smith3v/vocab-battle/pkg/catalog"
	"github.com/smith3v/vocab-battle/pkg/config"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/distractor"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/friendbattle"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/smith3v/vocab-battle/pkg/mastery"
	"github.com/smith3v/vocab-battle/pkg/partition"
	"github.com/smith3v/vocab-battle/pkg/quiz"
	"github.com/smith3v/vocab-battle/pkg/regen"
	"github.com/smith3v/vocab-battle/pkg/session"
	"github.com/smith3v/vocab-battle/pkg/stats"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "vocab-battle",
		Short:         "Vocabulary battle content service and Telegram bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(configPath); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logger.Configure(logger.Options{
				Level:  config.AppConfig.Logging.Level,
				File:   config.AppConfig.Logging.File,
				Format: config.AppConfig.Logging.Format,
			}); err != nil {
				logger.Error("failed to configure logger", "error", err)
			}
			if err := db.InitDB(config.AppConfig.Database); err != nil {
				return fmt.Errorf("initialize database: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.json", "path to the JSON config file")

	root.AddCommand(newServeCmd(), newRegenerateCmd(), newSweepCmd(), newImportCmd())
	return root
}

// services is the content core wired over one database.
type services struct {
	store         *catalog.GormStore
	parts         *partition.Engine
	distractors   *distractor.Selector
	sessions      *session.Generator
	quiz          *quiz.Builder
	mastery       *mastery.Tracker
	stats         *stats.Service
	friendBattles *friendbattle.Registry
	battles       *battle.Runner
	regen         *regen.Coordinator
}

func newServices(gdb *gorm.DB, cfg config.Config) *services {
	rng := domain.NewTimeSeededRand()
	store := catalog.NewGormStore(gdb)

	s := &services{
		store:       store,
		parts:       partition.NewEngine(gdb, store),
		distractors: distractor.NewSelector(gdb, store, rng),
		sessions:    session.NewGenerator(gdb, store, rng),
		mastery:     mastery.NewTracker(gdb, store),
		stats:       stats.NewService(gdb),
	}
	s.quiz = quiz.NewBuilder(s.distractors, rng)
	s.friendBattles = friendbattle.NewRegistry(gdb, cfg.FriendBattle.TTL(), s.sessions)
	s.battles = battle.NewRunner(gdb, s.sessions, s.mastery, s.stats, cfg.FriendBattle.PlayTTL())
	s.regen = regen.NewCoordinator(store, s.parts, s.distractors, s.sessions, regen.Options{
		PartSize:           cfg.Content.PartSize,
		SessionCount:       cfg.Content.SessionCount,
		SessionSize:        cfg.Content.SessionSize,
		RefreshDistractors: cfg.Content.RefreshDistractors,
	})
	return s
}

// sweep removes expired friend battle codes and battle plays.
func (s *services) sweep(ctx context.Context) (codes, plays int64, err error) {
	codes, err = s.friendBattles.SweepExpired(ctx)
	if err != nil {
		return codes, 0, err
	}
	plays, err = s.battles.SweepExpired(ctx)
	return codes, plays, err
}
