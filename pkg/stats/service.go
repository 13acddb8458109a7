// Package stats records finished battles and derives per-user standings.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/smith3v/vocab-battle/pkg/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BattleResult struct {
	Session      domain.SessionRef
	Participants []int64
	// Scores holds one score per participant, in the same order.
	Scores []int
	// WinnerID is nil for a tie or a single-player battle.
	WinnerID *int64
}

func (r BattleResult) Validate() error {
	if err := r.Session.Validate(); err != nil {
		return err
	}
	if len(r.Participants) < 1 || len(r.Participants) > 2 {
		return fmt.Errorf("battle needs 1 or 2 participants, got %d: %w", len(r.Participants), domain.ErrInvalidInput)
	}
	if len(r.Scores) != len(r.Participants) {
		return fmt.Errorf("got %d scores for %d participants: %w", len(r.Scores), len(r.Participants), domain.ErrInvalidInput)
	}
	for i, id := range r.Participants {
		if id == 0 {
			return fmt.Errorf("participant id is required: %w", domain.ErrInvalidInput)
		}
		if r.Scores[i] < 0 {
			return fmt.Errorf("negative score for user %d: %w", id, domain.ErrInvalidInput)
		}
	}
	if len(r.Participants) == 2 && r.Participants[0] == r.Participants[1] {
		return fmt.Errorf("user %d cannot battle themselves: %w", r.Participants[0], domain.ErrInvalidInput)
	}
	if r.WinnerID != nil {
		if len(r.Participants) == 1 {
			return fmt.Errorf("single-player battle has no winner: %w", domain.ErrInvalidInput)
		}
		if !lo.Contains(r.Participants, *r.WinnerID) {
			return fmt.Errorf("winner %d is not a participant: %w", *r.WinnerID, domain.ErrInvalidInput)
		}
	}
	return nil
}

// DecideWinner returns the participant with the strictly highest score, or
// nil on a tie or for a single player.
func DecideWinner(participants []int64, scores []int) *int64 {
	if len(participants) != 2 || len(scores) != 2 || scores[0] == scores[1] {
		return nil
	}
	winner := participants[0]
	if scores[1] > scores[0] {
		winner = participants[1]
	}
	return &winner
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(gdb *gorm.DB) *Service {
	return &Service{db: gdb, now: time.Now}
}

// RecordBattle appends the battle and updates every participant's statistics
// in one transaction.
func (s *Service) RecordBattle(ctx context.Context, result BattleResult) (db.BattleRecord, error) {
	if err := result.Validate(); err != nil {
		return db.BattleRecord{}, err
	}
	now := s.now().UTC()

	record := db.BattleRecord{
		Code:           uuid.NewString(),
		SessionKind:    string(result.Session.Kind),
		SessionScopeID: result.Session.ScopeID,
		SessionNumber:  result.Session.Number,
		Player1ID:      result.Participants[0],
		Player1Score:   result.Scores[0],
		WinnerID:       result.WinnerID,
		CompletedAt:    now,
	}
	if len(result.Participants) == 2 {
		second := result.Participants[1]
		record.Player2ID = &second
		record.Player2Score = result.Scores[1]
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		for i, userID := range result.Participants {
			if err := applyOutcome(tx, userID, outcomeFor(result, userID), result.Scores[i], now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to record battle", "participants", result.Participants, "error", err)
		return db.BattleRecord{}, fmt.Errorf("record battle: %w", err)
	}

	mode := "solo"
	if len(result.Participants) == 2 {
		mode = "duel"
	}
	metrics.BattlesRecorded.WithLabelValues(mode).Inc()
	logger.Info("battle recorded", "code", record.Code, "session", string(result.Session.Kind), "mode", mode)
	return record, nil
}

type outcome struct {
	wins, losses, ties int
}

func outcomeFor(result BattleResult, userID int64) outcome {
	if len(result.Participants) < 2 {
		return outcome{}
	}
	if result.WinnerID == nil {
		return outcome{ties: 1}
	}
	if *result.WinnerID == userID {
		return outcome{wins: 1}
	}
	return outcome{losses: 1}
}

func applyOutcome(tx *gorm.DB, userID int64, o outcome, score int, now time.Time) error {
	row := db.UserStatistics{
		UserID:     userID,
		Wins:       o.wins,
		Losses:     o.losses,
		Ties:       o.ties,
		Battles:    1,
		TotalScore: int64(score),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"wins":        gorm.Expr("user_statistics.wins + ?", o.wins),
			"losses":      gorm.Expr("user_statistics.losses + ?", o.losses),
			"ties":        gorm.Expr("user_statistics.ties + ?", o.ties),
			"battles":     gorm.Expr("user_statistics.battles + 1"),
			"total_score": gorm.Expr("user_statistics.total_score + ?", score),
			"updated_at":  now,
		}),
	}).Create(&row).Error
}

// GetHistory lists the user's battles, most recent first.
func (s *Service) GetHistory(ctx context.Context, userID int64, limit int) ([]db.BattleRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit %d: %w", limit, domain.ErrInvalidInput)
	}
	records := []db.BattleRecord{}
	if err := s.db.WithContext(ctx).
		Where("player1_id = ? OR player2_id = ?", userID, userID).
		Order("completed_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("history of user %d: %w", userID, err)
	}
	return records, nil
}

// GetLeaderboard ranks by wins, then total score, then who registered first.
func (s *Service) GetLeaderboard(ctx context.Context, limit int) ([]db.UserStatistics, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit %d: %w", limit, domain.ErrInvalidInput)
	}
	rows := []db.UserStatistics{}
	if err := s.db.WithContext(ctx).
		Order("wins DESC, total_score DESC, created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return rows, nil
}

// GetUserStatistics returns a zero record for a user who never played.
func (s *Service) GetUserStatistics(ctx context.Context, userID int64) (db.UserStatistics, error) {
	var row db.UserStatistics
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.UserStatistics{UserID: userID}, nil
	}
	if err != nil {
		return db.UserStatistics{}, err
	}
	return row, nil
}

type HeadToHead struct {
	Battles int
	WinsA   int
	WinsB   int
	Ties    int
}

func (s *Service) HeadToHead(ctx context.Context, a, b int64) (HeadToHead, error) {
	if a == b {
		return HeadToHead{}, fmt.Errorf("head to head needs two users: %w", domain.ErrInvalidInput)
	}
	var records []db.BattleRecord
	if err := s.db.WithContext(ctx).
		Where("(player1_id = ? AND player2_id = ?) OR (player1_id = ? AND player2_id = ?)", a, b, b, a).
		Find(&records).Error; err != nil {
		return HeadToHead{}, err
	}
	h := HeadToHead{Battles: len(records)}
	for _, r := range records {
		switch {
		case r.WinnerID == nil:
			h.Ties++
		case *r.WinnerID == a:
			h.WinsA++
		case *r.WinnerID == b:
			h.WinsB++
		}
	}
	return h, nil
}
