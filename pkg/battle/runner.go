// Package battle plays precomputed sessions question by question and turns
// finished plays into battle records.
package battle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/smith3v/vocab-battle/pkg/metrics"
	"github.com/smith3v/vocab-battle/pkg/stats"
	"gorm.io/gorm"
)

// DefaultTTL outlives a friend battle code so a late opponent can still
// finish against the creator's play.
const DefaultTTL = 48 * time.Hour

var errAlreadySettled = errors.New("battle already settled")

type SessionSource interface {
	GetSession(ctx context.Context, scope domain.Scope, number int) (domain.Session, error)
	ResolveWords(ctx context.Context, s domain.Session) ([]domain.Word, error)
}

type AnswerRecorder interface {
	RecordAnswer(ctx context.Context, userID, wordID int64, correct bool) (db.UserWordProgress, error)
}

type ResultRecorder interface {
	RecordBattle(ctx context.Context, result stats.BattleResult) (db.BattleRecord, error)
}

type Runner struct {
	db       *gorm.DB
	sessions SessionSource
	answers  AnswerRecorder
	results  ResultRecorder
	ttl      time.Duration
	now      func() time.Time
}

// NewRunner builds a runner; a non-positive ttl means DefaultTTL.
func NewRunner(gdb *gorm.DB, sessions SessionSource, answers AnswerRecorder, results ResultRecorder, ttl time.Duration) *Runner {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Runner{db: gdb, sessions: sessions, answers: answers, results: results, ttl: ttl, now: time.Now}
}

// Outcome is the state of a play after one answer.
type Outcome struct {
	Play    db.BattlePlay
	Correct bool
	// Record is set once the battle has been appended to history.
	Record *db.BattleRecord
	// Opponent is the other play of a settled friend battle.
	Opponent *db.BattlePlay
}

func (o Outcome) Finished() bool { return o.Play.FinishedAt != nil }

// Waiting reports a finished friend play whose opponent has not finished yet.
func (o Outcome) Waiting() bool { return o.Finished() && o.Record == nil }

func Ref(p db.BattlePlay) domain.SessionRef {
	return domain.SessionRef{
		Kind:    domain.ScopeKind(p.SessionKind),
		ScopeID: p.SessionScopeID,
		Number:  p.SessionNumber,
	}
}

// Start begins a play of the session at ref. A non-empty friendCode ties the
// play to a friend battle, one play per player and code. Starting a solo play
// abandons the user's unfinished solo play.
func (r *Runner) Start(ctx context.Context, userID, chatID int64, ref domain.SessionRef, friendCode string) (db.BattlePlay, error) {
	if userID == 0 {
		return db.BattlePlay{}, fmt.Errorf("user id is required: %w", domain.ErrInvalidInput)
	}
	if err := ref.Validate(); err != nil {
		return db.BattlePlay{}, err
	}
	if ref.IsAdHoc() {
		return db.BattlePlay{}, fmt.Errorf("ad-hoc battles have no session to play: %w", domain.ErrInvalidInput)
	}

	s, err := r.sessions.GetSession(ctx, ref.Scope(), ref.Number)
	if err != nil {
		return db.BattlePlay{}, err
	}
	words, err := r.sessions.ResolveWords(ctx, s)
	if err != nil {
		return db.BattlePlay{}, err
	}
	if len(words) == 0 {
		return db.BattlePlay{}, fmt.Errorf("session %d of %s has no live words: %w", s.Number, s.Scope, domain.ErrInsufficientData)
	}

	now := r.now().UTC()
	play := db.BattlePlay{
		UserID:         userID,
		ChatID:         chatID,
		FriendCode:     friendCode,
		SessionKind:    string(ref.Kind),
		SessionScopeID: ref.ScopeID,
		SessionNumber:  ref.Number,
		WordIDs:        lo.Map(words, func(w domain.Word, _ int) int64 { return w.ID }),
		CreatedAt:      now,
		ExpiresAt:      now.Add(r.ttl),
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if friendCode != "" {
			var count int64
			if err := tx.Model(&db.BattlePlay{}).Where("friend_code = ? AND user_id = ?", friendCode, userID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return fmt.Errorf("user %d already plays battle %q: %w", userID, friendCode, domain.ErrConflict)
			}
		} else if err := tx.Where("user_id = ? AND friend_code = '' AND finished_at IS NULL", userID).Delete(&db.BattlePlay{}).Error; err != nil {
			return err
		}
		return tx.Create(&play).Error
	})
	if err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			logger.Error("failed to start battle play", "user_id", userID, "error", err)
		}
		return db.BattlePlay{}, err
	}

	metrics.BattlePlays.WithLabelValues("started").Inc()
	logger.Info("battle play started", "play_id", play.ID, "user_id", userID, "session", ref.Scope().String(), "number", ref.Number, "friend_code", friendCode)
	return play, nil
}

// Get returns a live play.
func (r *Runner) Get(ctx context.Context, playID uint) (db.BattlePlay, error) {
	var play db.BattlePlay
	err := r.db.WithContext(ctx).Where("id = ? AND expires_at > ?", playID, r.now().UTC()).First(&play).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.BattlePlay{}, fmt.Errorf("battle play %d: %w", playID, domain.ErrNotFound)
	}
	if err != nil {
		return db.BattlePlay{}, err
	}
	return play, nil
}

// Answer scores the question at position and advances the play. Each position
// is accepted once; a repeated or stale answer gets ErrConflict. The last
// answer settles the battle.
func (r *Runner) Answer(ctx context.Context, userID int64, playID uint, position int, correct bool) (Outcome, error) {
	play, err := r.Get(ctx, playID)
	if err != nil {
		return Outcome{}, err
	}
	if play.UserID != userID {
		return Outcome{}, fmt.Errorf("play %d belongs to another user: %w", playID, domain.ErrInvalidInput)
	}
	if position < 0 || position >= len(play.WordIDs) {
		return Outcome{}, fmt.Errorf("position %d of play %d: %w", position, playID, domain.ErrInvalidInput)
	}
	if play.FinishedAt != nil || position != play.Position {
		return Outcome{}, fmt.Errorf("question %d of play %d is not open: %w", position, playID, domain.ErrConflict)
	}

	now := r.now().UTC()
	points := 0
	if correct {
		points = 1
	}
	last := position+1 == len(play.WordIDs)
	updates := map[string]any{
		"position": gorm.Expr("position + 1"),
		"score":    gorm.Expr("score + ?", points),
	}
	if last {
		updates["finished_at"] = now
	}
	res := r.db.WithContext(ctx).Model(&db.BattlePlay{}).
		Where("id = ? AND position = ? AND finished_at IS NULL AND expires_at > ?", playID, position, now).
		Updates(updates)
	if res.Error != nil {
		logger.Error("failed to advance battle play", "play_id", playID, "error", res.Error)
		return Outcome{}, res.Error
	}
	if res.RowsAffected == 0 {
		return Outcome{}, fmt.Errorf("question %d of play %d is not open: %w", position, playID, domain.ErrConflict)
	}
	play.Position++
	play.Score += points
	if last {
		play.FinishedAt = &now
	}

	wordID := play.WordIDs[position]
	if _, err := r.answers.RecordAnswer(ctx, userID, wordID, correct); err != nil {
		logger.Warn("failed to record battle answer", "play_id", playID, "word_id", wordID, "error", err)
	}

	out := Outcome{Play: play, Correct: correct}
	if !last {
		return out, nil
	}
	metrics.BattlePlays.WithLabelValues("finished").Inc()
	record, opponent, err := r.settle(ctx, play)
	if err != nil {
		return out, err
	}
	out.Record, out.Opponent = record, opponent
	return out, nil
}

// settle records a finished play: alone, or together with the finished play
// of the same friend code. It returns a nil record while the opponent is
// still playing.
func (r *Runner) settle(ctx context.Context, play db.BattlePlay) (*db.BattleRecord, *db.BattlePlay, error) {
	plays := []db.BattlePlay{play}
	var opponent *db.BattlePlay
	if play.FriendCode != "" {
		var other db.BattlePlay
		err := r.db.WithContext(ctx).
			Where("friend_code = ? AND user_id <> ? AND finished_at IS NOT NULL AND recorded_at IS NULL", play.FriendCode, play.UserID).
			First(&other).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		opponent = &other
		// The friend battle creator started first and is listed first.
		if other.ID < play.ID {
			plays = []db.BattlePlay{other, play}
		} else {
			plays = append(plays, other)
		}
	}

	ids := lo.Map(plays, func(p db.BattlePlay, _ int) uint { return p.ID })
	now := r.now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.BattlePlay{}).Where("id IN ? AND recorded_at IS NULL", ids).Update("recorded_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			return errAlreadySettled
		}
		return nil
	})
	if errors.Is(err, errAlreadySettled) {
		return nil, nil, nil
	}
	if err != nil {
		logger.Error("failed to settle battle plays", "plays", ids, "error", err)
		return nil, nil, err
	}

	result := stats.BattleResult{
		Session:      Ref(play),
		Participants: lo.Map(plays, func(p db.BattlePlay, _ int) int64 { return p.UserID }),
		Scores:       lo.Map(plays, func(p db.BattlePlay, _ int) int { return p.Score }),
	}
	result.WinnerID = stats.DecideWinner(result.Participants, result.Scores)
	record, err := r.results.RecordBattle(ctx, result)
	if err != nil {
		if rerr := r.db.WithContext(ctx).Model(&db.BattlePlay{}).Where("id IN ?", ids).Update("recorded_at", nil).Error; rerr != nil {
			logger.Error("failed to release battle plays", "plays", ids, "error", rerr)
		}
		return nil, nil, err
	}
	metrics.BattlePlays.WithLabelValues("recorded").Inc()
	return &record, opponent, nil
}

// SweepExpired removes plays past expiry, finished or not.
func (r *Runner) SweepExpired(ctx context.Context) (int64, error) {
	removed, err := db.CleanupExpired(ctx, r.db, r.now().UTC(), &db.BattlePlay{})
	if err != nil {
		logger.Error("failed to sweep battle plays", "error", err)
		return removed, err
	}
	if removed > 0 {
		logger.Info("expired battle plays swept", "removed", removed)
	}
	return removed, nil
}
