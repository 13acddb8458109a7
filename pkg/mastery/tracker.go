// Package mastery maintains per-user, per-word progress from answer events.
package mastery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/smith3v/vocab-battle/pkg/catalog"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/smith3v/vocab-battle/pkg/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Level rule: a correct answer raises the level by Step, an incorrect answer
// lowers it by Step, clamped to [0, MaxLevel]. Three correct answers in a row
// reach MaxLevel from any level (0 -> 2 -> 4 -> 5); one miss at MaxLevel
// drops to 3.
const (
	MaxLevel = 5
	Step     = 2
)

// NextLevel applies the level rule to a single answer.
func NextLevel(level int, correct bool) int {
	if correct {
		return min(MaxLevel, level+Step)
	}
	return max(0, level-Step)
}

var (
	raiseLevelSQL = fmt.Sprintf(
		"CASE WHEN user_word_progress.mastery_level + %d > %d THEN %d ELSE user_word_progress.mastery_level + %d END",
		Step, MaxLevel, MaxLevel, Step)
	lowerLevelSQL = fmt.Sprintf(
		"CASE WHEN user_word_progress.mastery_level - %d < 0 THEN 0 ELSE user_word_progress.mastery_level - %d END",
		Step, Step)
)

type Tracker struct {
	db    *gorm.DB
	store catalog.Store
	now   func() time.Time
}

func NewTracker(gdb *gorm.DB, store catalog.Store) *Tracker {
	return &Tracker{db: gdb, store: store, now: time.Now}
}

// RecordAnswer counts one answer. The counters and level are updated by a
// single upsert evaluated against the stored row, so concurrent answers for
// the same pair are all counted.
func (t *Tracker) RecordAnswer(ctx context.Context, userID, wordID int64, correct bool) (db.UserWordProgress, error) {
	if userID == 0 {
		return db.UserWordProgress{}, fmt.Errorf("user id is required: %w", domain.ErrInvalidInput)
	}
	ok, err := t.store.WordExists(ctx, wordID)
	if err != nil {
		return db.UserWordProgress{}, err
	}
	if !ok {
		return db.UserWordProgress{}, fmt.Errorf("word %d: %w", wordID, domain.ErrNotFound)
	}

	now := t.now().UTC()
	row := db.UserWordProgress{
		UserID:       userID,
		WordID:       wordID,
		MasteryLevel: NextLevel(0, correct),
		LastSeenAt:   now,
		CreatedAt:    now,
	}
	assignments := map[string]any{"last_seen_at": now}
	if correct {
		row.CorrectCount = 1
		row.CurrentStreak = 1
		assignments["correct_count"] = gorm.Expr("user_word_progress.correct_count + 1")
		assignments["current_streak"] = gorm.Expr("user_word_progress.current_streak + 1")
		assignments["mastery_level"] = gorm.Expr(raiseLevelSQL)
	} else {
		row.IncorrectCount = 1
		assignments["incorrect_count"] = gorm.Expr("user_word_progress.incorrect_count + 1")
		assignments["current_streak"] = 0
		assignments["mastery_level"] = gorm.Expr(lowerLevelSQL)
	}

	var stored db.UserWordProgress
	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "word_id"}},
			DoUpdates: clause.Assignments(assignments),
		}).Create(&row).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND word_id = ?", userID, wordID).First(&stored).Error
	})
	if err != nil {
		logger.Error("failed to record answer", "user_id", userID, "word_id", wordID, "error", err)
		return db.UserWordProgress{}, fmt.Errorf("record answer for word %d: %w", wordID, err)
	}
	if correct {
		metrics.AnswersRecorded.WithLabelValues("correct").Inc()
	} else {
		metrics.AnswersRecorded.WithLabelValues("incorrect").Inc()
	}
	logger.Debug("answer recorded", "user_id", userID, "word_id", wordID, "correct", correct, "level", stored.MasteryLevel)
	return stored, nil
}

// MasteryLevel returns 0 for a pair with no recorded answers.
func (t *Tracker) MasteryLevel(ctx context.Context, userID, wordID int64) (int, error) {
	var progress db.UserWordProgress
	err := t.db.WithContext(ctx).Where("user_id = ? AND word_id = ?", userID, wordID).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return progress.MasteryLevel, nil
}

// GetWeakWords lists up to limit attempted words of the topic, lowest level
// first, then least recently seen. Unattempted words are not included.
func (t *Tracker) GetWeakWords(ctx context.Context, userID, topicID int64, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit %d: %w", limit, domain.ErrInvalidInput)
	}
	ids, err := t.topicWordIDs(ctx, topicID)
	if err != nil {
		return nil, err
	}
	weak := []int64{}
	if len(ids) == 0 {
		return weak, nil
	}
	if err := t.db.WithContext(ctx).Model(&db.UserWordProgress{}).
		Where("user_id = ? AND word_id IN ?", userID, ids).
		Order("mastery_level ASC, last_seen_at ASC, word_id ASC").
		Limit(limit).
		Pluck("word_id", &weak).Error; err != nil {
		return nil, fmt.Errorf("weak words of topic %d: %w", topicID, err)
	}
	return weak, nil
}

// GetMasteredWords lists the topic's words at MaxLevel in topic order.
func (t *Tracker) GetMasteredWords(ctx context.Context, userID, topicID int64) ([]int64, error) {
	ids, err := t.topicWordIDs(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []int64{}, nil
	}
	var mastered []int64
	if err := t.db.WithContext(ctx).Model(&db.UserWordProgress{}).
		Where("user_id = ? AND word_id IN ? AND mastery_level >= ?", userID, ids, MaxLevel).
		Pluck("word_id", &mastered).Error; err != nil {
		return nil, fmt.Errorf("mastered words of topic %d: %w", topicID, err)
	}
	set := lo.SliceToMap(mastered, func(id int64) (int64, struct{}) { return id, struct{}{} })
	return lo.Filter(ids, func(id int64, _ int) bool {
		_, ok := set[id]
		return ok
	}), nil
}

// GetProgressForWords returns progress rows for the seen ids, in ids order.
func (t *Tracker) GetProgressForWords(ctx context.Context, userID int64, ids []int64) ([]db.UserWordProgress, error) {
	if len(ids) == 0 {
		return []db.UserWordProgress{}, nil
	}
	var rows []db.UserWordProgress
	if err := t.db.WithContext(ctx).
		Where("user_id = ? AND word_id IN ?", userID, lo.Uniq(ids)).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	byWord := lo.KeyBy(rows, func(p db.UserWordProgress) int64 { return p.WordID })
	out := make([]db.UserWordProgress, 0, len(rows))
	for _, id := range lo.Uniq(ids) {
		if p, ok := byWord[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// ForgetWord removes every user's progress for a deleted word.
func (t *Tracker) ForgetWord(ctx context.Context, wordID int64) (int64, error) {
	result := t.db.WithContext(ctx).Where("word_id = ?", wordID).Delete(&db.UserWordProgress{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (t *Tracker) topicWordIDs(ctx context.Context, topicID int64) ([]int64, error) {
	words, err := t.store.ResolveWords(ctx, topicID)
	if err != nil {
		return nil, err
	}
	return lo.Map(words, func(w domain.Word, _ int) int64 { return w.ID }), nil
}
