// Package partition splits a topic's words into fixed-size learning parts.
package partition

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/smith3v/vocab-battle/pkg/catalog"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"gorm.io/gorm"
)

const (
	DefaultPartSize = 15
	MinPartSize     = 15
	MaxPartSize     = 20
)

type Engine struct {
	db    *gorm.DB
	store catalog.Store
}

func NewEngine(gdb *gorm.DB, store catalog.Store) *Engine {
	return &Engine{db: gdb, store: store}
}

// ClampPartSize maps sizes outside [MinPartSize, MaxPartSize] to DefaultPartSize.
func ClampPartSize(size int) int {
	if size < MinPartSize || size > MaxPartSize {
		return DefaultPartSize
	}
	return size
}

// Split chunks ids in order; the last chunk holds the remainder.
func Split(ids []int64, size int) [][]int64 {
	if len(ids) == 0 || size <= 0 {
		return nil
	}
	return lo.Chunk(ids, size)
}

// BuildParts replaces the topic's learning parts in one transaction.
func (e *Engine) BuildParts(ctx context.Context, topicID int64, targetSize int) ([]db.LearningPart, error) {
	words, err := e.store.ResolveWords(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("build parts for topic %d: %w", topicID, err)
	}
	size := ClampPartSize(targetSize)
	ids := lo.Uniq(lo.Map(words, func(w domain.Word, _ int) int64 { return w.ID }))

	chunks := Split(ids, size)
	parts := make([]db.LearningPart, 0, len(chunks))
	for i, chunk := range chunks {
		parts = append(parts, db.LearningPart{
			TopicID:    topicID,
			PartNumber: i + 1,
			PartSize:   len(chunk),
			WordIDs:    chunk,
		})
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("topic_id = ?", topicID).Delete(&db.LearningPart{}).Error; err != nil {
			return err
		}
		if len(parts) == 0 {
			return nil
		}
		return tx.Create(&parts).Error
	})
	if err != nil {
		logger.Error("failed to store learning parts", "topic_id", topicID, "error", err)
		return nil, fmt.Errorf("store parts for topic %d: %w", topicID, err)
	}

	logger.Info("learning parts rebuilt", "topic_id", topicID, "parts", len(parts), "words", len(ids), "part_size", size)
	return parts, nil
}

func (e *Engine) GetParts(ctx context.Context, topicID int64) ([]db.LearningPart, error) {
	parts := []db.LearningPart{}
	if err := e.db.WithContext(ctx).
		Where("topic_id = ?", topicID).
		Order("part_number ASC").
		Find(&parts).Error; err != nil {
		return nil, fmt.Errorf("get parts for topic %d: %w", topicID, err)
	}
	return parts, nil
}

func (e *Engine) GetPart(ctx context.Context, topicID int64, partNumber int) (db.LearningPart, error) {
	if partNumber < 1 {
		return db.LearningPart{}, fmt.Errorf("part number %d: %w", partNumber, domain.ErrInvalidInput)
	}
	var part db.LearningPart
	err := e.db.WithContext(ctx).
		Where("topic_id = ? AND part_number = ?", topicID, partNumber).
		First(&part).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.LearningPart{}, fmt.Errorf("part %d of topic %d: %w", partNumber, topicID, domain.ErrNotFound)
	}
	if err != nil {
		return db.LearningPart{}, fmt.Errorf("get part %d of topic %d: %w", partNumber, topicID, err)
	}
	return part, nil
}

// GetPartWords resolves a part to word records in part order. A missing part
// yields an empty slice.
func (e *Engine) GetPartWords(ctx context.Context, topicID int64, partNumber int) ([]domain.Word, error) {
	part, err := e.GetPart(ctx, topicID, partNumber)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.Word{}, nil
	}
	if err != nil {
		return nil, err
	}
	return e.store.ResolveWordsByIDs(ctx, part.WordIDs)
}
