// Package catalog is the read contract over the book/topic/word record store.
package catalog

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"gorm.io/gorm"
)

// Store is everything the content core reads from the record store.
type Store interface {
	// ResolveWords returns a topic's words in canonical order (ordinal, id).
	// A missing topic is domain.ErrNotFound; an empty topic is an empty slice.
	ResolveWords(ctx context.Context, topicID int64) ([]domain.Word, error)
	// ResolveWordsByIDs returns words in the order of ids, silently omitting
	// unknown ids.
	ResolveWordsByIDs(ctx context.Context, ids []int64) ([]domain.Word, error)
	ResolveTopicsOfBook(ctx context.Context, bookID int64) ([]int64, error)
	WordExists(ctx context.Context, id int64) (bool, error)
	TopicExists(ctx context.Context, id int64) (bool, error)
	BookExists(ctx context.Context, id int64) (bool, error)
	ListBookIDs(ctx context.Context) ([]int64, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(gdb *gorm.DB) *GormStore {
	return &GormStore{db: gdb}
}

func (s *GormStore) ResolveWords(ctx context.Context, topicID int64) ([]domain.Word, error) {
	ok, err := s.TopicExists(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("topic %d: %w", topicID, domain.ErrNotFound)
	}

	var rows []db.Word
	if err := s.db.WithContext(ctx).
		Where("topic_id = ?", topicID).
		Order("ordinal ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("resolve words of topic %d: %w", topicID, err)
	}
	return lo.Map(rows, func(w db.Word, _ int) domain.Word { return toDomain(w) }), nil
}

func (s *GormStore) ResolveWordsByIDs(ctx context.Context, ids []int64) ([]domain.Word, error) {
	if len(ids) == 0 {
		return []domain.Word{}, nil
	}
	var rows []db.Word
	if err := s.db.WithContext(ctx).Where("id IN ?", lo.Uniq(ids)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("resolve words by id: %w", err)
	}
	byID := lo.KeyBy(rows, func(w db.Word) int64 { return w.ID })

	out := make([]domain.Word, 0, len(ids))
	for _, id := range ids {
		if w, ok := byID[id]; ok {
			out = append(out, toDomain(w))
		}
	}
	return out, nil
}

func (s *GormStore) ResolveTopicsOfBook(ctx context.Context, bookID int64) ([]int64, error) {
	ok, err := s.BookExists(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("book %d: %w", bookID, domain.ErrNotFound)
	}

	var ids []int64
	if err := s.db.WithContext(ctx).Model(&db.Topic{}).
		Where("book_id = ?", bookID).
		Order("position ASC, id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("resolve topics of book %d: %w", bookID, err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

func (s *GormStore) WordExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, &db.Word{}, id)
}

func (s *GormStore) TopicExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, &db.Topic{}, id)
}

func (s *GormStore) BookExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, &db.Book{}, id)
}

func (s *GormStore) ListBookIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&db.Book{}).
		Order("position ASC, id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return ids, nil
}

func (s *GormStore) exists(ctx context.Context, model any, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func toDomain(w db.Word) domain.Word {
	return domain.Word{
		ID:          w.ID,
		TopicID:     w.TopicID,
		Ordinal:     w.Ordinal,
		Difficulty:  w.Difficulty,
		Text:        w.Text,
		Translation: w.Translation,
		Photo:       w.Photo,
		Note:        w.Note,
	}
}
