// Package distractor picks and stores wrong answer options for words.
package distractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/smith3v/vocab-battle/pkg/catalog"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// SetSize is the number of distractors stored per word.
	SetSize = 3
	// MinTopicWords is the target plus SetSize siblings.
	MinTopicWords = SetSize + 1
)

// WordDistractors pairs a word with its distractor texts. Distractors is
// empty, never nil, when the word has no set.
type WordDistractors struct {
	Word        domain.Word
	Distractors []string
}

type Selector struct {
	db    *gorm.DB
	store catalog.Store
	rng   domain.Rand
	now   func() time.Time
}

func NewSelector(gdb *gorm.DB, store catalog.Store, rng domain.Rand) *Selector {
	return &Selector{db: gdb, store: store, rng: rng, now: time.Now}
}

// Generate draws three distinct siblings of wordID within topicID and stores
// their translations as its distractors, replacing any previous set.
func (s *Selector) Generate(ctx context.Context, wordID, topicID int64) ([]string, error) {
	words, err := s.store.ResolveWords(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("generate distractors for word %d: %w", wordID, err)
	}
	words = lo.UniqBy(words, func(w domain.Word) int64 { return w.ID })
	if len(words) < MinTopicWords {
		return nil, fmt.Errorf("topic %d has %d words, need %d: %w", topicID, len(words), MinTopicWords, domain.ErrInsufficientData)
	}

	target, ok := lo.Find(words, func(w domain.Word) bool { return w.ID == wordID })
	if !ok {
		return nil, fmt.Errorf("word %d in topic %d: %w", wordID, topicID, domain.ErrNotFound)
	}

	candidates := eligibleTexts(target, words)
	if len(candidates) < SetSize {
		return nil, fmt.Errorf("word %d has %d eligible siblings, need %d: %w", wordID, len(candidates), SetSize, domain.ErrInsufficientData)
	}
	picked := domain.Sample(s.rng, candidates, SetSize)

	set := db.DistractorSet{
		WordID:      wordID,
		Distractor1: picked[0],
		Distractor2: picked[1],
		Distractor3: picked[2],
	}
	if err := s.upsert(ctx, s.db, set); err != nil {
		logger.Error("failed to store distractors", "word_id", wordID, "error", err)
		return nil, fmt.Errorf("store distractors for word %d: %w", wordID, err)
	}
	return picked, nil
}

// eligibleTexts returns one translation per sibling word, skipping blanks and
// siblings whose translation matches the target's.
func eligibleTexts(target domain.Word, words []domain.Word) []string {
	own := normalize(target.Translation)
	texts := make([]string, 0, len(words))
	for _, w := range words {
		if w.ID == target.ID {
			continue
		}
		text := strings.TrimSpace(w.Translation)
		if key := normalize(text); key == "" || key == own {
			continue
		}
		texts = append(texts, text)
	}
	return texts
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Set writes distractors directly. A nil slot keeps its stored value; when no
// set exists yet all three slots are required.
func (s *Selector) Set(ctx context.Context, wordID int64, d1, d2, d3 *string) ([]string, error) {
	ok, err := s.store.WordExists(ctx, wordID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("word %d: %w", wordID, domain.ErrNotFound)
	}
	slots := []*string{d1, d2, d3}
	for i, slot := range slots {
		if slot != nil && strings.TrimSpace(*slot) == "" {
			return nil, fmt.Errorf("distractor %d is empty: %w", i+1, domain.ErrInvalidInput)
		}
	}

	var stored db.DistractorSet
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		findErr := tx.Where("word_id = ?", wordID).First(&stored).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			if lo.Contains(slots, nil) {
				return fmt.Errorf("word %d has no distractors, all %d are required: %w", wordID, SetSize, domain.ErrInvalidInput)
			}
			stored = db.DistractorSet{WordID: wordID, Distractor1: *d1, Distractor2: *d2, Distractor3: *d3}
			return s.upsert(ctx, tx, stored)
		case findErr != nil:
			return findErr
		}

		updates := map[string]any{}
		if d1 != nil {
			updates["distractor1"] = *d1
			stored.Distractor1 = *d1
		}
		if d2 != nil {
			updates["distractor2"] = *d2
			stored.Distractor2 = *d2
		}
		if d3 != nil {
			updates["distractor3"] = *d3
			stored.Distractor3 = *d3
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = s.now().UTC()
		return tx.Model(&db.DistractorSet{}).Where("word_id = ?", wordID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return stored.Texts(), nil
}

func (s *Selector) Get(ctx context.Context, wordID int64) ([]string, error) {
	var set db.DistractorSet
	err := s.db.WithContext(ctx).Where("word_id = ?", wordID).First(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("distractors for word %d: %w", wordID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return set.Texts(), nil
}

func (s *Selector) HasSet(ctx context.Context, wordID int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&db.DistractorSet{}).Where("word_id = ?", wordID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetForWords fetches words and their sets in two queries. Unknown word ids
// are omitted; known words without a set get an empty list.
func (s *Selector) GetForWords(ctx context.Context, ids []int64) ([]WordDistractors, error) {
	words, err := s.store.ResolveWordsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return []WordDistractors{}, nil
	}

	var sets []db.DistractorSet
	wordIDs := lo.Uniq(lo.Map(words, func(w domain.Word, _ int) int64 { return w.ID }))
	if err := s.db.WithContext(ctx).Where("word_id IN ?", wordIDs).Find(&sets).Error; err != nil {
		return nil, fmt.Errorf("load distractor sets: %w", err)
	}
	byWord := lo.KeyBy(sets, func(d db.DistractorSet) int64 { return d.WordID })

	out := make([]WordDistractors, 0, len(words))
	for _, w := range words {
		item := WordDistractors{Word: w, Distractors: []string{}}
		if set, ok := byWord[w.ID]; ok {
			item.Distractors = set.Texts()
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Selector) upsert(ctx context.Context, tx *gorm.DB, set db.DistractorSet) error {
	now := s.now().UTC()
	set.CreatedAt = now
	set.UpdatedAt = now
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "word_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"distractor1", "distractor2", "distractor3", "updated_at"}),
	}).Create(&set).Error
}
