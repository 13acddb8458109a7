// Package quiz turns session word ids into multiple-choice questions.
package quiz

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/smith3v/vocab-battle/pkg/distractor"
	"github.com/smith3v/vocab-battle/pkg/domain"
)

type Source interface {
	GetForWords(ctx context.Context, ids []int64) ([]distractor.WordDistractors, error)
}

type Question struct {
	WordID       int64
	Prompt       string
	Options      []string
	CorrectIndex int
	// Slots maps each option to its index in the word's canonical option
	// order, which Check resolves without knowing how the options were shown.
	Slots []int
}

func (q Question) IsCorrect(choice int) bool {
	return choice == q.CorrectIndex
}

type Builder struct {
	source Source
	rng    domain.Rand
}

func NewBuilder(source Source, rng domain.Rand) *Builder {
	return &Builder{source: source, rng: rng}
}

// Build returns one question per live word in wordIDs order. A word without
// distractors yields a single-option question.
func (b *Builder) Build(ctx context.Context, wordIDs []int64) ([]Question, error) {
	items, err := b.source.GetForWords(ctx, wordIDs)
	if err != nil {
		return nil, err
	}
	questions := make([]Question, 0, len(items))
	for _, item := range items {
		options, correct := b.shuffle(item.Word.Translation, item.Distractors)
		canonical := canonicalOptions(item)
		questions = append(questions, Question{
			WordID:       item.Word.ID,
			Prompt:       item.Word.Text,
			Options:      options,
			CorrectIndex: correct,
			Slots:        lo.Map(options, func(o string, _ int) int { return lo.IndexOf(canonical, o) }),
		})
	}
	return questions, nil
}

func (b *Builder) shuffle(correct string, distractors []string) ([]string, int) {
	options := make([]string, 0, len(distractors)+1)
	options = append(options, correct)
	options = append(options, distractors...)
	index := 0
	b.rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
		switch index {
		case i:
			index = j
		case j:
			index = i
		}
	})
	return options, index
}

// Check reports whether slot, an entry of Question.Slots, is the word's
// translation under the word's current distractors.
func (b *Builder) Check(ctx context.Context, wordID int64, slot int) (bool, error) {
	items, err := b.source.GetForWords(ctx, []int64{wordID})
	if err != nil {
		return false, err
	}
	item, ok := lo.Find(items, func(i distractor.WordDistractors) bool { return i.Word.ID == wordID })
	if !ok {
		return false, fmt.Errorf("word %d: %w", wordID, domain.ErrNotFound)
	}
	canonical := canonicalOptions(item)
	if slot < 0 || slot >= len(canonical) {
		return false, fmt.Errorf("slot %d of word %d: %w", slot, wordID, domain.ErrInvalidInput)
	}
	return canonical[slot] == item.Word.Translation, nil
}

func canonicalOptions(item distractor.WordDistractors) []string {
	options := append([]string{item.Word.Translation}, item.Distractors...)
	sort.Strings(options)
	return options
}
