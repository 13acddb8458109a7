// Package session precomputes randomized battle sessions per topic or book.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/smith3v/vocab-battle/pkg/catalog"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultCount = 10
	DefaultSize  = 10
)

type Generator struct {
	db    *gorm.DB
	store catalog.Store
	rng   domain.Rand
	now   func() time.Time
}

func NewGenerator(gdb *gorm.DB, store catalog.Store, rng domain.Rand) *Generator {
	return &Generator{db: gdb, store: store, rng: rng, now: time.Now}
}

// sessionRow is the shape shared by both session tables.
type sessionRow struct {
	SessionNumber int
	WordIDs       datatypes.JSONSlice[int64]
}

// CreateSessions replaces every session of scope with count fresh draws of
// size distinct words from the scope's pool. Non-positive count or size fall
// back to the defaults.
func (g *Generator) CreateSessions(ctx context.Context, scope domain.Scope, count, size int) ([]domain.Session, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = DefaultCount
	}
	if size <= 0 {
		size = DefaultSize
	}

	pool, err := g.Pool(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(pool) < size {
		return nil, fmt.Errorf("scope %s has %d words, need %d: %w", scope, len(pool), size, domain.ErrInsufficientData)
	}

	sessions := make([]domain.Session, 0, count)
	for n := 1; n <= count; n++ {
		sessions = append(sessions, domain.Session{
			Scope:   scope,
			Number:  n,
			WordIDs: domain.Sample(g.rng, pool, size),
		})
	}

	now := g.now().UTC()
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := replaceRows(tx, scope, sessions); err != nil {
			return err
		}
		return markGenerated(tx, scope, now)
	})
	if err != nil {
		logger.Error("failed to store battle sessions", "scope", scope.String(), "error", err)
		return nil, fmt.Errorf("store sessions for %s: %w", scope, err)
	}

	logger.Info("battle sessions generated", "scope", scope.String(), "count", count, "size", size, "pool", len(pool))
	return sessions, nil
}

// Pool returns the distinct word ids a scope draws from: a topic's words, or
// the words of every topic of a book in topic order.
func (g *Generator) Pool(ctx context.Context, scope domain.Scope) ([]int64, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	topicIDs := []int64{scope.ID}
	if scope.Kind == domain.ScopeBook {
		var err error
		topicIDs, err = g.store.ResolveTopicsOfBook(ctx, scope.ID)
		if err != nil {
			return nil, fmt.Errorf("pool for %s: %w", scope, err)
		}
	}

	var pool []int64
	for _, topicID := range topicIDs {
		words, err := g.store.ResolveWords(ctx, topicID)
		if err != nil {
			return nil, fmt.Errorf("pool for %s: %w", scope, err)
		}
		for _, w := range words {
			pool = append(pool, w.ID)
		}
	}
	return lo.Uniq(pool), nil
}

func (g *Generator) GetSession(ctx context.Context, scope domain.Scope, number int) (domain.Session, error) {
	if err := scope.Validate(); err != nil {
		return domain.Session{}, err
	}
	if number < 1 {
		return domain.Session{}, fmt.Errorf("session number %d: %w", number, domain.ErrInvalidInput)
	}

	table, column := tableFor(scope.Kind)
	var rows []sessionRow
	if err := g.db.WithContext(ctx).Table(table).
		Select("session_number, word_ids").
		Where(column+" = ? AND session_number = ?", scope.ID, number).
		Limit(1).
		Scan(&rows).Error; err != nil {
		return domain.Session{}, fmt.Errorf("get session %d of %s: %w", number, scope, err)
	}
	if len(rows) == 0 {
		return domain.Session{}, fmt.Errorf("session %d of %s: %w", number, scope, domain.ErrNotFound)
	}
	return domain.Session{Scope: scope, Number: rows[0].SessionNumber, WordIDs: rows[0].WordIDs}, nil
}

// GetRandomSession picks uniformly among the scope's existing sessions.
func (g *Generator) GetRandomSession(ctx context.Context, scope domain.Scope) (domain.Session, error) {
	numbers, err := g.SessionNumbers(ctx, scope)
	if err != nil {
		return domain.Session{}, err
	}
	if len(numbers) == 0 {
		return domain.Session{}, fmt.Errorf("sessions of %s: %w", scope, domain.ErrNotFound)
	}
	return g.GetSession(ctx, scope, numbers[g.rng.Intn(len(numbers))])
}

func (g *Generator) SessionNumbers(ctx context.Context, scope domain.Scope) ([]int, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	table, column := tableFor(scope.Kind)
	var numbers []int
	if err := g.db.WithContext(ctx).Table(table).
		Where(column+" = ?", scope.ID).
		Order("session_number ASC").
		Pluck("session_number", &numbers).Error; err != nil {
		return nil, fmt.Errorf("list sessions of %s: %w", scope, err)
	}
	return numbers, nil
}

// SessionExists reports whether ref points at a stored session. Ad-hoc refs
// always exist.
func (g *Generator) SessionExists(ctx context.Context, ref domain.SessionRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	if ref.IsAdHoc() {
		return true, nil
	}
	table, column := tableFor(ref.Kind)
	var count int64
	if err := g.db.WithContext(ctx).Table(table).
		Where(column+" = ? AND session_number = ?", ref.ScopeID, ref.Number).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ResolveWords returns the live words of a session in session order. Words
// deleted since generation are dropped, so the result may be shorter than
// the session.
func (g *Generator) ResolveWords(ctx context.Context, s domain.Session) ([]domain.Word, error) {
	return g.store.ResolveWordsByIDs(ctx, s.WordIDs)
}

func tableFor(kind domain.ScopeKind) (table, column string) {
	if kind == domain.ScopeBook {
		return "book_battle_sessions", "book_id"
	}
	return "topic_battle_sessions", "topic_id"
}

func replaceRows(tx *gorm.DB, scope domain.Scope, sessions []domain.Session) error {
	switch scope.Kind {
	case domain.ScopeTopic:
		if err := tx.Where("topic_id = ?", scope.ID).Delete(&db.TopicBattleSession{}).Error; err != nil {
			return err
		}
		rows := lo.Map(sessions, func(s domain.Session, _ int) db.TopicBattleSession {
			return db.TopicBattleSession{TopicID: scope.ID, SessionNumber: s.Number, WordIDs: s.WordIDs}
		})
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	case domain.ScopeBook:
		if err := tx.Where("book_id = ?", scope.ID).Delete(&db.BookBattleSession{}).Error; err != nil {
			return err
		}
		rows := lo.Map(sessions, func(s domain.Session, _ int) db.BookBattleSession {
			return db.BookBattleSession{BookID: scope.ID, SessionNumber: s.Number, WordIDs: s.WordIDs}
		})
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	default:
		return fmt.Errorf("scope %s: %w", scope, domain.ErrInvalidInput)
	}
}
