package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// State is the generation lifecycle of a scope's sessions:
// uninitialized -> generated -> stale -> regenerated (-> stale ...).
type State string

const (
	StateUninitialized State = "uninitialized"
	StateGenerated     State = "generated"
	StateStale         State = "stale"
	StateRegenerated   State = "regenerated"
)

func (g *Generator) State(ctx context.Context, scope domain.Scope) (State, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}
	var row db.SessionScopeState
	err := g.db.WithContext(ctx).
		Where("scope_kind = ? AND scope_id = ?", string(scope.Kind), scope.ID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StateUninitialized, nil
	}
	if err != nil {
		return "", fmt.Errorf("load state of %s: %w", scope, err)
	}
	return stateOf(row), nil
}

func stateOf(row db.SessionScopeState) State {
	switch {
	case row.Generation <= 0:
		return StateUninitialized
	case row.Stale:
		return StateStale
	case row.Generation == 1:
		return StateGenerated
	default:
		return StateRegenerated
	}
}

// MarkStale flags generated sessions as out of date after corpus edits. An
// uninitialized scope stays uninitialized.
func (g *Generator) MarkStale(ctx context.Context, scope domain.Scope) (State, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}
	if err := g.db.WithContext(ctx).Model(&db.SessionScopeState{}).
		Where("scope_kind = ? AND scope_id = ?", string(scope.Kind), scope.ID).
		Updates(map[string]any{"stale": true, "updated_at": g.now().UTC()}).Error; err != nil {
		return "", fmt.Errorf("mark %s stale: %w", scope, err)
	}
	return g.State(ctx, scope)
}

func markGenerated(tx *gorm.DB, scope domain.Scope, now time.Time) error {
	row := db.SessionScopeState{
		ScopeKind:   string(scope.Kind),
		ScopeID:     scope.ID,
		Generation:  1,
		Stale:       false,
		GeneratedAt: now,
		UpdatedAt:   now,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope_kind"}, {Name: "scope_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"generation":   gorm.Expr("session_scope_states.generation + 1"),
			"stale":        false,
			"generated_at": now,
			"updated_at":   now,
		}),
	}).Create(&row).Error
}
