// Package friendbattle issues short-lived shareable codes that bind a battle
// session to a challenger until a friend claims it.
package friendbattle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/smith3v/vocab-battle/pkg/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultTTL = 24 * time.Hour
	CodeLength = 8

	maxCodeAttempts = 5
)

// SessionChecker confirms a session reference points at a stored session.
type SessionChecker interface {
	SessionExists(ctx context.Context, ref domain.SessionRef) (bool, error)
}

type Registry struct {
	db      *gorm.DB
	ttl     time.Duration
	checker SessionChecker
	now     func() time.Time
	newCode func() string
}

// NewRegistry builds a registry; a non-positive ttl means DefaultTTL and a
// nil checker skips session validation.
func NewRegistry(gdb *gorm.DB, ttl time.Duration, checker SessionChecker) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{db: gdb, ttl: ttl, checker: checker, now: time.Now, newCode: randomCode}
}

func randomCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:CodeLength])
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func SessionRef(fb db.FriendBattle) domain.SessionRef {
	return domain.SessionRef{
		Kind:    domain.ScopeKind(fb.SessionKind),
		ScopeID: fb.SessionScopeID,
		Number:  fb.SessionNumber,
	}
}

func (r *Registry) Create(ctx context.Context, creatorID int64, ref domain.SessionRef) (db.FriendBattle, error) {
	if creatorID == 0 {
		return db.FriendBattle{}, fmt.Errorf("creator id is required: %w", domain.ErrInvalidInput)
	}
	if err := ref.Validate(); err != nil {
		return db.FriendBattle{}, err
	}
	if r.checker != nil && !ref.IsAdHoc() {
		ok, err := r.checker.SessionExists(ctx, ref)
		if err != nil {
			return db.FriendBattle{}, err
		}
		if !ok {
			return db.FriendBattle{}, fmt.Errorf("session %s #%d: %w", ref.Scope(), ref.Number, domain.ErrNotFound)
		}
	}

	now := r.now().UTC()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		fb := db.FriendBattle{
			Code:           r.newCode(),
			CreatorID:      creatorID,
			SessionKind:    string(ref.Kind),
			SessionScopeID: ref.ScopeID,
			SessionNumber:  ref.Number,
			CreatedAt:      now,
			ExpiresAt:      now.Add(r.ttl),
		}
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&fb)
		if res.Error != nil {
			logger.Error("failed to create friend battle", "creator_id", creatorID, "error", res.Error)
			return db.FriendBattle{}, res.Error
		}
		if res.RowsAffected == 1 {
			logger.Info("friend battle created", "code", fb.Code, "creator_id", creatorID, "expires_at", fb.ExpiresAt)
			return fb, nil
		}
		logger.Warn("friend battle code collision, retrying", "attempt", attempt+1)
	}
	return db.FriendBattle{}, fmt.Errorf("could not mint a unique code after %d attempts: %w", maxCodeAttempts, domain.ErrConflict)
}

// Resolve returns a live entry. Expired entries are not found even before
// the sweep removes them.
func (r *Registry) Resolve(ctx context.Context, code string) (db.FriendBattle, error) {
	return r.load(ctx, r.db, normalizeCode(code), r.now().UTC())
}

func (r *Registry) load(ctx context.Context, tx *gorm.DB, code string, now time.Time) (db.FriendBattle, error) {
	var fb db.FriendBattle
	err := tx.WithContext(ctx).Where("code = ? AND expires_at > ?", code, now).First(&fb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.FriendBattle{}, fmt.Errorf("friend battle %q: %w", code, domain.ErrNotFound)
	}
	if err != nil {
		return db.FriendBattle{}, err
	}
	return fb, nil
}

// Claim sets the opponent exactly once. The update only matches an unclaimed,
// unexpired row, so of concurrent claims one wins and the rest see
// ErrAlreadyClaimed, or ErrNotFound once the code has expired.
func (r *Registry) Claim(ctx context.Context, code string, playerID int64) (db.FriendBattle, error) {
	if playerID == 0 {
		return db.FriendBattle{}, fmt.Errorf("player id is required: %w", domain.ErrInvalidInput)
	}
	code = normalizeCode(code)
	now := r.now().UTC()

	current, err := r.load(ctx, r.db, code, now)
	if err != nil {
		metrics.FriendBattleClaims.WithLabelValues("not_found").Inc()
		return db.FriendBattle{}, err
	}
	if current.CreatorID == playerID {
		return db.FriendBattle{}, fmt.Errorf("creator cannot claim their own code: %w", domain.ErrInvalidInput)
	}

	res := r.db.WithContext(ctx).Model(&db.FriendBattle{}).
		Where("code = ? AND opponent_id IS NULL AND expires_at > ?", code, now).
		Updates(map[string]any{"opponent_id": playerID, "claimed_at": now})
	if res.Error != nil {
		logger.Error("failed to claim friend battle", "code", code, "player_id", playerID, "error", res.Error)
		return db.FriendBattle{}, res.Error
	}

	if res.RowsAffected == 0 {
		// Lost the race: the row is either taken or gone.
		if _, err := r.load(ctx, r.db, code, now); err != nil {
			metrics.FriendBattleClaims.WithLabelValues("not_found").Inc()
			return db.FriendBattle{}, err
		}
		metrics.FriendBattleClaims.WithLabelValues("already_claimed").Inc()
		return db.FriendBattle{}, fmt.Errorf("friend battle %q: %w", code, domain.ErrAlreadyClaimed)
	}

	fb := current
	fb.OpponentID = &playerID
	fb.ClaimedAt = &now
	metrics.FriendBattleClaims.WithLabelValues("claimed").Inc()
	logger.Info("friend battle claimed", "code", code, "creator_id", fb.CreatorID, "opponent_id", playerID)
	return fb, nil
}

// SweepExpired removes every entry past expiry, claimed or not.
func (r *Registry) SweepExpired(ctx context.Context) (int64, error) {
	removed, err := db.CleanupExpired(ctx, r.db, r.now().UTC(), &db.FriendBattle{})
	if err != nil {
		logger.Error("failed to sweep friend battles", "error", err)
		return removed, err
	}
	metrics.FriendBattlesSwept.Add(float64(removed))
	if removed > 0 {
		logger.Info("expired friend battles swept", "removed", removed)
	}
	return removed, nil
}
