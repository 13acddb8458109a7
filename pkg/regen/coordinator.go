// Package regen rebuilds derived content (learning parts, distractors and
// battle sessions) for one book or the whole catalog.
package regen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smith3v/vocab-battle/pkg/catalog"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/smith3v/vocab-battle/pkg/metrics"
)

type Step string

const (
	StepParts       Step = "parts"
	StepDistractors Step = "distractors"
	StepSessions    Step = "sessions"
	StepTopics      Step = "topics"
)

type PartBuilder interface {
	BuildParts(ctx context.Context, topicID int64, targetSize int) ([]db.LearningPart, error)
}

type DistractorGenerator interface {
	Generate(ctx context.Context, wordID, topicID int64) ([]string, error)
	HasSet(ctx context.Context, wordID int64) (bool, error)
}

type SessionCreator interface {
	CreateSessions(ctx context.Context, scope domain.Scope, count, size int) ([]domain.Session, error)
}

type Options struct {
	PartSize     int
	SessionCount int
	SessionSize  int
	// RefreshDistractors regenerates every set; otherwise only words without
	// one get a set.
	RefreshDistractors bool
}

type ScopeFailure struct {
	Kind domain.ScopeKind
	ID   int64
	Step Step
	Err  error
}

func (f ScopeFailure) Error() string {
	return fmt.Sprintf("%s:%d %s: %v", f.Kind, f.ID, f.Step, f.Err)
}

func (f ScopeFailure) Unwrap() error { return f.Err }

type Report struct {
	ScopesRegenerated int
	// ScopesSkipped counts scopes too small to build sessions for.
	ScopesSkipped  int
	DistractorSets int
	Failures       []ScopeFailure
	Canceled       bool
}

func (r Report) OK() bool { return len(r.Failures) == 0 && !r.Canceled }

type Coordinator struct {
	store       catalog.Store
	parts       PartBuilder
	distractors DistractorGenerator
	sessions    SessionCreator
	opts        Options
}

func NewCoordinator(store catalog.Store, parts PartBuilder, distractors DistractorGenerator, sessions SessionCreator, opts Options) *Coordinator {
	return &Coordinator{store: store, parts: parts, distractors: distractors, sessions: sessions, opts: opts}
}

// RegenerateAll walks one book, or every book when bookID is nil. Each step
// writes in its own transaction, so a failure or cancellation never leaves a
// scope half replaced. Step failures are collected in the report and the walk
// continues; the returned error is non-nil only for a missing book, a store
// failure listing books, or cancellation.
func (c *Coordinator) RegenerateAll(ctx context.Context, bookID *int64) (Report, error) {
	var report Report
	start := time.Now()
	defer metrics.ObserveRegeneration(start)

	bookIDs, err := c.bookIDs(ctx, bookID)
	if err != nil {
		return report, err
	}

	for _, id := range bookIDs {
		if err := c.regenerateBook(ctx, id, &report); err != nil {
			report.Canceled = true
			logger.Warn("regeneration canceled", "book_id", id, "regenerated", report.ScopesRegenerated)
			return report, err
		}
	}

	logger.Info("regeneration finished",
		"books", len(bookIDs),
		"regenerated", report.ScopesRegenerated,
		"skipped", report.ScopesSkipped,
		"distractor_sets", report.DistractorSets,
		"failures", len(report.Failures))
	return report, nil
}

func (c *Coordinator) bookIDs(ctx context.Context, bookID *int64) ([]int64, error) {
	if bookID == nil {
		ids, err := c.store.ListBookIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list books: %w", err)
		}
		return ids, nil
	}
	ok, err := c.store.BookExists(ctx, *bookID)
	if err != nil {
		return nil, fmt.Errorf("book %d: %w", *bookID, err)
	}
	if !ok {
		return nil, fmt.Errorf("book %d: %w", *bookID, domain.ErrNotFound)
	}
	return []int64{*bookID}, nil
}

// regenerateBook only returns an error on cancellation.
func (c *Coordinator) regenerateBook(ctx context.Context, bookID int64, report *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	topicIDs, err := c.store.ResolveTopicsOfBook(ctx, bookID)
	if err != nil {
		report.fail(domain.BookScope(bookID), StepTopics, err)
		return nil
	}

	for _, topicID := range topicIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.regenerateTopic(ctx, topicID, report)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	c.regenerateSessions(ctx, domain.BookScope(bookID), report)
	return nil
}

func (c *Coordinator) regenerateTopic(ctx context.Context, topicID int64, report *Report) {
	scope := domain.TopicScope(topicID)
	if _, err := c.parts.BuildParts(ctx, topicID, c.opts.PartSize); err != nil {
		report.fail(scope, StepParts, err)
		return
	}

	words, err := c.store.ResolveWords(ctx, topicID)
	if err != nil {
		report.fail(scope, StepDistractors, err)
		return
	}
	for _, w := range words {
		if !c.opts.RefreshDistractors {
			has, err := c.distractors.HasSet(ctx, w.ID)
			if err != nil {
				report.fail(scope, StepDistractors, err)
				return
			}
			if has {
				continue
			}
		}
		if _, err := c.distractors.Generate(ctx, w.ID, topicID); err != nil {
			if errors.Is(err, domain.ErrInsufficientData) {
				logger.Debug("no distractors for word", "word_id", w.ID, "topic_id", topicID, "error", err)
				continue
			}
			report.fail(scope, StepDistractors, err)
			return
		}
		report.DistractorSets++
	}

	c.regenerateSessions(ctx, scope, report)
}

func (c *Coordinator) regenerateSessions(ctx context.Context, scope domain.Scope, report *Report) {
	_, err := c.sessions.CreateSessions(ctx, scope, c.opts.SessionCount, c.opts.SessionSize)
	switch {
	case err == nil:
		report.ScopesRegenerated++
		metrics.RegenerationScopes.WithLabelValues(string(scope.Kind), "regenerated").Inc()
	case errors.Is(err, domain.ErrInsufficientData):
		report.ScopesSkipped++
		metrics.RegenerationScopes.WithLabelValues(string(scope.Kind), "skipped").Inc()
		logger.Info("scope too small for sessions", "scope", scope.String(), "error", err)
	default:
		report.fail(scope, StepSessions, err)
	}
}

func (r *Report) fail(scope domain.Scope, step Step, err error) {
	r.Failures = append(r.Failures, ScopeFailure{Kind: scope.Kind, ID: scope.ID, Step: step, Err: err})
	metrics.RegenerationScopes.WithLabelValues(string(scope.Kind), "failed").Inc()
	logger.Error("regeneration step failed", "scope", scope.String(), "step", string(step), "error", err)
}
