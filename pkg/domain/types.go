package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Word is the read model of a word record owned by the external store.
type Word struct {
	ID          int64
	TopicID     int64
	Ordinal     int
	Difficulty  int
	Text        string
	Translation string
	Photo       string
	Note        string
}

// ScopeKind selects the collection a battle session belongs to.
type ScopeKind string

const (
	ScopeTopic ScopeKind = "topic"
	ScopeBook  ScopeKind = "book"
	// ScopeAdHoc marks battles played outside a precomputed session.
	ScopeAdHoc ScopeKind = "adhoc"
)

func ParseScopeKind(value string) (ScopeKind, error) {
	switch ScopeKind(strings.ToLower(strings.TrimSpace(value))) {
	case ScopeTopic:
		return ScopeTopic, nil
	case ScopeBook:
		return ScopeBook, nil
	case ScopeAdHoc:
		return ScopeAdHoc, nil
	default:
		return "", fmt.Errorf("scope kind %q: %w", value, ErrInvalidInput)
	}
}

// Scope is a topic or a book, the unit sessions are generated over.
type Scope struct {
	Kind ScopeKind
	ID   int64
}

func TopicScope(id int64) Scope { return Scope{Kind: ScopeTopic, ID: id} }

func BookScope(id int64) Scope { return Scope{Kind: ScopeBook, ID: id} }

func (s Scope) String() string {
	return string(s.Kind) + ":" + strconv.FormatInt(s.ID, 10)
}

// Validate accepts only the two session-bearing kinds.
func (s Scope) Validate() error {
	if s.Kind != ScopeTopic && s.Kind != ScopeBook {
		return fmt.Errorf("scope %s: unsupported kind: %w", s, ErrInvalidInput)
	}
	if s.ID <= 0 {
		return fmt.Errorf("scope %s: id must be positive: %w", s, ErrInvalidInput)
	}
	return nil
}

// SessionRef points at one precomputed session, or at none for ad-hoc play.
type SessionRef struct {
	Kind    ScopeKind
	ScopeID int64
	Number  int
}

func AdHocSession() SessionRef { return SessionRef{Kind: ScopeAdHoc} }

func (r SessionRef) Scope() Scope { return Scope{Kind: r.Kind, ID: r.ScopeID} }

func (r SessionRef) IsAdHoc() bool { return r.Kind == ScopeAdHoc }

func (r SessionRef) Validate() error {
	if r.IsAdHoc() {
		return nil
	}
	if err := r.Scope().Validate(); err != nil {
		return err
	}
	if r.Number < 1 {
		return fmt.Errorf("session number %d: %w", r.Number, ErrInvalidInput)
	}
	return nil
}

// Session is one precomputed battle round.
type Session struct {
	Scope   Scope
	Number  int
	WordIDs []int64
}

func (s Session) Ref() SessionRef {
	return SessionRef{Kind: s.Scope.Kind, ScopeID: s.Scope.ID, Number: s.Number}
}
