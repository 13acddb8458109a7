package session

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/smith3v/vocab-battle/pkg/catalog"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/internal/testutil"
	"gorm.io/gorm"
)

// scriptedRand returns Intn results from a fixed list and delegates the rest.
type scriptedRand struct {
	*rand.Rand
	picks []int
}

func (r *scriptedRand) Intn(n int) int {
	if len(r.picks) == 0 {
		return 0
	}
	v := r.picks[0] % n
	r.picks = r.picks[1:]
	return v
}

func newTestGenerator(t *testing.T, rng domain.Rand) (*Generator, *gorm.DB) {
	t.Helper()
	gdb := testutil.SetupTestDB(t)
	if rng == nil {
		rng = rand.New(rand.NewSource(7))
	}
	return NewGenerator(gdb, catalog.NewGormStore(gdb), rng), gdb
}

func assertDistinctFromPool(t *testing.T, s domain.Session, size int, pool map[int64]bool) {
	t.Helper()
	if len(s.WordIDs) != size {
		t.Fatalf("session %d: expected %d words, got %d", s.Number, size, len(s.WordIDs))
	}
	seen := make(map[int64]bool)
	for _, id := range s.WordIDs {
		if !pool[id] {
			t.Fatalf("session %d: word %d is not in the pool", s.Number, id)
		}
		if seen[id] {
			t.Fatalf("session %d: duplicate word %d", s.Number, id)
		}
		seen[id] = true
	}
}

func TestCreateSessionsForTopic(t *testing.T) {
	gen, gdb := newTestGenerator(t, nil)
	ctx := context.Background()
	book := testutil.SeedBook(t, gdb, "Book")
	topic, words := testutil.SeedTopic(t, gdb, book.ID, "t", 0, 25)
	pool := make(map[int64]bool)
	for _, w := range words {
		pool[w.ID] = true
	}

	sessions, err := gen.CreateSessions(ctx, domain.TopicScope(topic.ID), 0, 0)
	if err != nil {
		t.Fatalf("CreateSessions returned error: %v", err)
	}
	if len(sessions) != DefaultCount {
		t.Fatalf("expected %d sessions, got %d", DefaultCount, len(sessions))
	}
	for i, s := range sessions {
		if s.Number != i+1 {
			t.Fatalf("expected session number %d, got %d", i+1, s.Number)
		}
		assertDistinctFromPool(t, s, DefaultSize, pool)
	}

	stored, err := gen.GetSession(ctx, domain.TopicScope(topic.ID), 3)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	for i, id := range sessions[2].WordIDs {
		if stored.WordIDs[i] != id {
			t.Fatalf("stored session differs at %d: %v vs %v", i, stored.WordIDs, sessions[2].WordIDs)
		}
	}
}

func TestCreateSessionsForBookDrawsAcrossTopics(t *testing.T) {
	gen, gdb := newTestGenerator(t, nil)
	ctx := context.Background()
	book := testutil.SeedBook(t, gdb, "Book")
	_, first := testutil.SeedTopic(t, gdb, book.ID, "a", 0, 6)
	_, second := testutil.SeedTopic(t, gdb, book.ID, "b", 1, 6)
	pool := make(map[int64]bool)
	for _, w := range append(first, second...) {
		pool[w.ID] = true
	}

	sessions, err := gen.CreateSessions(ctx, domain.BookScope(book.ID), 5, 12)
	if err != nil {
		t.Fatalf("CreateSessions returned error: %v", err)
	}
	for _, s := range sessions {
		assertDistinctFromPool(t, s, 12, pool)
	}

	if _, err := gen.GetSession(ctx, domain.TopicScope(book.ID), 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("book sessions must not be visible as topic sessions, got %v", err)
	}
}

func TestCreateSessionsInsufficientPool(t *testing.T) {
	gen, gdb := newTestGenerator(t, nil)
	ctx := context.Background()
	book := testutil.SeedBook(t, gdb, "Book")
	topic, _ := testutil.SeedTopic(t, gdb, book.ID, "t", 0, 9)

	if _, err := gen.CreateSessions(ctx, domain.TopicScope(topic.ID), 10, 10); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData for 9-word topic, got %v", err)
	}
	if state, _ := gen.State(ctx, domain.TopicScope(topic.ID)); state != StateUninitialized {
		t.Fatalf("expected failed generation to leave state uninitialized, got %s", state)
	}
	if _, err := gen.CreateSessions(ctx, domain.TopicScope(topic.ID), 10, 9); err != nil {
		t.Fatalf("expected a 9-word pool to fit sessions of 9, got %v", err)
	}
}

func TestCreateSessionsErrors(t *testing.T) {
	gen, _ := newTestGenerator(t, nil)
	ctx := context.Background()

	if _, err := gen.CreateSessions(ctx, domain.TopicScope(404), 1, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing topic, got %v", err)
	}
	if _, err := gen.CreateSessions(ctx, domain.BookScope(404), 1, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing book, got %v", err)
	}
	if _, err := gen.CreateSessions(ctx, domain.Scope{Kind: "chapter", ID: 1}, 1, 1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown kind, got %v", err)
	}
}

func TestRegenerationReplacesSessions(t *testing.T) {
	gen, gdb := newTestGenerator(t, nil)
	ctx := context.Background()
	book := testutil.SeedBook(t, gdb, "Book")
	topic, _ := testutil.SeedTopic(t, gdb, book.ID, "t", 0, 20)
	scope := domain.TopicScope(topic.ID)

	if _, err := gen.CreateSessions(ctx, scope, 10, 10); err != nil {
		t.Fatalf("first generation failed: %v", err)
	}
	if _, err := gen.CreateSessions(ctx, scope, 4, 10); err != nil {
		t.Fatalf("second generation failed: %v", err)
	}

	numbers, err := gen.SessionNumbers(ctx, scope)
	if err != nil {
		t.Fatalf("SessionNumbers returned error: %v", err)
	}
	if len(numbers) != 4 || numbers[3] != 4 {
		t.Fatalf("expected sessions 1..4, got %v", numbers)
	}
	if _, err := gen.GetSession(ctx, scope, 5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected session 5 to be unreachable, got %v", err)
	}

	var count int64
	if err := gdb.Model(&db.TopicBattleSession{}).Where("topic_id = ?", topic.ID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count sessions: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 stored sessions, got %d", count)
	}
}

func TestGetRandomSession(t *testing.T) {
	rng := &scriptedRand{Rand: rand.New(rand.NewSource(1)), picks: []int{2, 0}}
	gen, gdb := newTestGenerator(t, rng)
	ctx := context.Background()
	book := testutil.SeedBook(t, gdb, "Book")
	topic, _ := testutil.SeedTopic(t, gdb, book.ID, "t", 0, 10)
	scope := domain.TopicScope(topic.ID)

	if _, err := gen.GetRandomSession(ctx, scope); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no sessions, got %v", err)
	}
	if _, err := gen.CreateSessions(ctx, scope, 3, 10); err != nil {
		t.Fatalf("CreateSessions returned error: %v", err)
	}

	s, err := gen.GetRandomSession(ctx, scope)
	if err != nil {
		t.Fatalf("GetRandomSession returned error: %v", err)
	}
	if s.Number != 3 {
		t.Fatalf("expected scripted pick of session 3, got %d", s.Number)
	}
	s, err = gen.GetRandomSession(ctx, scope)
	if err != nil || s.Number != 1 {
		t.Fatalf("expected scripted pick of session 1, got %d err=%v", s.Number, err)
	}
}

func TestResolveWordsDropsDeletedWords(t *testing.T) {
	gen, gdb := newTestGenerator(t, nil)
	ctx := context.Background()
	book := testutil.SeedBook(t, gdb, "Book")
	topic, _ := testutil.SeedTopic(t, gdb, book.ID, "t", 0, 10)
	scope := domain.TopicScope(topic.ID)

	if _, err := gen.CreateSessions(ctx, scope, 1, 10); err != nil {
		t.Fatalf("CreateSessions returned error: %v", err)
	}
	s, err := gen.GetSession(ctx, scope, 1)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	deleted := s.WordIDs[4]
	if err := gdb.Delete(&db.Word{}, deleted).Error; err != nil {
		t.Fatalf("failed to delete word: %v", err)
	}

	words, err := gen.ResolveWords(ctx, s)
	if err != nil {
		t.Fatalf("ResolveWords returned error: %v", err)
	}
	if len(words) != len(s.WordIDs)-1 {
		t.Fatalf("expected %d live words, got %d", len(s.WordIDs)-1, len(words))
	}
	for _, w := range words {
		if w.ID == deleted {
			t.Fatalf("deleted word %d resolved", deleted)
		}
	}
}

func TestStateMachine(t *testing.T) {
	gen, gdb := newTestGenerator(t, nil)
	ctx := context.Background()
	book := testutil.SeedBook(t, gdb, "Book")
	topic, _ := testutil.SeedTopic(t, gdb, book.ID, "t", 0, 10)
	scope := domain.TopicScope(topic.ID)

	expect := func(want State) {
		t.Helper()
		got, err := gen.State(ctx, scope)
		if err != nil {
			t.Fatalf("State returned error: %v", err)
		}
		if got != want {
			t.Fatalf("expected state %s, got %s", want, got)
		}
	}

	expect(StateUninitialized)
	if state, err := gen.MarkStale(ctx, scope); err != nil || state != StateUninitialized {
		t.Fatalf("expected MarkStale to keep uninitialized, got %s err=%v", state, err)
	}
	if _, err := gen.CreateSessions(ctx, scope, 1, 10); err != nil {
		t.Fatalf("CreateSessions returned error: %v", err)
	}
	expect(StateGenerated)
	if _, err := gen.MarkStale(ctx, scope); err != nil {
		t.Fatalf("MarkStale returned error: %v", err)
	}
	expect(StateStale)
	if _, err := gen.CreateSessions(ctx, scope, 1, 10); err != nil {
		t.Fatalf("CreateSessions returned error: %v", err)
	}
	expect(StateRegenerated)
}

func TestSessionExists(t *testing.T) {
	gen, gdb := newTestGenerator(t, nil)
	ctx := context.Background()
	book := testutil.SeedBook(t, gdb, "Book")
	topic, _ := testutil.SeedTopic(t, gdb, book.ID, "t", 0, 10)

	if _, err := gen.CreateSessions(ctx, domain.TopicScope(topic.ID), 2, 10); err != nil {
		t.Fatalf("CreateSessions returned error: %v", err)
	}
	tests := []struct {
		name string
		ref  domain.SessionRef
		want bool
	}{
		{"existing", domain.SessionRef{Kind: domain.ScopeTopic, ScopeID: topic.ID, Number: 2}, true},
		{"beyond count", domain.SessionRef{Kind: domain.ScopeTopic, ScopeID: topic.ID, Number: 3}, false},
		{"book", domain.SessionRef{Kind: domain.ScopeBook, ScopeID: book.ID, Number: 1}, false},
		{"adhoc", domain.AdHocSession(), true},
	}
	for _, tc := range tests {
		got, err := gen.SessionExists(ctx, tc.ref)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
