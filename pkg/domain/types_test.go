package domain

import (
	"errors"
	"math/rand"
	"testing"
)

func TestScopeValidate(t *testing.T) {
	if err := TopicScope(3).Validate(); err != nil {
		t.Fatalf("expected topic scope to be valid: %v", err)
	}
	if err := BookScope(0).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero id, got %v", err)
	}
	if err := (Scope{Kind: ScopeAdHoc, ID: 1}).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ad-hoc scope to be rejected, got %v", err)
	}
}

func TestSessionRefValidate(t *testing.T) {
	if err := AdHocSession().Validate(); err != nil {
		t.Fatalf("ad-hoc ref should validate: %v", err)
	}
	ref := SessionRef{Kind: ScopeTopic, ScopeID: 1, Number: 0}
	if err := ref.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for session number 0, got %v", err)
	}
}

func TestParseScopeKind(t *testing.T) {
	kind, err := ParseScopeKind(" Book ")
	if err != nil || kind != ScopeBook {
		t.Fatalf("expected book kind, got %q err=%v", kind, err)
	}
	if _, err := ParseScopeKind("chapter"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAlreadyClaimedIsConflict(t *testing.T) {
	if !errors.Is(ErrAlreadyClaimed, ErrConflict) {
		t.Fatalf("expected ErrAlreadyClaimed to match ErrConflict")
	}
}

func TestSampleDistinct(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	items := []int{1, 2, 3, 4, 5, 6}
	got := Sample[int](rng, items, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 items, got %d", len(got))
	}
	seen := make(map[int]bool)
	for _, v := range got {
		if seen[v] {
			t.Fatalf("duplicate item %d in sample %v", v, got)
		}
		seen[v] = true
	}
	if Sample[int](rng, items, 7) != nil {
		t.Fatalf("expected nil when sample exceeds population")
	}
}
