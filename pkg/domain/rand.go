package domain

import (
	"math/rand"
	"sync"
	"time"
)

// Rand is the randomness source injected into generators. *rand.Rand
// satisfies it; tests substitute a seeded or scripted source.
type Rand interface {
	Intn(n int) int
	Perm(n int) []int
	Shuffle(n int, swap func(i, j int))
}

// LockedRand serializes access to a *rand.Rand so it can be shared.
type LockedRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

func NewLockedRand(seed int64) *LockedRand {
	return &LockedRand{src: rand.New(rand.NewSource(seed))}
}

func NewTimeSeededRand() *LockedRand {
	return NewLockedRand(time.Now().UnixNano())
}

func (r *LockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Intn(n)
}

func (r *LockedRand) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Perm(n)
}

func (r *LockedRand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.src.Shuffle(n, swap)
}

// Sample draws k distinct elements of items uniformly without replacement.
// It returns nil when k exceeds len(items).
func Sample[T any](rng Rand, items []T, k int) []T {
	if k < 0 || k > len(items) {
		return nil
	}
	perm := rng.Perm(len(items))
	out := make([]T, 0, k)
	for _, idx := range perm[:k] {
		out = append(out, items[idx])
	}
	return out
}
