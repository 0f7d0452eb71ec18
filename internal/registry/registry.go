// Package registry implements the process-wide set of currently logged-in
// usernames (spec §3, §4.4): a fixed-capacity slot table enforcing
// single-login, serialized by a bounded-retry acquisition policy rather
// than a plain blocking mutex.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Capacity is BACKLOG from spec §3: at most this many concurrently
// logged-in sessions process-wide.
const Capacity = 10

// Bounded acquisition policy constants (spec §4.4).
const (
	MaxAcquireRetry = 3
	AcquireTimeout  = 10 * time.Second
)

// Errors returned by TryAdd. Neither is fatal to the process; the session
// package answers either one with ERROR and closes that session.
var (
	ErrAlreadyLoggedIn = errors.New("registry: user already logged in")
	ErrFull            = errors.New("registry: registry at capacity")
)

// Registry holds the fixed-capacity table of logged-in usernames. The zero
// value is not usable; construct with New.
type Registry struct {
	sem   *semaphore.Weighted
	mu    sync.Mutex // guards slots; TryAdd/Remove take it while holding sem, Count takes it alone
	slots [Capacity]string

	// onExhausted is invoked if the bounded acquisition policy is
	// exhausted: per spec §4.4 this is a process-level invariant
	// violation. Defaults to logging and terminating the process.
	// Overridable so tests can assert on exhaustion without killing the
	// test binary.
	onExhausted func(err error)
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		sem: semaphore.NewWeighted(1),
		onExhausted: func(err error) {
			slog.Default().Error("registry: acquisition retries exhausted, terminating", "error", err)
			os.Exit(1)
		},
	}
}

// SetOnExhausted overrides the process-termination hook used when the
// bounded acquisition policy is exhausted. Intended for tests.
func (r *Registry) SetOnExhausted(f func(err error)) {
	r.onExhausted = f
}

// acquire implements the bounded acquisition policy: try at most
// MaxAcquireRetry times, each bounded by AcquireTimeout. Exhausting every
// attempt is a process-level invariant violation (spec §4.4) — the design
// relies on this never happening below capacity load.
func (r *Registry) acquire(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < MaxAcquireRetry; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, AcquireTimeout)
		err := r.sem.Acquire(attemptCtx, 1)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	err := fmt.Errorf("registry: failed to acquire lock after %d attempts: %w", MaxAcquireRetry, lastErr)
	r.onExhausted(err)
	return err
}

// TryAdd attempts to register username as logged in. It enforces
// single-login by linear scan under the lock and assigns the lowest free
// slot. Returns ErrAlreadyLoggedIn or ErrFull on failure.
func (r *Registry) TryAdd(ctx context.Context, username string) (int, error) {
	if err := r.acquire(ctx); err != nil {
		return -1, err
	}
	defer r.sem.Release(1)

	r.mu.Lock()
	defer r.mu.Unlock()

	freeSlot := -1
	for i, occupant := range r.slots {
		if occupant == username {
			return -1, ErrAlreadyLoggedIn
		}
		if occupant == "" && freeSlot == -1 {
			freeSlot = i
		}
	}
	if freeSlot == -1 {
		return -1, ErrFull
	}
	r.slots[freeSlot] = username
	return freeSlot, nil
}

// Remove frees slot, making it available for reuse. Removing an
// already-empty slot is a no-op.
func (r *Registry) Remove(ctx context.Context, slot int) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.sem.Release(1)

	r.mu.Lock()
	defer r.mu.Unlock()

	if slot < 0 || slot >= Capacity {
		return fmt.Errorf("registry: slot %d out of range", slot)
	}
	r.slots[slot] = ""
	return nil
}

// Count returns the number of occupied slots. Intended for admission
// control and metrics; does not itself go through the bounded acquisition
// policy since an approximate read is acceptable for those callers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, occupant := range r.slots {
		if occupant != "" {
			n++
		}
	}
	return n
}
