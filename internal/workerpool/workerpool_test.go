package workerpool

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeConn is a minimal HalfCloser for tests that never touches the network.
type fakeConn struct {
	closed     bool
	readClosed bool
}

func (f *fakeConn) Close() error     { f.closed = true; return nil }
func (f *fakeConn) CloseRead() error { f.readClosed = true; return nil }

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := New()
	ctx := context.Background()

	c1 := &fakeConn{}
	slot, err := p.Acquire(ctx, c1, 1)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if slot != 0 {
		t.Fatalf("expected slot 0, got %d", slot)
	}
	if got := p.Count(); got != 1 {
		t.Fatalf("expected Count()=1, got %d", got)
	}

	p.Release(slot)
	if got := p.Count(); got != 0 {
		t.Fatalf("expected Count()=0 after Release, got %d", got)
	}
}

func TestAcquireFillsCapacityThenBlocksUntilCancel(t *testing.T) {
	p := New()
	ctx := context.Background()

	for i := 0; i < Capacity; i++ {
		if _, err := p.Acquire(ctx, &fakeConn{}, i); err != nil {
			t.Fatalf("Acquire(%d): %v", i, err)
		}
	}

	blockedCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := p.Acquire(blockedCtx, &fakeConn{}, 99); err == nil {
		t.Fatal("expected Acquire to block and then return an error once ctx is done")
	}
}

func TestSnapshotReturnsAllOccupiedConns(t *testing.T) {
	p := New()
	ctx := context.Background()

	conns := make([]*fakeConn, 3)
	for i := range conns {
		conns[i] = &fakeConn{}
		if _, err := p.Acquire(ctx, conns[i], i); err != nil {
			t.Fatalf("Acquire(%d): %v", i, err)
		}
	}

	snap := p.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries in snapshot, got %d", len(snap))
	}
	for _, hc := range snap {
		if err := hc.CloseRead(); err != nil {
			t.Fatalf("CloseRead: %v", err)
		}
	}
	for i, c := range conns {
		if !c.readClosed {
			t.Fatalf("conn %d: expected CloseRead to have been called", i)
		}
	}
}

// TestTCPConnSatisfiesHalfCloser is a compile-time-ish sanity check that the
// real connection type the acceptor hands out implements HalfCloser.
func TestTCPConnSatisfiesHalfCloser(t *testing.T) {
	var _ HalfCloser = (*net.TCPConn)(nil)
}

// TestAcquireConcurrentRespectsCapacity races many goroutines for the
// Pool's fixed slot table. Spec §4.5 requires "the acceptor only places a
// new worker into an empty slot" to hold even under real contention;
// exercised under `go test -race`, this asserts every successful Acquire
// gets a distinct slot and that at most Capacity callers are ever admitted
// at once.
func TestAcquireConcurrentRespectsCapacity(t *testing.T) {
	p := New()
	ctx := context.Background()
	const contenders = Capacity * 4

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		admitted  int
		seenSlots = make(map[int]bool)
	)

	admitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slot, err := p.Acquire(admitCtx, &fakeConn{}, i)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seenSlots[slot] {
				t.Errorf("slot %d acquired more than once concurrently", slot)
			}
			seenSlots[slot] = true
			admitted++
		}(i)
	}
	wg.Wait()

	if admitted != Capacity {
		t.Fatalf("expected exactly %d concurrent admissions, got %d", Capacity, admitted)
	}
	if got := p.Count(); got != Capacity {
		t.Fatalf("Count() = %d, want %d", got, Capacity)
	}
}

// TestAcquireReleaseConcurrentCycles runs many goroutines repeatedly
// acquiring and releasing slots, verifying the pool settles back to an
// empty table and never reports more than Capacity occupied slots at any
// observed point — the worker table's half of the twin mutual-exclusion
// design (spec §4.5, §9) under sustained concurrent churn.
func TestAcquireReleaseConcurrentCycles(t *testing.T) {
	p := New()
	ctx := context.Background()
	const workers = 20
	const cycles = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for c := 0; c < cycles; c++ {
				slot, err := p.Acquire(ctx, &fakeConn{}, w*cycles+c)
				if err != nil {
					t.Errorf("Acquire: %v", err)
					return
				}
				if got := p.Count(); got < 1 || got > Capacity {
					t.Errorf("Count() mid-cycle = %d, want in [1,%d]", got, Capacity)
				}
				p.Release(slot)
			}
		}(w)
	}
	wg.Wait()

	if got := p.Count(); got != 0 {
		t.Fatalf("Count() after all cycles = %d, want 0", got)
	}
}
