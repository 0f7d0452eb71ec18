package server

import "sync/atomic"

// ActiveSessionGate enforces the acceptor's admission-control cap (spec
// §4.7, §7 "registry saturation"): at most Capacity sessions may be active
// at once, and the 11th concurrent connection must be accepted at the OS
// level and then closed immediately rather than queued behind the listen
// backlog (spec §8, scenario 6; spec §9's "accept then immediately close"
// note). It is a plain atomic counter rather than a pass through the
// registry's or worker table's locks, so the accept loop's hot path never
// contends with a worker mid-login or with a shutdown snapshot.
type ActiveSessionGate struct {
	capacity    int64
	active      atomic.Int64
	onSaturated func()
}

// NewActiveSessionGate creates a gate admitting at most capacity concurrent
// sessions. onSaturated, if non-nil, is invoked every time Admit rejects a
// connection because the cap is already reached — pgmd wires this straight
// to metrics.Collector.RegistrySaturated so the acceptor doesn't have to
// duplicate that bookkeeping at every call site.
func NewActiveSessionGate(capacity int, onSaturated func()) *ActiveSessionGate {
	return &ActiveSessionGate{capacity: int64(capacity), onSaturated: onSaturated}
}

// Admit attempts to claim one of the capacity slots for a newly accepted
// connection. It reports false once the cap is reached, at which point
// spec §4.7/§7 require the acceptor to close the connection immediately
// instead of admitting it.
func (g *ActiveSessionGate) Admit() bool {
	for {
		cur := g.active.Load()
		if cur >= g.capacity {
			if g.onSaturated != nil {
				g.onSaturated()
			}
			return false
		}
		if g.active.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release frees the slot held by a session that has ended.
func (g *ActiveSessionGate) Release() {
	g.active.Add(-1)
}

// Count returns the number of sessions currently admitted.
func (g *ActiveSessionGate) Count() int64 {
	return g.active.Load()
}
