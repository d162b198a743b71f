package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/whaletop/whaletop/internal/topology"
)

// Adapter is the slice of the runtime client the poller needs.
type Adapter interface {
	ListObjects(ctx context.Context) ([]topology.RuntimeObject, error)
}

// Snapshot is one atomically published view of the topology. Readers hold
// it as an immutable value; the poller never mutates a published tree.
type Snapshot struct {
	Tree topology.Forest
	Tick uint64

	// Degraded is set when the last poll failed and Tree is carried over
	// from the previous successful poll.
	Degraded bool
	LastErr  error

	Conflicts []topology.Conflict
	Taken     time.Time
}

// Poller drives the ListObjects -> Classify -> Reconcile pipeline on a
// fixed interval, publishes snapshots by pointer swap, and fans events
// out to subscribers. At most one pass runs at a time; a tick that fires
// while a pass is still outstanding is skipped, never queued.
type Poller struct {
	adapter    Adapter
	classifier *topology.Classifier
	interval   time.Duration
	timeout    time.Duration

	current atomic.Pointer[Snapshot]
	polling atomic.Bool

	mu      sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewPoller creates a poller. interval is the poll period; timeout bounds
// every daemon call so a hung socket can never stall the loop.
func NewPoller(adapter Adapter, classifier *topology.Classifier, interval, timeout time.Duration) *Poller {
	p := &Poller{
		adapter:    adapter,
		classifier: classifier,
		interval:   interval,
		timeout:    timeout,
		subs:       make(map[int]chan Event),
	}
	p.current.Store(&Snapshot{Taken: time.Now()})
	return p
}

// Snapshot returns the current published snapshot. The returned value is
// immutable: it is either the pre- or post-reconciliation tree, never a
// partially merged one.
func (p *Poller) Snapshot() *Snapshot {
	return p.current.Load()
}

// Subscribe registers an event channel with the given buffer size and
// returns it with an unsubscribe function. Events are delivered
// best-effort: a subscriber that stops draining loses events rather than
// stalling reconciliation.
func (p *Poller) Subscribe(buffer int) (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	ch := make(chan Event, buffer)
	p.subs[id] = ch

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Run polls immediately, then on every interval tick until ctx is
// cancelled. It always returns nil after cancellation; poll failures are
// absorbed into degraded snapshots, never returned.
func (p *Poller) Run(ctx context.Context) error {
	p.Poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll executes a single reconciliation pass. Safe to call concurrently
// with Run: an in-flight pass makes this call a no-op.
func (p *Poller) Poll(ctx context.Context) {
	if !p.polling.CompareAndSwap(false, true) {
		return
	}
	defer p.polling.Store(false)

	prev := p.current.Load()

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	objects, err := p.adapter.ListObjects(cctx)
	if err != nil {
		// The daemon is unreachable or the query timed out. Nothing was
		// learned: keep the previous tree untouched (an empty result here
		// must not read as "everything removed") and flag connectivity.
		p.current.Store(&Snapshot{
			Tree:      prev.Tree,
			Tick:      prev.Tick,
			Degraded:  true,
			LastErr:   err,
			Conflicts: prev.Conflicts,
			Taken:     time.Now(),
		})
		return
	}

	tick := prev.Tick + 1
	incoming, conflicts := p.classifier.Classify(objects)

	// Merge into a clone so readers of the previous snapshot are never
	// exposed to a half-merged tree; the finished tree is published by
	// pointer swap.
	merged, events := Reconcile(prev.Tree.Clone(), incoming, tick)

	p.current.Store(&Snapshot{
		Tree:      merged,
		Tick:      tick,
		Conflicts: conflicts,
		Taken:     time.Now(),
	})
	p.broadcast(events)
}

func (p *Poller) broadcast(events []Event) {
	if len(events) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		for _, ev := range events {
			select {
			case ch <- ev:
			default: // subscriber not draining; drop rather than block
			}
		}
	}
}
