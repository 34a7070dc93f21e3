package infer

import (
	"sync"

	"github.com/giuseppesec/gqlmap/schema"
)

// entry is one unit of frontier work: a discovered type together with the
// operation kind and confirmed field path that reaches it, so probes against
// it can be nested inside a valid query.
type entry struct {
	TypeName string
	Op       schema.OperationType
	// Path is the confirmed field chain from the root to a field returning
	// this type. Empty for root types.
	Path []string
}

// frontier is the queue of types awaiting field discovery. A type is
// dispatched at most once, whole: the worker that pops it owns all writes
// for it until Done. Pop blocks until work arrives or the frontier drains,
// which happens when the queue is empty and nothing is in flight.
type frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []entry
	seen     map[string]bool
	inflight int
	closed   bool
}

func newFrontier() *frontier {
	f := &frontier{seen: map[string]bool{}}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push enqueues a type unless it was already dispatched or queued. Reports
// whether the entry was accepted.
func (f *frontier) Push(e entry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.seen[e.TypeName] {
		return false
	}
	f.seen[e.TypeName] = true
	f.queue = append(f.queue, e)
	f.cond.Broadcast()
	return true
}

// Pop blocks until an entry is available. The false return means the
// frontier has drained or was closed; the worker should exit.
func (f *frontier) Pop() (entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if len(f.queue) > 0 {
			e := f.queue[0]
			f.queue = f.queue[1:]
			f.inflight++
			return e, true
		}
		if f.closed || f.inflight == 0 {
			return entry{}, false
		}
		f.cond.Wait()
	}
}

// Done marks a popped entry finished. When the last in-flight entry finishes
// against an empty queue, all blocked workers are released.
func (f *frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
	if f.inflight == 0 && len(f.queue) == 0 {
		f.cond.Broadcast()
	}
}

// Close drains the frontier early: queued entries are dropped and blocked
// workers are released. Used on budget exhaustion and cancellation.
func (f *frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.queue = nil
	f.cond.Broadcast()
}

// Dispatched reports whether the type was ever queued.
func (f *frontier) Dispatched(typeName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[typeName]
}
