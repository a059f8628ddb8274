package vector

import (
	"context"
	"sync"
)

// ChangeKind is the kind of mutation reported by the change feed.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeRemove ChangeKind = "remove"
)

// Change is one index mutation. Record is a copy of the stored record, or
// of the removed record for ChangeRemove. Seq increases by one per mutation
// across the whole index.
type Change struct {
	Seq    uint64     `json:"seq"`
	Kind   ChangeKind `json:"kind"`
	Record Record     `json:"record"`
}

type changeFeed struct {
	mu   sync.Mutex
	seq  uint64
	subs map[*Subscription]struct{}
}

// publish is called with the index write lock held, so changes reach every
// subscriber in mutation order.
func (f *changeFeed) publish(kind ChangeKind, rec Record) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	if len(f.subs) == 0 {
		return
	}
	c := Change{Seq: f.seq, Kind: kind, Record: rec.Clone()}
	for s := range f.subs {
		if s.filter.Match(c.Record.Payload) {
			s.push(c)
		}
	}
}

func (f *changeFeed) add(s *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[*Subscription]struct{})
	}
	f.subs[s] = struct{}{}
}

func (f *changeFeed) remove(s *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, s)
}

// Subscription streams index changes. Queued changes are unbounded, so a
// slow reader never blocks writers.
type Subscription struct {
	feed   *changeFeed
	filter Filter
	out    chan Change
	done   chan struct{}
	stop   func() bool

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Change
	closed   bool
	stopped  bool
	stopOnce sync.Once
}

// Subscribe starts a change feed for mutations whose payload passes filter
// (nil means all). Cancelling ctx ends the feed and discards undelivered
// changes; Close ends it after delivering them.
func (i *Index) Subscribe(ctx context.Context, filter Filter) *Subscription {
	s := &Subscription{
		feed:   &i.feed,
		filter: filter,
		out:    make(chan Change),
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	i.feed.add(s)
	s.stop = context.AfterFunc(ctx, s.cancel)
	go s.run()
	return s
}

// Changes returns the channel of changes. It is closed when the feed ends.
func (s *Subscription) Changes() <-chan Change { return s.out }

// Close stops receiving new changes. Changes already queued are still
// delivered before the channel closes.
func (s *Subscription) Close() {
	s.feed.remove(s)
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Subscription) cancel() {
	s.feed.remove(s)
	s.stopOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Subscription) push(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.stopped {
		return
	}
	s.queue = append(s.queue, c)
	s.cond.Signal()
}

func (s *Subscription) run() {
	defer close(s.out)
	defer s.stop()

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped || len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		c := s.queue[0]
		s.queue[0] = Change{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- c:
		case <-s.done:
			return
		}
	}
}
