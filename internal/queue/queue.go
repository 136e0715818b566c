package queue

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Sender delivers one item to the ledger. Implemented by the ledger client;
// a retryable failure keeps the item queued, a permanent one fails it.
type Sender interface {
	Send(ctx context.Context, item Item) error
	Retryable(err error) bool
}

// Options tune delivery behavior.
type Options struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	DrainInterval time.Duration
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 5 * time.Minute
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = 3 * time.Second
	}
	return opts
}

// Queue is the durable outbound queue of decided attendance actions.
// Delivery is oldest-first with per-employee FIFO lanes: an undeliverable
// item blocks later items of the same employee (a clock-out must never
// overtake its clock-in) but not items of other employees.
type Queue struct {
	storage Storage
	sender  Sender
	opts    Options
	now     func() time.Time // injected for tests

	items  []Item
	seq    uint64
	online bool
	kick   chan struct{}
	mu     sync.Mutex
}

// New creates a queue, loading any items persisted by a previous run.
func New(storage Storage, sender Sender, opts Options) (*Queue, error) {
	items, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("loading persisted queue: %w", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })

	var maxSeq uint64
	for _, it := range items {
		if it.Seq > maxSeq {
			maxSeq = it.Seq
		}
	}

	return &Queue{
		storage: storage,
		sender:  sender,
		opts:    opts.withDefaults(),
		now:     time.Now,
		items:   items,
		seq:     maxSeq,
		online:  true,
		kick:    make(chan struct{}, 1),
	}, nil
}

// Enqueue persists a decided action for delivery. The item's idempotency
// key must already be set; it stays stable across every retry.
func (q *Queue) Enqueue(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	item.Seq = q.seq
	item.EnqueuedAt = q.now()
	item.NextRetryAt = item.EnqueuedAt
	q.items = append(q.items, item)

	if err := q.persistLocked(); err != nil {
		// The item stays in memory even if the disk write failed; losing
		// durability is better than losing the decision.
		log.Printf("queue: failed to persist after enqueue: %v", err)
	}

	q.kickLocked()
	return nil
}

// SetOnline flips the connectivity signal. Going online triggers an
// immediate drain.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	wasOffline := !q.online
	q.online = online
	if online && wasOffline {
		q.kickLocked()
	}
}

// Online reports the last connectivity signal.
func (q *Queue) Online() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

// Kick requests an immediate drain pass.
func (q *Queue) Kick() {
	q.mu.Lock()
	q.kickLocked()
	q.mu.Unlock()
}

func (q *Queue) kickLocked() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// Depth returns the number of items still awaiting delivery.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		if !it.Failed {
			n++
		}
	}
	return n
}

// Items returns a snapshot of all queued items, failed ones included.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

// FailedItems returns the items that exhausted their attempts and need
// operator attention.
func (q *Queue) FailedItems() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Item
	for _, it := range q.items {
		if it.Failed {
			out = append(out, it)
		}
	}
	return out
}

// RetryFailed puts permanently failed items back into rotation after an
// operator resolved the underlying problem.
func (q *Queue) RetryFailed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for i := range q.items {
		if q.items[i].Failed {
			q.items[i].Failed = false
			q.items[i].AttemptCount = 0
			q.items[i].NextRetryAt = q.now()
			n++
		}
	}
	if n > 0 {
		if err := q.persistLocked(); err != nil {
			log.Printf("queue: failed to persist after retry reset: %v", err)
		}
		q.kickLocked()
	}
	return n
}

// Run drains the queue until the context is cancelled. Safe to run as a
// single background goroutine; delivery never blocks the caller of Enqueue.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.opts.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-q.kick:
		}
		q.Drain(ctx)
	}
}

// Drain attempts delivery of every due item, oldest first, honoring
// per-employee ordering. Returns the number of items delivered.
func (q *Queue) Drain(ctx context.Context) int {
	q.mu.Lock()
	if !q.online {
		q.mu.Unlock()
		return 0
	}
	pending := make([]Item, len(q.items))
	copy(pending, q.items)
	q.mu.Unlock()

	delivered := 0
	blocked := make(map[string]bool) // employee lanes stalled this pass

	for _, item := range pending {
		if ctx.Err() != nil {
			break
		}
		if item.Failed || blocked[item.EmployeeID] {
			// A failed head also blocks its lane: later events of that
			// employee must not overtake it.
			if item.Failed {
				blocked[item.EmployeeID] = true
			}
			continue
		}
		if q.now().Before(item.NextRetryAt) {
			blocked[item.EmployeeID] = true
			continue
		}

		err := q.sender.Send(ctx, item)
		if err == nil {
			q.remove(item.Seq)
			delivered++
			continue
		}

		blocked[item.EmployeeID] = true
		q.recordFailure(item.Seq, err)
	}

	return delivered
}

// remove deletes a delivered item and persists.
func (q *Queue) remove(seq uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.Seq == seq {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	if err := q.persistLocked(); err != nil {
		log.Printf("queue: failed to persist after delivery: %v", err)
	}
}

// recordFailure bumps the attempt counter, schedules the next retry with
// exponential backoff, and marks the item failed once attempts run out or
// the error is permanent.
func (q *Queue) recordFailure(seq uint64, sendErr error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].Seq != seq {
			continue
		}
		it := &q.items[i]
		it.AttemptCount++
		it.LastError = sendErr.Error()

		if !q.sender.Retryable(sendErr) || it.AttemptCount >= q.opts.MaxAttempts {
			it.Failed = true
			log.Printf("queue: item %s permanently failed after %d attempts: %v",
				it.IdempotencyKey, it.AttemptCount, sendErr)
		} else {
			backoff := q.opts.BackoffBase << (it.AttemptCount - 1)
			if backoff > q.opts.BackoffCap || backoff <= 0 {
				backoff = q.opts.BackoffCap
			}
			it.NextRetryAt = q.now().Add(backoff)
		}
		break
	}

	if err := q.persistLocked(); err != nil {
		log.Printf("queue: failed to persist after failure: %v", err)
	}
}

func (q *Queue) persistLocked() error {
	items := make([]Item, len(q.items))
	copy(items, q.items)
	return q.storage.Save(items)
}
