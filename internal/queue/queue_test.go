package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
	"github.com/kozaktomas/attendance-kiosk/internal/ledger"
)

// fakeSender records deliveries and fails keys on demand.
type fakeSender struct {
	failKeys  map[string]error // errors to return per idempotency key
	permanent map[string]bool  // keys whose errors are not retryable
	delivered []string
	mu        sync.Mutex
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		failKeys:  make(map[string]error),
		permanent: make(map[string]bool),
	}
}

func (s *fakeSender) Send(ctx context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failKeys[item.IdempotencyKey]; ok {
		return err
	}
	s.delivered = append(s.delivered, item.IdempotencyKey)
	return nil
}

func (s *fakeSender) Retryable(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.failKeys {
		if errors.Is(err, e) {
			return !s.permanent[key]
		}
	}
	return true
}

func (s *fakeSender) deliveredKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.delivered))
	copy(out, s.delivered)
	return out
}

func newTestQueue(t *testing.T, sender Sender) *Queue {
	t.Helper()
	q, err := New(NewMemoryStorage(), sender, Options{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	return q
}

func testItem(key, employeeID string, action attendance.ActionType) Item {
	return Item{
		IdempotencyKey: key,
		EmployeeID:     employeeID,
		Request: ledger.ProcessRequest{
			EmployeeID: employeeID,
			ActionType: action,
		},
	}
}

func TestQueue_DeliversInOrder(t *testing.T) {
	sender := newFakeSender()
	q := newTestQueue(t, sender)

	q.Enqueue(testItem("k1", "emp-a", attendance.ActionClockIn))
	q.Enqueue(testItem("k2", "emp-a", attendance.ActionClockOut))

	q.Drain(context.Background())

	got := sender.deliveredKeys()
	if len(got) != 2 || got[0] != "k1" || got[1] != "k2" {
		t.Fatalf("expected delivery [k1 k2], got %v", got)
	}
	if q.Depth() != 0 {
		t.Errorf("expected empty queue, depth %d", q.Depth())
	}
}

func TestQueue_PerEmployeeOrderingUnderFailure(t *testing.T) {
	// emp-a's clock_in fails: their clock_out must NOT be delivered, but
	// emp-b's event is independent and goes through.
	sender := newFakeSender()
	sender.failKeys["a-in"] = errors.New("ledger down")

	q := newTestQueue(t, sender)
	q.Enqueue(testItem("a-in", "emp-a", attendance.ActionClockIn))
	q.Enqueue(testItem("a-out", "emp-a", attendance.ActionClockOut))
	q.Enqueue(testItem("b-in", "emp-b", attendance.ActionClockIn))

	q.Drain(context.Background())

	got := sender.deliveredKeys()
	if len(got) != 1 || got[0] != "b-in" {
		t.Fatalf("expected only [b-in] delivered, got %v", got)
	}

	// Ledger recovers; backoff elapsed.
	sender.mu.Lock()
	delete(sender.failKeys, "a-in")
	sender.mu.Unlock()
	q.now = func() time.Time { return time.Now().Add(time.Hour) }

	q.Drain(context.Background())

	got = sender.deliveredKeys()
	want := []string{"b-in", "a-in", "a-out"}
	if len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected delivery order %v, got %v", want, got)
		}
	}
}

func TestQueue_IdempotencyKeyStableAcrossRetries(t *testing.T) {
	failure := errors.New("timeout")
	sender := newFakeSender()
	sender.failKeys["k1"] = failure

	q := newTestQueue(t, sender)
	q.Enqueue(testItem("k1", "emp-a", attendance.ActionClockIn))

	q.Drain(context.Background())
	q.now = func() time.Time { return time.Now().Add(time.Hour) }
	q.Drain(context.Background())

	items := q.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 item still queued, got %d", len(items))
	}
	if items[0].IdempotencyKey != "k1" {
		t.Errorf("idempotency key changed across retries: %s", items[0].IdempotencyKey)
	}
	if items[0].AttemptCount != 2 {
		t.Errorf("expected 2 attempts, got %d", items[0].AttemptCount)
	}
}

func TestQueue_BackoffDelaysRetry(t *testing.T) {
	sender := newFakeSender()
	sender.failKeys["k1"] = errors.New("down")

	q := newTestQueue(t, sender)
	q.Enqueue(testItem("k1", "emp-a", attendance.ActionClockIn))

	q.Drain(context.Background())

	// Immediately draining again must not attempt the item.
	q.Drain(context.Background())

	items := q.Items()
	if items[0].AttemptCount != 1 {
		t.Errorf("expected 1 attempt before backoff elapses, got %d", items[0].AttemptCount)
	}
}

func TestQueue_MaxAttemptsMarksFailed(t *testing.T) {
	sender := newFakeSender()
	sender.failKeys["k1"] = errors.New("down")

	q := newTestQueue(t, sender)
	q.Enqueue(testItem("k1", "emp-a", attendance.ActionClockIn))

	for i := 0; i < 5; i++ {
		q.now = func() time.Time { return time.Now().Add(time.Duration(i+1) * time.Hour) }
		q.Drain(context.Background())
	}

	failed := q.FailedItems()
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed item, got %d", len(failed))
	}
	if failed[0].AttemptCount != 3 {
		t.Errorf("expected exactly MaxAttempts=3 attempts, got %d", failed[0].AttemptCount)
	}
	if q.Depth() != 0 {
		t.Errorf("failed items must not count toward depth, got %d", q.Depth())
	}
}

func TestQueue_PermanentErrorFailsImmediately(t *testing.T) {
	sender := newFakeSender()
	sender.failKeys["k1"] = errors.New("bad request")
	sender.permanent["k1"] = true

	q := newTestQueue(t, sender)
	q.Enqueue(testItem("k1", "emp-a", attendance.ActionClockIn))

	q.Drain(context.Background())

	failed := q.FailedItems()
	if len(failed) != 1 {
		t.Fatalf("expected immediate permanent failure, got %d failed", len(failed))
	}
	if failed[0].AttemptCount != 1 {
		t.Errorf("expected 1 attempt, got %d", failed[0].AttemptCount)
	}
}

func TestQueue_RetryFailedResetsItems(t *testing.T) {
	sender := newFakeSender()
	sender.failKeys["k1"] = errors.New("bad request")
	sender.permanent["k1"] = true

	q := newTestQueue(t, sender)
	q.Enqueue(testItem("k1", "emp-a", attendance.ActionClockIn))
	q.Drain(context.Background())

	if n := q.RetryFailed(); n != 1 {
		t.Fatalf("expected 1 item reset, got %d", n)
	}

	sender.mu.Lock()
	delete(sender.failKeys, "k1")
	sender.mu.Unlock()

	q.Drain(context.Background())
	if got := sender.deliveredKeys(); len(got) != 1 {
		t.Errorf("expected delivery after retry reset, got %v", got)
	}
}

func TestQueue_OfflineSuppressesDrain(t *testing.T) {
	sender := newFakeSender()
	q := newTestQueue(t, sender)
	q.SetOnline(false)

	q.Enqueue(testItem("k1", "emp-a", attendance.ActionClockIn))
	q.Drain(context.Background())

	if len(sender.deliveredKeys()) != 0 {
		t.Error("expected no delivery while offline")
	}

	q.SetOnline(true)
	q.Drain(context.Background())

	if len(sender.deliveredKeys()) != 1 {
		t.Error("expected delivery after coming back online")
	}
}

func TestQueue_PersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.gob")
	storage := NewFileStorage(path)
	sender := newFakeSender()
	sender.failKeys["k1"] = errors.New("down")

	q, err := New(storage, sender, Options{})
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	q.Enqueue(testItem("k1", "emp-a", attendance.ActionClockIn))
	q.Enqueue(testItem("k2", "emp-b", attendance.ActionClockIn))

	// Simulate a restart: new queue over the same file.
	sender2 := newFakeSender()
	q2, err := New(storage, sender2, Options{})
	if err != nil {
		t.Fatalf("failed to reload queue: %v", err)
	}

	if q2.Depth() != 2 {
		t.Fatalf("expected 2 items after restart, got %d", q2.Depth())
	}

	q2.Drain(context.Background())
	got := sender2.deliveredKeys()
	if len(got) != 2 || got[0] != "k1" || got[1] != "k2" {
		t.Errorf("expected ordered delivery [k1 k2] after restart, got %v", got)
	}
}

func TestQueue_SeqContinuesAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.gob")
	storage := NewFileStorage(path)
	sender := newFakeSender()
	sender.failKeys["k1"] = errors.New("down")

	q, _ := New(storage, sender, Options{})
	q.Enqueue(testItem("k1", "emp-a", attendance.ActionClockIn))

	q2, _ := New(storage, sender, Options{})
	q2.Enqueue(testItem("k2", "emp-a", attendance.ActionClockOut))

	items := q2.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Seq >= items[1].Seq {
		t.Errorf("sequence must keep increasing across restarts: %d, %d",
			items[0].Seq, items[1].Seq)
	}
}
