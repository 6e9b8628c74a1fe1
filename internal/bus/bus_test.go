package bus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prismbot/prism/pkg/models"
)

func waitIdle(t *testing.T, b *Bus, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.Idle() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("bus did not go idle within %s", timeout)
}

// recorder collects dispatched events behind a mutex so handlers and test
// assertions never race.
type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) handle(ev models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func TestPriorityOrderBeforeStart(t *testing.T) {
	b := New(Options{})
	rec := &recorder{}
	b.SubscribeAll(rec.handle)

	// MESSAGE_RECEIVED (100) queued before SYSTEM_STARTED (0): the system
	// event must still dispatch first.
	b.Emit(models.NewEvent(models.EventMessageReceived, "cli", "", models.Payload{}))
	b.Emit(models.NewEvent(models.EventSystemStarted, models.SourceSystem, "", models.Payload{}))

	b.Start()
	defer b.Stop()
	waitIdle(t, b, time.Second)

	got := rec.types()
	want := []models.EventType{models.EventSystemStarted, models.EventMessageReceived}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("dispatch order = %v, want %v", got, want)
	}
}

func TestFIFOWithinSamePriority(t *testing.T) {
	b := New(Options{})
	rec := &recorder{}
	b.Subscribe(models.EventHeartbeat, rec.handle)

	var emitted []models.Event
	for i := 0; i < 5; i++ {
		ev := b.Emit(models.NewEvent(models.EventHeartbeat, models.SourceSystem, "", models.Payload{}))
		emitted = append(emitted, ev)
	}

	b.Start()
	defer b.Stop()
	waitIdle(t, b, time.Second)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 5 {
		t.Fatalf("dispatched %d events, want 5", len(rec.events))
	}
	for i, ev := range rec.events {
		if ev.ID != emitted[i].ID {
			t.Fatalf("position %d: got event %s, want %s (FIFO tie-break)", i, ev.ID, emitted[i].ID)
		}
	}
}

func TestExplicitPriorityOverride(t *testing.T) {
	b := New(Options{})
	rec := &recorder{}
	b.SubscribeAll(rec.handle)

	b.Emit(models.NewEvent(models.EventMessageReceived, "cli", "", models.Payload{}))
	urgent := models.NewEvent(models.EventToolCallRequested, models.SourceSystem, "", models.Payload{}).WithPriority(1)
	b.Emit(urgent)

	b.Start()
	defer b.Stop()
	waitIdle(t, b, time.Second)

	got := rec.types()
	if len(got) != 2 || got[0] != models.EventToolCallRequested {
		t.Fatalf("dispatch order = %v, want override first", got)
	}
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	b := New(Options{})
	var ran bool
	var mu sync.Mutex

	b.Subscribe(models.EventHeartbeat, func(ev models.Event) error {
		return errors.New("boom")
	})
	b.Subscribe(models.EventHeartbeat, func(ev models.Event) error {
		mu.Lock()
		ran = true
		mu.Unlock()
		return nil
	})

	b.Start()
	defer b.Stop()
	b.Emit(models.NewEvent(models.EventHeartbeat, models.SourceSystem, "", models.Payload{}))
	waitIdle(t, b, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if !ran {
		t.Fatal("second handler did not run after first handler's error")
	}
}

func TestHandlerPanicContained(t *testing.T) {
	b := New(Options{})
	rec := &recorder{}

	b.Subscribe(models.EventHeartbeat, func(ev models.Event) error {
		panic("handler exploded")
	})
	b.Subscribe(models.EventHeartbeat, rec.handle)

	b.Start()
	defer b.Stop()
	b.Emit(models.NewEvent(models.EventHeartbeat, models.SourceSystem, "", models.Payload{}))
	b.Emit(models.NewEvent(models.EventHeartbeat, models.SourceSystem, "", models.Payload{}))
	waitIdle(t, b, time.Second)

	if got := len(rec.types()); got != 2 {
		t.Fatalf("dispatched %d events after panics, want 2", got)
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	b := New(Options{})
	rec := &recorder{}
	b.Subscribe(models.EventHeartbeat, rec.handle)
	b.Subscribe(models.EventHeartbeat, rec.handle)

	b.Start()
	defer b.Stop()
	b.Emit(models.NewEvent(models.EventHeartbeat, models.SourceSystem, "", models.Payload{}))
	waitIdle(t, b, time.Second)

	if got := len(rec.types()); got != 1 {
		t.Fatalf("handler ran %d times, want 1", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New(Options{})
	rec := &recorder{}
	b.Subscribe(models.EventHeartbeat, rec.handle)
	b.Unsubscribe(models.EventHeartbeat, rec.handle)

	b.Start()
	defer b.Stop()
	b.Emit(models.NewEvent(models.EventHeartbeat, models.SourceSystem, "", models.Payload{}))
	waitIdle(t, b, time.Second)

	if got := len(rec.types()); got != 0 {
		t.Fatalf("handler ran %d times after unsubscribe, want 0", got)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	b := New(Options{})
	b.Start()
	b.Start()
	if !b.IsRunning() {
		t.Fatal("bus not running after Start")
	}
	b.Stop()
	b.Stop()
	if b.IsRunning() {
		t.Fatal("bus still running after Stop")
	}
}

func TestHistoryOrderAndCausality(t *testing.T) {
	b := New(Options{})
	b.Start()
	defer b.Stop()

	parent := b.Emit(models.NewEvent(models.EventTaskCreated, models.SourceSystem, "t1", models.Payload{}))
	waitIdle(t, b, time.Second)
	child := b.Emit(models.Derive(parent, models.EventReasonDone, models.Payload{}))
	waitIdle(t, b, time.Second)

	if child.ParentEventID != parent.ID {
		t.Fatalf("child.ParentEventID = %q, want %q", child.ParentEventID, parent.ID)
	}
	if child.TaskID != "t1" {
		t.Fatalf("child.TaskID = %q, want t1", child.TaskID)
	}

	history := b.History()
	parentIdx, childIdx := -1, -1
	for i, ev := range history {
		switch ev.ID {
		case parent.ID:
			parentIdx = i
		case child.ID:
			childIdx = i
		}
	}
	if parentIdx < 0 || childIdx < 0 || parentIdx >= childIdx {
		t.Fatalf("causality violated: parent at %d, child at %d", parentIdx, childIdx)
	}
}

func TestHistoryBounded(t *testing.T) {
	b := New(Options{HistoryCap: 3})
	b.Start()
	defer b.Stop()

	for i := 0; i < 10; i++ {
		b.Emit(models.NewEvent(models.EventHeartbeat, models.SourceSystem, "", models.Payload{}))
	}
	waitIdle(t, b, time.Second)

	if got := len(b.History()); got != 3 {
		t.Fatalf("history length = %d, want 3", got)
	}
}

func TestHistoryDisabled(t *testing.T) {
	b := New(Options{HistoryCap: -1})
	b.Start()
	defer b.Stop()

	b.Emit(models.NewEvent(models.EventHeartbeat, models.SourceSystem, "", models.Payload{}))
	waitIdle(t, b, time.Second)

	if b.History() != nil {
		t.Fatal("history retained despite being disabled")
	}
}

func TestEmittedEventCopyIsImmutable(t *testing.T) {
	b := New(Options{})
	rec := &recorder{}
	b.Subscribe(models.EventHeartbeat, rec.handle)

	ev := models.NewEvent(models.EventHeartbeat, models.SourceSystem, "", models.Payload{})
	emitted := b.Emit(ev)

	// Mutating the caller's copy after emission must not affect dispatch.
	ev.Source = "mutated"
	ev.TaskID = "mutated"

	b.Start()
	defer b.Stop()
	waitIdle(t, b, time.Second)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 1 {
		t.Fatalf("dispatched %d events, want 1", len(rec.events))
	}
	got := rec.events[0]
	if got.Source != models.SourceSystem || got.TaskID != "" {
		t.Fatalf("dispatched event observed caller mutation: %+v", got)
	}
	if got.Seq != emitted.Seq {
		t.Fatalf("seq mismatch: %d vs %d", got.Seq, emitted.Seq)
	}
}
