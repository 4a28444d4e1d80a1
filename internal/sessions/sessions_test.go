package sessions

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func TestSessionFlow(t *testing.T) {
	c := &clock{now: time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)}
	store := NewStore(15*time.Minute, c.Now)

	store.Begin(1, StepWithdrawAmount, 0)

	session, err := store.Update(1, func(s *Session) {
		s.Amount = decimal.NewFromInt(500)
		s.Step = StepWithdrawDetails
	})
	if err != nil {
		t.Fatal(err)
	}

	if session.Step != StepWithdrawDetails || !session.Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("session = %+v", session)
	}

	failed := errors.New("boom")
	if err := store.Commit(1, func(Session) error { return failed }); !errors.Is(err, failed) {
		t.Fatalf("commit err = %v, want boom", err)
	}

	if _, ok := store.Get(1); !ok {
		t.Fatal("failed commit dropped the session")
	}

	var committed Session
	if err := store.Commit(1, func(s Session) error {
		committed = s
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if committed.Step != StepWithdrawDetails {
		t.Errorf("committed step = %s", committed.Step)
	}

	if _, ok := store.Get(1); ok {
		t.Error("session survived a successful commit")
	}

	if err := store.Commit(1, func(Session) error { return nil }); !errors.Is(err, ErrNoSession) {
		t.Errorf("commit without session err = %v, want ErrNoSession", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	c := &clock{now: time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)}
	store := NewStore(15*time.Minute, c.Now)

	store.Begin(1, StepDeliveryPayload, 42)
	store.Begin(2, StepBroadcastText, 0)

	c.now = c.now.Add(10 * time.Minute)
	if _, err := store.Update(2, func(s *Session) { s.Payload = "hi" }); err != nil {
		t.Fatal(err)
	}

	c.now = c.now.Add(6 * time.Minute)

	if _, ok := store.Get(1); ok {
		t.Error("expired session still readable")
	}

	if _, err := store.Update(1, func(*Session) {}); !errors.Is(err, ErrNoSession) {
		t.Errorf("update expired err = %v, want ErrNoSession", err)
	}

	session, ok := store.Get(2)
	if !ok || session.Payload != "hi" {
		t.Errorf("refreshed session = %+v, %v", session, ok)
	}

	c.now = c.now.Add(time.Hour)
	if dropped := store.Sweep(); dropped != 1 {
		t.Errorf("swept = %d, want 1", dropped)
	}
}

func TestCancel(t *testing.T) {
	store := NewStore(time.Minute, nil)

	if store.Cancel(1) {
		t.Error("cancel without session reported true")
	}

	store.Begin(1, StepDeliveryExpiry, 7)

	if !store.Cancel(1) {
		t.Error("cancel reported false")
	}

	if _, ok := store.Get(1); ok {
		t.Error("session survived cancel")
	}
}

func TestConcurrentCommitRunsOnce(t *testing.T) {
	store := NewStore(time.Minute, nil)
	store.Begin(1, StepWithdrawDetails, 0)

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		ran     atomic.Int32
		missing atomic.Int32
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			err := store.Commit(1, func(Session) error {
				ran.Add(1)
				time.Sleep(time.Millisecond)
				return nil
			})
			if errors.Is(err, ErrNoSession) {
				missing.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	if ran.Load() != 1 || missing.Load() != 7 {
		t.Errorf("commit ran %d times, %d saw no session; want 1 and 7", ran.Load(), missing.Load())
	}
}

func TestCommitInFlightHidesSession(t *testing.T) {
	store := NewStore(time.Minute, nil)
	store.Begin(1, StepDeliveryExpiry, 9)

	err := store.Commit(1, func(Session) error {
		if _, ok := store.Get(1); ok {
			t.Error("session visible while its commit runs")
		}

		if err := store.Commit(1, func(Session) error { return nil }); !errors.Is(err, ErrNoSession) {
			t.Errorf("nested commit err = %v, want ErrNoSession", err)
		}

		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("commit error was swallowed")
	}

	session, ok := store.Get(1)
	if !ok || session.OrderID != 9 || session.Step != StepDeliveryExpiry {
		t.Errorf("restored session = %+v, %v", session, ok)
	}
}

func TestFailedCommitKeepsNewerSession(t *testing.T) {
	store := NewStore(time.Minute, nil)
	store.Begin(1, StepWithdrawDetails, 0)

	_ = store.Commit(1, func(Session) error {
		store.Begin(1, StepBroadcastText, 0)
		return errors.New("boom")
	})

	session, ok := store.Get(1)
	if !ok || session.Step != StepBroadcastText {
		t.Errorf("session = %+v, %v; want the newer broadcast session", session, ok)
	}
}
