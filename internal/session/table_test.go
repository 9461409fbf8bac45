package session

import (
	"testing"
	"time"
)

type fakeEntry struct {
	createdAt time.Time
	wiped     bool
}

func (e *fakeEntry) CreatedAt() time.Time { return e.createdAt }
func (e *fakeEntry) Wipe()                { e.wiped = true }

func TestTryInsertAssignsIDAndRespectsCapacity(t *testing.T) {
	tbl := New(WithMaxSize(2))
	defer tbl.Shutdown()

	id1, err := tbl.TryInsert(&fakeEntry{createdAt: time.Now()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 == "" {
		t.Fatal("expected non-empty session id")
	}

	id2, err := tbl.TryInsert(&fakeEntry{createdAt: time.Now()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 == id2 {
		t.Fatal("expected distinct ids")
	}

	if _, err := tbl.TryInsert(&fakeEntry{createdAt: time.Now()}); err != ErrSaturated {
		t.Fatalf("expected ErrSaturated, got %v", err)
	}

	if got := tbl.Len(); got != 2 {
		t.Fatalf("expected len 2, got %d", got)
	}
}

func TestGetOrExpireNotFound(t *testing.T) {
	tbl := New()
	defer tbl.Shutdown()

	if _, err := tbl.GetOrExpire("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetOrExpireExpiresAndWipes(t *testing.T) {
	tbl := New(WithTTL(10 * time.Millisecond))
	defer tbl.Shutdown()

	e := &fakeEntry{createdAt: time.Now()}
	id, err := tbl.TryInsert(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := tbl.GetOrExpire(id); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if !e.wiped {
		t.Fatal("expected entry to be wiped on expiry")
	}
	if tbl.Len() != 0 {
		t.Fatalf("expected entry removed after expiry, len=%d", tbl.Len())
	}
}

func TestGetOrExpireReturnsLiveEntry(t *testing.T) {
	tbl := New(WithTTL(time.Minute))
	defer tbl.Shutdown()

	e := &fakeEntry{createdAt: time.Now()}
	id, err := tbl.TryInsert(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := tbl.GetOrExpire(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != e {
		t.Fatal("expected same entry back")
	}
}

func TestDestroyWipesAndRemoves(t *testing.T) {
	tbl := New()
	defer tbl.Shutdown()

	e := &fakeEntry{createdAt: time.Now()}
	id, _ := tbl.TryInsert(e)

	tbl.Destroy(id)

	if !e.wiped {
		t.Fatal("expected entry wiped on destroy")
	}
	if _, err := tbl.GetOrExpire(id); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after destroy, got %v", err)
	}

	tbl.Destroy("already-gone") // must not panic
}

func TestSweepLoopExpiresInBackground(t *testing.T) {
	tbl := New(WithTTL(5*time.Millisecond), WithMaxSize(10), WithSweepInterval(10*time.Millisecond))
	defer tbl.Shutdown()

	e := &fakeEntry{createdAt: time.Now()}
	id, _ := tbl.TryInsert(e)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if e.wiped {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !e.wiped {
		t.Fatal("expected background sweep to wipe expired entry")
	}
	if _, err := tbl.GetOrExpire(id); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after sweep, got %v", err)
	}
}

func TestShutdownDestroysAllEntries(t *testing.T) {
	tbl := New()

	e1 := &fakeEntry{createdAt: time.Now()}
	e2 := &fakeEntry{createdAt: time.Now()}
	tbl.TryInsert(e1)
	tbl.TryInsert(e2)

	tbl.Shutdown()

	if !e1.wiped || !e2.wiped {
		t.Fatal("expected all entries wiped on shutdown")
	}
	if tbl.Len() != 0 {
		t.Fatalf("expected empty table after shutdown, got %d", tbl.Len())
	}
}
