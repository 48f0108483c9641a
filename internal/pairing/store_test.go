package pairing

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

const ttl = 5 * time.Minute

func TestStore_GetWithinTTL(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	s := NewStore(ttl, clk)

	s.Create("s1", "a", "b")

	clk.Advance(ttl) // exactly at the boundary is still valid
	sess, err := s.Get("s1")
	if err != nil {
		t.Fatalf("Get at TTL boundary: %v", err)
	}
	if sess.FromDeviceID != "a" || sess.ToDeviceID != "b" {
		t.Fatalf("session=%+v", sess)
	}
}

func TestStore_GetExpiredDeletesSession(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	s := NewStore(ttl, clk)

	s.Create("s1", "a", "b")
	clk.Advance(ttl + time.Second)

	if _, err := s.Get("s1"); !errors.Is(err, ErrExpired) {
		t.Fatalf("err=%v, want ErrExpired", err)
	}
	// The expired session is gone: a retry sees not-found, not expired.
	if _, err := s.Get("s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Get err=%v, want ErrNotFound", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len=%d, want 0", s.Len())
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := NewStore(ttl, &fakeClock{now: time.Unix(1000, 0)})
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestStore_CreateRestartsValidityWindow(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	s := NewStore(ttl, clk)

	s.Create("s1", "a", "b")
	clk.Advance(4 * time.Minute)
	s.Create("s1", "a", "c")
	clk.Advance(4 * time.Minute) // 8m after first create, 4m after second

	sess, err := s.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.ToDeviceID != "c" {
		t.Fatalf("to_device_id=%q, want replacement", sess.ToDeviceID)
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s := NewStore(ttl, &fakeClock{now: time.Unix(1000, 0)})

	s.Create("s1", "a", "b")
	if !s.Delete("s1") {
		t.Fatalf("Delete of existing session=false")
	}
	if s.Delete("s1") {
		t.Fatalf("second Delete=true")
	}
	if s.Delete("never-existed") {
		t.Fatalf("Delete of unknown session=true")
	}
}

func TestStore_SweepRemovesOnlyExpired(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	s := NewStore(ttl, clk)

	s.Create("old", "a", "b")
	clk.Advance(3 * time.Minute)
	s.Create("new", "a", "c")
	clk.Advance(3 * time.Minute) // old=6m, new=3m

	if n := s.Sweep(); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if _, err := s.Get("old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old session err=%v, want ErrNotFound", err)
	}
	if _, err := s.Get("new"); err != nil {
		t.Fatalf("new session err=%v", err)
	}
}
