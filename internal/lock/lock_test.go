package lock

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestManager(t *testing.T, store Storage, opts ...Option) *Manager {
	t.Helper()
	seq := 0
	base := []Option{
		WithClock(func() time.Time { return time.Unix(1730000000, 0) }),
		WithTokenSource(func() string {
			seq++
			return fmt.Sprintf("token-%d", seq)
		}),
	}
	return NewManager(store, append(base, opts...)...)
}

func TestAcquireRefusesDifferentSession(t *testing.T) {
	m := newTestManager(t, NewMemoryStorage())
	first, err := m.Acquire("s1", "science")
	if err != nil {
		t.Fatalf("acquire s1: %v", err)
	}
	if _, err := m.Acquire("s2", "history"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	again, err := m.Acquire("s1", "science")
	if err != nil {
		t.Fatalf("re-acquire s1: %v", err)
	}
	if again.Token != first.Token {
		t.Fatalf("re-acquire should keep token %s, got %s", first.Token, again.Token)
	}
}

func TestAcquireOverwritePolicy(t *testing.T) {
	m := newTestManager(t, NewMemoryStorage(), WithPolicy(PolicyOverwrite))
	if _, err := m.Acquire("s1", "science"); err != nil {
		t.Fatalf("acquire s1: %v", err)
	}
	second, err := m.Acquire("s2", "history")
	if err != nil {
		t.Fatalf("overwrite acquire: %v", err)
	}
	current, ok, err := m.Peek()
	if err != nil || !ok {
		t.Fatalf("peek: ok=%v err=%v", ok, err)
	}
	if current.SessionID != "s2" || current.Token != second.Token {
		t.Fatalf("unexpected record after overwrite: %+v", current)
	}
}

func TestReleaseTargetsLockByIdentity(t *testing.T) {
	m := newTestManager(t, NewMemoryStorage(), WithPolicy(PolicyOverwrite))
	stale, err := m.Acquire("s1", "science")
	if err != nil {
		t.Fatalf("acquire s1: %v", err)
	}
	fresh, err := m.Acquire("s2", "science")
	if err != nil {
		t.Fatalf("acquire s2: %v", err)
	}
	released, err := m.Release(stale)
	if err != nil {
		t.Fatalf("release stale: %v", err)
	}
	if released {
		t.Fatalf("stale release must not clear the newer lock")
	}
	if holds, _ := m.Holds(fresh); !holds {
		t.Fatalf("fresh lock should still be held")
	}
	released, err = m.Release(fresh)
	if err != nil || !released {
		t.Fatalf("release fresh: released=%v err=%v", released, err)
	}
	if _, ok, _ := m.Peek(); ok {
		t.Fatalf("peek should be empty after release")
	}
	released, err = m.Release(fresh)
	if err != nil || released {
		t.Fatalf("second release should be a no-op: released=%v err=%v", released, err)
	}
}

func TestDirStorageSurvivesNewManager(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStorage(dir)
	if err != nil {
		t.Fatalf("dir storage: %v", err)
	}
	held, err := newTestManager(t, store).Acquire("s1", "science")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	reopened, err := NewDirStorage(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	record, ok, err := NewManager(reopened).Peek()
	if err != nil || !ok {
		t.Fatalf("peek after reload: ok=%v err=%v", ok, err)
	}
	if record.SessionID != held.SessionID || record.Token != held.Token || !record.AcquiredAt.Equal(held.AcquiredAt) {
		t.Fatalf("record mismatch after reload: %+v vs %+v", record, held)
	}
}

func TestForceClearRemovesCompanionKeys(t *testing.T) {
	store := NewMemoryStorage()
	m := newTestManager(t, store)
	if _, err := m.Acquire("s1", "science"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := store.Set(SnapshotKey, []byte(`{}`)); err != nil {
		t.Fatalf("set snapshot: %v", err)
	}
	if err := m.ForceClear(); err != nil {
		t.Fatalf("force clear: %v", err)
	}
	if _, ok, _ := store.Get(SnapshotKey); ok {
		t.Fatalf("snapshot should be cleared")
	}
	if _, ok, _ := m.Peek(); ok {
		t.Fatalf("record should be cleared")
	}
}

func TestPeekReportsCorruptRecord(t *testing.T) {
	store := NewMemoryStorage()
	if err := store.Set(RecordKey, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewManager(store).Peek(); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestDirStorageRejectsPathKeys(t *testing.T) {
	store, err := NewDirStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set("../escape", []byte("x")); err == nil {
		t.Fatalf("expected invalid key error")
	}
}
