package clock

import (
	"sort"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Fake is a manually advanced clock. Timers register when scheduled and only
// fire through Loop.Advance, so tests control every interleaving.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*fakeEntry
}

type fakeEntry struct {
	timer *Timer
	at    time.Time
	seq   uint64
	fire  func(time.Time) tea.Msg
}

// NewFake creates a fake clock starting at start (or a fixed epoch when zero).
func NewFake(start time.Time) *Fake {
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Schedule registers the timer immediately and returns a nil command.
func (f *Fake) Schedule(d time.Duration, fire func(time.Time) tea.Msg) (*Timer, tea.Cmd) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := newTimer()
	f.seq++
	f.pending = append(f.pending, &fakeEntry{timer: t, at: f.now.Add(d), seq: f.seq, fire: fire})
	return t, nil
}

// ActiveTimers counts scheduled timers that have neither fired nor been stopped.
func (f *Fake) ActiveTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneLocked()
	return len(f.pending)
}

// next pops the earliest live timer due at or before until and moves the
// clock to its deadline.
func (f *Fake) next(until time.Time) (*fakeEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneLocked()
	if len(f.pending) == 0 {
		return nil, false
	}
	sort.SliceStable(f.pending, func(i, j int) bool {
		if f.pending[i].at.Equal(f.pending[j].at) {
			return f.pending[i].seq < f.pending[j].seq
		}
		return f.pending[i].at.Before(f.pending[j].at)
	})
	head := f.pending[0]
	if head.at.After(until) {
		return nil, false
	}
	f.pending = f.pending[1:]
	if head.at.After(f.now) {
		f.now = head.at
	}
	if !head.timer.claim() {
		return nil, false
	}
	return head, true
}

func (f *Fake) set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.After(f.now) {
		f.now = t
	}
}

func (f *Fake) pruneLocked() {
	live := f.pending[:0]
	for _, entry := range f.pending {
		if entry.timer.Active() {
			live = append(live, entry)
		}
	}
	f.pending = live
}
