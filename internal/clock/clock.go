// Package clock provides cancellable timers that deliver bubbletea messages.
//
// Timed components never hold raw time.Timer values. They ask a Clock to
// schedule a message and keep the returned *Timer so the delivery can be
// stopped when it is superseded. The wall clock backs the TUI; the Fake
// clock and Loop pump drive the same components deterministically in tests.
package clock

import (
	"context"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Clock schedules one-shot message deliveries.
type Clock interface {
	Now() time.Time
	// Schedule arranges for fire to be called after d. The returned command
	// performs the wait; it yields nil when the timer is stopped first.
	Schedule(d time.Duration, fire func(time.Time) tea.Msg) (*Timer, tea.Cmd)
}

var timerSeq atomic.Uint64

// Timer is a handle to one scheduled delivery.
type Timer struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
}

func newTimer() *Timer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Timer{id: timerSeq.Add(1), ctx: ctx, cancel: cancel}
}

// ID returns a process-unique identifier for the timer.
func (t *Timer) ID() uint64 {
	if t == nil {
		return 0
	}
	return t.id
}

// Active reports whether the timer can still fire.
func (t *Timer) Active() bool {
	return t != nil && t.ctx.Err() == nil
}

// Stop cancels the timer. It is safe to call on a nil, fired or already
// stopped timer and reports whether this call prevented a delivery.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	active := t.ctx.Err() == nil
	t.cancel()
	return active
}

// claim marks the timer as fired. It fails when the timer was stopped.
func (t *Timer) claim() bool {
	if t.ctx.Err() != nil {
		return false
	}
	t.cancel()
	return true
}

type realClock struct{}

// Real returns the wall clock.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Schedule(d time.Duration, fire func(time.Time) tea.Msg) (*Timer, tea.Cmd) {
	t := newTimer()
	return t, func() tea.Msg {
		wait := time.NewTimer(d)
		defer wait.Stop()
		select {
		case now := <-wait.C:
			if !t.claim() {
				return nil
			}
			return fire(now)
		case <-t.ctx.Done():
			return nil
		}
	}
}
