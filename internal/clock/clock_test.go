package clock

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type firedMsg struct{ at time.Time }

func TestTimerStopIsIdempotent(t *testing.T) {
	timer, _ := Real().Schedule(time.Hour, func(now time.Time) tea.Msg { return firedMsg{at: now} })
	if !timer.Active() {
		t.Fatalf("new timer should be active")
	}
	if !timer.Stop() {
		t.Fatalf("first stop should report it cancelled a delivery")
	}
	if timer.Stop() {
		t.Fatalf("second stop should be a no-op")
	}
	var missing *Timer
	if missing.Stop() || missing.Active() {
		t.Fatalf("nil timer must be inert")
	}
}

func TestRealTimerDeliversUnlessStopped(t *testing.T) {
	timer, cmd := Real().Schedule(time.Millisecond, func(now time.Time) tea.Msg { return firedMsg{at: now} })
	if msg := cmd(); msg == nil {
		t.Fatalf("expected delivery from running timer")
	}
	if timer.Active() {
		t.Fatalf("fired timer should no longer be active")
	}
	stopped, cmd := Real().Schedule(time.Hour, func(now time.Time) tea.Msg { return firedMsg{at: now} })
	stopped.Stop()
	if msg := cmd(); msg != nil {
		t.Fatalf("stopped timer delivered %T", msg)
	}
}

func TestLoopFiresTimersInDeadlineOrder(t *testing.T) {
	fake := NewFake(time.Time{})
	var order []string
	loop := NewLoop(fake, func(msg tea.Msg) tea.Cmd {
		if s, ok := msg.(string); ok {
			order = append(order, s)
		}
		return nil
	})
	fake.Schedule(3*time.Second, func(time.Time) tea.Msg { return "late" })
	fake.Schedule(time.Second, func(time.Time) tea.Msg { return "early" })
	cancelled, _ := fake.Schedule(2*time.Second, func(time.Time) tea.Msg { return "cancelled" })
	cancelled.Stop()
	if got := fake.ActiveTimers(); got != 2 {
		t.Fatalf("active timers = %d, want 2", got)
	}
	loop.Advance(2 * time.Second)
	if len(order) != 1 || order[0] != "early" {
		t.Fatalf("after 2s got %v", order)
	}
	loop.Advance(5 * time.Second)
	if len(order) != 2 || order[1] != "late" {
		t.Fatalf("after 7s got %v", order)
	}
	if fake.ActiveTimers() != 0 {
		t.Fatalf("expected no live timers")
	}
}

func TestLoopHoldKeepsCommandsQueued(t *testing.T) {
	fake := NewFake(time.Time{})
	calls := 0
	loop := NewLoop(fake, func(tea.Msg) tea.Cmd { return nil })
	loop.Hold()
	loop.Run(tea.Batch(
		func() tea.Msg { calls++; return "a" },
		func() tea.Msg { calls++; return "b" },
	))
	if calls != 0 {
		t.Fatalf("held loop ran %d commands", calls)
	}
	loop.Release()
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if got := len(Collect[string](loop)); got != 2 {
		t.Fatalf("collected %d messages, want 2", got)
	}
}
