package clock

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Loop is a single-threaded message pump: it runs commands, feeds their
// messages to update and fires Fake timers in deadline order. It mirrors what
// a tea.Program does without a terminal.
type Loop struct {
	clock     *Fake
	update    func(tea.Msg) tea.Cmd
	queue     []tea.Cmd
	held      bool
	delivered []tea.Msg
}

// NewLoop binds update to the fake clock.
func NewLoop(f *Fake, update func(tea.Msg) tea.Cmd) *Loop {
	return &Loop{clock: f, update: update}
}

// Run executes cmd and everything it transitively produces.
func (l *Loop) Run(cmd tea.Cmd) {
	l.enqueue(cmd)
	l.drain()
}

// Send delivers msg as if it had arrived from the runtime.
func (l *Loop) Send(msg tea.Msg) {
	l.deliver(msg)
	l.drain()
}

// Hold keeps commands queued instead of running them, simulating requests
// that are still in flight.
func (l *Loop) Hold() { l.held = true }

// Release runs every held command.
func (l *Loop) Release() {
	l.held = false
	l.drain()
}

// Pending returns the number of queued commands.
func (l *Loop) Pending() int { return len(l.queue) }

// Advance moves the clock forward by d, firing due timers one at a time.
func (l *Loop) Advance(d time.Duration) {
	target := l.clock.Now().Add(d)
	for {
		entry, ok := l.clock.next(target)
		if !ok {
			break
		}
		l.deliver(entry.fire(entry.at))
		l.drain()
	}
	l.clock.set(target)
}

// Delivered returns every message handed to update so far.
func (l *Loop) Delivered() []tea.Msg {
	out := make([]tea.Msg, len(l.delivered))
	copy(out, l.delivered)
	return out
}

// Collect returns the delivered messages of type T.
func Collect[T tea.Msg](l *Loop) []T {
	var out []T
	for _, msg := range l.delivered {
		if typed, ok := msg.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

func (l *Loop) enqueue(cmd tea.Cmd) {
	if cmd != nil {
		l.queue = append(l.queue, cmd)
	}
}

func (l *Loop) deliver(msg tea.Msg) {
	switch m := msg.(type) {
	case nil:
		return
	case tea.BatchMsg:
		for _, cmd := range m {
			l.enqueue(cmd)
		}
		return
	}
	l.delivered = append(l.delivered, msg)
	l.enqueue(l.update(msg))
}

func (l *Loop) drain() {
	for !l.held && len(l.queue) > 0 {
		cmd := l.queue[0]
		l.queue = l.queue[1:]
		l.deliver(cmd())
	}
}
