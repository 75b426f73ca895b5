package operation

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/trivia-terminal/internal/clock"
	"github.com/kingrea/trivia-terminal/internal/logbook"
)

// DefaultInterval is the pause between a status response and the next poll.
const DefaultInterval = 3 * time.Second

var pollerSeq atomic.Uint64

// DoneMsg is emitted once when the operation reaches a terminal status.
// Err is a *FailureError when the server reported failure.
type DoneMsg struct {
	Operation Operation
	Err       error
}

type pollDueMsg struct {
	owner uint64
	gen   uint64
}

type statusMsg struct {
	owner uint64
	gen   uint64
	op    Operation
	err   error
}

// Poller follows one operation. It is a bubbletea sub-model: the parent
// forwards every message to Update and runs the returned commands.
//
// Only one status request is ever outstanding. The next poll is armed when
// the previous response arrives, and every armed timer or request carries a
// generation so anything issued before Cancel or a terminal state is dropped.
type Poller struct {
	owner    uint64
	source   StatusSource
	clock    clock.Clock
	log      logbook.Logger
	interval time.Duration
	onDone   func(DoneMsg)

	op       Operation
	step     int
	polls    int
	failures int
	lastErr  error

	gen      uint64
	timer    *clock.Timer
	inflight context.CancelFunc
	started  bool
	done     bool
	stopped  bool
	notified bool
}

// Option customizes a Poller.
type Option func(*Poller)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock injects the clock used for the poll interval.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger routes poller diagnostics.
func WithLogger(l logbook.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

// WithOnDone registers a callback invoked at most once on a terminal status.
func WithOnDone(fn func(DoneMsg)) Option {
	return func(p *Poller) {
		p.onDone = fn
	}
}

// New attaches a poller to an operation that already exists on the server.
func New(source StatusSource, kind Kind, id string, opts ...Option) *Poller {
	p := &Poller{
		owner:    pollerSeq.Add(1),
		source:   source,
		clock:    clock.Real(),
		log:      logbook.Nop,
		interval: DefaultInterval,
		op:       Operation{ID: strings.TrimSpace(id), Kind: kind, Status: StatusPending},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start issues the first status request. Calling it again is a no-op.
func (p *Poller) Start() tea.Cmd {
	if p.started || p.done || p.stopped {
		return nil
	}
	if p.source == nil || p.op.ID == "" {
		p.lastErr = fmt.Errorf("operation: poller needs a status source and an operation id")
		return nil
	}
	p.started = true
	p.log.Info("%s %s · polling every %s", p.op.Kind, p.op.ID, p.interval)
	return p.poll()
}

// Update consumes the poller's own messages and ignores everything else.
func (p *Poller) Update(msg tea.Msg) tea.Cmd {
	switch m := msg.(type) {
	case pollDueMsg:
		if m.owner != p.owner || m.gen != p.gen || p.done || p.stopped {
			return nil
		}
		p.timer = nil
		return p.poll()
	case statusMsg:
		if m.owner != p.owner || m.gen != p.gen || p.done || p.stopped {
			return nil
		}
		p.releaseRequest()
		if m.err == nil && m.op.ID != "" && m.op.ID != p.op.ID {
			m.err = fmt.Errorf("operation: status response for %s while tracking %s", m.op.ID, p.op.ID)
		}
		if m.err != nil {
			p.failures++
			p.lastErr = m.err
			p.log.Warn("%s %s · status poll failed (%d in a row): %v", p.op.Kind, p.op.ID, p.failures, m.err)
			return p.schedule()
		}
		p.failures = 0
		p.lastErr = nil
		p.apply(m.op)
		if p.op.Status.Terminal() {
			return p.finish()
		}
		return p.schedule()
	}
	return nil
}

// Cancel stops polling. It is idempotent and safe after a terminal state.
func (p *Poller) Cancel() {
	if p.stopped || p.done {
		return
	}
	p.stopped = true
	p.halt()
	p.log.Info("%s %s · polling cancelled at status %s", p.op.Kind, p.op.ID, p.op.Status)
}

// Operation returns the merged view of every response seen so far.
func (p *Poller) Operation() Operation { return p.op }

// Step returns the inferred step index; len(Steps(kind)) once confirmed.
func (p *Poller) Step() int { return p.step }

// Done reports whether a terminal status was observed.
func (p *Poller) Done() bool { return p.done }

// Cancelled reports whether Cancel stopped the poller before it finished.
func (p *Poller) Cancelled() bool { return p.stopped }

// Polls returns how many status requests were issued.
func (p *Poller) Polls() int { return p.polls }

// LastError returns the most recent transient failure, cleared by a success.
func (p *Poller) LastError() error { return p.lastErr }

// Failure returns the terminal failure, if any.
func (p *Poller) Failure() error {
	if p.op.Status != StatusFailed {
		return nil
	}
	return &FailureError{ID: p.op.ID, Kind: p.op.Kind, Message: p.op.Error}
}

func (p *Poller) poll() tea.Cmd {
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(context.Background())
	p.inflight = cancel
	p.polls++
	owner, source, kind, id := p.owner, p.source, p.op.Kind, p.op.ID
	return func() tea.Msg {
		op, err := source.OperationStatus(ctx, kind, id)
		return statusMsg{owner: owner, gen: gen, op: op, err: err}
	}
}

func (p *Poller) schedule() tea.Cmd {
	p.gen++
	owner, gen := p.owner, p.gen
	timer, cmd := p.clock.Schedule(p.interval, func(time.Time) tea.Msg {
		return pollDueMsg{owner: owner, gen: gen}
	})
	p.timer = timer
	return cmd
}

func (p *Poller) apply(next Operation) {
	status := NormalizeStatus(next.Status)
	p.op.Status = status
	p.op.Progress = MergeProgress(p.op.Progress, next.Progress)
	if msg := strings.TrimSpace(next.Error); msg != "" {
		p.op.Error = msg
	}
	if !next.UpdatedAt.IsZero() {
		p.op.UpdatedAt = next.UpdatedAt
	} else {
		p.op.UpdatedAt = p.clock.Now()
	}
	if step := DeriveStep(p.op.Kind, status, p.op.Progress); step > p.step {
		p.step = step
	}
}

func (p *Poller) finish() tea.Cmd {
	p.done = true
	p.halt()
	done := DoneMsg{Operation: p.op, Err: p.Failure()}
	if done.Err != nil {
		p.log.Error("%v", done.Err)
	} else {
		p.log.Info("%s %s · confirmed after %d poll(s)", p.op.Kind, p.op.ID, p.polls)
	}
	if !p.notified {
		p.notified = true
		if p.onDone != nil {
			p.onDone(done)
		}
	}
	return func() tea.Msg { return done }
}

func (p *Poller) halt() {
	p.gen++
	p.timer.Stop()
	p.timer = nil
	p.releaseRequest()
}

func (p *Poller) releaseRequest() {
	if p.inflight != nil {
		p.inflight()
		p.inflight = nil
	}
}
