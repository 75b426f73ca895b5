// Package session drives one timed trivia session question by question.
//
// The Orchestrator is a bubbletea sub-model: it mutates state only inside
// Update and talks to the backend and the clock through commands. Every timer
// it arms is owned by the instance and tagged with a generation; stopping a
// timer bumps the generation so a tick that was already queued is ignored.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/trivia-terminal/internal/clock"
	"github.com/kingrea/trivia-terminal/internal/lock"
	"github.com/kingrea/trivia-terminal/internal/logbook"
)

// Config holds the timing and recovery knobs.
type Config struct {
	// QuestionUnits is the countdown length in ticks.
	QuestionUnits int
	// TickUnit is the length of one countdown tick.
	TickUnit time.Duration
	// FeedbackDwell is how long feedback stays up before auto-advancing.
	FeedbackDwell time.Duration
	AutoAdvance   bool
	Recovery      RecoveryPolicy
}

// DefaultConfig returns a ten second countdown and a two second dwell.
func DefaultConfig() Config {
	return Config{
		QuestionUnits: 10,
		TickUnit:      time.Second,
		FeedbackDwell: 2 * time.Second,
		AutoAdvance:   true,
		Recovery:      RecoverResume,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.QuestionUnits <= 0 {
		c.QuestionUnits = def.QuestionUnits
	}
	if c.TickUnit <= 0 {
		c.TickUnit = def.TickUnit
	}
	if c.FeedbackDwell <= 0 {
		c.FeedbackDwell = def.FeedbackDwell
	}
	if c.Recovery == "" {
		c.Recovery = def.Recovery
	}
	return c
}

var orchestratorSeq atomic.Uint64

type recoveryMsg struct {
	owner    uint64
	record   lock.Record
	locked   bool
	snapshot Snapshot
	snapped  bool
	err      error
}

type startedMsg struct {
	owner   uint64
	session Session
	err     error
}

type countdownTickMsg struct {
	owner uint64
	gen   uint64
	index int
}

type answeredMsg struct {
	owner   uint64
	session string
	index   int
	timeout bool
	result  AnswerResult
	err     error
}

type advanceDueMsg struct {
	owner uint64
	gen   uint64
}

type completedMsg struct {
	owner   uint64
	session string
	result  Result
	err     error
}

type inflightAnswer struct {
	req     AnswerRequest
	timeout bool
}

// Orchestrator runs a single session for one category.
type Orchestrator struct {
	owner      uint64
	categoryID string
	cfg        Config
	backend    Backend
	locks      *lock.Manager
	journal    *Journal
	clock      clock.Clock
	log        logbook.Logger
	onComplete func(Result)
	ctx        context.Context
	cancel     context.CancelFunc

	phase     Phase
	session   Session
	held      lock.Record
	conflict  lock.Record
	remaining int
	selected  int
	shownAt   time.Time
	startedAt time.Time
	submitted map[int]bool
	answers   map[int]AnswerResult
	feedback  *Feedback
	result    *Result

	countdown    *clock.Timer
	countdownGen uint64
	advance      *clock.Timer
	advanceGen   uint64

	answer   *inflightAnswer
	busy     bool
	failedOp Op
	err      error
	closed   bool
	answerN  int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg.normalized() }
}

// WithClock injects the clock used for countdowns and dwell timers.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger routes session diagnostics.
func WithLogger(l logbook.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithOnComplete registers a callback run once with the final result.
func WithOnComplete(fn func(Result)) Option {
	return func(o *Orchestrator) { o.onComplete = fn }
}

// New prepares an orchestrator. Nothing happens until Init's command runs.
func New(backend Backend, locks *lock.Manager, journal *Journal, categoryID string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		owner:      orchestratorSeq.Add(1),
		categoryID: strings.TrimSpace(categoryID),
		cfg:        DefaultConfig(),
		backend:    backend,
		locks:      locks,
		journal:    journal,
		clock:      clock.Real(),
		log:        logbook.Nop,
		phase:      PhaseLoading,
		selected:   TimeoutOption,
		submitted:  map[int]bool{},
		answers:    map[int]AnswerResult{},
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Init reads the lock record once and either recovers or starts a session.
func (o *Orchestrator) Init() tea.Cmd {
	if o.closed || o.phase != PhaseLoading || o.busy {
		return nil
	}
	o.busy = true
	owner, locks, journal := o.owner, o.locks, o.journal
	return func() tea.Msg {
		msg := recoveryMsg{owner: owner}
		if locks == nil {
			return msg
		}
		msg.record, msg.locked, msg.err = locks.Peek()
		if msg.err != nil || !msg.locked {
			return msg
		}
		snap, ok, err := journal.Load()
		if err == nil {
			msg.snapshot, msg.snapped = snap, ok
		}
		return msg
	}
}

// Update consumes the orchestrator's own messages and ignores everything else.
func (o *Orchestrator) Update(msg tea.Msg) tea.Cmd {
	if o.closed || o.phase == PhaseAbandoned {
		return nil
	}
	switch m := msg.(type) {
	case recoveryMsg:
		if m.owner != o.owner {
			return nil
		}
		return o.handleRecovery(m)
	case startedMsg:
		if m.owner != o.owner || o.phase != PhaseLoading {
			return nil
		}
		return o.handleStarted(m)
	case countdownTickMsg:
		if m.owner != o.owner || m.gen != o.countdownGen {
			return nil
		}
		return o.handleTick(m)
	case answeredMsg:
		if m.owner != o.owner || m.session != o.session.ID {
			return nil
		}
		return o.handleAnswered(m)
	case advanceDueMsg:
		if m.owner != o.owner || m.gen != o.advanceGen {
			return nil
		}
		o.advance = nil
		return o.advanceQuestion()
	case completedMsg:
		if m.owner != o.owner || m.session != o.session.ID || o.phase != PhaseCompleting {
			return nil
		}
		return o.handleCompleted(m)
	}
	return nil
}

// Begin leaves the start screen and arms the first countdown.
func (o *Orchestrator) Begin() tea.Cmd {
	if o.closed || o.phase != PhaseStart {
		return nil
	}
	if o.startedAt.IsZero() {
		o.startedAt = o.clock.Now()
	}
	o.enterQuestion()
	o.log.Info("session %s · question %d/%d shown", o.session.ID, o.session.CurrentQuestionIndex+1, len(o.session.Questions))
	return o.armCountdown()
}

// AnswerInput is a user submission for the current question.
type AnswerInput struct {
	QuestionIndex int
	OptionIndex   int
	Elapsed       time.Duration
}

// SubmitAnswer sends the user's choice. Contract violations are reported as
// errors and leave the orchestrator untouched.
func (o *Orchestrator) SubmitAnswer(in AnswerInput) (tea.Cmd, error) {
	if o.closed || o.phase.Terminal() {
		return nil, ErrInert
	}
	if o.session.ID == "" {
		return nil, ErrNoSession
	}
	index := o.session.CurrentQuestionIndex
	if in.QuestionIndex != index {
		return nil, fmt.Errorf("%w: got %d, current is %d", ErrWrongQuestion, in.QuestionIndex, index)
	}
	if o.submitted[index] {
		return nil, ErrDuplicateSubmission
	}
	if o.phase != PhaseQuestion {
		return nil, fmt.Errorf("%w in phase %s", ErrNotAcceptingAnswers, o.phase)
	}
	options := len(o.session.Questions[index].Options)
	if in.OptionIndex != TimeoutOption && (in.OptionIndex < 0 || in.OptionIndex >= options) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidOption, in.OptionIndex, options)
	}
	elapsed := in.Elapsed
	if elapsed < 0 {
		elapsed = 0
	}
	return o.submit(index, in.OptionIndex, elapsed, in.OptionIndex == TimeoutOption), nil
}

// Answer submits option for the current question, measuring elapsed time
// from when the question was shown.
func (o *Orchestrator) Answer(option int) (tea.Cmd, error) {
	return o.SubmitAnswer(AnswerInput{
		QuestionIndex: o.session.CurrentQuestionIndex,
		OptionIndex:   option,
		Elapsed:       o.clock.Now().Sub(o.shownAt),
	})
}

// Next skips the rest of the feedback dwell.
func (o *Orchestrator) Next() tea.Cmd {
	if o.closed || o.phase != PhaseFeedback {
		return nil
	}
	return o.advanceQuestion()
}

// Retry reissues the external call that last failed.
func (o *Orchestrator) Retry() tea.Cmd {
	if o.closed || o.err == nil || o.busy {
		return nil
	}
	op := o.failedOp
	o.err = nil
	o.failedOp = ""
	switch op {
	case OpRecover, OpStart, OpLock:
		if o.phase != PhaseLoading {
			return nil
		}
		if op == OpLock && o.session.ID != "" {
			return o.acquire(o.session)
		}
		o.session = Session{}
		o.conflict = lock.Record{}
		if op == OpRecover {
			return o.Init()
		}
		return o.start()
	case OpAnswer:
		if o.answer == nil {
			return nil
		}
		return o.sendAnswer(*o.answer)
	case OpComplete:
		if o.phase != PhaseCompleting {
			return nil
		}
		return o.complete()
	}
	return nil
}

// Abandon gives up the session: timers stop, the lock this instance holds
// (or the conflicting lock it found at mount) is released and the snapshot
// is dropped.
func (o *Orchestrator) Abandon() error {
	if o.closed || o.phase.Terminal() {
		return nil
	}
	o.stopTimers()
	o.cancel()
	o.phase = PhaseAbandoned
	o.busy = false
	var errs []error
	for _, record := range []lock.Record{o.held, o.conflict} {
		if record.IsZero() || o.locks == nil {
			continue
		}
		released, err := o.locks.Release(record)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if released {
			if err := o.journal.Clear(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	o.held = lock.Record{}
	o.conflict = lock.Record{}
	o.log.Warn("session %s · abandoned at question %d", o.session.ID, o.session.CurrentQuestionIndex+1)
	return errors.Join(errs...)
}

// Close tears the instance down without touching the lock, so a later mount
// can resume. Pending timers stop, in-flight requests are cancelled and
// further messages are ignored. An answer still in flight stays in the
// snapshot and is resent on resume.
func (o *Orchestrator) Close() {
	if o.closed {
		return
	}
	o.stopTimers()
	o.cancel()
	o.closed = true
}

func (o *Orchestrator) Phase() Phase       { return o.phase }
func (o *Orchestrator) Session() Session   { return o.session }
func (o *Orchestrator) CategoryID() string { return o.categoryID }
func (o *Orchestrator) Index() int         { return o.session.CurrentQuestionIndex }
func (o *Orchestrator) Remaining() int     { return o.remaining }
func (o *Orchestrator) Selected() int      { return o.selected }
func (o *Orchestrator) Err() error         { return o.err }
func (o *Orchestrator) FailedOp() Op       { return o.failedOp }
func (o *Orchestrator) Closed() bool       { return o.closed }
func (o *Orchestrator) Lock() lock.Record  { return o.held }
func (o *Orchestrator) Config() Config     { return o.cfg }

// AnswerCalls counts answer requests handed to the backend.
func (o *Orchestrator) AnswerCalls() int { return o.answerN }

// Pending reports whether an external call is in flight.
func (o *Orchestrator) Pending() bool { return o.busy }

// CurrentQuestion returns the question on screen.
func (o *Orchestrator) CurrentQuestion() (Question, bool) {
	idx := o.session.CurrentQuestionIndex
	if idx < 0 || idx >= len(o.session.Questions) {
		return Question{}, false
	}
	return o.session.Questions[idx], true
}

// Feedback returns the verdict currently shown, if any.
func (o *Orchestrator) Feedback() (Feedback, bool) {
	if o.feedback == nil {
		return Feedback{}, false
	}
	return *o.feedback, true
}

// Result returns the final result once the session finished.
func (o *Orchestrator) Result() (Result, bool) {
	if o.result == nil {
		return Result{}, false
	}
	return *o.result, true
}

func (o *Orchestrator) handleRecovery(m recoveryMsg) tea.Cmd {
	o.busy = false
	if m.err != nil {
		if !errors.Is(m.err, lock.ErrCorruptRecord) {
			return o.fail(OpRecover, m.err)
		}
		o.log.Warn("discarding unreadable session lock: %v", m.err)
		if err := o.locks.ForceClear(); err != nil {
			return o.fail(OpRecover, err)
		}
		return o.start()
	}
	if !m.locked {
		return o.start()
	}
	record := m.record
	if o.cfg.Recovery == RecoverFresh {
		o.log.Info("recovery=fresh · discarding lock for session %s", record.SessionID)
		o.discard(record)
		return o.start()
	}
	if record.CategoryID != o.categoryID {
		o.conflict = record
		return o.fail(OpRecover, fmt.Errorf("%w: session %s in category %s", ErrSessionInProgress, record.SessionID, record.CategoryID))
	}
	snap := m.snapshot
	if !m.snapped || snap.Token != record.Token || snap.Session.ID != record.SessionID || snap.Session.Validate() != nil {
		o.log.Warn("lock for session %s has no usable snapshot · starting fresh", record.SessionID)
		o.discard(record)
		return o.start()
	}
	return o.adopt(record, snap)
}

func (o *Orchestrator) adopt(record lock.Record, snap Snapshot) tea.Cmd {
	o.held = record
	o.session = snap.Session
	for idx, res := range snap.Answers {
		if idx < 0 || idx >= len(o.session.Questions) {
			continue
		}
		o.answers[idx] = res
		o.submitted[idx] = true
	}
	next := o.session.CurrentQuestionIndex
	for next < len(o.session.Questions) && o.submitted[next] {
		next++
	}
	o.log.Info("session %s · recovered at question %d/%d", o.session.ID, min(next+1, len(o.session.Questions)), len(o.session.Questions))
	id := o.session.ID
	recovered := func() tea.Msg { return RecoveredMsg{SessionID: id, Index: next} }
	if p := snap.Pending; p != nil && p.QuestionIndex == next && next < len(o.session.Questions) {
		return tea.Batch(recovered, o.replay(*p))
	}
	if next >= len(o.session.Questions) {
		o.session.CurrentQuestionIndex = len(o.session.Questions) - 1
		o.phase = PhaseCompleting
		return tea.Batch(recovered, o.complete())
	}
	o.session.CurrentQuestionIndex = next
	o.phase = PhaseStart
	o.persist()
	return recovered
}

// replay resends an answer that was in flight when the previous instance
// went away. The backend returns the recorded verdict for an identical
// submission, so the question is never asked twice.
func (o *Orchestrator) replay(p PendingAnswer) tea.Cmd {
	index := p.QuestionIndex
	o.session.CurrentQuestionIndex = index
	o.enterQuestion()
	o.remaining = 0
	o.submitted[index] = true
	o.selected = p.OptionIndex
	in := inflightAnswer{
		req: AnswerRequest{
			SessionID:     o.session.ID,
			QuestionIndex: index,
			OptionIndex:   p.OptionIndex,
			ElapsedMs:     p.ElapsedMs,
		},
		timeout: p.Timeout,
	}
	o.answer = &in
	o.log.Info("session %s · resending answer for question %d", o.session.ID, index+1)
	return o.sendAnswer(in)
}

func (o *Orchestrator) discard(record lock.Record) {
	if _, err := o.locks.Release(record); err != nil {
		o.log.Warn("release stale lock %s: %v", record.SessionID, err)
	}
	if err := o.journal.Clear(); err != nil {
		o.log.Warn("clear stale snapshot: %v", err)
	}
}

func (o *Orchestrator) start() tea.Cmd {
	if o.backend == nil {
		return o.fail(OpStart, fmt.Errorf("session: no backend configured"))
	}
	o.busy = true
	ctx, owner, backend, category := o.ctx, o.owner, o.backend, o.categoryID
	o.log.Info("starting session in category %s", category)
	return func() tea.Msg {
		sess, err := backend.StartSession(ctx, category)
		return startedMsg{owner: owner, session: sess, err: err}
	}
}

func (o *Orchestrator) handleStarted(m startedMsg) tea.Cmd {
	o.busy = false
	if m.err != nil {
		return o.fail(OpStart, m.err)
	}
	sess := m.session
	if sess.CategoryID == "" {
		sess.CategoryID = o.categoryID
	}
	sess.CurrentQuestionIndex = 0
	for i := range sess.Questions {
		sess.Questions[i].CorrectIndex = nil
	}
	if err := sess.Validate(); err != nil {
		return o.fail(OpStart, err)
	}
	return o.acquire(sess)
}

func (o *Orchestrator) acquire(sess Session) tea.Cmd {
	o.session = sess
	if o.locks != nil {
		record, err := o.locks.Acquire(sess.ID, sess.CategoryID)
		if err != nil {
			return o.fail(OpLock, err)
		}
		o.held = record
	}
	o.phase = PhaseStart
	o.persist()
	o.log.Info("session %s · %d questions ready", sess.ID, len(sess.Questions))
	return nil
}

func (o *Orchestrator) enterQuestion() {
	o.phase = PhaseQuestion
	o.selected = TimeoutOption
	o.feedback = nil
	o.shownAt = o.clock.Now()
}

// armCountdown stops whatever countdown exists before arming a new one.
func (o *Orchestrator) armCountdown() tea.Cmd {
	o.stopCountdown()
	o.remaining = o.cfg.QuestionUnits
	return o.scheduleTick()
}

func (o *Orchestrator) scheduleTick() tea.Cmd {
	owner, gen, index := o.owner, o.countdownGen, o.session.CurrentQuestionIndex
	timer, cmd := o.clock.Schedule(o.cfg.TickUnit, func(time.Time) tea.Msg {
		return countdownTickMsg{owner: owner, gen: gen, index: index}
	})
	o.countdown = timer
	return cmd
}

func (o *Orchestrator) stopCountdown() {
	o.countdownGen++
	o.countdown.Stop()
	o.countdown = nil
}

func (o *Orchestrator) stopAdvance() {
	o.advanceGen++
	o.advance.Stop()
	o.advance = nil
}

func (o *Orchestrator) stopTimers() {
	o.stopCountdown()
	o.stopAdvance()
}

func (o *Orchestrator) handleTick(m countdownTickMsg) tea.Cmd {
	o.countdown = nil
	index := o.session.CurrentQuestionIndex
	if o.phase != PhaseQuestion || m.index != index || o.submitted[index] {
		return nil
	}
	o.remaining--
	if o.remaining > 0 {
		return o.scheduleTick()
	}
	o.remaining = 0
	elapsed := time.Duration(o.cfg.QuestionUnits) * o.cfg.TickUnit
	o.log.Warn("session %s · question %d timed out", o.session.ID, index+1)
	return o.submit(index, TimeoutOption, elapsed, true)
}

// submit cancels the countdown before anything is sent, then records the
// index as answered so neither a late tick nor a second click can submit it.
func (o *Orchestrator) submit(index, option int, elapsed time.Duration, timeout bool) tea.Cmd {
	o.stopCountdown()
	o.submitted[index] = true
	o.selected = option
	inflight := inflightAnswer{
		req: AnswerRequest{
			SessionID:     o.session.ID,
			QuestionIndex: index,
			OptionIndex:   option,
			ElapsedMs:     elapsed.Milliseconds(),
		},
		timeout: timeout,
	}
	o.answer = &inflight
	o.persist()
	return o.sendAnswer(inflight)
}

func (o *Orchestrator) sendAnswer(in inflightAnswer) tea.Cmd {
	o.busy = true
	o.answerN++
	ctx, owner, backend := o.ctx, o.owner, o.backend
	return func() tea.Msg {
		res, err := backend.SubmitAnswer(ctx, in.req)
		return answeredMsg{
			owner:   owner,
			session: in.req.SessionID,
			index:   in.req.QuestionIndex,
			timeout: in.timeout,
			result:  res,
			err:     err,
		}
	}
}

func (o *Orchestrator) handleAnswered(m answeredMsg) tea.Cmd {
	if o.phase != PhaseQuestion || o.answer == nil || m.index != o.session.CurrentQuestionIndex {
		return nil
	}
	o.busy = false
	if m.err != nil {
		return o.fail(OpAnswer, m.err)
	}
	o.answer = nil
	o.answers[m.index] = m.result
	correct := m.result.CorrectIndex
	o.session.Questions[m.index].CorrectIndex = &correct
	o.feedback = &Feedback{
		Index:     m.index,
		Selected:  o.selected,
		Result:    m.result,
		IsTimeout: m.timeout,
	}
	o.phase = PhaseFeedback
	o.persist()
	verdict := "wrong"
	if m.result.Correct {
		verdict = "correct"
	}
	if m.timeout {
		verdict = "timeout"
	}
	o.log.Info("session %s · question %d %s", o.session.ID, m.index+1, verdict)
	if !o.cfg.AutoAdvance {
		return nil
	}
	o.stopAdvance()
	owner, gen := o.owner, o.advanceGen
	timer, cmd := o.clock.Schedule(o.cfg.FeedbackDwell, func(time.Time) tea.Msg {
		return advanceDueMsg{owner: owner, gen: gen}
	})
	o.advance = timer
	return cmd
}

// advanceQuestion moves past feedback exactly once per transition.
func (o *Orchestrator) advanceQuestion() tea.Cmd {
	if o.phase != PhaseFeedback {
		return nil
	}
	o.stopAdvance()
	next := o.session.CurrentQuestionIndex + 1
	if next >= len(o.session.Questions) {
		o.phase = PhaseCompleting
		o.persist()
		return o.complete()
	}
	o.session.CurrentQuestionIndex = next
	o.enterQuestion()
	o.persist()
	o.log.Info("session %s · question %d/%d shown", o.session.ID, next+1, len(o.session.Questions))
	return o.armCountdown()
}

func (o *Orchestrator) complete() tea.Cmd {
	o.busy = true
	ctx, owner, backend, id := o.ctx, o.owner, o.backend, o.session.ID
	return func() tea.Msg {
		res, err := backend.CompleteSession(ctx, id)
		return completedMsg{owner: owner, session: id, result: res, err: err}
	}
}

func (o *Orchestrator) handleCompleted(m completedMsg) tea.Cmd {
	o.busy = false
	if m.err != nil {
		return o.fail(OpComplete, m.err)
	}
	res := m.result
	if res.SessionID == "" {
		res.SessionID = o.session.ID
	}
	if res.Total == 0 {
		res.Total = len(o.session.Questions)
	}
	o.result = &res
	o.phase = PhaseFinished
	o.stopTimers()
	if o.locks != nil {
		if _, err := o.locks.Release(o.held); err != nil {
			o.log.Error("session %s · release lock: %v", o.session.ID, err)
		}
	}
	if err := o.journal.Clear(); err != nil {
		o.log.Warn("session %s · clear snapshot: %v", o.session.ID, err)
	}
	o.held = lock.Record{}
	if !o.startedAt.IsZero() {
		o.log.Info("session %s · finished %d/%d in %s (local)", res.SessionID, res.Score, res.Total, o.clock.Now().Sub(o.startedAt).Round(time.Second))
	}
	if o.onComplete != nil {
		o.onComplete(res)
	}
	return func() tea.Msg { return CompletedMsg{Result: res} }
}

func (o *Orchestrator) fail(op Op, err error) tea.Cmd {
	o.busy = false
	o.err = err
	o.failedOp = op
	o.log.Error("session %s · %s failed: %v", o.session.ID, op, err)
	return func() tea.Msg { return FailedMsg{Op: op, Err: err} }
}

func (o *Orchestrator) persist() {
	if o.held.IsZero() || o.journal == nil {
		return
	}
	answers := make(map[int]AnswerResult, len(o.answers))
	for idx, res := range o.answers {
		answers[idx] = res
	}
	snap := Snapshot{Token: o.held.Token, Session: o.session, Answers: answers, SavedAt: o.clock.Now().UTC()}
	if in := o.answer; in != nil {
		snap.Pending = &PendingAnswer{
			QuestionIndex: in.req.QuestionIndex,
			OptionIndex:   in.req.OptionIndex,
			ElapsedMs:     in.req.ElapsedMs,
			Timeout:       in.timeout,
		}
	}
	if err := o.journal.Save(snap); err != nil {
		o.log.Warn("session %s · save snapshot: %v", o.session.ID, err)
	}
}

func (o *Orchestrator) answeredIndices() []int {
	out := make([]int, 0, len(o.answers))
	for idx := range o.answers {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Answers returns the recorded verdicts in question order.
func (o *Orchestrator) Answers() []AnswerResult {
	indices := o.answeredIndices()
	out := make([]AnswerResult, 0, len(indices))
	for _, idx := range indices {
		out = append(out, o.answers[idx])
	}
	return out
}
