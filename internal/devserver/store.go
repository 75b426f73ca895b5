package devserver

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/trivia-terminal/internal/operation"
	"github.com/kingrea/trivia-terminal/internal/session"
)

// ZeroWallet is rejected by the simulated chain after the first step.
const ZeroWallet = "0x0000000000000000000000000000000000000000"

// EligibilityTTL bounds how long a won session can be redeemed.
const EligibilityTTL = 24 * time.Hour

var (
	errNotFound    = errors.New("not found")
	errConflict    = errors.New("conflict")
	errBadRequest  = errors.New("bad request")
	errUnavailable = errors.New("gone")
)

type storeError struct {
	kind error
	code string
	msg  string
}

func (e *storeError) Error() string { return e.msg }
func (e *storeError) Unwrap() error { return e.kind }

func fail(kind error, code, format string, args ...any) error {
	return &storeError{kind: kind, code: code, msg: fmt.Sprintf(format, args...)}
}

type sessionState struct {
	session   session.Session
	answers   []BankQuestion
	verdicts  map[int]session.AnswerResult
	chosen    map[int]int
	elapsedMs int64
	result    *session.Result
}

type eligibility struct {
	id        string
	sessionID string
	expiresAt time.Time
	redeemed  bool
}

type operationState struct {
	op     operation.Operation
	reads  int
	wallet string
}

// store is the in-memory backend state. Nothing survives a restart.
type store struct {
	bank      Bank
	perRun    int
	clock     func() time.Time
	newID     func() string
	mu        sync.Mutex
	sessions  map[string]*sessionState
	eligible  map[string]*eligibility
	ops       map[string]*operationState
	nextToken int
}

func newStore(bank Bank, perRun int, clock func() time.Time) *store {
	return &store{
		bank:      bank,
		perRun:    perRun,
		clock:     clock,
		newID:     uuid.NewString,
		sessions:  map[string]*sessionState{},
		eligible:  map[string]*eligibility{},
		ops:       map[string]*operationState{},
		nextToken: 1,
	}
}

func (s *store) categories() []categoryView {
	out := make([]categoryView, 0, len(s.bank.Categories))
	for _, cat := range s.bank.Categories {
		count := len(cat.Questions)
		if s.perRun > 0 && count > s.perRun {
			count = s.perRun
		}
		out = append(out, categoryView{ID: cat.ID, Name: cat.Name, Description: cat.Description, QuestionCount: count})
	}
	return out
}

func (s *store) start(categoryID string) (session.Session, error) {
	cat, ok := s.bank.Category(strings.ToLower(strings.TrimSpace(categoryID)))
	if !ok {
		return session.Session{}, fail(errNotFound, "unknown_category", "unknown category %q", categoryID)
	}
	questions := cat.Questions
	if s.perRun > 0 && len(questions) > s.perRun {
		questions = questions[:s.perRun]
	}
	sess := session.Session{ID: s.newID(), CategoryID: cat.ID}
	for i, q := range questions {
		sess.Questions = append(sess.Questions, session.Question{
			ID:      fmt.Sprintf("%s-%d", cat.ID, i+1),
			Text:    q.Text,
			Options: append([]string(nil), q.Options...),
		})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = &sessionState{
		session:  sess,
		answers:  questions,
		verdicts: map[int]session.AnswerResult{},
		chosen:   map[int]int{},
	}
	return sess, nil
}

func (s *store) answer(req session.AnswerRequest) (session.AnswerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[req.SessionID]
	if !ok {
		return session.AnswerResult{}, fail(errNotFound, "unknown_session", "unknown session %q", req.SessionID)
	}
	if st.result != nil {
		return session.AnswerResult{}, fail(errConflict, "session_completed", "session %s is already complete", req.SessionID)
	}
	if req.QuestionIndex < 0 || req.QuestionIndex >= len(st.answers) {
		return session.AnswerResult{}, fail(errBadRequest, "bad_question_index", "question index %d out of range", req.QuestionIndex)
	}
	if prev, done := st.verdicts[req.QuestionIndex]; done {
		// A client that lost the response resends the same choice.
		if st.chosen[req.QuestionIndex] == req.OptionIndex {
			return prev, nil
		}
		return session.AnswerResult{}, fail(errConflict, "already_answered", "question %d already answered", req.QuestionIndex)
	}
	q := st.answers[req.QuestionIndex]
	if req.OptionIndex != session.TimeoutOption && (req.OptionIndex < 0 || req.OptionIndex >= len(q.Options)) {
		return session.AnswerResult{}, fail(errBadRequest, "bad_option_index", "option index %d out of range", req.OptionIndex)
	}
	res := session.AnswerResult{
		Correct:      req.OptionIndex == q.Answer,
		CorrectIndex: q.Answer,
		Explanation:  q.Explanation,
	}
	st.verdicts[req.QuestionIndex] = res
	st.chosen[req.QuestionIndex] = req.OptionIndex
	if req.ElapsedMs > 0 {
		st.elapsedMs += req.ElapsedMs
	}
	return res, nil
}

func (s *store) complete(sessionID string) (session.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return session.Result{}, fail(errNotFound, "unknown_session", "unknown session %q", sessionID)
	}
	if st.result != nil {
		return *st.result, nil
	}
	res := session.Result{SessionID: sessionID, Total: len(st.answers), ElapsedMs: st.elapsedMs}
	for _, v := range st.verdicts {
		if v.Correct {
			res.Score++
		}
	}
	res.Won = res.Perfect()
	if res.Won {
		expires := s.clock().Add(EligibilityTTL).UTC()
		el := &eligibility{id: s.newID(), sessionID: sessionID, expiresAt: expires}
		s.eligible[el.id] = el
		res.EligibilityID = el.id
		res.EligibilityExpiresAt = &expires
	}
	st.result = &res
	return res, nil
}

func (s *store) mint(req operation.MintRequest) (operation.Operation, error) {
	wallet := strings.TrimSpace(req.WalletAddress)
	if wallet == "" {
		return operation.Operation{}, fail(errBadRequest, "wallet_required", "walletAddress is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.eligible[req.EligibilityID]
	if !ok {
		return operation.Operation{}, fail(errNotFound, "unknown_eligibility", "unknown eligibility %q", req.EligibilityID)
	}
	if el.redeemed {
		return operation.Operation{}, fail(errConflict, "eligibility_redeemed", "eligibility %s was already redeemed", el.id)
	}
	if s.clock().After(el.expiresAt) {
		return operation.Operation{}, fail(errUnavailable, "eligibility_expired", "eligibility %s expired at %s", el.id, el.expiresAt.Format(time.RFC3339))
	}
	el.redeemed = true
	return s.createLocked(operation.KindMint, wallet), nil
}

func (s *store) forge(req operation.ForgeRequest) (operation.Operation, error) {
	wallet := strings.TrimSpace(req.WalletAddress)
	if wallet == "" {
		return operation.Operation{}, fail(errBadRequest, "wallet_required", "walletAddress is required")
	}
	if len(req.TokenIDs) < 2 {
		return operation.Operation{}, fail(errBadRequest, "not_enough_tokens", "forging needs at least two tokens, got %d", len(req.TokenIDs))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(operation.KindForge, wallet), nil
}

func (s *store) createLocked(kind operation.Kind, wallet string) operation.Operation {
	op := operation.Operation{ID: s.newID(), Kind: kind, Status: operation.StatusPending, UpdatedAt: s.clock().UTC()}
	s.ops[op.ID] = &operationState{op: op, wallet: wallet}
	return op
}

// status advances the simulated chain by one step per read.
func (s *store) status(kind operation.Kind, id string) (operation.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.ops[id]
	if !ok || st.op.Kind != kind {
		return operation.Operation{}, fail(errNotFound, "unknown_operation", "unknown %s %q", kind, id)
	}
	if st.op.Status.Terminal() {
		return st.op, nil
	}
	st.reads++
	op := &st.op
	op.UpdatedAt = s.clock().UTC()
	if st.wallet == ZeroWallet && st.reads > 1 {
		op.Status = operation.StatusFailed
		op.Error = "cannot transfer to the zero address"
		return *op, nil
	}
	switch kind {
	case operation.KindMint:
		switch st.reads {
		case 1:
		case 2:
			op.TxHash = s.txHash()
		default:
			op.TokenID = s.tokenID()
			op.Status = operation.StatusConfirmed
		}
	case operation.KindForge:
		switch st.reads {
		case 1:
		case 2:
			op.BurnTxHash = s.txHash()
		case 3:
			op.MintTxHash = s.txHash()
		default:
			op.TokenID = s.tokenID()
			op.Status = operation.StatusConfirmed
		}
	}
	return *op, nil
}

func (s *store) txHash() string {
	return "0x" + strings.ReplaceAll(s.newID(), "-", "")
}

func (s *store) tokenID() string {
	id := fmt.Sprintf("%d", s.nextToken)
	s.nextToken++
	return id
}
