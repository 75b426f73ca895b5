package operation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kingrea/trivia-terminal/internal/clock"
)

type scriptedSource struct {
	responses []scriptedResponse
	calls     int
	ids       []string
}

type scriptedResponse struct {
	op  Operation
	err error
}

func (s *scriptedSource) OperationStatus(_ context.Context, kind Kind, id string) (Operation, error) {
	s.calls++
	s.ids = append(s.ids, id)
	if len(s.responses) == 0 {
		return Operation{ID: id, Kind: kind, Status: StatusPending}, nil
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	resp := s.responses[idx]
	return resp.op, resp.err
}

func pending(p Progress) scriptedResponse {
	return scriptedResponse{op: Operation{ID: "op1", Status: StatusPending, Progress: p}}
}

func newPollerHarness(t *testing.T, source StatusSource, kind Kind, opts ...Option) (*Poller, *clock.Loop, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Time{})
	base := []Option{WithClock(fake), WithInterval(3 * time.Second)}
	p := New(source, kind, "op1", append(base, opts...)...)
	loop := clock.NewLoop(fake, p.Update)
	return p, loop, fake
}

func TestPollerConfirmsAndStopsPolling(t *testing.T) {
	source := &scriptedSource{responses: []scriptedResponse{
		pending(Progress{}),
		pending(Progress{TxHash: "abc"}),
		{op: Operation{ID: "op1", Status: StatusConfirmed, Progress: Progress{TxHash: "abc"}}},
	}}
	p, loop, fake := newPollerHarness(t, source, KindMint)
	loop.Run(p.Start())
	if source.calls != 1 {
		t.Fatalf("expected immediate first poll, got %d calls", source.calls)
	}
	loop.Advance(3 * time.Second)
	if got := p.Operation().TxHash; got != "abc" {
		t.Fatalf("txHash = %q, want abc", got)
	}
	loop.Advance(3 * time.Second)
	if !p.Done() || p.Operation().Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %+v", p.Operation())
	}
	if p.Operation().TxHash != "abc" {
		t.Fatalf("txHash lost on confirmation")
	}
	loop.Advance(30 * time.Second)
	if source.calls != 3 {
		t.Fatalf("status calls = %d after confirmation, want 3", source.calls)
	}
	if fake.ActiveTimers() != 0 {
		t.Fatalf("poll timer still armed after confirmation")
	}
	done := clock.Collect[DoneMsg](loop)
	if len(done) != 1 || done[0].Err != nil {
		t.Fatalf("expected one successful DoneMsg, got %+v", done)
	}
}

func TestPollerAbsorbsTransientErrors(t *testing.T) {
	source := &scriptedSource{responses: []scriptedResponse{
		pending(Progress{}),
		{err: errors.New("connection reset")},
		pending(Progress{TxHash: "abc"}),
	}}
	p, loop, _ := newPollerHarness(t, source, KindMint)
	loop.Run(p.Start())
	loop.Advance(3 * time.Second)
	if p.Operation().Status != StatusPending {
		t.Fatalf("transient error changed status to %s", p.Operation().Status)
	}
	if p.LastError() == nil {
		t.Fatalf("expected last error to be recorded")
	}
	loop.Advance(3 * time.Second)
	if p.Operation().TxHash != "abc" {
		t.Fatalf("progress did not advance after recovery: %+v", p.Operation())
	}
	if p.LastError() != nil {
		t.Fatalf("successful poll should clear last error")
	}
	if p.Done() {
		t.Fatalf("poller should still be pending")
	}
}

func TestPollerFieldsAndStepNeverRegress(t *testing.T) {
	source := &scriptedSource{responses: []scriptedResponse{
		pending(Progress{MintTxHash: "mint-1"}),
		pending(Progress{BurnTxHash: "burn-1"}),
		pending(Progress{}),
		{op: Operation{ID: "op1", Status: StatusPending}},
	}}
	p, loop, _ := newPollerHarness(t, source, KindForge)
	loop.Run(p.Start())
	if got := p.Step(); got != 2 {
		t.Fatalf("mint hash alone should imply step 2, got %d", got)
	}
	last := p.Step()
	for i := 0; i < 3; i++ {
		loop.Advance(3 * time.Second)
		if p.Step() < last {
			t.Fatalf("step regressed from %d to %d", last, p.Step())
		}
		last = p.Step()
	}
	op := p.Operation()
	if op.MintTxHash != "mint-1" || op.BurnTxHash != "burn-1" {
		t.Fatalf("observed fields were cleared: %+v", op.Progress)
	}
}

func TestPollerFailureIsTerminal(t *testing.T) {
	source := &scriptedSource{responses: []scriptedResponse{
		{op: Operation{ID: "op1", Status: StatusFailed, Error: "chain rejected transaction"}},
	}}
	notified := 0
	p, loop, _ := newPollerHarness(t, source, KindMint, WithOnDone(func(DoneMsg) { notified++ }))
	loop.Run(p.Start())
	loop.Advance(time.Minute)
	if source.calls != 1 {
		t.Fatalf("status calls = %d, want 1", source.calls)
	}
	var failure *FailureError
	if !errors.As(p.Failure(), &failure) {
		t.Fatalf("expected FailureError, got %v", p.Failure())
	}
	if failure.ID != "op1" || failure.Message != "chain rejected transaction" {
		t.Fatalf("unexpected failure detail: %+v", failure)
	}
	p.Cancel()
	if notified != 1 {
		t.Fatalf("onDone fired %d times", notified)
	}
}

func TestPollerCancelStopsFurtherCalls(t *testing.T) {
	source := &scriptedSource{}
	p, loop, fake := newPollerHarness(t, source, KindMint)
	loop.Run(p.Start())
	loop.Advance(3 * time.Second)
	p.Cancel()
	p.Cancel()
	loop.Advance(time.Minute)
	if source.calls != 2 {
		t.Fatalf("status calls = %d after cancel, want 2", source.calls)
	}
	if fake.ActiveTimers() != 0 {
		t.Fatalf("timer survived cancel")
	}
	if !p.Cancelled() || p.Done() {
		t.Fatalf("cancelled=%v done=%v", p.Cancelled(), p.Done())
	}
}

func TestPollerNeverOverlapsRequests(t *testing.T) {
	source := &scriptedSource{}
	p, loop, _ := newPollerHarness(t, source, KindMint)
	loop.Hold()
	loop.Run(p.Start())
	loop.Advance(time.Minute)
	if source.calls != 0 {
		t.Fatalf("held request should not have run, calls=%d", source.calls)
	}
	loop.Release()
	if source.calls != 1 {
		t.Fatalf("only one request may be outstanding, calls=%d", source.calls)
	}
}

func TestPollerDropsResponsesAfterCancel(t *testing.T) {
	source := &scriptedSource{responses: []scriptedResponse{pending(Progress{TxHash: "late"})}}
	p, loop, _ := newPollerHarness(t, source, KindMint)
	loop.Hold()
	loop.Run(p.Start())
	p.Cancel()
	loop.Release()
	if p.Operation().TxHash != "" {
		t.Fatalf("response delivered after cancel was applied")
	}
	if got := p.Update(pollDueMsg{owner: p.owner, gen: p.gen - 1}); got != nil {
		t.Fatalf("stale poll message produced a command")
	}
	if p.Start() != nil {
		t.Fatalf("start after cancel should be a no-op")
	}
}

func TestDeriveStepUsesHighestEvidence(t *testing.T) {
	cases := []struct {
		kind     Kind
		status   Status
		progress Progress
		want     int
	}{
		{KindMint, StatusPending, Progress{}, 0},
		{KindMint, StatusPending, Progress{TxHash: "a"}, 1},
		{KindMint, StatusPending, Progress{TokenID: "7"}, 2},
		{KindForge, StatusPending, Progress{TokenID: "7"}, 3},
		{KindForge, StatusConfirmed, Progress{}, len(forgeSteps)},
	}
	for _, tc := range cases {
		if got := DeriveStep(tc.kind, tc.status, tc.progress); got != tc.want {
			t.Fatalf("DeriveStep(%s, %s, %+v) = %d, want %d", tc.kind, tc.status, tc.progress, got, tc.want)
		}
	}
}
