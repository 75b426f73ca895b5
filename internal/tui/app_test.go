package tui

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/trivia-terminal/internal/api"
	"github.com/kingrea/trivia-terminal/internal/clock"
	"github.com/kingrea/trivia-terminal/internal/config"
	"github.com/kingrea/trivia-terminal/internal/devserver"
	"github.com/kingrea/trivia-terminal/internal/lock"
	"github.com/kingrea/trivia-terminal/internal/logbook"
	"github.com/kingrea/trivia-terminal/internal/operation"
	"github.com/kingrea/trivia-terminal/internal/session"
)

type testHarness struct {
	app   *App
	loop  *clock.Loop
	fake  *clock.Fake
	locks *lock.Manager
}

func newTestApp(t *testing.T, questions int, store lock.Storage) *testHarness {
	t.Helper()
	for _, key := range []string{"TRIVIA_API_URL", "TRIVIA_API_TOKEN", "TRIVIA_RECOVERY", "TRIVIA_WALLET"} {
		t.Setenv(key, "")
	}
	srv, err := devserver.NewServer(devserver.Settings{QuestionsPerSession: questions})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	client, err := api.New(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	home := t.TempDir()
	cfg, err := config.NewConfig(home)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Project.Wallet.Address = "0xabc"
	lb, err := logbook.New(filepath.Join(home, "logs", "journey.log"))
	if err != nil {
		t.Fatal(err)
	}
	if store == nil {
		store = lock.NewMemoryStorage()
	}
	fake := clock.NewFake(time.Time{})
	locks := lock.NewManager(store)
	app, err := NewApp(cfg, WithBackend(client), WithLockManager(locks), WithClock(fake), WithLogbook(lb))
	if err != nil {
		t.Fatal(err)
	}
	loop := clock.NewLoop(fake, func(msg tea.Msg) tea.Cmd {
		model, cmd := app.Update(msg)
		if model.(*App) != app {
			t.Fatalf("unexpected model %T", model)
		}
		return cmd
	})
	loop.Run(app.Init())
	if len(app.categories) == 0 {
		t.Fatalf("categories not loaded: %s", app.statusMsg)
	}
	return &testHarness{app: app, loop: loop, fake: fake, locks: locks}
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func (h *testHarness) press(keys ...string) {
	for _, k := range keys {
		h.loop.Send(keyPress(k))
	}
}

func (h *testHarness) orch(t *testing.T) *session.Orchestrator {
	t.Helper()
	if h.app.sessionView == nil {
		t.Fatalf("no session mounted (state %d, status %q)", h.app.state, h.app.statusMsg)
	}
	return h.app.sessionView.orch
}

func TestPlayLeaveAndResume(t *testing.T) {
	h := newTestApp(t, 3, nil)
	h.press("enter")
	if h.app.state != stateCategorySelect {
		t.Fatalf("state = %d, want category select", h.app.state)
	}
	h.press("enter")
	o := h.orch(t)
	if o.Phase() != session.PhaseStart {
		t.Fatalf("phase = %s err %v", o.Phase(), o.Err())
	}
	id := o.Session().ID
	h.press("enter", "3")
	if o.Phase() != session.PhaseFeedback {
		t.Fatalf("phase after answer = %s", o.Phase())
	}
	if !strings.Contains(h.app.View(), "Question 1/3") {
		t.Fatalf("view missing question header:\n%s", h.app.View())
	}

	h.press("esc")
	if h.app.state != stateMainMenu || h.app.sessionView != nil {
		t.Fatalf("esc did not unmount the session")
	}
	if !o.Closed() || h.fake.ActiveTimers() != 0 {
		t.Fatalf("closed %v, timers %d", o.Closed(), h.fake.ActiveTimers())
	}
	record, held, _ := h.locks.Peek()
	if !held || record.SessionID != id {
		t.Fatalf("lock not kept for resume: %+v", record)
	}
	first, ok := h.app.mainMenu.SelectedItem().(menuItem)
	if !ok || !strings.HasPrefix(first.title, "Resume Session") {
		t.Fatalf("first menu item = %+v", first)
	}

	h.press("enter")
	resumed := h.orch(t)
	if resumed.Session().ID != id || resumed.Index() != 1 || resumed.Phase() != session.PhaseStart {
		t.Fatalf("resumed %s at %d in %s", resumed.Session().ID, resumed.Index(), resumed.Phase())
	}
	if resumed.AnswerCalls() != 0 {
		t.Fatalf("resume issued answers")
	}
}

func TestPerfectRunMintsReward(t *testing.T) {
	h := newTestApp(t, 1, nil)
	h.press("enter", "enter", "enter", "3")
	o := h.orch(t)
	h.loop.Advance(2 * time.Second)
	if o.Phase() != session.PhaseFinished {
		t.Fatalf("phase = %s err %v", o.Phase(), o.Err())
	}
	if h.app.lastResult == nil || h.app.lastResult.EligibilityID == "" {
		t.Fatalf("no eligibility recorded: %+v", h.app.lastResult)
	}
	if _, held, _ := h.locks.Peek(); held {
		t.Fatalf("lock survived completion")
	}

	h.press("m")
	if h.app.state != stateOperation || h.app.operationView == nil {
		t.Fatalf("mint did not open operation view: %q", h.app.statusMsg)
	}
	view := h.app.operationView
	for i := 0; i < 5 && view.done == nil; i++ {
		h.loop.Advance(3 * time.Second)
	}
	if view.done == nil || view.done.Err != nil {
		t.Fatalf("mint did not confirm: %+v", view.poller.Operation())
	}
	if view.poller.Step() != len(operation.Steps(operation.KindMint)) {
		t.Fatalf("step = %d", view.poller.Step())
	}
	if h.fake.ActiveTimers() != 0 {
		t.Fatalf("timers still armed after confirmation: %d", h.fake.ActiveTimers())
	}
	if !strings.Contains(h.app.View(), "token #") {
		t.Fatalf("view missing token id:\n%s", h.app.View())
	}
	h.press("esc")
	for _, item := range h.app.mainMenu.Items() {
		if item.(menuItem).title == "Mint Reward" {
			t.Fatalf("reward still offered after minting")
		}
	}
}

func TestClearSessionLockFromMenu(t *testing.T) {
	h := newTestApp(t, 3, nil)
	h.press("enter", "enter", "esc")
	if _, held, _ := h.locks.Peek(); !held {
		t.Fatalf("expected a held lock")
	}
	for i, item := range h.app.mainMenu.Items() {
		if item.(menuItem).title == "Clear Session Lock" {
			h.app.mainMenu.Select(i)
		}
	}
	h.press("enter")
	if _, held, _ := h.locks.Peek(); held {
		t.Fatalf("lock not cleared")
	}
	if first := h.app.mainMenu.Items()[0].(menuItem); first.title != "Play" {
		t.Fatalf("menu not refreshed, first item %q", first.title)
	}
}

func TestLeavingOperationCancelsPolling(t *testing.T) {
	h := newTestApp(t, 3, nil)
	h.loop.Run(h.app.startForge([]string{"1", "2"}))
	view := h.app.operationView
	if view == nil {
		t.Fatalf("forge did not open operation view: %q", h.app.statusMsg)
	}
	polls := view.poller.Polls()
	h.press("esc")
	if !view.poller.Cancelled() || h.fake.ActiveTimers() != 0 {
		t.Fatalf("cancelled %v timers %d", view.poller.Cancelled(), h.fake.ActiveTimers())
	}
	h.loop.Advance(time.Minute)
	if view.poller.Polls() != polls {
		t.Fatalf("polling continued after leaving the view")
	}
}
