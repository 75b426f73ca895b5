// internal/tui/app.go
//
// This is the terminal UI for the trivia client. It uses bubbletea, which
// follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The session orchestrator and the operation poller are sub-models: the App
// forwards every message to the active view, and each view forwards it to the
// core component it wraps.

package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/trivia-terminal/internal/api"
	"github.com/kingrea/trivia-terminal/internal/clock"
	"github.com/kingrea/trivia-terminal/internal/config"
	"github.com/kingrea/trivia-terminal/internal/lock"
	"github.com/kingrea/trivia-terminal/internal/logbook"
	"github.com/kingrea/trivia-terminal/internal/operation"
	"github.com/kingrea/trivia-terminal/internal/session"
)

// appState represents which "screen" we're on
type appState int

const (
	stateMainMenu       appState = iota // Main menu with "Play", "Resume", etc.
	stateCategorySelect                 // Category picker before a session starts
	stateSession                        // A session orchestrator is mounted
	stateOperation                      // A mint or forge is being tracked
)

const requestTimeout = 15 * time.Second

// Backend is everything the UI needs from the server.
type Backend interface {
	session.Backend
	operation.Initiator
	operation.StatusSource
	ListCategories(ctx context.Context) ([]api.Category, error)
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithBackend replaces the HTTP client built from config.
func WithBackend(b Backend) AppOption {
	return func(a *App) {
		if b != nil {
			a.backend = b
		}
	}
}

// WithLockManager replaces the on-disk lock manager.
func WithLockManager(m *lock.Manager) AppOption {
	return func(a *App) {
		if m != nil {
			a.locks = m
		}
	}
}

// WithClock drives countdowns, dwell timers, polling and the spinner.
func WithClock(c clock.Clock) AppOption {
	return func(a *App) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithLogbook routes activity into lb instead of the configured log file.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) { a.logbook = lb }
}

// WithForge opens the App tracking a forge of tokenIDs.
func WithForge(tokenIDs []string) AppOption {
	return func(a *App) { a.pendingForge = append([]string(nil), tokenIDs...) }
}

type categoriesMsg struct {
	categories []api.Category
	err        error
}

type operationStartedMsg struct {
	op  operation.Operation
	err error
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	state   appState
	config  *config.Config
	backend Backend
	locks   *lock.Manager
	journal *session.Journal
	clock   clock.Clock
	logbook *logbook.Logbook

	sessionView   *sessionView
	operationView *operationView
	categories    []api.Category
	categoryMenu  list.Model
	mainMenu      list.Model
	lastResult    *session.Result
	pendingForge  []string
	startingOp    bool

	statusMsg string
	err       error

	width  int
	height int
}

// menuItem implements list.Item interface for our menu items
type menuItem struct {
	title string
	desc  string
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

type categoryItem struct {
	category api.Category
}

func (i categoryItem) Title() string { return i.category.Name }
func (i categoryItem) Description() string {
	desc := fmt.Sprintf("%d questions", i.category.QuestionCount)
	if d := strings.TrimSpace(i.category.Description); d != "" {
		desc = d + " · " + desc
	}
	return desc
}
func (i categoryItem) FilterValue() string { return i.category.ID }

// NewApp creates a new App instance
func NewApp(cfg *config.Config, opts ...AppOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("tui: config is required")
	}
	app := &App{
		state:  stateMainMenu,
		config: cfg,
		clock:  clock.Real(),
	}
	if lb, err := logbook.New(cfg.LogPath()); err == nil {
		app.logbook = lb
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	if app.backend == nil {
		client, err := api.New(cfg.Project.API.BaseURL,
			api.WithToken(cfg.Project.API.Token),
			api.WithTimeout(cfg.Project.API.Timeout),
			api.WithLogger(app.logbook.Component("api")))
		if err != nil {
			return nil, err
		}
		app.backend = client
	}
	if app.locks == nil {
		store, err := lock.NewDirStorage(cfg.StateDir())
		if err != nil {
			return nil, err
		}
		app.locks = lock.NewManager(store, lock.WithPolicy(cfg.LockPolicy()))
	}
	app.journal = session.NewJournal(app.locks.Storage())

	app.mainMenu = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	app.mainMenu.Title = "◆ TRIVIA"
	app.mainMenu.SetShowStatusBar(false)
	app.mainMenu.SetFilteringEnabled(false)
	app.categoryMenu = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	app.categoryMenu.Title = "Pick a Category"
	app.categoryMenu.SetShowStatusBar(false)
	app.categoryMenu.SetFilteringEnabled(false)
	app.refreshMainMenu()
	app.logInfo("Client opened · backend %s", cfg.Project.API.BaseURL)
	return app, nil
}

func (a *App) refreshMainMenu() {
	items := []list.Item{}
	record, held, err := a.locks.Peek()
	if err != nil {
		a.statusMsg = fmt.Sprintf("Session lock unreadable: %v", err)
	}
	if held {
		items = append(items, menuItem{
			title: fmt.Sprintf("Resume Session (%s)", a.categoryName(record.CategoryID)),
			desc:  fmt.Sprintf("Session %s started %s", shortID(record.SessionID), record.AcquiredAt.Local().Format("Jan 2 15:04")),
		})
	}
	items = append(items, menuItem{title: "Play", desc: "Start a timed session"})
	if a.lastResult != nil && a.lastResult.EligibilityID != "" {
		items = append(items, menuItem{title: "Mint Reward", desc: "Mint the token earned by your last perfect run"})
	}
	if held || err != nil {
		items = append(items, menuItem{title: "Clear Session Lock", desc: "Forget the in-progress session on this machine"})
	}
	items = append(items, menuItem{title: "Exit", desc: "Quit trivia"})
	a.mainMenu.SetItems(items)
}

func (a *App) categoryName(id string) string {
	for _, c := range a.categories {
		if c.ID == id {
			return c.Name
		}
	}
	return id
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logError(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Error(format, args...)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.fetchCategories()}
	if len(a.pendingForge) > 0 {
		ids := a.pendingForge
		a.pendingForge = nil
		cmds = append(cmds, a.startForge(ids))
	}
	return tea.Batch(cmds...)
}

func (a *App) fetchCategories() tea.Cmd {
	backend := a.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		cats, err := backend.ListCategories(ctx)
		return categoriesMsg{categories: cats, err: err}
	}
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.mainMenu.SetSize(max(0, msg.Width-6), max(0, msg.Height-14))
		a.categoryMenu.SetSize(max(0, msg.Width-6), max(0, msg.Height-14))
		return a, nil

	case categoriesMsg:
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Could not load categories: %v", msg.err)
			a.logError("Categories unavailable: %v", msg.err)
			return a, nil
		}
		a.categories = msg.categories
		items := make([]list.Item, len(msg.categories))
		for i, c := range msg.categories {
			items[i] = categoryItem{category: c}
		}
		a.categoryMenu.SetItems(items)
		a.refreshMainMenu()
		return a, nil

	case operationStartedMsg:
		a.startingOp = false
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Could not start operation: %v", msg.err)
			a.logError("Operation start failed: %v", msg.err)
			return a, nil
		}
		if msg.op.Kind == operation.KindMint && a.lastResult != nil {
			a.lastResult.EligibilityID = ""
		}
		return a.openOperation(msg.op)

	case session.CompletedMsg:
		res := msg.Result
		a.lastResult = &res

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			a.teardown()
			return a, tea.Quit
		case "q":
			if a.state == stateMainMenu {
				return a, tea.Quit
			}
		case "esc":
			if a.state == stateCategorySelect {
				return a.returnToMainMenu()
			}
		case "enter":
			switch a.state {
			case stateMainMenu:
				return a.handleMainMenuSelection()
			case stateCategorySelect:
				return a.confirmCategory()
			}
		}
	}

	var cmds []tea.Cmd
	switch a.state {
	case stateMainMenu:
		var menuCmd tea.Cmd
		a.mainMenu, menuCmd = a.mainMenu.Update(msg)
		cmds = append(cmds, menuCmd)
	case stateCategorySelect:
		var menuCmd tea.Cmd
		a.categoryMenu, menuCmd = a.categoryMenu.Update(msg)
		cmds = append(cmds, menuCmd)
	case stateSession:
		if a.sessionView != nil {
			cmds = append(cmds, a.sessionView.Update(msg))
		}
	case stateOperation:
		if a.operationView != nil {
			cmds = append(cmds, a.operationView.Update(msg))
		}
	}
	return a, tea.Batch(cmds...)
}

// handleMainMenuSelection processes menu item selection
func (a *App) handleMainMenuSelection() (tea.Model, tea.Cmd) {
	item, ok := a.mainMenu.SelectedItem().(menuItem)
	if !ok {
		return a, nil
	}
	switch {
	case strings.HasPrefix(item.title, "Resume Session"):
		record, held, err := a.locks.Peek()
		if err != nil || !held {
			a.statusMsg = "No session to resume"
			a.refreshMainMenu()
			return a, nil
		}
		a.logInfo("Menu · Resume Session selected (%s)", record.SessionID)
		return a.openSession(record.CategoryID)
	case item.title == "Play":
		if len(a.categories) == 0 {
			a.statusMsg = "Categories are still loading..."
			return a, a.fetchCategories()
		}
		a.state = stateCategorySelect
		a.statusMsg = "Enter → start    Esc → back"
		return a, nil
	case item.title == "Mint Reward":
		if a.lastResult == nil || a.lastResult.EligibilityID == "" {
			return a, nil
		}
		return a, a.startMint(a.lastResult.EligibilityID)
	case item.title == "Clear Session Lock":
		if err := a.locks.ForceClear(); err != nil {
			a.statusMsg = fmt.Sprintf("Clear failed: %v", err)
			a.logError("Force clear failed: %v", err)
		} else {
			a.statusMsg = "Session lock cleared"
			a.logInfo("Menu · session lock force-cleared")
		}
		a.refreshMainMenu()
		return a, nil
	case item.title == "Exit":
		return a, tea.Quit
	}
	return a, nil
}

func (a *App) confirmCategory() (tea.Model, tea.Cmd) {
	item, ok := a.categoryMenu.SelectedItem().(categoryItem)
	if !ok {
		return a, nil
	}
	a.logInfo("Category · %s selected", item.category.ID)
	return a.openSession(item.category.ID)
}

func (a *App) openSession(categoryID string) (tea.Model, tea.Cmd) {
	a.state = stateSession
	a.statusMsg = ""
	a.sessionView = newSessionView(a, categoryID)
	return a, a.sessionView.Init()
}

func (a *App) openOperation(op operation.Operation) (tea.Model, tea.Cmd) {
	a.state = stateOperation
	a.statusMsg = ""
	a.operationView = newOperationView(a, op)
	return a, a.operationView.Init()
}

func (a *App) startMint(eligibilityID string) tea.Cmd {
	wallet := a.config.WalletAddress()
	if wallet == "" {
		a.statusMsg = "Set a wallet first: trivia wallet <address>"
		return nil
	}
	if a.startingOp {
		return nil
	}
	a.startingOp = true
	a.statusMsg = "Requesting mint..."
	backend := a.backend
	req := operation.MintRequest{EligibilityID: eligibilityID, WalletAddress: wallet}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		op, err := backend.InitiateMint(ctx, req)
		return operationStartedMsg{op: op, err: err}
	}
}

func (a *App) startForge(tokenIDs []string) tea.Cmd {
	wallet := a.config.WalletAddress()
	if wallet == "" {
		a.statusMsg = "Set a wallet first: trivia wallet <address>"
		return nil
	}
	a.startingOp = true
	a.statusMsg = "Requesting forge..."
	backend := a.backend
	req := operation.ForgeRequest{WalletAddress: wallet, TokenIDs: tokenIDs}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		op, err := backend.InitiateForge(ctx, req)
		return operationStartedMsg{op: op, err: err}
	}
}

// returnToMainMenu unmounts whatever view is active. A session that was not
// finished keeps its lock so it can be resumed.
func (a *App) returnToMainMenu() (tea.Model, tea.Cmd) {
	a.teardown()
	a.state = stateMainMenu
	a.refreshMainMenu()
	return a, nil
}

func (a *App) teardown() {
	if a.sessionView != nil {
		a.sessionView.Close()
		a.sessionView = nil
	}
	if a.operationView != nil {
		a.operationView.Close()
		a.operationView = nil
	}
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 80
	}
	var content string
	switch a.state {
	case stateMainMenu:
		content = a.mainMenu.View()
	case stateCategorySelect:
		content = a.categoryMenu.View()
	case stateSession:
		if a.sessionView != nil {
			content = a.sessionView.View(width - 6)
		}
	case stateOperation:
		if a.operationView != nil {
			content = a.operationView.View(width - 6)
		}
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("◆ TRIVIA")
	body := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, width-2)).
		Render(content)
	sections := []string{header, body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s · %d entries", fileName, total))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
