package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/trivia-terminal/internal/session"
)

var (
	correctStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	wrongStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	timeoutStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).MarginTop(1)
)

type sessionKeys struct {
	Begin   key.Binding
	Answer  key.Binding
	Next    key.Binding
	Retry   key.Binding
	Abandon key.Binding
	Mint    key.Binding
	Back    key.Binding
}

var sessionKeyMap = sessionKeys{
	Begin:   key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "begin")),
	Answer:  key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "answer")),
	Next:    key.NewBinding(key.WithKeys("enter", "n"), key.WithHelp("enter", "next")),
	Retry:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
	Abandon: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "abandon")),
	Mint:    key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mint reward")),
	Back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "menu")),
}

// sessionView mounts one orchestrator. Leaving the view closes it; the lock
// stays in place unless the session finished or was abandoned.
type sessionView struct {
	app        *App
	orch       *session.Orchestrator
	categoryID string
	bar        progress.Model
	result     *session.Result
	recovered  bool
}

func newSessionView(app *App, categoryID string) *sessionView {
	cfg := app.config.SessionConfig()
	orch := session.New(app.backend, app.locks, app.journal, categoryID,
		session.WithConfig(cfg),
		session.WithClock(app.clock),
		session.WithLogger(app.logbook.Component("session")),
	)
	return &sessionView{
		app:        app,
		orch:       orch,
		categoryID: categoryID,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

func (v *sessionView) Init() tea.Cmd {
	return v.orch.Init()
}

func (v *sessionView) Close() {
	v.orch.Close()
}

func (v *sessionView) Update(msg tea.Msg) tea.Cmd {
	switch m := msg.(type) {
	case session.RecoveredMsg:
		v.recovered = true
		v.app.statusMsg = fmt.Sprintf("Resumed at question %d", m.Index+1)
		return nil
	case session.FailedMsg:
		v.app.statusMsg = v.describeFailure(m)
		return nil
	case session.CompletedMsg:
		res := m.Result
		v.result = &res
		v.app.statusMsg = ""
		return nil
	case tea.KeyMsg:
		return v.handleKey(m)
	}
	return v.orch.Update(msg)
}

func (v *sessionView) handleKey(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, sessionKeyMap.Back) {
		_, cmd := v.app.returnToMainMenu()
		return cmd
	}
	if v.orch.Err() != nil {
		switch {
		case key.Matches(msg, sessionKeyMap.Retry):
			v.app.statusMsg = ""
			return v.orch.Retry()
		case key.Matches(msg, sessionKeyMap.Abandon):
			return v.abandon()
		}
		return nil
	}
	switch v.orch.Phase() {
	case session.PhaseStart:
		if key.Matches(msg, sessionKeyMap.Begin) {
			return v.orch.Begin()
		}
		if key.Matches(msg, sessionKeyMap.Abandon) {
			return v.abandon()
		}
	case session.PhaseQuestion:
		if key.Matches(msg, sessionKeyMap.Answer) {
			n, err := strconv.Atoi(msg.String())
			if err != nil {
				return nil
			}
			cmd, err := v.orch.Answer(n - 1)
			if err != nil {
				if errors.Is(err, session.ErrInvalidOption) {
					v.app.statusMsg = fmt.Sprintf("There is no option %d", n)
				}
				return nil
			}
			return cmd
		}
	case session.PhaseFeedback:
		if key.Matches(msg, sessionKeyMap.Next) {
			return v.orch.Next()
		}
	case session.PhaseFinished:
		if key.Matches(msg, sessionKeyMap.Mint) && v.result != nil && v.result.EligibilityID != "" {
			return v.app.startMint(v.result.EligibilityID)
		}
	}
	return nil
}

func (v *sessionView) abandon() tea.Cmd {
	if err := v.orch.Abandon(); err != nil {
		v.app.statusMsg = fmt.Sprintf("Abandon failed: %v", err)
		return nil
	}
	v.app.statusMsg = "Session abandoned"
	_, cmd := v.app.returnToMainMenu()
	return cmd
}

func (v *sessionView) describeFailure(m session.FailedMsg) string {
	if errors.Is(m.Err, session.ErrSessionInProgress) {
		return "Another session is in progress. x → abandon it    esc → back"
	}
	return fmt.Sprintf("%s failed: %v    r → retry    x → abandon", m.Op, m.Err)
}

func (v *sessionView) View(width int) string {
	o := v.orch
	sess := o.Session()
	switch o.Phase() {
	case session.PhaseLoading:
		if o.Err() != nil {
			return wrongStyle.Render("Could not start the session.") + "\n" + mutedStyle.Render(o.Err().Error())
		}
		return "Preparing your session..."
	case session.PhaseStart:
		verb := "Ready"
		if v.recovered {
			verb = "Welcome back"
		}
		lines := []string{
			selectedStyle.Render(fmt.Sprintf("%s · %s", verb, v.app.categoryName(sess.CategoryID))),
			fmt.Sprintf("Question %d of %d · %d seconds each", o.Index()+1, len(sess.Questions), int(o.Config().TickUnit.Seconds()*float64(o.Config().QuestionUnits))),
			hintStyle.Render("Enter → begin    x → abandon    Esc → menu"),
		}
		return strings.Join(lines, "\n")
	case session.PhaseQuestion, session.PhaseFeedback:
		return v.renderQuestion(width)
	case session.PhaseCompleting:
		if o.Err() != nil {
			return wrongStyle.Render("Could not submit your results.") + "\n" + mutedStyle.Render(o.Err().Error())
		}
		return "Tallying your score..."
	case session.PhaseFinished:
		return v.renderResult()
	case session.PhaseAbandoned:
		return "Session abandoned."
	}
	return ""
}

func (v *sessionView) renderQuestion(width int) string {
	o := v.orch
	q, ok := o.CurrentQuestion()
	if !ok {
		return ""
	}
	total := len(o.Session().Questions)
	units := o.Config().QuestionUnits
	header := mutedStyle.Render(fmt.Sprintf("Question %d/%d", o.Index()+1, total))
	v.bar.Width = max(10, width-12)
	countdown := fmt.Sprintf("%s %2ds", v.bar.ViewAs(float64(o.Remaining())/float64(units)), o.Remaining())

	fb, hasFeedback := o.Feedback()
	lines := []string{header, countdown, "", lipgloss.NewStyle().Bold(true).Width(max(20, width)).Render(q.Text), ""}
	for i, opt := range q.Options {
		line := fmt.Sprintf("  %d. %s", i+1, opt)
		switch {
		case hasFeedback && i == fb.Result.CorrectIndex:
			line = correctStyle.Render(line + "  ✓")
		case hasFeedback && i == fb.Selected:
			line = wrongStyle.Render(line + "  ✗")
		case !hasFeedback && o.Pending() && i == o.Selected():
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	switch {
	case hasFeedback && fb.IsTimeout:
		lines = append(lines, "", timeoutStyle.Render("Time's up!"))
	case hasFeedback && fb.Result.Correct:
		lines = append(lines, "", correctStyle.Render("Correct!"))
	case hasFeedback:
		lines = append(lines, "", wrongStyle.Render("Not quite."))
	case o.Pending():
		lines = append(lines, "", mutedStyle.Render("Checking..."))
	}
	if hasFeedback && strings.TrimSpace(fb.Result.Explanation) != "" {
		lines = append(lines, mutedStyle.Render(fb.Result.Explanation))
	}
	hint := "1-" + strconv.Itoa(len(q.Options)) + " → answer    Esc → menu"
	if hasFeedback {
		hint = "Enter → next    Esc → menu"
	}
	lines = append(lines, hintStyle.Render(hint))
	return strings.Join(lines, "\n")
}

func (v *sessionView) renderResult() string {
	res, ok := v.orch.Result()
	if !ok {
		return ""
	}
	style := wrongStyle
	if res.Perfect() {
		style = correctStyle
	}
	lines := []string{
		style.Render(fmt.Sprintf("You scored %d/%d", res.Score, res.Total)),
		mutedStyle.Render(fmt.Sprintf("Answer time %.1fs", float64(res.ElapsedMs)/1000)),
	}
	if res.EligibilityID != "" {
		expires := ""
		if res.EligibilityExpiresAt != nil {
			expires = " before " + res.EligibilityExpiresAt.Local().Format("Jan 2 15:04")
		}
		lines = append(lines, "", correctStyle.Render("Perfect run! A reward token is yours to mint"+expires+"."))
		lines = append(lines, hintStyle.Render("m → mint reward    Esc → menu"))
	} else {
		lines = append(lines, hintStyle.Render("Esc → menu"))
	}
	return strings.Join(lines, "\n")
}
