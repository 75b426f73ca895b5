package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/trivia-terminal/internal/clock"
	"github.com/kingrea/trivia-terminal/internal/operation"
)

type spinnerFrameMsg struct {
	view *operationView
	gen  uint64
}

// operationView tracks one mint or forge until it settles. Spinner frames
// run on the App clock so they stop with the view.
type operationView struct {
	app      *App
	poller   *operation.Poller
	kind     operation.Kind
	spinner  spinner.Model
	frame    *clock.Timer
	frameGen uint64
	done     *operation.DoneMsg
	closed   bool
}

func newOperationView(app *App, op operation.Operation) *operationView {
	p := operation.New(app.backend, op.Kind, op.ID,
		operation.WithInterval(app.config.PollInterval()),
		operation.WithClock(app.clock),
		operation.WithLogger(app.logbook.Component(string(op.Kind))),
	)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle
	return &operationView{app: app, poller: p, kind: op.Kind, spinner: sp}
}

func (v *operationView) Init() tea.Cmd {
	return tea.Batch(v.poller.Start(), v.scheduleFrame())
}

// Close cancels polling and the spinner.
func (v *operationView) Close() {
	if v.closed {
		return
	}
	v.closed = true
	v.poller.Cancel()
	v.stopFrames()
}

func (v *operationView) scheduleFrame() tea.Cmd {
	gen := v.frameGen
	timer, cmd := v.app.clock.Schedule(v.spinner.Spinner.FPS, func(time.Time) tea.Msg {
		return spinnerFrameMsg{view: v, gen: gen}
	})
	v.frame = timer
	return cmd
}

func (v *operationView) stopFrames() {
	v.frameGen++
	v.frame.Stop()
	v.frame = nil
}

func (v *operationView) Update(msg tea.Msg) tea.Cmd {
	switch m := msg.(type) {
	case spinnerFrameMsg:
		if m.view != v || m.gen != v.frameGen || v.closed || v.done != nil {
			return nil
		}
		// The spinner's own tick command is dropped; frames come from the clock.
		v.spinner, _ = v.spinner.Update(v.spinner.Tick())
		return v.scheduleFrame()
	case operation.DoneMsg:
		if m.Operation.ID != v.poller.Operation().ID {
			return nil
		}
		done := m
		v.done = &done
		v.stopFrames()
		if m.Err != nil {
			v.app.statusMsg = m.Err.Error()
		} else {
			v.app.statusMsg = fmt.Sprintf("%s confirmed", titleCase(string(v.kind)))
		}
		return nil
	case tea.KeyMsg:
		if m.String() == "esc" {
			_, cmd := v.app.returnToMainMenu()
			return cmd
		}
		return nil
	}
	return v.poller.Update(msg)
}

func (v *operationView) View(int) string {
	op := v.poller.Operation()
	steps := operation.Steps(v.kind)
	current := v.poller.Step()
	lines := []string{selectedStyle.Render(fmt.Sprintf("%s %s", titleCase(string(v.kind)), shortID(op.ID))), ""}
	for i, step := range steps {
		var marker string
		switch {
		case i < current || (op.Status == operation.StatusConfirmed):
			marker = correctStyle.Render("✓")
		case i == current && op.Status == operation.StatusFailed:
			marker = wrongStyle.Render("✗")
		case i == current:
			marker = v.spinner.View()
		default:
			marker = mutedStyle.Render("·")
		}
		lines = append(lines, fmt.Sprintf(" %s %s", marker, step.Label))
	}
	var details []string
	if op.TxHash != "" {
		details = append(details, "tx "+op.TxHash)
	}
	if op.BurnTxHash != "" {
		details = append(details, "burn "+op.BurnTxHash)
	}
	if op.MintTxHash != "" {
		details = append(details, "mint "+op.MintTxHash)
	}
	if op.TokenID != "" {
		details = append(details, "token #"+op.TokenID)
	}
	if len(details) > 0 {
		lines = append(lines, "", mutedStyle.Render(strings.Join(details, "\n")))
	}
	switch {
	case v.done != nil && v.done.Err != nil:
		lines = append(lines, "", wrongStyle.Render(v.done.Err.Error()))
	case v.done != nil:
		lines = append(lines, "", correctStyle.Render("Done!"))
	case v.poller.LastError() != nil:
		lines = append(lines, "", timeoutStyle.Render("Network hiccup, still checking..."))
	}
	lines = append(lines, hintStyle.Render("Esc → menu"))
	return strings.Join(lines, "\n")
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
