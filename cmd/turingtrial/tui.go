package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/myrjola/turingtrial/internal/ai"
	"github.com/myrjola/turingtrial/internal/conversation"
	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/myrjola/turingtrial/internal/game"
	"github.com/myrjola/turingtrial/internal/models"
	"github.com/myrjola/turingtrial/internal/phase"
)

// gameActions are the player actions the TUI can take. They block on the game loop, so the TUI only calls
// them from commands.
type gameActions interface {
	RequestScene(ctx context.Context, id string) error
	SendMessage(ctx context.Context, id models.CharacterID, text string) error
	Retry(ctx context.Context, id models.CharacterID) error
	SubmitVerdict(ctx context.Context, choice string) (models.Outcome, error)
	Restart(ctx context.Context) error
}

type gameEventMsg game.Event

type actionDoneMsg struct {
	action string
	err    error
}

func waitForEvent(events <-chan game.Event) tea.Cmd {
	return func() tea.Msg {
		return gameEventMsg(<-events)
	}
}

type theme struct {
	header    lipgloss.Style
	title     lipgloss.Style
	countdown lipgloss.Style
	urgent    lipgloss.Style
	panel     lipgloss.Style
	detective lipgloss.Style
	speaker   lipgloss.Style
	failure   lipgloss.Style
	status    lipgloss.Style
	errStatus lipgloss.Style
	help      lipgloss.Style
}

func newTheme() theme {
	gold := lipgloss.Color("#e6b450")
	red := lipgloss.Color("#f07178")
	blue := lipgloss.Color("#59c2ff")
	muted := lipgloss.Color("#8a8f98")
	return theme{
		header: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(gold).
			Padding(0, 1),
		title:     lipgloss.NewStyle().Foreground(gold).Bold(true),
		countdown: lipgloss.NewStyle().Foreground(blue).Bold(true),
		urgent:    lipgloss.NewStyle().Foreground(red).Bold(true),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		detective: lipgloss.NewStyle().Foreground(blue).Bold(true),
		speaker:   lipgloss.NewStyle().Foreground(gold).Bold(true),
		failure:   lipgloss.NewStyle().Foreground(red).Italic(true),
		status:    lipgloss.NewStyle().Foreground(blue),
		errStatus: lipgloss.NewStyle().Foreground(red).Bold(true),
		help:      lipgloss.NewStyle().Foreground(muted),
	}
}

type model struct {
	ctx    context.Context
	game   gameActions
	events <-chan game.Event
	cast   []models.CharacterID
	names  map[models.CharacterID]string

	ready     bool
	view      models.ViewHandle
	active    models.CharacterID
	phase     models.PhaseState
	logs      map[models.CharacterID][]models.Turn
	busy      map[models.CharacterID]bool
	status    string
	statusErr bool

	width      int
	input      textinput.Model
	transcript viewport.Model
	spinner    spinner.Model
	theme      theme
}

func newModel(ctx context.Context, g gameActions, events <-chan game.Event, names map[models.CharacterID]string) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 1000
	input.Placeholder = "Ask a question"

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		ctx:        ctx,
		game:       g,
		events:     events,
		cast:       models.AllCharacters(),
		names:      names,
		ready:      false,
		view:       models.ViewHandle{},
		active:     "",
		phase:      models.PhaseState{},
		logs:       make(map[models.CharacterID][]models.Turn),
		busy:       make(map[models.CharacterID]bool),
		status:     "",
		statusErr:  false,
		width:      80, //nolint:mnd // until the first WindowSizeMsg
		input:      input,
		transcript: viewport.New(78, 16), //nolint:mnd // resized on WindowSizeMsg
		spinner:    sp,
		theme:      newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events), textinput.Blink)
}

func (m model) kind() models.SceneKind {
	controller, _ := m.view.SceneController()
	return controller.Kind
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		// Leave room for the borders, the header, the input and the footer.
		m.transcript.Width = max(msg.Width-4, 20)
		m.transcript.Height = max(msg.Height-12, 5)
		m.input.Width = max(msg.Width-8, 10)
		m.renderTranscript()
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case gameEventMsg:
		m.apply(game.Event(msg))
		return m, waitForEvent(m.events)
	case actionDoneMsg:
		m.actionDone(msg)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) apply(e game.Event) {
	switch e.Kind {
	case game.EventReady:
		m.ready = true
		m.phase = e.Phase
		if n := len(e.Report.Failed); n > 0 {
			m.setStatus(fmt.Sprintf("%d scenes failed to load: %s", n, strings.Join(e.Report.Failed, ", ")), true)
		}
	case game.EventScene:
		m.view = e.View
		m.active = e.Character
		m.setStatus("", false)
		m.input.Reset()
		switch m.kind() {
		case models.SceneKindCharacter:
			m.input.Placeholder = "Ask " + m.names[m.active] + " a question"
			m.input.Focus()
		case models.SceneKindVerdict:
			m.input.Placeholder = "yes or no"
			m.input.Focus()
		case models.SceneKindMenu, models.SceneKindResolution:
			m.input.Blur()
		}
		m.renderTranscript()
	case game.EventSceneFailed:
		m.setStatus(fmt.Sprintf("The %s scene is unavailable. Press esc to return to the hallway.", e.ViewID), true)
	case game.EventPreloadFailed:
	case game.EventTurn:
		m.logs[e.Character] = append(m.logs[e.Character], e.Turn)
		if e.Turn.Role == models.RoleFailure && e.Character == m.active {
			if ai.Retryable(e.Err) {
				m.setStatus("The reply failed. Press ctrl+r to retry.", true)
			} else {
				m.setStatus("The reply failed and retrying will not help. Check the API key and model.", true)
			}
		}
		m.renderTranscript()
	case game.EventBusy:
		m.busy[e.Character] = e.InFlight
	case game.EventTick, game.EventPhase:
		m.phase = e.Phase
	}
}

func (m *model) actionDone(msg actionDoneMsg) {
	if msg.err == nil {
		if msg.action == "restart" {
			m.logs = make(map[models.CharacterID][]models.Turn)
			m.busy = make(map[models.CharacterID]bool)
			m.renderTranscript()
		}
		return
	}
	m.setStatus(describe(msg.err), true)
}

func describe(err error) string {
	switch {
	case errors.Is(err, game.ErrNotAllEngaged):
		return "Question all three before giving an early verdict."
	case errors.Is(err, conversation.ErrInFlight):
		return "Wait for the answer first."
	case errors.Is(err, conversation.ErrEmptyInput):
		return "Type something first."
	case errors.Is(err, conversation.ErrNothingToRetry):
		return "Nothing to retry."
	case errors.Is(err, conversation.ErrNotRetryable):
		return "Retrying will not help. Check the API key and model."
	case errors.Is(err, phase.ErrEmptyVerdict):
		return "Type yes or no."
	case errors.Is(err, phase.ErrWrongPhase):
		return "The case is closed. Press r to start over."
	}
	return err.Error()
}

func (m *model) setStatus(status string, isErr bool) {
	m.status = status
	m.statusErr = isErr
}

func (m model) do(action string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if !m.ready {
		return m, nil
	}
	switch m.kind() {
	case models.SceneKindMenu:
		return m.handleMenuKey(msg)
	case models.SceneKindResolution:
		switch msg.String() {
		case "r":
			return m, m.do("restart", m.game.Restart)
		case "q":
			return m, tea.Quit
		}
		return m, nil
	case models.SceneKindCharacter, models.SceneKindVerdict:
	}

	switch msg.Type {
	case tea.KeyEsc:
		return m, m.do("scene", func(ctx context.Context) error { return m.game.RequestScene(ctx, game.SceneMenu) })
	case tea.KeyCtrlR:
		id := m.active
		return m, m.do("retry", func(ctx context.Context) error { return m.game.Retry(ctx, id) })
	case tea.KeyEnter:
		text := m.input.Value()
		m.input.Reset()
		if m.kind() == models.SceneKindVerdict {
			return m, m.do("verdict", func(ctx context.Context) error {
				_, err := m.game.SubmitVerdict(ctx, text)
				return err
			})
		}
		id := m.active
		return m, m.do("send", func(ctx context.Context) error { return m.game.SendMessage(ctx, id, text) })
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) handleMenuKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q":
		return m, tea.Quit
	case "v":
		return m, m.do("scene", func(ctx context.Context) error { return m.game.RequestScene(ctx, game.SceneVerdict) })
	}
	for i, id := range m.cast {
		if key == fmt.Sprint(i+1) {
			return m, m.do("scene", func(ctx context.Context) error { return m.game.RequestScene(ctx, string(id)) })
		}
	}
	return m, nil
}

func (m *model) renderTranscript() {
	var b strings.Builder
	width := m.transcript.Width
	for _, turn := range m.logs[m.active] {
		var line string
		switch turn.Role {
		case models.RoleUser:
			line = m.theme.detective.Render(turn.Speaker+":") + " " + turn.Content
		case models.RoleCharacter:
			line = m.theme.speaker.Render(turn.Speaker+":") + " " + turn.Content
		case models.RoleFailure:
			line = m.theme.failure.Render("⚠ " + turn.Content)
		}
		b.WriteString(lipgloss.NewStyle().Width(width).Render(line))
		b.WriteString("\n\n")
	}
	m.transcript.SetContent(b.String())
	m.transcript.GotoBottom()
}

func clock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60) //nolint:mnd // minutes and seconds
}

func (m model) header() string {
	scene, _ := m.view.Scene()
	var countdown string
	switch m.phase.Phase {
	case models.PhaseInvestigating:
		countdown = m.theme.countdown.Render("Investigation " + clock(m.phase.InvestigationRemaining))
	case models.PhaseAwaitingVerdict:
		countdown = m.theme.urgent.Render("Verdict " + clock(m.phase.VerdictRemaining))
	case models.PhaseResolved:
		countdown = m.theme.countdown.Render("Case closed")
	}
	return m.theme.header.Width(max(m.width-2, 20)).Render( //nolint:mnd // border
		m.theme.title.Render(scene.Title) + "  " + countdown)
}

func (m model) body() string {
	scene, _ := m.view.Scene()
	switch m.kind() {
	case models.SceneKindMenu:
		var b strings.Builder
		b.WriteString(scene.Description + "\n\n")
		for i, id := range m.cast {
			mark := " "
			if len(m.logs[id]) > 0 {
				mark = "✓"
			}
			fmt.Fprintf(&b, "[%d] %s %s\n", i+1, mark, m.names[id])
		}
		b.WriteString("[v]   Give your verdict\n")
		return b.String()
	case models.SceneKindCharacter:
		out := m.transcript.View() + "\n"
		if m.busy[m.active] {
			out += m.spinner.View() + " " + m.names[m.active] + " is thinking…\n"
		}
		return out + m.input.View()
	case models.SceneKindVerdict:
		return scene.Description + "\n\n" + m.input.View()
	case models.SceneKindResolution:
		return scene.Description + "\n\n" + m.outcome()
	}
	return ""
}

func (m model) outcome() string {
	switch m.phase.Outcome {
	case models.OutcomeCorrect:
		return "Your verdict matches the evidence. Daniel Harrow walks free."
	case models.OutcomeIncorrect:
		return "Your verdict does not match the evidence. The automated update job goes unexamined."
	case models.OutcomeTimeout:
		return "You ran out of time. The court adjourns without your verdict."
	case models.OutcomeNone:
	}
	return ""
}

func (m model) help() string {
	switch m.kind() {
	case models.SceneKindMenu:
		return "1-3 question · v verdict · q quit"
	case models.SceneKindCharacter:
		return "enter ask · ctrl+r retry · esc hallway · ctrl+c quit"
	case models.SceneKindVerdict:
		return "enter submit · esc hallway · ctrl+c quit"
	case models.SceneKindResolution:
		return "r restart · q quit"
	}
	return "ctrl+c quit"
}

func (m model) View() string {
	if !m.ready {
		return m.spinner.View() + " Preparing the courtroom…\n"
	}
	status := m.theme.status.Render(m.status)
	if m.statusErr {
		status = m.theme.errStatus.Render(m.status)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		m.theme.panel.Width(max(m.width-2, 20)).Render(m.body()), //nolint:mnd // border
		status,
		m.theme.help.Render(m.help()),
	)
}
