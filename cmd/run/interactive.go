package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasi-harness/harness"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	toggleOnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	toggleOffStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const defaultSnippet = `println!("Hello, world!");`

type keyMap struct {
	Run       key.Binding
	PrintLast key.Binding
	Quit      key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Run, k.PrintLast, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func newKeyMap() keyMap {
	return keyMap{
		Run: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "run"),
		),
		PrintLast: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("ctrl+p", "print last value"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("esc", "quit"),
		),
	}
}

type modelState int

const (
	stateLoading modelState = iota
	stateReady
	stateRunning
	stateFailed
)

type interactiveModel struct {
	worker    *harness.Worker
	editor    textarea.Model
	spinner   spinner.Model
	help      help.Model
	keys      keyMap
	state     modelState
	loaded    int
	total     int
	lastAsset string
	printLast bool
	result    string
	elapsed   time.Duration
	err       error
	width     int
}

// workerMsg wraps one worker event; a nil event means the channel closed.
type workerMsg struct {
	ev harness.Event
}

func newInteractiveModel(w *harness.Worker, total int) *interactiveModel {
	ed := textarea.New()
	ed.SetValue(defaultSnippet)
	ed.ShowLineNumbers = true
	ed.SetWidth(80)
	ed.SetHeight(12)
	ed.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	keys := newKeyMap()
	keys.Run.SetEnabled(false)

	return &interactiveModel{
		worker:  w,
		editor:  ed,
		spinner: sp,
		help:    help.New(),
		keys:    keys,
		total:   total,
	}
}

func (m *interactiveModel) waitForEvent() tea.Msg {
	ev, ok := <-m.worker.Events()
	if !ok {
		return workerMsg{}
	}
	return workerMsg{ev: ev}
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent, m.spinner.Tick, textarea.Blink)
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.PrintLast):
			m.printLast = !m.printLast
			return m, nil
		case key.Matches(msg, m.keys.Run):
			return m, m.submit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.editor.SetWidth(max(msg.Width-4, 20))
		m.help.Width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case workerMsg:
		if msg.ev == nil {
			return m, nil
		}
		m.handleEvent(msg.ev)
		return m, m.waitForEvent
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m *interactiveModel) submit() tea.Cmd {
	err := m.worker.Submit(harness.Request{
		Source:  m.editor.Value(),
		Options: harness.RunOptions{PrintTrailingValue: m.printLast},
	})
	if err != nil {
		m.err = err
		return nil
	}
	m.err = nil
	m.state = stateRunning
	m.keys.Run.SetEnabled(false)
	return nil
}

func (m *interactiveModel) handleEvent(ev harness.Event) {
	switch ev := ev.(type) {
	case harness.AssetLoaded:
		m.loaded++
		m.lastAsset = ev.Name
	case harness.Ready:
		m.state = stateReady
		m.keys.Run.SetEnabled(true)
	case harness.InitFailed:
		m.state = stateFailed
		m.err = ev.Err
	case harness.RunStarted:
		m.state = stateRunning
	case harness.RunCompleted:
		m.state = stateReady
		m.result = ev.Text
		if ev.Result != nil {
			m.elapsed = ev.Result.Duration
		}
		m.keys.Run.SetEnabled(true)
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Rust Playground"))
	b.WriteString(" ")
	b.WriteString(m.status())
	b.WriteString("\n\n")

	b.WriteString(m.editor.View())
	b.WriteString("\n")

	toggle := toggleOffStyle.Render("[ ] print last value")
	if m.printLast {
		toggle = toggleOnStyle.Render("[x] print last value")
	}
	b.WriteString(toggle)
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}
	if m.result != "" {
		style := resultStyle
		if m.width > 0 {
			style = style.Width(max(m.width-4, 20))
		}
		b.WriteString(style.Render(strings.TrimRight(m.result, "\n")))
		b.WriteString("\n\n")
	}

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *interactiveModel) status() string {
	switch m.state {
	case stateLoading:
		progress := fmt.Sprintf("loading assets %d", m.loaded)
		if m.total > 0 {
			progress = fmt.Sprintf("loading assets %d/%d", m.loaded, m.total)
		}
		if m.lastAsset != "" {
			progress += " " + m.lastAsset
		}
		return m.spinner.View() + statusStyle.Render(progress)
	case stateRunning:
		return m.spinner.View() + statusStyle.Render("running")
	case stateFailed:
		return errorStyle.Render("initialization failed")
	}
	if m.elapsed > 0 {
		return statusStyle.Render(fmt.Sprintf("ready (last run %s)", m.elapsed.Round(time.Millisecond)))
	}
	return statusStyle.Render("ready")
}

func runInteractive(w *harness.Worker, total int) error {
	p := tea.NewProgram(newInteractiveModel(w, total), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
