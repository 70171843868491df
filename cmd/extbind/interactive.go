package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/wippyai/extbind/scenario"
	"github.com/wippyai/extbind/storage"
)

var (
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))
)

type interactiveModel struct {
	err      error
	scenario *scenario.Scenario
	runner   *scenario.Runner
	session  *session
	path     string
	entries  []scenario.Entry
	watcher  *fsnotify.Watcher
	watched  string
	input    textinput.Model
	state    modelState
}

type modelState int

const (
	stateSteps modelState = iota
	stateLoad
)

func newInteractiveModel(path string, watcher *fsnotify.Watcher) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "scenario.yaml"
	ti.Prompt = "scenario: "
	ti.Width = 50

	return &interactiveModel{
		path:    path,
		watcher: watcher,
		input:   ti,
		state:   stateSteps,
	}
}

type loadedMsg struct {
	err      error
	scenario *scenario.Scenario
	runner   *scenario.Runner
	session  *session
	path     string
}

// fileChangedMsg reports a write to a file in a watched directory.
type fileChangedMsg struct {
	name string
}

type watchErrMsg struct {
	err error
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.load(m.path), m.watch())
}

// watch waits for the next relevant watcher event. Update re-arms it after
// every message so at most one wait is outstanding.
func (m *interactiveModel) watch() tea.Cmd {
	w := m.watcher
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return nil
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					return fileChangedMsg{name: filepath.Clean(ev.Name)}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				return watchErrMsg{err: err}
			}
		}
	}
}

// follow moves the watch to the directory of path. Editors often replace
// files on save, so the directory is watched rather than the file.
func (m *interactiveModel) follow(path string) {
	dir := ""
	if path != "" {
		dir = filepath.Dir(path)
	}
	if dir == m.watched {
		return
	}
	if m.watched != "" {
		_ = m.watcher.Remove(m.watched)
	}
	m.watched = ""
	if dir == "" {
		return
	}
	if err := m.watcher.Add(dir); err != nil {
		m.err = fmt.Errorf("watch %s: %w", dir, err)
		return
	}
	m.watched = dir
}

func (m *interactiveModel) load(path string) tea.Cmd {
	return func() tea.Msg {
		s, err := loadScenario(path)
		if err != nil {
			return loadedMsg{err: err, path: path}
		}
		sess, err := newSession(s.RuntimeOptions()...)
		if err != nil {
			return loadedMsg{err: err, path: path}
		}
		r, err := scenario.NewRunner(s, sess.rt)
		if err != nil {
			return loadedMsg{err: err, path: path}
		}
		return loadedMsg{scenario: s, runner: r, session: sess, path: path}
	}
}

// advance runs up to n pending steps, stopping at the first failure.
func (m *interactiveModel) advance(n int) {
	for i := 0; i < n && m.err == nil && m.runner != nil && !m.runner.Done(); i++ {
		e, err := m.runner.Step()
		if err != nil {
			m.err = err
			return
		}
		m.entries = append(m.entries, e)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateLoad {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "esc":
				m.state = stateSteps
				m.input.Blur()
				return m, nil
			case "enter":
				m.state = stateSteps
				m.input.Blur()
				return m, m.load(strings.TrimSpace(m.input.Value()))
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "enter", " ", "n":
			m.advance(1)

		case "a":
			if m.scenario != nil {
				m.advance(len(m.scenario.Steps))
			}

		case "r":
			return m, m.load(m.path)

		case "o":
			m.state = stateLoad
			m.input.SetValue(m.path)
			m.input.Focus()
			return m, textinput.Blink
		}

	case loadedMsg:
		m.err = msg.err
		m.path = msg.path
		m.entries = nil
		m.scenario = msg.scenario
		m.runner = msg.runner
		m.session = msg.session
		m.follow(msg.path)

	case fileChangedMsg:
		if m.path != "" && msg.name == filepath.Clean(m.path) {
			return m, tea.Batch(m.load(m.path), m.watch())
		}
		return m, m.watch()

	case watchErrMsg:
		m.err = msg.err
		return m, m.watch()
	}

	return m, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("extbind"))
	if m.scenario != nil {
		b.WriteString(" ")
		b.WriteString(m.scenario.Name)
	}
	b.WriteString("\n\n")

	if m.state == stateLoad {
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter load • esc back"))
		return b.String()
	}

	if m.scenario == nil && m.err == nil {
		return "Loading scenario..."
	}

	if m.scenario != nil {
		for i, st := range m.scenario.Steps {
			line := formatStep(st)
			switch {
			case i < len(m.entries):
				b.WriteString(doneStyle.Render("✓ " + line))
				b.WriteString("  ")
				b.WriteString(resultStyle.Render(entrySummary(m.entries[i])))
			case i == len(m.entries):
				b.WriteString(selectedStyle.Render("> " + line))
			default:
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.session != nil {
			b.WriteString(typeStyle.Render(fmt.Sprintf("live objects %d • live instances %d",
				m.session.rt.LiveObjects(), storage.Default().Len())))
			b.WriteString("\n\n")
		}
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}

	help := "enter step • a run all • r restart • o open • q quit"
	if m.watched != "" {
		help += " • reloads on save"
	}
	b.WriteString(helpStyle.Render(help))
	return b.String()
}

func formatStep(st scenario.Step) string {
	switch st.Op {
	case scenario.OpCreate:
		return fmt.Sprintf("%s %s as %s", st.Op, classStyle.Render(st.Class), st.As)
	case scenario.OpVirtual:
		return fmt.Sprintf("%s %s %s", st.Op, st.Target, typeStyle.Render(st.Method))
	}
	return fmt.Sprintf("%s %s", st.Op, st.Target)
}

func entrySummary(e scenario.Entry) string {
	s := e.Result
	if e.Freed {
		return strings.TrimSpace(s + " freed")
	}
	return strings.TrimSpace(fmt.Sprintf("%s refs=%d", s, e.RefCount))
}

func runInteractive(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	p := tea.NewProgram(newInteractiveModel(path, watcher), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
