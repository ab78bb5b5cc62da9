// Package tui provides the interactive operator console for the bioreactor.
package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/bioreactor/internal/models"
	"github.com/fentz26/bioreactor/internal/reactor"
	"github.com/guptarohit/asciigraph"
)

// PollInterval is how often the console refreshes the status panel.
const PollInterval = 2 * time.Second

const maxEvents = 200

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

// App is the main TUI application model.
type App struct {
	client       *Client
	rows         []ParameterRow
	selectedIdx  int
	input        textinput.Model
	viewport     viewport.Model
	width        int
	height       int
	mode         string // "status", "trend"
	trendName    string
	trendValues  []float64
	pending      *models.PlanSpec
	events       []Event
	message      string
	busy         bool
	daemonOnline bool
	suggestions  *Suggestions
}

// New creates a new TUI application.
func New(apiAddr string) *App {
	ti := textinput.New()
	ti.Placeholder = "Type: set Agit=400 | read DO | plan <prompt> | exec | trend <name> | / for commands"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 80

	vp := viewport.New(80, 8)

	return &App{
		client:      NewClient(apiAddr),
		input:       ti,
		viewport:    vp,
		mode:        "status",
		suggestions: NewSuggestions(),
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.fetchStatus(),
		a.tickCmd(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit

		case "esc":
			if a.mode == "trend" {
				a.mode = "status"
				return a, nil
			}

		case "up":
			if a.suggestions.IsVisible() {
				a.suggestions.Prev()
			} else if a.selectedIdx > 0 {
				a.selectedIdx--
				return a, a.refreshTrend()
			}
			return a, nil

		case "down":
			if a.suggestions.IsVisible() {
				a.suggestions.Next()
			} else if a.selectedIdx < len(a.rows)-1 {
				a.selectedIdx++
				return a, a.refreshTrend()
			}
			return a, nil

		case "tab":
			if text, ok := a.suggestions.Accept(); ok {
				a.input.SetValue(text)
				a.input.CursorEnd()
				a.suggestions.Update("")
				return a, nil
			}
			// Toggle between the status table and the selected trend
			if a.mode == "status" && len(a.rows) > 0 {
				a.mode = "trend"
				a.trendName = a.rows[a.selectedIdx].Name
				return a, a.fetchTrend(a.trendName)
			}
			a.mode = "status"
			return a, nil

		case "enter":
			if a.suggestions.IsVisible() {
				if text, ok := a.suggestions.Accept(); ok {
					a.input.SetValue(text)
					a.input.CursorEnd()
					a.suggestions.Update("")
				}
				return a, nil
			}
			line := strings.TrimSpace(a.input.Value())
			if line != "" {
				a.input.SetValue("")
				a.suggestions.Update("")
				return a, a.executeCommand(line)
			}
			if len(a.rows) > 0 {
				a.mode = "trend"
				a.trendName = a.rows[a.selectedIdx].Name
				return a, a.fetchTrend(a.trendName)
			}
			return a, nil
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 6
		a.viewport.Width = msg.Width - 4
		a.viewport.Height = max(3, msg.Height-len(a.rows)-16)
		a.syncViewport()

	case statusLoadedMsg:
		a.daemonOnline = true
		a.rows = msg.rows
		if a.selectedIdx >= len(a.rows) {
			a.selectedIdx = max(0, len(a.rows)-1)
		}
		names := make([]string, len(a.rows))
		for i, r := range a.rows {
			names[i] = r.Name
		}
		a.suggestions.SetParameters(names)

	case trendLoadedMsg:
		if msg.name == a.trendName {
			a.trendValues = msg.values
		}

	case tickMsg:
		cmds = append(cmds, a.fetchStatus(), a.tickCmd())
		if a.mode == "trend" {
			cmds = append(cmds, a.fetchTrend(a.trendName))
		}

	case planGeneratedMsg:
		a.pending = msg.spec
		a.message = fmt.Sprintf("✓ Plan ready (%d steps). Type exec to run it.", len(msg.spec.Steps))
		a.logEvent("info", "Plan generated: "+msg.spec.Note)
		for _, line := range describePlan(*msg.spec) {
			a.logEvent("info", "  "+line)
		}

	case planStartedMsg:
		a.busy = true
		a.message = "Executing plan..."
		cmds = append(cmds, a.runPlan(msg.spec))

	case planDoneMsg:
		a.busy = false
		for _, entry := range msg.run.Log {
			level := "ok"
			if entry.Status == models.StepStatusError {
				level = "error"
			}
			a.logEvent(level, formatLogEntry(entry))
		}
		if msg.run.Completed {
			a.pending = nil
			a.message = "✓ Plan executed successfully"
		} else {
			a.message = "Error: plan aborted, see event log"
		}
		cmds = append(cmds, a.fetchStatus())

	case eventsMsg:
		for _, e := range msg.events {
			a.logEvent(e.Level, e.Text)
		}
		if msg.refresh {
			cmds = append(cmds, a.fetchStatus())
		}

	case commandResultMsg:
		a.message = msg.message

	case clearMsg:
		a.events = nil
		a.syncViewport()
		a.message = ""

	case discardMsg:
		a.pending = nil
		a.message = "Plan discarded"

	case trendRequestMsg:
		a.mode = "trend"
		a.trendName = msg.name
		a.trendValues = nil
		cmds = append(cmds, a.fetchTrend(msg.name))

	case errMsg:
		if msg.plan {
			a.busy = false
		}
		if msg.poll {
			a.daemonOnline = false
		} else {
			a.message = "Error: " + msg.err.Error()
			a.logEvent("error", msg.err.Error())
		}
	}

	// Update input
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	// Update suggestions based on input
	a.suggestions.Update(a.input.Value())

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}

	header := titleStyle.Render("Bioreactor Console")
	header += "  " + daemonStatus
	if a.busy {
		header += "  " + lipgloss.NewStyle().Foreground(warningColor).Render("[plan running]")
	}
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", a.width) + "\n")

	switch a.mode {
	case "trend":
		b.WriteString(a.renderTrend())
	default:
		left := panelStyle.Render(renderStatusTable(a.rows, a.selectedIdx))
		right := panelStyle.Render(a.renderPlanPanel())
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right))
	}
	b.WriteString("\n")

	// Event log
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(cyanColor).Render(" Event log") + "\n")
	b.WriteString(a.viewport.View())

	// Message bar
	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	// Input box
	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(a.input.View()))

	// Suggestions dropdown (if visible) - renders BELOW input
	if a.suggestions.IsVisible() {
		b.WriteString("\n")
		b.WriteString(a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case "trend":
		status = fmt.Sprintf(" Trend: %s | ↑↓:parameter | Tab/Esc:back | Ctrl+C:quit", a.trendName)
	default:
		status = fmt.Sprintf(" Parameters: %d | ↑↓:select | Enter/Tab:trend | /:commands | @:parameters | Ctrl+C:quit", len(a.rows))
	}
	b.WriteString(statusBarStyle.Width(a.width).Render(status))

	return b.String()
}

// renderStatusTable renders the PV/SP table with the selected row marked.
func renderStatusTable(rows []ParameterRow, selected int) string {
	if len(rows) == 0 {
		return "Waiting for daemon..."
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(cyanColor)
	lines := []string{headerStyle.Render(fmt.Sprintf("  %-8s %10s %10s", "PARAM", "PV", "SP"))}
	for i, r := range rows {
		text := fmt.Sprintf("%-8s %10.2f %10.2f", r.Name, r.PV, r.SP)
		if i == selected {
			lines = append(lines, selectedStyle.Render("▶ "+text))
		} else {
			lines = append(lines, rowStyle.Render(" "+text))
		}
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderPlanPanel() string {
	title := lipgloss.NewStyle().Bold(true).Render("Pending plan")
	if a.pending == nil {
		return title + "\n" + helpStyle.Render("none - type: plan <prompt>")
	}
	lines := []string{title}
	if a.pending.Note != "" {
		lines = append(lines, helpStyle.Render(a.pending.Note))
	}
	for i, line := range describePlan(*a.pending) {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, line))
	}
	lines = append(lines, helpStyle.Render("exec to run | discard to drop"))
	return strings.Join(lines, "\n")
}

func (a *App) renderTrend() string {
	if len(a.trendValues) < 2 {
		return fmt.Sprintf("\n  Collecting samples for %s...\n", a.trendName)
	}
	width := max(20, a.width-12)
	graph := asciigraph.Plot(a.trendValues,
		asciigraph.Height(10),
		asciigraph.Width(width),
		asciigraph.Caption(fmt.Sprintf("%s PV (last %d samples)", a.trendName, len(a.trendValues))),
	)
	return graph + "\n"
}

// logEvent appends to the event log, keeping the newest maxEvents.
func (a *App) logEvent(level, text string) {
	a.events = append(a.events, Event{At: time.Now(), Level: level, Text: text})
	if len(a.events) > maxEvents {
		a.events = a.events[len(a.events)-maxEvents:]
	}
	a.syncViewport()
}

func (a *App) syncViewport() {
	var lines []string
	for _, e := range a.events {
		style := lipgloss.NewStyle()
		switch e.Level {
		case "ok":
			style = style.Foreground(successColor)
		case "error":
			style = style.Foreground(errorColor)
		}
		lines = append(lines, helpStyle.Render(e.At.Format("15:04:05"))+" "+style.Render(e.Text))
	}
	a.viewport.SetContent(strings.Join(lines, "\n"))
	a.viewport.GotoBottom()
}

// describePlan renders each step as a short line.
func describePlan(spec models.PlanSpec) []string {
	out := make([]string, 0, len(spec.Steps))
	for _, s := range spec.Steps {
		switch s.Type {
		case models.StepTypeRead:
			out = append(out, "read "+strings.Join(s.Parameters, ", "))
		case models.StepTypeWrite:
			out = append(out, "write "+formatValues(s.Values))
		case models.StepTypeWait:
			secs := 0
			if s.Seconds != nil {
				secs = *s.Seconds
			}
			out = append(out, fmt.Sprintf("wait %ds", secs))
		default:
			out = append(out, s.Type)
		}
	}
	return out
}

// formatLogEntry renders one executed step for the event log.
func formatLogEntry(e models.LogEntry) string {
	var details string
	switch d := e.Details.(type) {
	case string:
		details = d
	case map[string]interface{}:
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %v", k, d[k])
		}
		details = strings.Join(parts, ", ")
	default:
		raw, _ := json.Marshal(d)
		details = string(raw)
	}
	return fmt.Sprintf("Step %d (%s) %s: %s", e.Step, e.Type, e.Status, details)
}

func formatValues(values map[string]float64) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + reactor.FormatValue(values[k])
	}
	return strings.Join(parts, " ")
}

func (a *App) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		rows, err := a.client.Status()
		if err != nil {
			return errMsg{err: err, poll: true}
		}
		return statusLoadedMsg{rows}
	}
}

func (a *App) fetchTrend(name string) tea.Cmd {
	return func() tea.Msg {
		values, err := a.client.Trend(name)
		if err != nil {
			return errMsg{err: err}
		}
		return trendLoadedMsg{name: name, values: values}
	}
}

func (a *App) refreshTrend() tea.Cmd {
	if a.mode != "trend" || len(a.rows) == 0 {
		return nil
	}
	a.trendName = a.rows[a.selectedIdx].Name
	a.trendValues = nil
	return a.fetchTrend(a.trendName)
}

func (a *App) runPlan(spec models.PlanSpec) tea.Cmd {
	return func() tea.Msg {
		run, err := a.client.ExecutePlan(spec)
		if err != nil {
			return errMsg{err: err, plan: true}
		}
		return planDoneMsg{run}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(PollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// executeCommand parses one console line. Commands that need the daemon
// return a tea.Cmd; the model is only changed from Update.
func (a *App) executeCommand(input string) tea.Cmd {
	parts := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(parts) == 0 {
		return nil
	}

	cmd := parts[0]
	args := parts[1:]
	for i, arg := range args {
		args[i] = strings.TrimPrefix(arg, "@")
	}

	switch cmd {
	case "set", "write":
		if len(args) < 1 {
			return result("Usage: set <Name>=<value>...")
		}
		values, err := reactor.ParseAssignments(args)
		if err != nil {
			return result("Error: " + err.Error())
		}
		return func() tea.Msg {
			outcomes, err := a.client.Write(values)
			if err != nil {
				return errMsg{err: err}
			}
			return eventsMsg{events: outcomeEvents(outcomes), refresh: true}
		}

	case "read":
		if len(args) < 1 {
			return result("Usage: read <Name>...")
		}
		return func() tea.Msg {
			readings, err := a.client.Read(args)
			if err != nil {
				return errMsg{err: err}
			}
			names := make([]string, 0, len(readings))
			for name := range readings {
				names = append(names, name)
			}
			sort.Strings(names)
			events := make([]Event, len(names))
			for i, name := range names {
				events[i] = Event{Level: "info", Text: fmt.Sprintf("%s = %.2f", name, readings[name])}
			}
			return eventsMsg{events: events}
		}

	case "plan":
		prompt := strings.Join(args, " ")
		return func() tea.Msg {
			spec, err := a.client.GeneratePlan(prompt)
			if err != nil {
				return errMsg{err: err}
			}
			return planGeneratedMsg{spec}
		}

	case "exec", "execute":
		if a.busy {
			return result("A plan is already running")
		}
		if a.pending == nil {
			return result("No pending plan. Type: plan <prompt>")
		}
		spec := *a.pending
		return func() tea.Msg { return planStartedMsg{spec} }

	case "discard":
		return func() tea.Msg { return discardMsg{} }

	case "trend":
		if len(args) != 1 {
			return result("Usage: trend <Name>")
		}
		name := args[0]
		return func() tea.Msg { return trendRequestMsg{name} }

	case "loops":
		return func() tea.Msg {
			loops, err := a.client.ControlLoops()
			if err != nil {
				return errMsg{err: err}
			}
			text := loops.Status
			if len(loops.ActiveLoops) > 0 {
				text = "Active loops: " + strings.Join(loops.ActiveLoops, ", ")
			}
			return eventsMsg{events: []Event{{Level: "info", Text: text}}}
		}

	case "history":
		return func() tea.Msg {
			execs, err := a.client.Executions(5)
			if err != nil {
				return errMsg{err: err}
			}
			if len(execs) == 0 {
				return eventsMsg{events: []Event{{Level: "info", Text: "No plan executions yet"}}}
			}
			events := make([]Event, len(execs))
			for i, e := range execs {
				level := "ok"
				if e.Status != models.ExecutionStatusCompleted {
					level = "error"
				}
				events[i] = Event{Level: level, Text: fmt.Sprintf("%s  %-9s  %d steps  %s", e.ID, e.Status, len(e.Log), e.Note)}
			}
			return eventsMsg{events: events}
		}

	case "show":
		if len(args) != 1 {
			return result("Usage: show <execution-id>")
		}
		id := args[0]
		return func() tea.Msg {
			exec, err := a.client.Execution(id)
			if err != nil {
				return errMsg{err: err}
			}
			events := []Event{{Level: "info", Text: fmt.Sprintf("Execution %s: %s", shortID(exec.ID), exec.Status)}}
			for _, entry := range exec.Log {
				level := "ok"
				if entry.Status == models.StepStatusError {
					level = "error"
				}
				events = append(events, Event{Level: level, Text: "  " + formatLogEntry(entry)})
			}
			return eventsMsg{events: events}
		}

	case "clear":
		return func() tea.Msg { return clearMsg{} }

	case "q", "quit", "exit":
		return tea.Quit

	default:
		return result(fmt.Sprintf("Unknown: %s (try: set, read, plan, exec, trend, loops)", cmd))
	}
}

func outcomeEvents(outcomes map[string]string) []Event {
	names := make([]string, 0, len(outcomes))
	for name := range outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	events := make([]Event, len(names))
	for i, name := range names {
		level := "ok"
		if strings.HasPrefix(outcomes[name], "Error") {
			level = "error"
		}
		events[i] = Event{Level: level, Text: fmt.Sprintf("%s: %s", name, outcomes[name])}
	}
	return events
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func result(message string) tea.Cmd {
	return func() tea.Msg { return commandResultMsg{message} }
}

type commandResultMsg struct {
	message string
}

type errMsg struct {
	err  error
	poll bool // from the background status poll
	plan bool // from a plan execution
}

type statusLoadedMsg struct {
	rows []ParameterRow
}

type trendLoadedMsg struct {
	name   string
	values []float64
}

type trendRequestMsg struct {
	name string
}

type planGeneratedMsg struct {
	spec *models.PlanSpec
}

type planStartedMsg struct {
	spec models.PlanSpec
}

type planDoneMsg struct {
	run *PlanRun
}

type eventsMsg struct {
	events  []Event
	refresh bool
}

type clearMsg struct{}

type discardMsg struct{}

type tickMsg time.Time
