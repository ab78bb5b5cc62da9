package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions provides autocomplete for commands and parameter names
type Suggestions struct {
	items        []SuggestionItem
	filtered     []SuggestionItem
	selectedIdx  int
	visible      bool
	prefix       string // "/" or "@"
	currentInput string
	parameters   []SuggestionItem
}

// SuggestionItem represents a single autocomplete suggestion
type SuggestionItem struct {
	Text        string
	Description string
	Type        string // "command", "parameter"
}

var commandSuggestions = []SuggestionItem{
	{Text: "set", Description: "Write setpoints: set Agit=400 Air=1.5", Type: "command"},
	{Text: "read", Description: "Read process values: read DO Temp", Type: "command"},
	{Text: "plan", Description: "Generate a plan from a prompt", Type: "command"},
	{Text: "exec", Description: "Execute the pending plan", Type: "command"},
	{Text: "discard", Description: "Drop the pending plan", Type: "command"},
	{Text: "trend", Description: "Plot a parameter's recent PV", Type: "command"},
	{Text: "loops", Description: "Show control loop status", Type: "command"},
	{Text: "history", Description: "List recent plan executions", Type: "command"},
	{Text: "show", Description: "Show the step log of an execution", Type: "command"},
	{Text: "clear", Description: "Clear the event log", Type: "command"},
	{Text: "quit", Description: "Leave the console", Type: "command"},
}

// NewSuggestions creates a new suggestions handler
func NewSuggestions() *Suggestions {
	return &Suggestions{
		items:   commandSuggestions,
		visible: false,
	}
}

// SetParameters sets the names offered after "@".
func (s *Suggestions) SetParameters(names []string) {
	s.parameters = make([]SuggestionItem, len(names))
	for i, name := range names {
		s.parameters[i] = SuggestionItem{
			Text:        name,
			Description: "Parameter",
			Type:        "parameter",
		}
	}
}

// Update updates suggestions based on current input
func (s *Suggestions) Update(input string) {
	if input == "" {
		s.visible = false
		s.filtered = nil
		s.prefix = ""
		return
	}

	// Commands complete the whole input; parameters complete the word
	// being typed.
	word := input
	if i := strings.LastIndex(input, " "); i >= 0 {
		word = input[i+1:]
	}
	switch {
	case input[0] == '/':
		s.prefix = "/"
		s.items = commandSuggestions
		s.visible = true
		s.filter(strings.ToLower(strings.TrimPrefix(input, "/")))
	case strings.HasPrefix(word, "@"):
		s.prefix = "@"
		s.items = s.parameters
		s.visible = true
		s.filter(strings.ToLower(strings.TrimPrefix(word, "@")))
	default:
		s.visible = false
		s.filtered = nil
		s.prefix = ""
	}

	s.currentInput = input
}

func (s *Suggestions) filter(query string) {
	if query == "" {
		s.filtered = s.items
		s.selectedIdx = 0
		return
	}

	s.filtered = []SuggestionItem{}
	for _, item := range s.items {
		if strings.Contains(strings.ToLower(item.Text), query) {
			s.filtered = append(s.filtered, item)
		}
	}
	s.selectedIdx = 0
}

// Next moves to the next suggestion
func (s *Suggestions) Next() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx = (s.selectedIdx + 1) % len(s.filtered)
}

// Prev moves to the previous suggestion
func (s *Suggestions) Prev() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx--
	if s.selectedIdx < 0 {
		s.selectedIdx = len(s.filtered) - 1
	}
}

// Selected returns the currently selected suggestion
func (s *Suggestions) Selected() *SuggestionItem {
	if !s.visible || len(s.filtered) == 0 || s.selectedIdx >= len(s.filtered) {
		return nil
	}
	return &s.filtered[s.selectedIdx]
}

// Accept returns the input with the selected suggestion applied.
func (s *Suggestions) Accept() (string, bool) {
	sel := s.Selected()
	if sel == nil {
		return s.currentInput, false
	}
	if s.prefix == "/" {
		return sel.Text + " ", true
	}
	head := ""
	if i := strings.LastIndex(s.currentInput, " "); i >= 0 {
		head = s.currentInput[:i+1]
	}
	return head + sel.Text, true
}

// IsVisible returns whether suggestions are currently visible
func (s *Suggestions) IsVisible() bool {
	return s.visible && len(s.filtered) > 0
}

// Render renders the suggestions dropdown
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	var b strings.Builder

	suggestionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(width - 4)

	selectedStyle := lipgloss.NewStyle().
		Background(primaryColor).
		Foreground(fgColor).
		Bold(true)

	itemStyle := lipgloss.NewStyle().
		Foreground(fgColor)

	descStyle := lipgloss.NewStyle().
		Foreground(mutedColor).
		Italic(true)

	header := "Commands"
	if s.prefix == "@" {
		header = "Parameters"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(header))
	b.WriteString("\n")

	// Show max 5 suggestions
	maxVisible := 5
	for i, item := range s.filtered {
		if i >= maxVisible {
			more := len(s.filtered) - maxVisible
			b.WriteString(descStyle.Render(fmt.Sprintf("  ... and %d more", more)))
			break
		}

		line := ""
		if i == s.selectedIdx {
			line = selectedStyle.Render("▶ " + item.Text)
			if item.Description != "" {
				line += " " + selectedStyle.Render(item.Description)
			}
		} else {
			line = itemStyle.Render("  " + item.Text)
			if item.Description != "" {
				line += " " + descStyle.Render(item.Description)
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return suggestionStyle.Render(b.String())
}
