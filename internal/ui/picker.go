package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when the user leaves the picker without
// choosing.
var ErrCancelled = errors.New("cancelled")

// PickerItem is one entry shown in the interactive picker.
type PickerItem struct {
	Label    string // primary text, e.g. "In-app wallet"
	SubLabel string // dimmed detail, e.g. "email, phone or social login"
	Value    string // returned on selection
}

// pickerModel is the Bubble Tea model for the interactive list picker.
// Digits 1-9 jump to and select an entry directly.
type pickerModel struct {
	title    string
	items    []PickerItem
	cursor   int
	selected *PickerItem
	quitting bool
}

func newPickerModel(title string, items []PickerItem) pickerModel {
	return pickerModel{title: title, items: items}
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok || len(m.items) == 0 {
		return m, nil
	}
	switch s := key.String(); s {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		m.cursor = (m.cursor - 1 + len(m.items)) % len(m.items)
	case "down", "j", "tab":
		m.cursor = (m.cursor + 1) % len(m.items)
	case "enter", " ":
		return m.choose(m.cursor)
	default:
		if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(m.items) {
			return m.choose(n - 1)
		}
	}
	return m, nil
}

func (m pickerModel) choose(i int) (tea.Model, tea.Cmd) {
	m.cursor = i
	item := m.items[i]
	m.selected = &item
	return m, tea.Quit
}

func (m pickerModel) View() string {
	if m.quitting || m.selected != nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(StyleTitle.Render("  "+m.title) + "\n")

	for i, item := range m.items {
		prefix := fmt.Sprintf("  %d ", i+1)
		if i == m.cursor {
			prefix = fmt.Sprintf("▸ %d ", i+1)
		}
		line := prefix + item.Label
		if i == m.cursor {
			line = StyleSelected.Render(line)
		} else {
			line = StyleValue.Render(line)
		}
		if item.SubLabel != "" {
			line += "  " + StyleMeta.Render(item.SubLabel)
		}
		sb.WriteString(line + "\n")
	}

	sb.WriteString("\n")
	sb.WriteString(StyleMeta.Render("  [ ↑↓ ] move   [ 1-9 / Enter ] select   [ q ] cancel") + "\n")
	return sb.String()
}

// PickItem runs an interactive list picker and returns the selected
// item's Value, or ErrCancelled.
func PickItem(title string, items []PickerItem, opts ...tea.ProgramOption) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("no items to pick from")
	}

	p := tea.NewProgram(newPickerModel(title, items), opts...)
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("picker: %w", err)
	}

	fm := final.(pickerModel)
	if fm.selected == nil {
		return "", ErrCancelled
	}
	return fm.selected.Value, nil
}
