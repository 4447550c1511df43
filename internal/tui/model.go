// Package tui is the interactive todo list. Every change shows on screen
// before the node has answered. Creates and edits reconcile with the
// node's reply, and deletes wait for it.
package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/idilsaglam/dwntodo/internal/identity"
	"github.com/idilsaglam/dwntodo/internal/logging"
	"github.com/idilsaglam/dwntodo/internal/model"
	"github.com/idilsaglam/dwntodo/internal/todo"
	"github.com/idilsaglam/dwntodo/internal/ui"
)

type (
	fetchedMsg struct {
		items   []model.Todo
		// version of the local list when the fetch was issued
		version uint64
		err     error
	}
	createdMsg struct {
		tempID string
		todo   model.Todo
		err    error
	}
	savedMsg struct {
		id       string
		fromEdit bool
		err      error
	}
	deletedMsg struct {
		id  string
		err error
	}
)

// listItem adapts a todo to bubbles/list.Item.
type listItem struct{ todo model.Todo }

func (i listItem) Title() string       { return i.todo.Description }
func (i listItem) Description() string { return "" }
func (i listItem) FilterValue() string { return i.todo.Description }

// itemDelegate renders one line per todo.
type itemDelegate struct{}

func (d itemDelegate) Height() int                         { return 1 }
func (d itemDelegate) Spacing() int                        { return 0 }
func (d itemDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(listItem)
	if !ok {
		return
	}
	t := ui.Current()
	text := ansi.Truncate(it.todo.Description, max(m.Width()-6, 10), "…")

	box := t.Muted.Render(t.BoxUnchecked)
	switch {
	case it.todo.Pending():
		box = t.Pending.Render(t.BoxSyncing)
		text = t.Muted.Render(text)
	case it.todo.Completed:
		box = t.Success.Render(t.BoxChecked)
		text = t.Done.Render(text)
	}

	prefix := "  "
	if index == m.Index() {
		prefix = t.Selected.Render("> ")
	}
	fmt.Fprint(w, prefix+box+" "+text)
}

// Options configures a Model.
type Options struct {
	// DID is shown in the connection line. Empty means still connecting.
	DID    string
	Logger *slog.Logger
	// Now stamps placeholder ids. Defaults to time.Now.
	Now func() time.Time
}

// Model is the bubbletea model for the list view.
type Model struct {
	ctx     context.Context
	backend todo.Backend
	logger  *slog.Logger
	did     string

	todos   *todo.List
	list    list.Model
	input   textinput.Model
	spinner spinner.Model

	loading  bool
	adding   bool
	editing  bool
	editID   string
	saving   bool
	inputErr string

	status      string
	statusLevel slog.Level
	statusSeq   int

	width, height int
}

// NewModel builds the list view over backend. Nothing is fetched until
// Init runs.
func NewModel(ctx context.Context, backend todo.Backend, opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	t := ui.Current()

	l := list.New(nil, itemDelegate{}, 80, 20)
	l.SetShowHelp(true)
	l.SetShowPagination(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = t.Title
	l.Styles.HelpStyle = t.Muted
	l.Styles.PaginationStyle = t.Muted
	l.FilterInput.Prompt = "/ "
	l.SetStatusBarItemName("todo", "todos")
	l.AdditionalShortHelpKeys = keys.help
	l.AdditionalFullHelpKeys = keys.help

	in := textinput.New()
	in.Prompt = "> "
	in.CharLimit = 200

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = t.Accent

	m := Model{
		ctx:     ctx,
		backend: backend,
		logger:  opts.Logger,
		did:     opts.DID,
		todos:   todo.NewList(opts.Now),
		list:    l,
		input:   in,
		spinner: sp,
		loading: true,
		width:   80,
		height:  24,
	}
	m.syncList()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchCmd())
}

// Items returns what the list currently shows, placeholders included.
func (m Model) Items() []model.Todo { return m.todos.Items() }

func (m Model) fetchCmd() tea.Cmd {
	ctx, backend, logger := m.ctx, m.backend, m.logger
	version := m.todos.Version()
	return func() tea.Msg {
		items, err := backend.Fetch(ctx)
		if err != nil {
			logger.Error("fetching todos failed", "error", err)
		}
		return fetchedMsg{items: items, version: version, err: err}
	}
}

func (m Model) createCmd(tempID string, data model.Data) tea.Cmd {
	ctx, backend, logger := m.ctx, m.backend, m.logger
	return func() tea.Msg {
		created, err := backend.Create(ctx, data)
		if err != nil {
			logger.Error("creating todo failed", "description", data.Description, "error", err)
		}
		return createdMsg{tempID: tempID, todo: created, err: err}
	}
}

func (m Model) saveCmd(id string, data model.Data, fromEdit bool) tea.Cmd {
	ctx, backend, logger := m.ctx, m.backend, m.logger
	return func() tea.Msg {
		err := backend.Save(ctx, id, data)
		if err != nil {
			logger.Error("saving todo failed", "id", id, "error", err)
		}
		return savedMsg{id: id, fromEdit: fromEdit, err: err}
	}
}

func (m Model) deleteCmd(id string) tea.Cmd {
	ctx, backend, logger := m.ctx, m.backend, m.logger
	return func() tea.Msg {
		err := backend.Delete(ctx, id)
		if err != nil {
			logger.Error("deleting todo failed", "id", id, "error", err)
		}
		return deletedMsg{id: id, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case fetchedMsg:
		m.loading = false
		// A reply issued before a local change would undo it.
		if msg.err == nil && msg.version == m.todos.Version() {
			m.todos.Replace(msg.items)
		}
		m.syncList()
		return m, nil

	case createdMsg:
		// A failed create leaves the placeholder in place.
		if msg.err == nil && m.todos.Confirm(msg.tempID, msg.todo) {
			m.syncList()
		}
		return m, nil

	case savedMsg:
		if !msg.fromEdit || !m.editing || m.editID != msg.id {
			return m, nil
		}
		m.saving = false
		if msg.err != nil {
			return m, m.input.Focus()
		}
		m = m.closeInput()
		return m, nil

	case deletedMsg:
		if msg.err == nil && m.todos.Remove(msg.id) {
			m.syncList()
		}
		return m, nil

	case logRecordMsg:
		m.status = msg.Summary
		m.statusLevel = msg.Level
		m.statusSeq++
		seq := m.statusSeq
		return m, tea.Tick(logRecordFadeDelay, func(time.Time) tea.Msg {
			return logRecordFadeMsg{seq: seq}
		})

	case logRecordFadeMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.adding || m.editing {
			return m.updateInput(msg)
		}
		if m.loading {
			if msg.String() == "q" {
				return m, tea.Quit
			}
			return m, nil
		}
		return m.updateList(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The filter prompt owns the keyboard while it is open, and esc
	// clears an applied filter before it quits.
	if m.list.FilterState() == list.Filtering ||
		(m.list.FilterState() == list.FilterApplied && msg.String() == "esc") {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Add):
		m.adding = true
		m.inputErr = ""
		m.input.SetValue("")
		m.input.Placeholder = "What needs doing?"
		m.resize()
		return m, m.input.Focus()

	case key.Matches(msg, keys.Edit):
		it, ok := m.selected()
		if !ok || it.Pending() {
			return m, nil
		}
		m.editing = true
		m.editID = it.ID
		m.inputErr = ""
		m.input.SetValue(it.Description)
		m.input.CursorEnd()
		m.input.Placeholder = "New description"
		m.resize()
		return m, m.input.Focus()

	case key.Matches(msg, keys.Toggle):
		it, ok := m.selected()
		if !ok || it.Pending() {
			return m, nil
		}
		updated, _ := m.todos.Mutate(it.ID, func(t *model.Todo) { t.Completed = !t.Completed })
		m.syncList()
		return m, m.saveCmd(it.ID, updated.Data(), false)

	case key.Matches(msg, keys.Delete):
		it, ok := m.selected()
		if !ok || it.Pending() {
			return m, nil
		}
		return m, m.deleteCmd(it.ID)

	case key.Matches(msg, keys.Refresh):
		return m, m.fetchCmd()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.closeInput(), nil
	case "enter":
		if m.saving {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			m.inputErr = "Description cannot be empty"
			return m, nil
		}
		m.inputErr = ""
		if m.editing {
			return m.submitEdit(text)
		}
		return m.submitAdd(text)
	}
	if m.saving {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submitAdd(text string) (tea.Model, tea.Cmd) {
	placeholder := m.todos.InsertPending(text)
	m = m.closeInput()
	m.syncList()
	m.list.Select(m.todos.Len() - 1)
	return m, m.createCmd(placeholder.ID, placeholder.Data())
}

// submitEdit applies the new description locally and keeps the edit
// row open until the save lands.
func (m Model) submitEdit(text string) (tea.Model, tea.Cmd) {
	id := m.editID
	updated, ok := m.todos.Mutate(id, func(t *model.Todo) { t.Description = text })
	if !ok {
		return m.closeInput(), nil
	}
	m.input.SetValue("")
	m.input.Blur()
	m.saving = true
	m.syncList()
	return m, m.saveCmd(id, updated.Data(), true)
}

func (m Model) closeInput() Model {
	m.adding = false
	m.editing = false
	m.editID = ""
	m.saving = false
	m.inputErr = ""
	m.input.SetValue("")
	m.input.Blur()
	m.resize()
	return m
}

func (m Model) selected() (model.Todo, bool) {
	li, ok := m.list.SelectedItem().(listItem)
	if !ok {
		return model.Todo{}, false
	}
	return m.todos.Get(li.todo.ID)
}

func (m *Model) syncList() {
	items := m.todos.Items()
	out := make([]list.Item, len(items))
	for i, it := range items {
		out[i] = listItem{todo: it}
	}
	m.list.SetItems(out)
	m.list.Title = m.header()
}

func (m Model) header() string {
	t := ui.Current()
	done, open := m.todos.Stats()
	return fmt.Sprintf("%s   %s %d  %s %d  %s %d",
		t.Title.Render("Todo List"),
		t.Success.Render(t.SymDone), done,
		t.Pending.Render(t.SymUnchecked), open,
		t.Accent.Render("Total"), m.todos.Len(),
	)
}

func (m *Model) resize() {
	// border, padding, connection line, status line
	h := m.height - 5
	if m.adding || m.editing {
		h -= 4
	}
	m.list.SetSize(max(m.width-4, 20), max(h, 3))
}

func (m Model) connectionLine() string {
	t := ui.Current()
	if m.did == "" {
		return t.Muted.Render("Connecting to DWN . . .")
	}
	return t.Success.Render(t.SymDone+" DWN connected") + t.Muted.Render("  "+identity.ShortDID(m.did))
}

func (m Model) View() string {
	t := ui.Current()
	if m.loading {
		return panelString(m.connectionLine() + "\n\n" + m.spinner.View() + " Loading . . .")
	}

	content := m.connectionLine() + "\n" + m.list.View()
	if m.adding || m.editing {
		title := "Add todo"
		if m.editing {
			title = "Edit todo"
		}
		if m.saving {
			title += " " + t.Pending.Render(t.BoxSyncing+" saving")
		}
		if m.inputErr != "" {
			title += " " + t.Error.Render(t.SymCross+" "+m.inputErr)
		}
		bar := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
		content += "\n" + bar.Render(title+"\n"+m.input.View())
	}
	if m.status != "" {
		style := t.Muted
		if m.statusLevel >= slog.LevelError {
			style = t.Error
		}
		content += "\n" + style.Render(ansi.Truncate(m.status, max(m.width-6, 10), "…"))
	}
	return panelString(content)
}

func panelString(inner string) string {
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(0, 1)
	return border.Render(inner)
}
