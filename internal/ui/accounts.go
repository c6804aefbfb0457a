// Package ui contains all TUI view components.
// Each view is a Bubbletea model that can be composed into the main app.
package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/quasar/craftlauncher/internal/core"
)

// AccountsModel is the account list view
type AccountsModel struct {
	list     list.Model
	accounts []*core.Account
	selected *core.Account
	width    int
	height   int
	keys     accountsKeyMap
	loading  bool

	// Offline account entry
	naming bool
	input  textinput.Model
}

type accountsKeyMap struct {
	Switch  key.Binding
	SignIn  key.Binding
	Offline key.Binding
	Delete  key.Binding
}

func defaultAccountsKeyMap() accountsKeyMap {
	return accountsKeyMap{
		Switch: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "switch"),
		),
		SignIn: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "sign in"),
		),
		Offline: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "offline"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
	}
}

// accountItem represents an account in the list
type accountItem struct {
	account  *core.Account
	selected bool
}

func (i accountItem) Title() string {
	if i.selected {
		return i.account.Username + " ✓"
	}
	return i.account.Username
}

func (i accountItem) Description() string {
	if i.account.Type == core.AccountTypeOffline {
		return "Offline • local only"
	}

	status := "session expired"
	switch {
	case i.account.NeedsReauth:
		status = "re-login required"
	case !i.account.IsExpired():
		status = "session expires " + humanize.Time(i.account.ExpiresAt)
	}
	return fmt.Sprintf("Microsoft • %s", status)
}

func (i accountItem) FilterValue() string { return i.account.Username }

// NewAccountsModel creates the account list view
func NewAccountsModel() *AccountsModel {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorPrimary).
		BorderLeftForeground(ColorPrimary)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSecondary).
		BorderLeftForeground(ColorPrimary)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "👤 Accounts"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = TitleStyle
	l.SetShowHelp(false)

	input := textinput.New()
	input.Placeholder = "player name"
	input.CharLimit = 16

	return &AccountsModel{
		list:    l,
		keys:    defaultAccountsKeyMap(),
		loading: true,
		input:   input,
	}
}

// SetAccounts updates the account list and the selection marker
func (m *AccountsModel) SetAccounts(accounts []*core.Account, selected *core.Account) {
	m.accounts = accounts
	m.selected = selected
	m.loading = false

	items := make([]list.Item, len(accounts))
	for i, acc := range accounts {
		items[i] = accountItem{account: acc, selected: acc == selected}
	}
	m.list.SetItems(items)
}

// SelectedAccount returns the account under the cursor
func (m *AccountsModel) SelectedAccount() *core.Account {
	if item, ok := m.list.SelectedItem().(accountItem); ok {
		return item.account
	}
	return nil
}

// SetSize updates the dimensions of the view
func (m *AccountsModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-3)
}

// Init implements tea.Model
func (m *AccountsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m *AccountsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case AccountsLoaded:
		if msg.Error == nil {
			m.SetAccounts(msg.Accounts, msg.Selected)
		}
		return m, nil

	case tea.KeyMsg:
		if m.naming {
			switch msg.String() {
			case "enter":
				name := m.input.Value()
				m.naming = false
				m.input.SetValue("")
				if name != "" {
					return m, func() tea.Msg { return CreateOfflineAccount{Username: name} }
				}
				return m, nil
			case "esc":
				m.naming = false
				m.input.SetValue("")
				return m, nil
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		// Don't handle keys if filtering
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Switch):
			if acc := m.SelectedAccount(); acc != nil {
				return m, func() tea.Msg { return SwitchToAccount{Account: acc} }
			}
		case key.Matches(msg, m.keys.SignIn):
			return m, func() tea.Msg { return NavigateToAuth{} }
		case key.Matches(msg, m.keys.Offline):
			m.naming = true
			return m, m.input.Focus()
		case key.Matches(msg, m.keys.Delete):
			if acc := m.SelectedAccount(); acc != nil {
				return m, func() tea.Msg { return RemoveAccount{Account: acc} }
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m *AccountsModel) View() string {
	if m.loading {
		return HelpStyle.Render("Loading accounts...")
	}

	if m.naming {
		prompt := BoxStyle.Render("Offline account name:\n\n" + m.input.View())
		help := HelpStyle.Render("\n[enter] create • [esc] cancel")
		return lipgloss.JoinVertical(lipgloss.Left, prompt, help)
	}

	if len(m.accounts) == 0 {
		empty := lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Render("No accounts yet. Press 'a' to sign in with Microsoft.")

		help := HelpStyle.Render("\n\n[a] sign in • [o] offline account • [q] quit")

		return lipgloss.JoinVertical(
			lipgloss.Left,
			m.list.View(),
			empty,
			help,
		)
	}

	help := HelpStyle.Render("[enter] switch • [a] sign in • [o] offline • [d] delete • [q] quit")

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.list.View(),
		help,
	)
}
