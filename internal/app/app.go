// Package app contains the main Bubbletea application model.
// This is the central hub that manages app state and delegates to child views.
package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/quasar/craftlauncher/internal/api"
	"github.com/quasar/craftlauncher/internal/auth"
	"github.com/quasar/craftlauncher/internal/config"
	"github.com/quasar/craftlauncher/internal/core"
	"github.com/quasar/craftlauncher/internal/skins"
	"github.com/quasar/craftlauncher/internal/ui"
)

// State represents the current view/screen of the application
type State int

const (
	StateAccounts State = iota
	StateAuth
)

// authEvent carries orchestrator output from its goroutine into the
// Bubbletea loop
type authEvent struct {
	progress *ui.AuthProgress
	code     *ui.AuthCodeReady
	done     *ui.AuthDone
}

// Model is the main application model
type Model struct {
	state  State
	width  int
	height int

	// Child models for each view
	accounts *ui.AccountsModel
	authView *ui.AuthModel

	// Core services
	cfg          *config.Config
	store        *core.AccountStore
	orchestrator *auth.Orchestrator
	mojang       *api.MojangClient
	logger       *slog.Logger

	// Auth flow state
	authEvents    chan authEvent
	authCtxCancel context.CancelFunc

	// Key bindings
	keys keyMap

	// Shared state
	ready bool
}

// keyMap defines the keybindings for the app
type keyMap struct {
	Quit key.Binding
	Back key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
	}
}

// New creates a new application model
func New() *Model {
	cfg, _ := config.Load()
	cfg.EnsureDirs()

	logger := newLogger(cfg.DataDir)
	store := core.NewAccountStore(cfg.DataDir, logger)

	orchestrator := auth.NewOrchestrator(cfg.MSAClientID, store, logger)
	orchestrator.SetSkinCache(skins.NewCache(cfg.SkinsDir, logger))

	return &Model{
		state:        StateAccounts,
		accounts:     ui.NewAccountsModel(),
		cfg:          cfg,
		store:        store,
		orchestrator: orchestrator,
		mojang:       api.NewMojangClient(),
		logger:       logger,
		keys:         defaultKeyMap(),
	}
}

// newLogger writes structured logs to a file; the terminal belongs to the
// TUI.
func newLogger(dataDir string) *slog.Logger {
	f, err := os.OpenFile(filepath.Join(dataDir, "launcher.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.accounts.Init(),
		m.loadAccounts(),
	)
}

func (m *Model) loadAccounts() tea.Cmd {
	return func() tea.Msg {
		err := m.store.Load()
		return ui.AccountsLoaded{
			Accounts: m.store.Accounts(),
			Selected: m.store.Selected(),
			Error:    err,
		}
	}
}

// refreshAccountList re-reads the in-memory store into the list view
func (m *Model) refreshAccountList() tea.Cmd {
	return func() tea.Msg {
		return ui.AccountsLoaded{
			Accounts: m.store.Accounts(),
			Selected: m.store.Selected(),
		}
	}
}

// startAuth launches the device-code flow in its own goroutine and bridges
// its callbacks onto the event channel the update loop drains.
func (m *Model) startAuth() tea.Cmd {
	events := make(chan authEvent, 16)
	m.authEvents = events

	ctx, cancel := context.WithCancel(context.Background())
	m.authCtxCancel = cancel

	m.orchestrator.SetStateListener(func(s auth.State) {
		events <- authEvent{progress: &ui.AuthProgress{State: s}}
	})

	go func() {
		acc, err := m.orchestrator.LoginWithDeviceCode(ctx, func(userCode, verificationURI string) {
			events <- authEvent{code: &ui.AuthCodeReady{
				UserCode:        userCode,
				VerificationURI: verificationURI,
			}}
		})
		events <- authEvent{done: &ui.AuthDone{Account: acc, Error: err}}
		close(events)
	}()

	return m.waitForAuthEvent()
}

// waitForAuthEvent creates a command that waits for the next auth event
func (m *Model) waitForAuthEvent() tea.Cmd {
	return func() tea.Msg {
		if m.authEvents == nil {
			return nil
		}
		ev, ok := <-m.authEvents
		if !ok {
			return nil
		}
		switch {
		case ev.progress != nil:
			return *ev.progress
		case ev.code != nil:
			return *ev.code
		case ev.done != nil:
			return *ev.done
		}
		return nil
	}
}

func (m *Model) stopAuth() {
	if m.authCtxCancel != nil {
		m.authCtxCancel()
		m.authCtxCancel = nil
	}
	// The flow goroutine drains into its own buffered channel; dropping
	// the reference is enough.
	m.authEvents = nil
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		// Propagate size to child models
		m.accounts.SetSize(msg.Width, msg.Height)
		if m.authView != nil {
			m.authView.SetSize(msg.Width, msg.Height)
		}

	// Navigation messages
	case ui.NavigateToAccounts:
		m.stopAuth()
		m.state = StateAccounts
		return m, m.refreshAccountList()

	case ui.NavigateToAuth:
		m.state = StateAuth
		m.authView = ui.NewAuthModel()
		m.authView.SetSize(m.width, m.height)
		return m, tea.Batch(
			m.authView.Init(),
			m.startAuth(),
		)

	// Account management
	case ui.SwitchToAccount:
		m.store.SwitchAccount(msg.Account)
		return m, m.refreshAccountList()

	case ui.RemoveAccount:
		m.store.Remove(msg.Account)
		return m, m.refreshAccountList()

	case ui.CreateOfflineAccount:
		return m, m.createOfflineAccount(msg.Username)

	// Auth flow events - continue draining the channel
	case ui.AuthProgress:
		if m.authView != nil {
			m.authView.Update(msg)
		}
		return m, m.waitForAuthEvent()

	case ui.AuthCodeReady:
		var cmd tea.Cmd
		if m.authView != nil {
			_, cmd = m.authView.Update(msg)
		}
		return m, tea.Batch(cmd, m.waitForAuthEvent())

	case ui.AuthDone:
		m.authEvents = nil
		m.authCtxCancel = nil
		if m.authView != nil {
			_, cmd := m.authView.Update(msg)
			return m, cmd
		}
		return m, nil

	// Global key handlers
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.state == StateAccounts {
				return m, tea.Quit
			}
		case key.Matches(msg, m.keys.Back):
			if m.state == StateAuth {
				m.stopAuth()
				m.state = StateAccounts
				return m, m.refreshAccountList()
			}
		}
	}

	// Delegate to current view
	switch m.state {
	case StateAccounts:
		newAccounts, cmd := m.accounts.Update(msg)
		m.accounts = newAccounts.(*ui.AccountsModel)
		cmds = append(cmds, cmd)

	case StateAuth:
		if m.authView != nil {
			newAuth, cmd := m.authView.Update(msg)
			m.authView = newAuth.(*ui.AuthModel)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// createOfflineAccount resolves the username against Mojang so a taken
// name keeps its real UUID, then stores the local account.
func (m *Model) createOfflineAccount(username string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Best effort: an unreachable Mojang falls back to the derived
		// offline UUID.
		id, err := m.mojang.LookupUUID(ctx, username)
		if err != nil {
			id = ""
		}
		m.store.Add(core.NewOfflineAccount(username, id))

		return ui.AccountsLoaded{
			Accounts: m.store.Accounts(),
			Selected: m.store.Selected(),
		}
	}
}

// View implements tea.Model
func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	// Delegate to current view
	switch m.state {
	case StateAccounts:
		return m.accounts.View()
	case StateAuth:
		if m.authView != nil {
			return m.authView.View()
		}
	}

	return "Unknown state"
}
