package ui

import (
	"github.com/quasar/craftlauncher/internal/auth"
	"github.com/quasar/craftlauncher/internal/core"
)

// Navigation messages
type (
	// NavigateToAccounts returns to the account list
	NavigateToAccounts struct{}

	// NavigateToAuth opens the sign-in screen
	NavigateToAuth struct{}

	// RemoveAccount requests account removal
	RemoveAccount struct {
		Account *core.Account
	}

	// SwitchToAccount requests an account switch
	SwitchToAccount struct {
		Account *core.Account
	}

	// CreateOfflineAccount requests a local-only account
	CreateOfflineAccount struct {
		Username string
	}
)

// Action messages
type (
	// AccountsLoaded is sent when the store has been read from disk
	AccountsLoaded struct {
		Accounts []*core.Account
		Selected *core.Account
		Error    error
	}

	// AuthProgress reports an orchestrator state transition
	AuthProgress struct {
		State auth.State
	}

	// AuthCodeReady carries the device code to display to the user
	AuthCodeReady struct {
		UserCode        string
		VerificationURI string
	}

	// AuthDone is sent when the sign-in flow finishes
	AuthDone struct {
		Account *core.Account
		Error   error
	}
)
