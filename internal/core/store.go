package core

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// ChangeKind identifies what happened to the store
type ChangeKind string

const (
	AccountAdded     ChangeKind = "added"
	AccountUpdated   ChangeKind = "updated"
	AccountRemoved   ChangeKind = "removed"
	SelectionChanged ChangeKind = "selection"
)

// Change is delivered to subscribed listeners after a store mutation.
// For SelectionChanged the Account is the new selection and may be nil.
type Change struct {
	Kind    ChangeKind
	Account *Account
}

// Listener receives store change notifications
type Listener func(Change)

// AccountStore holds the configured accounts and the current selection.
// Mutations are serialized behind the mutex; the file on disk is a plain
// overwrite, so Load tolerates partially written records.
type AccountStore struct {
	mu        sync.RWMutex
	accounts  []*Account
	selected  *Account
	lastUsed  string // persisted last-used username marker
	filePath  string
	logger    *slog.Logger
	listeners []Listener
}

// storeFile is the on-disk shape. Accounts are kept raw so one malformed
// record does not take down the rest of the list.
type storeFile struct {
	Accounts []json.RawMessage `json:"accounts"`
	LastUsed string            `json:"lastUsername,omitempty"`
}

// NewAccountStore creates a store backed by accounts.json under dataDir
func NewAccountStore(dataDir string, logger *slog.Logger) *AccountStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AccountStore{
		filePath: filepath.Join(dataDir, "accounts.json"),
		logger:   logger,
	}
}

// Subscribe registers a listener for store changes. Listeners are invoked
// after the mutation completes, outside the store lock.
func (s *AccountStore) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *AccountStore) notify(changes ...Change) {
	s.mu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, c := range changes {
		for _, l := range listeners {
			l(c)
		}
	}
}

// Load reads accounts from disk. Records that fail to decode are skipped
// with a warning. The selection is resolved by matching the persisted
// last-used username, falling back to the first account.
func (s *AccountStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return oops.Code(CodePersistence).With("path", s.filePath).Wrap(err)
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		// Corrupt file (e.g. a crash mid-write). Start empty rather
		// than refuse to boot.
		s.logger.Warn("accounts file unreadable, starting empty",
			"path", s.filePath, "err", err)
		return nil
	}

	s.accounts = s.accounts[:0]
	for i, raw := range file.Accounts {
		var acc Account
		if err := json.Unmarshal(raw, &acc); err != nil || acc.Username == "" {
			s.logger.Warn("skipping malformed account record", "index", i, "err", err)
			continue
		}
		s.accounts = append(s.accounts, &acc)
	}

	s.lastUsed = file.LastUsed
	s.selected = nil
	for _, acc := range s.accounts {
		if strings.EqualFold(acc.Username, s.lastUsed) {
			s.selected = acc
			break
		}
	}
	if s.selected == nil && len(s.accounts) > 0 {
		s.selected = s.accounts[0]
	}

	return nil
}

// Save writes the full account list to disk, overwriting prior contents.
// A failed write leaves in-memory state untouched and usable.
func (s *AccountStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *AccountStore) saveLocked() error {
	file := storeFile{LastUsed: s.lastUsed}
	for _, acc := range s.accounts {
		raw, err := json.Marshal(acc)
		if err != nil {
			return oops.Code(CodePersistence).With("username", acc.Username).Wrap(err)
		}
		file.Accounts = append(file.Accounts, raw)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return oops.Code(CodePersistence).Wrap(err)
	}
	if err := os.WriteFile(s.filePath, data, 0o644); err != nil {
		return oops.Code(CodePersistence).With("path", s.filePath).Wrap(err)
	}
	return nil
}

// Add appends an account, or updates the existing record when the username
// is already present (case-insensitive), keeping usernames unique. The
// first account in the store becomes selected automatically; otherwise the
// selection is left to the caller. A failed save is logged and returned,
// but the in-memory state keeps the account.
func (s *AccountStore) Add(acc *Account) error {
	s.mu.Lock()

	kind := AccountAdded
	if existing := s.findLocked(acc.Username); existing != nil {
		*existing = *acc
		acc = existing
		kind = AccountUpdated
	} else {
		s.accounts = append(s.accounts, acc)
		if len(s.accounts) == 1 {
			s.selected = acc
			s.lastUsed = acc.Username
		}
	}

	err := s.saveLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("failed to save accounts", "err", err)
	}
	s.notify(Change{Kind: kind, Account: acc})
	return err
}

// Remove deletes the account (matched by identity). If it was selected,
// the first remaining account is selected, or nothing when the store
// becomes empty.
func (s *AccountStore) Remove(acc *Account) error {
	s.mu.Lock()

	idx := -1
	for i, a := range s.accounts {
		if a == acc {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}

	s.accounts = append(s.accounts[:idx], s.accounts[idx+1:]...)

	changes := []Change{{Kind: AccountRemoved, Account: acc}}
	if s.selected == acc {
		if len(s.accounts) > 0 {
			s.selected = s.accounts[0]
			s.lastUsed = s.selected.Username
		} else {
			s.selected = nil
			s.lastUsed = ""
		}
		changes = append(changes, Change{Kind: SelectionChanged, Account: s.selected})
	}

	err := s.saveLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("failed to save accounts", "err", err)
	}
	s.notify(changes...)
	return err
}

// SwitchAccount changes the selection and the persisted last-used marker.
// Passing nil logs out of the current account.
func (s *AccountStore) SwitchAccount(acc *Account) error {
	s.mu.Lock()

	if acc == nil {
		s.logger.Info("logging out of account")
		s.selected = nil
		s.lastUsed = ""
	} else {
		s.logger.Info("switched account", "username", acc.Username)
		s.selected = acc
		s.lastUsed = acc.Username
	}

	err := s.saveLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("failed to save accounts", "err", err)
	}
	s.notify(Change{Kind: SelectionChanged, Account: acc})
	return err
}

// Selected returns the current selection, or nil
func (s *AccountStore) Selected() *Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Accounts returns the accounts in insertion order
func (s *AccountStore) Accounts() []*Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// FindByUsername finds an account by username, case-insensitive
func (s *AccountStore) FindByUsername(username string) *Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(username)
}

// ExistsByUsername reports whether an account with the username exists
func (s *AccountStore) ExistsByUsername(username string) bool {
	return s.FindByUsername(username) != nil
}

func (s *AccountStore) findLocked(username string) *Account {
	for _, acc := range s.accounts {
		if strings.EqualFold(acc.Username, username) {
			return acc
		}
	}
	return nil
}
