package core

import (
	"crypto/md5"
	"time"

	"github.com/google/uuid"
)

// AccountType discriminates the account variants
type AccountType string

const (
	AccountTypeMicrosoft AccountType = "microsoft"
	AccountTypeOffline   AccountType = "offline"
)

// SkinRef references a skin texture on the profile
type SkinRef struct {
	ID      string `json:"id"`
	State   string `json:"state"` // ACTIVE or INACTIVE
	URL     string `json:"url"`
	Variant string `json:"variant"` // CLASSIC or SLIM
}

// CapeRef references a cape texture on the profile
type CapeRef struct {
	ID    string `json:"id"`
	State string `json:"state"`
	URL   string `json:"url"`
	Alias string `json:"alias"`
}

// ProfileSnapshot is the last-synced view of the game profile
type ProfileSnapshot struct {
	Skins []SkinRef `json:"skins,omitempty"`
	Capes []CapeRef `json:"capes,omitempty"`
}

// ActiveSkin returns the skin currently worn, if any
func (p ProfileSnapshot) ActiveSkin() (SkinRef, bool) {
	for _, s := range p.Skins {
		if s.State == "ACTIVE" {
			return s, true
		}
	}
	return SkinRef{}, false
}

// Account represents a configured launcher account.
// The username is the lookup key and is unique (case-insensitive) within
// a store. Offline accounts carry no tokens and never touch the network.
type Account struct {
	Username     string          `json:"username"`
	Type         AccountType     `json:"type"`
	UUID         string          `json:"uuid"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	AccessToken  string          `json:"accessToken,omitempty"`
	ExpiresAt    time.Time       `json:"expiresAt"`
	NeedsReauth  bool            `json:"needsReauth,omitempty"`
	Profile      ProfileSnapshot `json:"profile"`
}

// IsExpired checks if the access token is expired (with 5m buffer)
func (a *Account) IsExpired() bool {
	if a.Type == AccountTypeOffline {
		return false
	}
	return time.Now().Add(5 * time.Minute).After(a.ExpiresAt)
}

// CanRefresh reports whether the account can take the silent renewal path
func (a *Account) CanRefresh() bool {
	return a.Type == AccountTypeMicrosoft && a.RefreshToken != ""
}

// NewOfflineAccount creates a local-only account. When id is empty the
// standard offline UUID for the name is derived.
func NewOfflineAccount(username, id string) *Account {
	if id == "" {
		id = OfflineUUID(username)
	}
	return &Account{
		Username: username,
		Type:     AccountTypeOffline,
		UUID:     id,
	}
}

// OfflineUUID derives the offline-mode UUID the game itself would assign:
// a version-3 name UUID of "OfflinePlayer:"+name, matching Java's
// UUID.nameUUIDFromBytes.
func OfflineUUID(name string) string {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80

	u, err := uuid.FromBytes(sum[:])
	if err != nil {
		return ""
	}
	return u.String()
}
