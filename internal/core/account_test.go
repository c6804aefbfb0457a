package core

import (
	"testing"
	"time"
)

func TestAccount_IsExpired(t *testing.T) {
	acc := &Account{
		Type:      AccountTypeMicrosoft,
		ExpiresAt: time.Now().Add(1 * time.Hour),
	}
	if acc.IsExpired() {
		t.Error("Token valid for an hour should not be expired")
	}

	// Inside the 5 minute buffer counts as expired
	acc.ExpiresAt = time.Now().Add(2 * time.Minute)
	if !acc.IsExpired() {
		t.Error("Token inside the expiry buffer should count as expired")
	}

	acc.ExpiresAt = time.Now().Add(-1 * time.Hour)
	if !acc.IsExpired() {
		t.Error("Past expiry should be expired")
	}
}

func TestAccount_OfflineNeverExpires(t *testing.T) {
	acc := NewOfflineAccount("Steve", "")
	if acc.IsExpired() {
		t.Error("Offline accounts never expire")
	}
	if acc.CanRefresh() {
		t.Error("Offline accounts have no refresh path")
	}
	if acc.RefreshToken != "" {
		t.Error("Offline accounts must not carry a refresh token")
	}
}

func TestOfflineUUID(t *testing.T) {
	// The derivation must match the game's own offline-mode UUID
	// (md5 name-UUID of "OfflinePlayer:"+name).
	got := OfflineUUID("Notch")
	want := "b50ad385-829d-3141-a216-7e7d7539ba7f"
	if got != want {
		t.Errorf("OfflineUUID(Notch) = %s, want %s", got, want)
	}

	if OfflineUUID("Steve") == OfflineUUID("steve") {
		t.Error("Offline UUIDs are case-sensitive")
	}
}

func TestProfileSnapshot_ActiveSkin(t *testing.T) {
	p := ProfileSnapshot{Skins: []SkinRef{
		{ID: "a", State: "INACTIVE"},
		{ID: "b", State: "ACTIVE"},
	}}
	skin, ok := p.ActiveSkin()
	if !ok || skin.ID != "b" {
		t.Errorf("Expected active skin b, got %v (ok=%v)", skin, ok)
	}

	if _, ok := (ProfileSnapshot{}).ActiveSkin(); ok {
		t.Error("Empty snapshot has no active skin")
	}
}
