package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/quasar/craftlauncher/internal/core"
)

var (
	mcLoginURL        = "https://api.minecraftservices.com/launcher/login"
	mcEntitlementsURL = "https://api.minecraftservices.com/entitlements/license"
	mcProfileURL      = "https://api.minecraftservices.com/minecraft/profile"
)

// Entitlement names that prove game ownership
const (
	entitlementProduct = "product_minecraft"
	entitlementGame    = "game_minecraft"
)

// MinecraftClient issues game sessions and queries entitlement and profile
type MinecraftClient struct {
	httpClient *http.Client
}

func NewMinecraftClient() *MinecraftClient {
	return &MinecraftClient{httpClient: newRetryClient(30 * time.Second)}
}

// GameSession is a usable game access token
type GameSession struct {
	Username    string
	AccessToken string
	ExpiresAt   time.Time
}

type mcLoginRequest struct {
	XToken   string `json:"xtoken"`
	Platform string `json:"platform"`
}

type mcLoginResponse struct {
	Username    string `json:"username"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Entitlements is the set of owned product licenses
type Entitlements struct {
	Items []EntitlementItem `json:"items"`
}

type EntitlementItem struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
}

// OwnsMinecraft reports whether the required ownership flag is present
func (e *Entitlements) OwnsMinecraft() bool {
	for _, item := range e.Items {
		if item.Name == entitlementProduct || item.Name == entitlementGame {
			return true
		}
	}
	return false
}

// Profile is the game profile (uuid, name, textures)
type Profile struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Skins []core.SkinRef `json:"skins"`
	Capes []core.CapeRef `json:"capes"`
}

// Login exchanges an XSTS token and user hash for a game session
func (c *MinecraftClient) Login(ctx context.Context, xstsToken, userHash string) (*GameSession, error) {
	reqBody := mcLoginRequest{
		XToken:   fmt.Sprintf("XBL3.0 x=%s;%s", userHash, xstsToken),
		Platform: "PC_LAUNCHER",
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mcLoginURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, oops.Code(core.CodeTransientNetwork).Wrapf(err, "game login failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, oops.Code(core.CodeTransientNetwork).
			With("status", resp.StatusCode).
			Errorf("game login failed (%d)", resp.StatusCode)
	}

	var result mcLoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, oops.Code(core.CodeTransientNetwork).Wrapf(err, "decoding login response")
	}
	return &GameSession{
		Username:    result.Username,
		AccessToken: result.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}

// GetEntitlements queries owned licenses. Every call carries a fresh random
// requestId; the service rejects reused identifiers.
func (c *MinecraftClient) GetEntitlements(ctx context.Context, accessToken string) (*Entitlements, error) {
	url := fmt.Sprintf("%s?requestId=%s", mcEntitlementsURL, uuid.NewString())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, oops.Code(core.CodeTransientNetwork).Wrapf(err, "entitlements request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, oops.Code(core.CodeTransientNetwork).
			With("status", resp.StatusCode).
			Errorf("entitlements request failed (%d)", resp.StatusCode)
	}

	var result Entitlements
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, oops.Code(core.CodeTransientNetwork).Wrapf(err, "decoding entitlements")
	}
	return &result, nil
}

// GetProfile fetches the game profile. A 404 means the account owns the
// game but has never created a profile, which is its own terminal state.
func (c *MinecraftClient) GetProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mcProfileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, oops.Code(core.CodeTransientNetwork).Wrapf(err, "profile request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, oops.Code(core.CodeNoProfile).Errorf("account has no game profile")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, oops.Code(core.CodeTransientNetwork).
			With("status", resp.StatusCode).
			Errorf("profile request failed (%d)", resp.StatusCode)
	}

	var result Profile
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, oops.Code(core.CodeTransientNetwork).Wrapf(err, "decoding profile")
	}
	return &result, nil
}
