package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/samber/oops"

	"github.com/quasar/craftlauncher/internal/core"
)

var (
	msaDeviceCodeURL = "https://login.microsoftonline.com/consumers/oauth2/v2.0/devicecode"
	msaTokenURL      = "https://login.microsoftonline.com/consumers/oauth2/v2.0/token"
)

const msaRedirectURI = "https://login.microsoftonline.com/common/oauth2/nativeclient"

// slowDownStep is added to the polling interval on each slow_down response
var slowDownStep = 5 * time.Second

// msaScopes is the scope set for every grant, joined with spaces on the wire
var msaScopes = []string{"XboxLive.signin", "offline_access"}

// MSAClient performs the identity-provider token exchanges
type MSAClient struct {
	httpClient *http.Client
	clientID   string
}

func NewMSAClient(clientID string) *MSAClient {
	return &MSAClient{
		httpClient: newRetryClient(30 * time.Second),
		clientID:   clientID,
	}
}

// newRetryClient builds the transport shared by the auth clients: bounded
// retries with backoff for timeouts, connection resets and 5xx, so a flaky
// provider surfaces as a single TRANSIENT_NETWORK error.
func newRetryClient(timeout time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = timeout
	return rc.StandardClient()
}

// DeviceCode is the handle returned by the device-authorization endpoint
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
	Message         string `json:"message"`

	// ExpiresAt is the validity deadline, fixed when the code is issued
	ExpiresAt time.Time `json:"-"`
}

// TokenSet is a successful grant from the token endpoint
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
}

type tokenWire struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// RequestDeviceCode initiates the device code flow
func (c *MSAClient) RequestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	data := url.Values{
		"client_id": {c.clientID},
		"scope":     {strings.Join(msaScopes, " ")},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msaDeviceCodeURL, bytes.NewBufferString(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, oops.Code(core.CodeTransientNetwork).Wrapf(err, "device code request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, oops.Code(core.CodeTransientNetwork).
			With("status", resp.StatusCode).
			Errorf("device code request failed")
	}

	var result DeviceCode
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, oops.Code(core.CodeTransientNetwork).Wrapf(err, "decoding device code response")
	}
	result.ExpiresAt = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	return &result, nil
}

// ExchangeAuthorizationCode trades a one-time authorization code for tokens
func (c *MSAClient) ExchangeAuthorizationCode(ctx context.Context, code string) (*TokenSet, error) {
	return c.requestToken(ctx, url.Values{
		"client_id":    {c.clientID},
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {msaRedirectURI},
		"scope":        {strings.Join(msaScopes, " ")},
	})
}

// Refresh obtains a fresh token set from a stored refresh token
func (c *MSAClient) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	return c.requestToken(ctx, url.Values{
		"client_id":     {c.clientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"scope":         {strings.Join(msaScopes, " ")},
	})
}

// PollOnce issues a single device-flow poll. Interim states come back as
// AUTH_PENDING / SLOW_DOWN errors; the caller decides how to wait.
func (c *MSAClient) PollOnce(ctx context.Context, deviceCode string) (*TokenSet, error) {
	return c.requestToken(ctx, url.Values{
		"client_id":   {c.clientID},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {deviceCode},
	})
}

// WaitForToken polls until the user approves, the device code expires, or
// ctx is cancelled. Polls are never issued closer together than the
// provider's current interval; slow_down widens it.
func (c *MSAClient) WaitForToken(ctx context.Context, dc *DeviceCode) (*TokenSet, error) {
	interval := time.Duration(dc.Interval) * time.Second
	if interval == 0 {
		interval = 5 * time.Second
	}
	deadline := dc.ExpiresAt
	if deadline.IsZero() {
		deadline = time.Now().Add(time.Duration(dc.ExpiresIn) * time.Second)
	}

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		tokens, err := c.PollOnce(ctx, dc.DeviceCode)
		switch {
		case err == nil:
			return tokens, nil
		case core.IsCode(err, core.CodeAuthPending):
			continue
		case core.IsCode(err, core.CodeSlowDown):
			interval += slowDownStep
			continue
		case core.IsCode(err, core.CodeTransientNetwork):
			// Single poll failed; the device code is still good.
			continue
		default:
			return nil, err
		}
	}

	return nil, oops.Code(core.CodeDeviceCodeExpired).Errorf("timeout waiting for user authorization")
}

func (c *MSAClient) requestToken(ctx context.Context, data url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msaTokenURL, bytes.NewBufferString(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, oops.Code(core.CodeTransientNetwork).Wrapf(err, "token request failed")
	}
	defer resp.Body.Close()

	var result tokenWire
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, oops.Code(core.CodeTransientNetwork).Wrapf(err, "decoding token response")
	}

	switch result.Error {
	case "":
		if result.AccessToken == "" {
			return nil, oops.Code(core.CodeTransientNetwork).
				With("status", resp.StatusCode).
				Errorf("token response missing access_token")
		}
		return &TokenSet{
			AccessToken:  result.AccessToken,
			RefreshToken: result.RefreshToken,
			TokenType:    result.TokenType,
			ExpiresAt:    time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
		}, nil
	case "authorization_pending":
		return nil, oops.Code(core.CodeAuthPending).Errorf("authorization pending")
	case "slow_down":
		return nil, oops.Code(core.CodeSlowDown).Errorf("provider requested slower polling")
	case "expired_token":
		return nil, oops.Code(core.CodeDeviceCodeExpired).Errorf("device code expired")
	case "access_denied":
		return nil, oops.Code(core.CodeAccessDenied).Errorf("user declined authorization")
	default:
		// invalid_grant and the rest of the declared OAuth errors are
		// terminal: the flow has to restart from the authorization step.
		return nil, oops.Code(core.CodeInvalidGrant).
			With("oauth_error", result.Error).
			Errorf("auth error: %s", result.Error)
	}
}
