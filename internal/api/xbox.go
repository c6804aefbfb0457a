package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/quasar/craftlauncher/internal/core"
)

var (
	xboxUserAuthURL = "https://user.auth.xboxlive.com/user/authenticate"
	xstsAuthURL     = "https://xsts.auth.xboxlive.com/xsts/authorize"
)

// xboxDenialMessages covers the publicly documented XErr values. Anything
// else passes through with the raw code attached.
var xboxDenialMessages = map[int64]string{
	2148916233: "this Microsoft account has no Xbox account",
	2148916235: "Xbox Live is not available in this region",
	2148916236: "adult verification is required on the Xbox page",
	2148916237: "adult verification is required on the Xbox page",
	2148916238: "this account is a child and must be added to a family",
}

// XboxClient trades a provider access token for an Xbox Live user token,
// then for an XSTS token scoped to the game service
type XboxClient struct {
	httpClient *http.Client
}

func NewXboxClient() *XboxClient {
	return &XboxClient{httpClient: newRetryClient(30 * time.Second)}
}

// XboxToken is produced at both the XBL and XSTS stages
type XboxToken struct {
	Token     string
	UserHash  string
	ExpiresAt time.Time
}

type xboxAuthRequest struct {
	Properties   xboxAuthProperties `json:"Properties"`
	RelyingParty string             `json:"RelyingParty"`
	TokenType    string             `json:"TokenType"`
}

type xboxAuthProperties struct {
	AuthMethod string   `json:"AuthMethod,omitempty"`
	SiteName   string   `json:"SiteName,omitempty"`
	RpsTicket  string   `json:"RpsTicket,omitempty"`
	SandboxId  string   `json:"SandboxId,omitempty"`
	UserTokens []string `json:"UserTokens,omitempty"`
}

type xboxAuthResponse struct {
	Token         string `json:"Token"`
	NotAfter      string `json:"NotAfter"`
	DisplayClaims struct {
		XUI []struct {
			UHS string `json:"uhs"`
		} `json:"xui"`
	} `json:"DisplayClaims"`
}

type xboxErrorResponse struct {
	XErr    int64  `json:"XErr"`
	Message string `json:"Message"`
}

// GetUserToken exchanges a provider access token for an Xbox Live user
// token. The "d=" RpsTicket prefix is part of the wire contract.
func (c *XboxClient) GetUserToken(ctx context.Context, providerAccessToken string) (*XboxToken, error) {
	return c.doXboxRequest(ctx, xboxUserAuthURL, xboxAuthRequest{
		Properties: xboxAuthProperties{
			AuthMethod: "RPS",
			SiteName:   "user.auth.xboxlive.com",
			RpsTicket:  "d=" + providerAccessToken,
		},
		RelyingParty: "http://auth.xboxlive.com",
		TokenType:    "JWT",
	})
}

// GetSecurityToken exchanges an Xbox Live user token for an XSTS token
// scoped to the game service, carrying the user hash needed downstream
func (c *XboxClient) GetSecurityToken(ctx context.Context, userToken string) (*XboxToken, error) {
	return c.doXboxRequest(ctx, xstsAuthURL, xboxAuthRequest{
		Properties: xboxAuthProperties{
			SandboxId:  "RETAIL",
			UserTokens: []string{userToken},
		},
		RelyingParty: "rp://api.minecraftservices.com/",
		TokenType:    "JWT",
	})
}

func (c *XboxClient) doXboxRequest(ctx context.Context, url string, body xboxAuthRequest) (*XboxToken, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-xbl-contract-version", "1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, oops.Code(core.CodeTransientNetwork).Wrapf(err, "xbox auth request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var denial xboxErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&denial); err == nil && denial.XErr != 0 {
			msg := xboxDenialMessages[denial.XErr]
			if msg == "" {
				msg = denial.Message
			}
			if msg == "" {
				msg = "xbox authentication denied"
			}
			return nil, oops.Code(core.CodeXboxAuthDenied).
				With("xerr", denial.XErr).
				Errorf("%s", msg)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, oops.Code(core.CodeXboxAuthDenied).
				With("status", resp.StatusCode).
				Errorf("xbox auth failed (%d)", resp.StatusCode)
		}
		return nil, oops.Code(core.CodeTransientNetwork).
			With("status", resp.StatusCode).
			Errorf("xbox auth failed (%d)", resp.StatusCode)
	}

	var result xboxAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, oops.Code(core.CodeTransientNetwork).Wrapf(err, "decoding xbox auth response")
	}

	token := &XboxToken{Token: result.Token}
	if len(result.DisplayClaims.XUI) > 0 {
		token.UserHash = result.DisplayClaims.XUI[0].UHS
	}
	if result.NotAfter != "" {
		// NotAfter uses seven fractional digits; RFC3339Nano parses it.
		if t, err := time.Parse(time.RFC3339Nano, result.NotAfter); err == nil {
			token.ExpiresAt = t
		}
	}
	return token, nil
}
