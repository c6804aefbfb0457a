package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quasar/craftlauncher/internal/api"
	"github.com/quasar/craftlauncher/internal/core"
)

// fakeProviders implements the three provider interfaces with canned
// responses and call accounting.
type fakeProviders struct {
	deviceCodeCalls int
	pollCalls       int
	authCodeCalls   int
	refreshCalls    int

	refreshErr   error
	entitlements *api.Entitlements
	profile      *api.Profile
	profileErr   error
}

func newFakeProviders() *fakeProviders {
	return &fakeProviders{
		entitlements: &api.Entitlements{Items: []api.EntitlementItem{
			{Name: "product_minecraft"},
		}},
		profile: &api.Profile{
			ID:   "uuid1",
			Name: "Alice",
			Skins: []core.SkinRef{
				{ID: "skin1", State: "ACTIVE", URL: "http://t/abc", Variant: "CLASSIC"},
			},
		},
	}
}

func (f *fakeProviders) RequestDeviceCode(ctx context.Context) (*api.DeviceCode, error) {
	f.deviceCodeCalls++
	return &api.DeviceCode{
		DeviceCode:      "DC1",
		UserCode:        "ABCD-1234",
		VerificationURI: "http://verify",
		Interval:        1,
		ExpiresAt:       time.Now().Add(15 * time.Minute),
	}, nil
}

func (f *fakeProviders) WaitForToken(ctx context.Context, dc *api.DeviceCode) (*api.TokenSet, error) {
	f.pollCalls++
	return f.tokens(), nil
}

func (f *fakeProviders) ExchangeAuthorizationCode(ctx context.Context, code string) (*api.TokenSet, error) {
	f.authCodeCalls++
	return f.tokens(), nil
}

func (f *fakeProviders) Refresh(ctx context.Context, refreshToken string) (*api.TokenSet, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.tokens(), nil
}

func (f *fakeProviders) tokens() *api.TokenSet {
	return &api.TokenSet{
		AccessToken:  "AT1",
		RefreshToken: "RT1",
		ExpiresAt:    time.Now().Add(1 * time.Hour),
	}
}

func (f *fakeProviders) GetUserToken(ctx context.Context, providerAccessToken string) (*api.XboxToken, error) {
	return &api.XboxToken{Token: "XBL1", UserHash: "UH1"}, nil
}

func (f *fakeProviders) GetSecurityToken(ctx context.Context, userToken string) (*api.XboxToken, error) {
	return &api.XboxToken{Token: "XSTS1", UserHash: "UH1"}, nil
}

func (f *fakeProviders) Login(ctx context.Context, xstsToken, userHash string) (*api.GameSession, error) {
	return &api.GameSession{
		AccessToken: "MCAT1",
		ExpiresAt:   time.Now().Add(86400 * time.Second),
	}, nil
}

func (f *fakeProviders) GetEntitlements(ctx context.Context, accessToken string) (*api.Entitlements, error) {
	return f.entitlements, nil
}

func (f *fakeProviders) GetProfile(ctx context.Context, accessToken string) (*api.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeProviders, *core.AccountStore) {
	t.Helper()
	fakes := newFakeProviders()
	store := core.NewAccountStore(t.TempDir(), nil)
	o := &Orchestrator{
		msa:    fakes,
		xbox:   fakes,
		mc:     fakes,
		store:  store,
		logger: slog.New(slog.DiscardHandler),
	}
	return o, fakes, store
}

func TestOrchestrator_LoginWithDeviceCode(t *testing.T) {
	o, fakes, store := newTestOrchestrator(t)

	var states []State
	o.SetStateListener(func(s State) { states = append(states, s) })

	var shownCode, shownURI string
	start := time.Now()
	acc, err := o.LoginWithDeviceCode(context.Background(), func(userCode, verificationURI string) {
		shownCode = userCode
		shownURI = verificationURI
	})
	require.NoError(t, err)

	assert.Equal(t, "ABCD-1234", shownCode)
	assert.Equal(t, "http://verify", shownURI)
	assert.Equal(t, 1, fakes.deviceCodeCalls)
	assert.Equal(t, 1, fakes.pollCalls)

	assert.Equal(t, "Alice", acc.Username)
	assert.Equal(t, "uuid1", acc.UUID)
	assert.Equal(t, core.AccountTypeMicrosoft, acc.Type)
	assert.Equal(t, "RT1", acc.RefreshToken)
	assert.Equal(t, "MCAT1", acc.AccessToken)
	assert.WithinDuration(t, start.Add(86400*time.Second), acc.ExpiresAt, 5*time.Second)
	require.Len(t, acc.Profile.Skins, 1)

	assert.Same(t, acc, store.Selected(), "first account is auto-selected")

	assert.Equal(t, []State{
		StateAwaitingUserCode,
		StatePollingToken,
		StateExchangingXboxUser,
		StateExchangingXboxSecurity,
		StateLoggingIntoGameService,
		StateCheckingEntitlement,
		StateFetchingProfile,
		StateAuthenticated,
	}, states)
}

func TestOrchestrator_LoginWithAuthorizationCode(t *testing.T) {
	o, fakes, store := newTestOrchestrator(t)

	acc, err := o.LoginWithAuthorizationCode(context.Background(), "abc123")
	require.NoError(t, err)

	assert.Equal(t, 1, fakes.authCodeCalls)
	assert.Zero(t, fakes.deviceCodeCalls)
	assert.Equal(t, "Alice", acc.Username)
	assert.Len(t, store.Accounts(), 1)
}

func TestOrchestrator_NotEntitled(t *testing.T) {
	o, fakes, store := newTestOrchestrator(t)
	fakes.entitlements = &api.Entitlements{}

	var states []State
	o.SetStateListener(func(s State) { states = append(states, s) })

	_, err := o.LoginWithAuthorizationCode(context.Background(), "abc123")
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeNotEntitled), "got code %q", core.ErrorCode(err))

	assert.Empty(t, store.Accounts(), "no account is persisted without ownership")
	assert.Nil(t, store.Selected())
	assert.NotContains(t, states, StateFetchingProfile, "profile is never fetched after the ownership gate")
	assert.Equal(t, StateFailed, states[len(states)-1])
}

func TestOrchestrator_NoProfile(t *testing.T) {
	o, fakes, store := newTestOrchestrator(t)
	fakes.profileErr = oops.Code(core.CodeNoProfile).Errorf("account has no game profile")

	_, err := o.LoginWithAuthorizationCode(context.Background(), "abc123")
	assert.True(t, core.IsCode(err, core.CodeNoProfile), "got code %q", core.ErrorCode(err))
	assert.Empty(t, store.Accounts())
}

func TestOrchestrator_RefreshAccount(t *testing.T) {
	o, fakes, store := newTestOrchestrator(t)

	acc := &core.Account{
		Username:     "Alice",
		Type:         core.AccountTypeMicrosoft,
		UUID:         "uuid1",
		RefreshToken: "RT0",
		AccessToken:  "stale",
		ExpiresAt:    time.Now().Add(-1 * time.Hour),
	}
	require.NoError(t, store.Add(acc))

	require.NoError(t, o.RefreshAccount(context.Background(), acc))

	assert.Equal(t, 1, fakes.refreshCalls)
	assert.Zero(t, fakes.deviceCodeCalls, "refresh path skips the device flow")
	assert.Zero(t, fakes.authCodeCalls)

	require.Len(t, store.Accounts(), 1, "refresh updates in place")
	updated := store.FindByUsername("Alice")
	assert.Equal(t, "MCAT1", updated.AccessToken)
	assert.Equal(t, "RT1", updated.RefreshToken)
	assert.False(t, updated.NeedsReauth)
}

func TestOrchestrator_RefreshRejectedFlagsAccount(t *testing.T) {
	o, fakes, store := newTestOrchestrator(t)
	fakes.refreshErr = oops.Code(core.CodeInvalidGrant).Errorf("refresh token revoked")

	acc := &core.Account{
		Username:     "Alice",
		Type:         core.AccountTypeMicrosoft,
		UUID:         "uuid1",
		RefreshToken: "RT0",
		ExpiresAt:    time.Now().Add(-1 * time.Hour),
	}
	require.NoError(t, store.Add(acc))

	err := o.RefreshAccount(context.Background(), acc)
	assert.True(t, core.IsCode(err, core.CodeReauthRequired), "got code %q", core.ErrorCode(err))

	require.Len(t, store.Accounts(), 1, "the account is retained")
	assert.True(t, store.FindByUsername("Alice").NeedsReauth)
}

func TestOrchestrator_EnsureFresh(t *testing.T) {
	o, fakes, store := newTestOrchestrator(t)

	t.Run("offline passes through", func(t *testing.T) {
		require.NoError(t, o.EnsureFresh(context.Background(), core.NewOfflineAccount("Steve", "")))
		assert.Zero(t, fakes.refreshCalls)
	})

	t.Run("unexpired passes through", func(t *testing.T) {
		acc := &core.Account{
			Username:     "Alice",
			Type:         core.AccountTypeMicrosoft,
			RefreshToken: "RT0",
			ExpiresAt:    time.Now().Add(1 * time.Hour),
		}
		require.NoError(t, o.EnsureFresh(context.Background(), acc))
		assert.Zero(t, fakes.refreshCalls)
	})

	t.Run("expired takes the refresh path", func(t *testing.T) {
		acc := &core.Account{
			Username:     "Alice",
			Type:         core.AccountTypeMicrosoft,
			UUID:         "uuid1",
			RefreshToken: "RT0",
			ExpiresAt:    time.Now().Add(-1 * time.Hour),
		}
		require.NoError(t, store.Add(acc))
		require.NoError(t, o.EnsureFresh(context.Background(), acc))
		assert.Equal(t, 1, fakes.refreshCalls)
		assert.Zero(t, fakes.deviceCodeCalls)
	})

	t.Run("flagged account requires interactive login", func(t *testing.T) {
		acc := &core.Account{
			Username:     "Bob",
			Type:         core.AccountTypeMicrosoft,
			RefreshToken: "RT0",
			NeedsReauth:  true,
			ExpiresAt:    time.Now().Add(-1 * time.Hour),
		}
		err := o.EnsureFresh(context.Background(), acc)
		assert.True(t, core.IsCode(err, core.CodeReauthRequired), "got code %q", core.ErrorCode(err))
	})
}
