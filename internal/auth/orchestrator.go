// Package auth sequences the federated login pipeline: identity provider,
// Xbox Live, the Xbox security-token service, and the game service, and
// commits the result into the account store.
package auth

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/quasar/craftlauncher/internal/api"
	"github.com/quasar/craftlauncher/internal/core"
	"github.com/quasar/craftlauncher/internal/skins"
)

// State is the orchestrator's position in the pipeline
type State int

const (
	StateIdle State = iota
	StateAwaitingUserCode
	StatePollingToken
	StateExchangingAuthCode
	StateRefreshingToken
	StateExchangingXboxUser
	StateExchangingXboxSecurity
	StateLoggingIntoGameService
	StateCheckingEntitlement
	StateFetchingProfile
	StateAuthenticated
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:                   "idle",
	StateAwaitingUserCode:       "awaiting user code",
	StatePollingToken:           "waiting for sign-in",
	StateExchangingAuthCode:     "exchanging authorization code",
	StateRefreshingToken:        "refreshing session",
	StateExchangingXboxUser:     "contacting Xbox Live",
	StateExchangingXboxSecurity: "obtaining security token",
	StateLoggingIntoGameService: "logging in to the game service",
	StateCheckingEntitlement:    "checking game ownership",
	StateFetchingProfile:        "fetching profile",
	StateAuthenticated:          "authenticated",
	StateFailed:                 "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// The provider clients, as the orchestrator consumes them. Satisfied by
// the api package; fakes stand in for tests.
type tokenExchanger interface {
	RequestDeviceCode(ctx context.Context) (*api.DeviceCode, error)
	WaitForToken(ctx context.Context, dc *api.DeviceCode) (*api.TokenSet, error)
	ExchangeAuthorizationCode(ctx context.Context, code string) (*api.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*api.TokenSet, error)
}

type xboxBridge interface {
	GetUserToken(ctx context.Context, providerAccessToken string) (*api.XboxToken, error)
	GetSecurityToken(ctx context.Context, userToken string) (*api.XboxToken, error)
}

type sessionIssuer interface {
	Login(ctx context.Context, xstsToken, userHash string) (*api.GameSession, error)
	GetEntitlements(ctx context.Context, accessToken string) (*api.Entitlements, error)
	GetProfile(ctx context.Context, accessToken string) (*api.Profile, error)
}

// Orchestrator drives the pipeline end-to-end, or along the refresh
// shortcut, and owns the single commit into the store
type Orchestrator struct {
	msa   tokenExchanger
	xbox  xboxBridge
	mc    sessionIssuer
	store *core.AccountStore

	skins   *skins.Cache // optional
	logger  *slog.Logger
	onState func(State)
}

// NewOrchestrator wires the real provider clients
func NewOrchestrator(clientID string, store *core.AccountStore, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		msa:    api.NewMSAClient(clientID),
		xbox:   api.NewXboxClient(),
		mc:     api.NewMinecraftClient(),
		store:  store,
		logger: logger,
	}
}

// SetSkinCache enables best-effort skin syncing after profile fetch
func (o *Orchestrator) SetSkinCache(c *skins.Cache) { o.skins = c }

// SetStateListener registers a callback for state transitions. Called from
// the goroutine running the flow; keep it cheap.
func (o *Orchestrator) SetStateListener(fn func(State)) { o.onState = fn }

func (o *Orchestrator) setState(s State) {
	o.logger.Debug("auth state", "state", s.String())
	if o.onState != nil {
		o.onState(s)
	}
}

func (o *Orchestrator) fail(err error) error {
	o.setState(StateFailed)
	return err
}

// LoginWithDeviceCode runs the device-authorization flow. onCode receives
// the user code and verification URI for display while polling runs;
// cancelling ctx stops the polling loop with no state mutation.
func (o *Orchestrator) LoginWithDeviceCode(ctx context.Context, onCode func(userCode, verificationURI string)) (*core.Account, error) {
	o.setState(StateAwaitingUserCode)
	dc, err := o.msa.RequestDeviceCode(ctx)
	if err != nil {
		return nil, o.fail(err)
	}
	if onCode != nil {
		onCode(dc.UserCode, dc.VerificationURI)
	}

	o.setState(StatePollingToken)
	tokens, err := o.msa.WaitForToken(ctx, dc)
	if err != nil {
		return nil, o.fail(err)
	}

	return o.completeLogin(ctx, tokens)
}

// LoginWithAuthorizationCode runs the interactive-code path
func (o *Orchestrator) LoginWithAuthorizationCode(ctx context.Context, code string) (*core.Account, error) {
	o.setState(StateExchangingAuthCode)
	tokens, err := o.msa.ExchangeAuthorizationCode(ctx, code)
	if err != nil {
		return nil, o.fail(err)
	}
	return o.completeLogin(ctx, tokens)
}

// RefreshAccount renews a stored account's session without user
// interaction. A rejected refresh token flags the account as needing
// interactive re-login; the account itself is retained.
func (o *Orchestrator) RefreshAccount(ctx context.Context, acc *core.Account) error {
	if !acc.CanRefresh() {
		return oops.Code(core.CodeReauthRequired).
			With("username", acc.Username).
			Errorf("account has no refresh token")
	}

	o.setState(StateRefreshingToken)
	tokens, err := o.msa.Refresh(ctx, acc.RefreshToken)
	if err != nil {
		if core.IsCode(err, core.CodeInvalidGrant) || core.IsCode(err, core.CodeAccessDenied) {
			o.logger.Warn("refresh token rejected", "username", acc.Username)
			acc.NeedsReauth = true
			if serr := o.store.Add(acc); serr != nil {
				o.logger.Warn("failed to persist reauth flag", "err", serr)
			}
			return o.fail(oops.Code(core.CodeReauthRequired).
				With("username", acc.Username).
				Wrapf(err, "refresh token rejected"))
		}
		return o.fail(err)
	}

	_, err = o.completeLogin(ctx, tokens)
	return err
}

// EnsureFresh is the use-time gate: offline and unexpired accounts pass
// through, expired provider-backed accounts take the refresh shortcut.
func (o *Orchestrator) EnsureFresh(ctx context.Context, acc *core.Account) error {
	if acc.Type == core.AccountTypeOffline || !acc.IsExpired() {
		return nil
	}
	if acc.NeedsReauth || !acc.CanRefresh() {
		return oops.Code(core.CodeReauthRequired).
			With("username", acc.Username).
			Errorf("interactive re-login required")
	}
	return o.RefreshAccount(ctx, acc)
}

// completeLogin runs the Xbox chain and the game-service stages, then
// commits. No account is persisted before the terminal success state.
func (o *Orchestrator) completeLogin(ctx context.Context, tokens *api.TokenSet) (*core.Account, error) {
	o.setState(StateExchangingXboxUser)
	userToken, err := o.xbox.GetUserToken(ctx, tokens.AccessToken)
	if err != nil {
		return nil, o.fail(err)
	}

	o.setState(StateExchangingXboxSecurity)
	xsts, err := o.xbox.GetSecurityToken(ctx, userToken.Token)
	if err != nil {
		return nil, o.fail(err)
	}

	o.setState(StateLoggingIntoGameService)
	session, err := o.mc.Login(ctx, xsts.Token, xsts.UserHash)
	if err != nil {
		return nil, o.fail(err)
	}

	o.setState(StateCheckingEntitlement)
	entitlements, err := o.mc.GetEntitlements(ctx, session.AccessToken)
	if err != nil {
		return nil, o.fail(err)
	}
	if !entitlements.OwnsMinecraft() {
		return nil, o.fail(oops.Code(core.CodeNotEntitled).
			Errorf("this account does not own the game"))
	}

	o.setState(StateFetchingProfile)
	profile, err := o.mc.GetProfile(ctx, session.AccessToken)
	if err != nil {
		return nil, o.fail(err)
	}

	acc := &core.Account{
		Username:     profile.Name,
		Type:         core.AccountTypeMicrosoft,
		UUID:         profile.ID,
		RefreshToken: tokens.RefreshToken,
		AccessToken:  session.AccessToken,
		ExpiresAt:    session.ExpiresAt,
		Profile: core.ProfileSnapshot{
			Skins: profile.Skins,
			Capes: profile.Capes,
		},
	}

	// Add updates in place when the username already exists, so a
	// re-login or refresh only touches token and profile fields.
	if err := o.store.Add(acc); err != nil {
		o.logger.Warn("account saved in memory only", "err", err)
	}
	committed := o.store.FindByUsername(profile.Name)
	if committed == nil {
		committed = acc
	}

	if o.skins != nil {
		// Cosmetic; ignore the error beyond the cache's own logging.
		_ = o.skins.Sync(ctx, committed)
	}

	o.logger.Info("authenticated", "username", committed.Username, "uuid", committed.UUID)
	o.setState(StateAuthenticated)
	return committed, nil
}
