// Package auth owns the credential lifecycle: first login, lazy renewal
// before store operations, re-authentication with AppRole, and the
// unattended renewal entrypoint used by the systemd timer.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/systmms/vaultctl/internal/credential"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/logging"
	"github.com/systmms/vaultctl/internal/metrics"
	"github.com/systmms/vaultctl/internal/vault"
)


// RenewOutcome is the result of a renewal check.
type RenewOutcome int

const (
	NotNeeded RenewOutcome = iota
	Renewed
	Reauthenticated
)

func (o RenewOutcome) String() string {
	switch o {
	case Renewed:
		return "renewed"
	case Reauthenticated:
		return "reauthenticated"
	default:
		return "not_needed"
	}
}

// Options is the authentication configuration of one profile.
type Options struct {
	Address      string
	AppRoleMount string
	RoleID       string
	SecretID     string
	Token        string
	Threshold    time.Duration
	Increment    time.Duration
}

// HasAppRole reports whether both AppRole credentials are configured.
func (o Options) HasAppRole() bool {
	return o.RoleID != "" && o.SecretID != ""
}

// Authenticator drives the state machine for one profile's credential.
// It is not safe for concurrent use.
type Authenticator struct {
	store  vault.Client
	cache  credential.Cache
	opts   Options
	logger *logging.Logger
	now    func() time.Time

	state *stateInfo
	cred  *credential.Credential
}

// New returns an Authenticator in the Unauthenticated state.
func New(store vault.Client, cache credential.Cache, opts Options, logger *logging.Logger) *Authenticator {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.AppRoleMount == "" {
		opts.AppRoleMount = "approle"
	}
	return &Authenticator{
		store:  store,
		cache:  cache,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		state:  newStateInfo(),
	}
}

// WithClock replaces the time source.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// State is the current state.
func (a *Authenticator) State() State {
	return a.state.get()
}

// Transitions is the history of state changes.
func (a *Authenticator) Transitions() []Transition {
	return a.state.history()
}

// Credential is the credential in use, or nil.
func (a *Authenticator) Credential() *credential.Credential {
	return a.cred
}

// Threshold is the configured renewal threshold.
func (a *Authenticator) Threshold() time.Duration {
	return a.opts.Threshold
}

// Due reports whether cred should be renewed at now. Non-expiring tokens
// are never due.
func (a *Authenticator) Due(cred *credential.Credential, now time.Time) bool {
	if cred.NeverExpires() {
		return false
	}
	return cred.RemainingTTL(now) < a.opts.Threshold
}

// Peek loads the cached credential without touching the store or the
// state machine.
func (a *Authenticator) Peek() (*credential.Credential, error) {
	if a.cred != nil {
		return a.cred, nil
	}
	return a.cache.Load()
}

func (a *Authenticator) to(next State, reason string, err error) {
	from := a.state.get()
	if terr := a.state.transitionTo(next, reason, err, a.now()); terr != nil {
		a.logger.Debug("auth: %v (%s)", terr, reason)
		return
	}
	a.logger.WithField("method", a.method()).Debug("auth: %s -> %s: %s", from, next, reason)
}

func (a *Authenticator) method() string {
	if a.cred != nil {
		return string(a.cred.Method)
	}
	if a.opts.HasAppRole() {
		return string(credential.MethodAppRole)
	}
	return string(credential.MethodToken)
}

func (a *Authenticator) fail(err error, reason string) error {
	a.to(StateFatal, reason, err)
	return err
}

// Ensure returns a usable credential, authenticating or renewing first if
// needed. It runs before every store operation.
//
// A direct token that is due for renewal but cannot be renewed is still
// used, with a warning, for as long as it has not expired.
func (a *Authenticator) Ensure(ctx context.Context) (*credential.Credential, error) {
	cred, _, err := a.cycle(ctx, false, true)
	return cred, err
}

// Renew renews the credential when due, or unconditionally with force.
func (a *Authenticator) Renew(ctx context.Context, force bool) (RenewOutcome, error) {
	_, outcome, err := a.cycle(ctx, force, false)
	return outcome, err
}

// AutoRenew is the unattended entrypoint: one renewal check, recorded in
// metrics.
func (a *Authenticator) AutoRenew(ctx context.Context) (RenewOutcome, error) {
	outcome, err := a.Renew(ctx, false)

	now := a.now()
	var remaining time.Duration
	if a.cred != nil {
		remaining = a.cred.RemainingTTL(now)
	}
	label := outcome.String()
	if err != nil {
		label = "failed"
	}
	metrics.RecordRenewal(label, remaining, now)
	return outcome, err
}

// Login authenticates explicitly with the given method, replacing any
// cached credential.
func (a *Authenticator) Login(ctx context.Context, method credential.Method) (*credential.Credential, error) {
	if a.state.get() == StateFatal {
		a.to(StateUnauthenticated, "starting over", nil)
	}
	switch method {
	case credential.MethodAppRole:
		if !a.opts.HasAppRole() {
			return nil, a.fail(vcerrors.ErrNotAuthenticated, "no AppRole credentials configured")
		}
		return a.loginAppRole(ctx, a.opts.RoleID, a.opts.SecretID, "explicit login")
	case credential.MethodToken:
		if a.opts.Token == "" {
			return nil, a.fail(vcerrors.ErrNotAuthenticated, "no token configured")
		}
		return a.loginToken(ctx, a.opts.Token, "explicit login")
	default:
		return nil, fmt.Errorf("unknown auth method %q", method)
	}
}

// Logout revokes the token when asked to and clears the cache. A failed
// revocation is reported as a warning; local state is cleared regardless.
func (a *Authenticator) Logout(ctx context.Context, revoke bool) error {
	cred, err := a.Peek()
	if err != nil {
		return err
	}

	if cred != nil && revoke {
		a.store.SetToken(cred.Token)
		if rerr := a.store.RevokeSelf(ctx); rerr != nil {
			if errors.Is(rerr, vcerrors.ErrForbidden) {
				a.logger.Debug("Token was already invalid")
			} else {
				a.logger.Warn("Could not revoke token: %v", rerr)
			}
		}
	}

	a.store.SetToken("")
	a.cred = nil
	if err := a.cache.Clear(); err != nil {
		return err
	}
	if a.state.get() != StateUnauthenticated {
		a.to(StateUnauthenticated, "logged out", nil)
	}
	return nil
}

func (a *Authenticator) cycle(ctx context.Context, force, lenient bool) (*credential.Credential, RenewOutcome, error) {
	if a.state.get() == StateFatal {
		a.to(StateUnauthenticated, "starting over", nil)
		a.cred = nil
	}

	if a.cred == nil {
		cached, err := a.cache.Load()
		if err != nil {
			return nil, NotNeeded, a.fail(err, "credential cache unavailable")
		}
		if cached == nil {
			cred, err := a.authenticate(ctx, "no cached credential")
			if err != nil {
				return nil, NotNeeded, err
			}
			return cred, Reauthenticated, nil
		}
		a.cred = cached
		a.store.SetToken(cached.Token)
		a.to(StateAuthenticated, "loaded cached credential", nil)
	}

	cred := a.cred
	now := a.now()

	if cred.Expired(now) {
		return a.reauthenticate(ctx, cred, "cached credential expired", false)
	}
	if !force && !a.Due(cred, now) {
		return cred, NotNeeded, nil
	}

	if force {
		a.to(StateRenewalDue, "renewal forced", nil)
	} else {
		a.to(StateRenewalDue, fmt.Sprintf("%s left, threshold %s", cred.RemainingTTL(now).Round(time.Second), a.opts.Threshold), nil)
	}
	if !cred.Renewable {
		return a.reauthenticate(ctx, cred, "token is not renewable", lenient)
	}

	a.to(StateRenewing, fmt.Sprintf("increment %s", a.opts.Increment), nil)
	res, err := a.store.RenewSelf(ctx, a.opts.Increment)
	switch {
	case err == nil:
	case errors.Is(err, vcerrors.ErrNotRenewable):
		return a.reauthenticate(ctx, cred, "store refused renewal", lenient)
	default:
		return nil, NotNeeded, a.fail(err, "renewal failed")
	}

	// a max TTL cap shows up as less than asked for and less than was left
	remaining := cred.RemainingTTL(now)
	if !cred.NeverExpires() && res.TTL < a.opts.Increment && res.TTL <= remaining {
		return a.reauthenticate(ctx, cred, fmt.Sprintf("renewal did not extend the TTL (%s)", res.TTL), lenient)
	}

	cred.TTL = res.TTL
	cred.RenewedAt = now
	cred.Renewable = res.Renewable
	if err := a.cache.Save(cred); err != nil {
		return nil, NotNeeded, a.fail(err, "saving renewed credential")
	}
	a.to(StateAuthenticated, "renewed", nil)
	a.logger.Debug("Token renewed, TTL %s", res.TTL)
	return cred, Renewed, nil
}

// authenticate performs a first login from configuration.
func (a *Authenticator) authenticate(ctx context.Context, reason string) (*credential.Credential, error) {
	switch {
	case a.opts.HasAppRole():
		return a.loginAppRole(ctx, a.opts.RoleID, a.opts.SecretID, reason)
	case a.opts.Token != "":
		return a.loginToken(ctx, a.opts.Token, reason)
	default:
		return nil, a.fail(vcerrors.ErrNotAuthenticated, "no credentials configured")
	}
}

func (a *Authenticator) reauthenticate(ctx context.Context, cred *credential.Credential, reason string, lenient bool) (*credential.Credential, RenewOutcome, error) {
	a.to(StateReauthenticating, reason, nil)

	roleID, secretID := a.opts.RoleID, a.opts.SecretID
	if cred.Method == credential.MethodAppRole && (roleID == "" || secretID == "") {
		roleID, secretID = cred.RoleID, cred.SecretID
	}

	var (
		fresh *credential.Credential
		err   error
	)
	switch {
	case roleID != "" && secretID != "":
		fresh, err = a.loginAppRole(ctx, roleID, secretID, reason)
	case a.opts.Token != "" && a.opts.Token != cred.Token:
		fresh, err = a.loginToken(ctx, a.opts.Token, "configured token changed")
	case cred.Method == credential.MethodAppRole:
		return nil, NotNeeded, a.fail(vcerrors.ErrNotAuthenticated, "AppRole credentials missing")
	case lenient && !cred.Expired(a.now()):
		a.logger.Warn("Token expires in %s and cannot be renewed; replace it before then",
			cred.RemainingTTL(a.now()).Round(time.Second))
		a.to(StateAuthenticated, "token still valid", nil)
		return cred, NotNeeded, nil
	default:
		return nil, NotNeeded, a.fail(vcerrors.ErrManualTokenUpdate, reason)
	}
	if err != nil {
		return nil, NotNeeded, err
	}
	return fresh, Reauthenticated, nil
}

func (a *Authenticator) loginAppRole(ctx context.Context, roleID, secretID, reason string) (*credential.Credential, error) {
	a.to(StateAuthenticating, reason, nil)

	res, err := a.store.LoginAppRole(ctx, a.opts.AppRoleMount, roleID, secretID)
	if err != nil {
		return nil, a.fail(err, "AppRole login failed")
	}

	now := a.now()
	return a.adopt(&credential.Credential{
		Token:     res.Token,
		Address:   a.opts.Address,
		Method:    credential.MethodAppRole,
		IssuedAt:  now,
		RenewedAt: now,
		TTL:       res.TTL,
		Renewable: res.Renewable,
		RoleID:    roleID,
		SecretID:  secretID,
	})
}

func (a *Authenticator) loginToken(ctx context.Context, token, reason string) (*credential.Credential, error) {
	a.to(StateAuthenticating, reason, nil)

	a.store.SetToken(token)
	info, err := a.store.LookupSelf(ctx)
	if err != nil {
		a.store.SetToken("")
		return nil, a.fail(err, "token lookup failed")
	}

	now := a.now()
	return a.adopt(&credential.Credential{
		Token:     token,
		Address:   a.opts.Address,
		Method:    credential.MethodToken,
		IssuedAt:  now,
		RenewedAt: now,
		TTL:       info.TTL,
		Renewable: info.Renewable,
	})
}

// adopt makes cred the active credential and persists it.
func (a *Authenticator) adopt(cred *credential.Credential) (*credential.Credential, error) {
	a.store.SetToken(cred.Token)
	if err := a.cache.Save(cred); err != nil {
		return nil, a.fail(err, "saving credential")
	}
	a.cred = cred
	a.to(StateAuthenticated, fmt.Sprintf("%s login", cred.Method), nil)
	a.logger.Debug("Logged in with %s: token %s, ttl %s", cred.Method, logging.Secret(cred.Token), cred.TTL)
	return cred, nil
}
