package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/api"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/keychain"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/localstate"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/session"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/utils"
)

const secret = "test-secret"

type fakeAuth struct {
	ttlMin     int
	refreshErr error
	refreshes  int
	loggedOut  []string
}

func (f *fakeAuth) issue(t *testing.T, uid, email, name string) api.AuthResponse {
	tok, err := utils.NewIdentityToken(secret, utils.IdentityClaims{UserID: uid, Email: email, Name: name}, f.ttlMin)
	require.NoError(t, err)
	return api.AuthResponse{
		User:    api.UserPart{ID: uid, Email: email, Name: name, Plan: "free", Role: "host"},
		Access:  api.TokenPart{Token: tok.Token, Expires: tok.Exp},
		Refresh: api.TokenPart{Token: "refresh-" + uid},
	}
}

type authFunc struct {
	*fakeAuth
	t *testing.T
}

func (a authFunc) Login(_ context.Context, email, _ string) (api.AuthResponse, error) {
	return a.issue(a.t, "u1", email, "Dana"), nil
}

func (a authFunc) Register(_ context.Context, email, _, name string) (api.AuthResponse, error) {
	return a.issue(a.t, "u2", email, name), nil
}

func (a authFunc) Refresh(_ context.Context, refresh string) (api.AuthResponse, error) {
	a.refreshes++
	if a.refreshErr != nil {
		return api.AuthResponse{}, a.refreshErr
	}
	a.ttlMin = 60
	return a.issue(a.t, "u1", "dana@example.com", "Dana"), nil
}

func (a authFunc) Logout(_ context.Context, refresh string) error {
	a.loggedOut = append(a.loggedOut, refresh)
	return nil
}

func newProvider(t *testing.T, f *fakeAuth) (*Provider, *keychain.Mock) {
	keys := keychain.NewMock()
	return New(authFunc{fakeAuth: f, t: t}, keys, nil), keys
}

func TestStartRestoresPrincipalFromKeychain(t *testing.T) {
	p, keys := newProvider(t, &fakeAuth{ttlMin: 60})
	tok, err := utils.NewIdentityToken(secret, utils.IdentityClaims{UserID: "u9", Email: "x@y.z", Name: "X"}, 60)
	require.NoError(t, err)
	require.NoError(t, keys.Set(keychain.KeyIdentityToken, tok.Token))

	var got []*session.Principal
	p.Subscribe(func(pr *session.Principal) { got = append(got, pr) })
	p.Start()

	require.NoError(t, p.Ready().Wait(context.Background(), time.Second))
	require.Len(t, got, 1)
	assert.Equal(t, "u9", got[0].UID)
	assert.Equal(t, "x@y.z", got[0].Email)
}

func TestStartWithoutTokenReportsNoUser(t *testing.T) {
	p, _ := newProvider(t, &fakeAuth{})
	p.Start()

	var got []*session.Principal
	p.Subscribe(func(pr *session.Principal) { got = append(got, pr) })
	require.Len(t, got, 1)
	assert.Nil(t, got[0])
}

func TestStartDiscardsGarbageToken(t *testing.T) {
	p, keys := newProvider(t, &fakeAuth{})
	require.NoError(t, keys.Set(keychain.KeyIdentityToken, "not-a-jwt"))
	p.Start()

	assert.Nil(t, p.Current())
	_, err := keys.Get(keychain.KeyIdentityToken)
	assert.ErrorIs(t, err, keychain.ErrNotFound)
}

func TestSignInStoresTokensAndNotifies(t *testing.T) {
	p, keys := newProvider(t, &fakeAuth{ttlMin: 60})
	p.Start()
	var last *session.Principal
	p.Subscribe(func(pr *session.Principal) { last = pr })

	pr, err := p.SignIn(context.Background(), "dana@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u1", pr.UID)
	assert.Equal(t, pr, last)

	refresh, err := keys.Get(keychain.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-u1", refresh)

	tok, err := p.IDToken(context.Background())
	require.NoError(t, err)
	c, err := utils.ParseIdentityToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UserID)
}

func TestIDTokenRefreshesExpiredToken(t *testing.T) {
	f := &fakeAuth{ttlMin: 0}
	p, _ := newProvider(t, f)
	_, err := p.SignIn(context.Background(), "dana@example.com", "pw")
	require.NoError(t, err)

	tok, err := p.IDToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.refreshes)
	_, exp, err := utils.ReadIdentityToken(tok)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now().Add(time.Minute)))
}

func TestIDTokenRejectedRefreshSignsOut(t *testing.T) {
	f := &fakeAuth{ttlMin: 0, refreshErr: apperr.New(apperr.KindAuthRequired, "invalid or expired refresh token")}
	p, keys := newProvider(t, f)
	_, err := p.SignIn(context.Background(), "dana@example.com", "pw")
	require.NoError(t, err)

	_, err = p.IDToken(context.Background())
	assert.Equal(t, apperr.KindAuthRequired, apperr.KindOf(err))
	assert.Nil(t, p.Current())
	_, err = keys.Get(keychain.KeyRefreshToken)
	assert.ErrorIs(t, err, keychain.ErrNotFound)
}

func TestIDTokenWithoutSignIn(t *testing.T) {
	p, _ := newProvider(t, &fakeAuth{})
	_, err := p.IDToken(context.Background())
	assert.Equal(t, apperr.KindAuthRequired, apperr.KindOf(err))
}

func TestSignOutRevokesAndClears(t *testing.T) {
	f := &fakeAuth{ttlMin: 60}
	p, keys := newProvider(t, f)
	_, err := p.SignIn(context.Background(), "dana@example.com", "pw")
	require.NoError(t, err)

	require.NoError(t, p.SignOut(context.Background()))
	assert.Nil(t, p.Current())
	assert.Equal(t, []string{"refresh-u1"}, f.loggedOut)
	_, err = keys.Get(keychain.KeyIdentityToken)
	assert.ErrorIs(t, err, keychain.ErrNotFound)

	// a second sign-out has nothing to revoke
	require.NoError(t, p.SignOut(context.Background()))
	assert.Len(t, f.loggedOut, 1)
}

func TestProviderDrivesSessionCache(t *testing.T) {
	p, _ := newProvider(t, &fakeAuth{ttlMin: 60})
	cache := session.New(session.Options{State: localstate.NewMemory(), Provider: p})
	cache.Init()
	p.Start()
	assert.False(t, cache.IsAuthenticated())

	_, err := p.SignIn(context.Background(), "dana@example.com", "pw")
	require.NoError(t, err)
	require.True(t, cache.IsAuthenticated())
	assert.Equal(t, session.RoleHost, cache.EffectiveRole())
	assert.Equal(t, "Dana", cache.Current().Name)

	cache.SignOut(context.Background(), "")
	assert.False(t, cache.IsAuthenticated())
	assert.Nil(t, p.Current())
}
