package keychain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func exercise(t *testing.T, kc Keychain) {
	t.Helper()
	_, err := kc.Get(KeyIdentityToken)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kc.Set(KeyIdentityToken, "abc"))
	v, err := kc.Get(KeyIdentityToken)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	require.NoError(t, kc.Delete(KeyIdentityToken))
	require.NoError(t, kc.Delete(KeyIdentityToken))
	_, err = kc.Get(KeyIdentityToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMock(t *testing.T) {
	exercise(t, NewMock())
}

func TestSystemWithMockProvider(t *testing.T) {
	keyring.MockInit()
	exercise(t, NewSystem())
}
