package eth

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyPersonalSign(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	msg := []byte("challenge bytes")
	sig, err := crypto.Sign(PersonalSignHash(msg).Bytes(), key)
	require.NoError(t, err)

	ok, err := VerifyPersonalSign(msg, sig, address)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPersonalSign_LegacyRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	msg := []byte("challenge bytes")
	sig, err := crypto.Sign(PersonalSignHash(msg).Bytes(), key)
	require.NoError(t, err)

	// Wallets emit v as 27/28.
	sig[64] += 27

	ok, err := VerifyPersonalSign(msg, sig, address)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPersonalSign_WrongKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	msg := []byte("challenge bytes")
	sig, err := crypto.Sign(PersonalSignHash(msg).Bytes(), other)
	require.NoError(t, err)

	ok, err := VerifyPersonalSign(msg, sig, crypto.PubkeyToAddress(key.PublicKey))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecoverAddress_BadLength(t *testing.T) {
	_, err := RecoverAddress(PersonalSignHash([]byte("x")), make([]byte, 64))
	assert.Error(t, err)
}
