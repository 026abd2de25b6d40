package verifier

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xsend/sendauth/core"
	"github.com/0xsend/sendauth/internal/eth"
	"github.com/0xsend/sendauth/ports"
)

func TestChainAddressVerifier(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	challenge := &core.Challenge{Bytes: []byte("challenge bytes")}
	account := &core.Account{ChainAddress: crypto.PubkeyToAddress(key.PublicKey)}

	sig, err := crypto.Sign(eth.PersonalSignHash(challenge.Bytes).Bytes(), key)
	require.NoError(t, err)

	v := NewChainAddressVerifier()
	err = v.Verify(context.Background(), ports.VerifyInput{
		Challenge: challenge,
		Account:   account,
		Signature: sig,
	})
	assert.NoError(t, err)
}

func TestChainAddressVerifier_WrongKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	challenge := &core.Challenge{Bytes: []byte("challenge bytes")}
	account := &core.Account{ChainAddress: crypto.PubkeyToAddress(key.PublicKey)}

	sig, err := crypto.Sign(eth.PersonalSignHash(challenge.Bytes).Bytes(), other)
	require.NoError(t, err)

	v := NewChainAddressVerifier()
	err = v.Verify(context.Background(), ports.VerifyInput{
		Challenge: challenge,
		Account:   account,
		Signature: sig,
	})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestChainAddressVerifier_MalformedSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	v := NewChainAddressVerifier()
	err = v.Verify(context.Background(), ports.VerifyInput{
		Challenge: &core.Challenge{Bytes: []byte("x")},
		Account:   &core.Account{ChainAddress: crypto.PubkeyToAddress(key.PublicKey)},
		Signature: []byte{0x01},
	})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestChainAddressVerifier_NoChainAddress(t *testing.T) {
	v := NewChainAddressVerifier()
	err := v.Verify(context.Background(), ports.VerifyInput{
		Challenge: &core.Challenge{Bytes: []byte("x")},
		Account:   &core.Account{},
		Signature: make([]byte, 65),
	})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}
