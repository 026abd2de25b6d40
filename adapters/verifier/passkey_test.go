package verifier

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xsend/sendauth/core"
	"github.com/0xsend/sendauth/ports"
)

// coseP256Key encodes key as a COSE_Key EC2 map: kty=EC2, alg=ES256,
// crv=P-256, plus the x and y coordinates.
func coseP256Key(key *ecdsa.PublicKey) []byte {
	x := make([]byte, 32)
	y := make([]byte, 32)
	key.X.FillBytes(x)
	key.Y.FillBytes(y)

	out := []byte{
		0xa5,       // map(5)
		0x01, 0x02, // kty: EC2
		0x03, 0x26, // alg: ES256 (-7)
		0x20, 0x01, // crv: P-256
	}
	out = append(out, 0x21, 0x58, 0x20) // x: bytes(32)
	out = append(out, x...)
	out = append(out, 0x22, 0x58, 0x20) // y: bytes(32)
	out = append(out, y...)
	return out
}

type passkeyFixture struct {
	key        *ecdsa.PrivateKey
	challenge  *core.Challenge
	credential *core.Credential
}

func newPasskeyFixture(t *testing.T, slot uint8) *passkeyFixture {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return &passkeyFixture{
		key:       key,
		challenge: &core.Challenge{ID: "chal-1", Bytes: []byte("challenge bytes for passkey")},
		credential: &core.Credential{
			ID:        "cred-1",
			KeySlot:   slot,
			PublicKey: coseP256Key(&key.PublicKey),
		},
	}
}

// sign produces the slot-prefixed assertion a platform authenticator would
// emit for the fixture's challenge.
func (f *passkeyFixture) sign(t *testing.T, slot uint8) []byte {
	t.Helper()

	clientDataJSON, err := json.Marshal(map[string]string{
		"type":      "webauthn.get",
		"challenge": base64.RawURLEncoding.EncodeToString(f.challenge.Bytes),
	})
	require.NoError(t, err)

	authenticatorData := make([]byte, 37)
	authenticatorData[32] = 0x01 // user present

	clientDataHash := sha256.Sum256(clientDataJSON)
	signed := append(append([]byte{}, authenticatorData...), clientDataHash[:]...)
	digest := sha256.Sum256(signed)
	signature, err := ecdsa.SignASN1(rand.Reader, f.key, digest[:])
	require.NoError(t, err)

	envelope, err := json.Marshal(PasskeyEnvelope{
		AuthenticatorData: authenticatorData,
		ClientDataJSON:    clientDataJSON,
		Signature:         signature,
	})
	require.NoError(t, err)

	return append([]byte{slot}, envelope...)
}

func TestPasskeyVerifier(t *testing.T) {
	f := newPasskeyFixture(t, 2)

	v := NewPasskeyVerifier()
	err := v.Verify(context.Background(), ports.VerifyInput{
		Challenge:  f.challenge,
		Credential: f.credential,
		KeySlot:    2,
		Signature:  f.sign(t, 2),
	})
	assert.NoError(t, err)
}

func TestPasskeyVerifier_SlotPrefixMismatch(t *testing.T) {
	f := newPasskeyFixture(t, 2)

	v := NewPasskeyVerifier()
	err := v.Verify(context.Background(), ports.VerifyInput{
		Challenge:  f.challenge,
		Credential: f.credential,
		KeySlot:    2,
		Signature:  f.sign(t, 3),
	})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestPasskeyVerifier_WrongCredentialSlot(t *testing.T) {
	f := newPasskeyFixture(t, 2)
	f.credential.KeySlot = 4

	v := NewPasskeyVerifier()
	err := v.Verify(context.Background(), ports.VerifyInput{
		Challenge:  f.challenge,
		Credential: f.credential,
		KeySlot:    2,
		Signature:  f.sign(t, 2),
	})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestPasskeyVerifier_WrongKey(t *testing.T) {
	f := newPasskeyFixture(t, 0)
	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	f.credential.PublicKey = coseP256Key(&other.PublicKey)

	v := NewPasskeyVerifier()
	err = v.Verify(context.Background(), ports.VerifyInput{
		Challenge:  f.challenge,
		Credential: f.credential,
		KeySlot:    0,
		Signature:  f.sign(t, 0),
	})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestPasskeyVerifier_ChallengeMismatch(t *testing.T) {
	f := newPasskeyFixture(t, 0)
	signature := f.sign(t, 0)

	// The verifier must check against the stored challenge, not the one the
	// client signed over.
	f.challenge.Bytes = []byte("a different challenge")

	v := NewPasskeyVerifier()
	err := v.Verify(context.Background(), ports.VerifyInput{
		Challenge:  f.challenge,
		Credential: f.credential,
		KeySlot:    0,
		Signature:  signature,
	})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestPasskeyVerifier_MalformedEnvelope(t *testing.T) {
	f := newPasskeyFixture(t, 0)

	v := NewPasskeyVerifier()
	for name, sig := range map[string][]byte{
		"empty":        {},
		"slot only":    {0x00},
		"not json":     append([]byte{0x00}, []byte("garbage")...),
		"empty fields": append([]byte{0x00}, []byte(`{}`)...),
	} {
		err := v.Verify(context.Background(), ports.VerifyInput{
			Challenge:  f.challenge,
			Credential: f.credential,
			KeySlot:    0,
			Signature:  sig,
		})
		assert.ErrorIs(t, err, core.ErrInvalidSignature, name)
	}
}

func TestPasskeyVerifier_NoCredential(t *testing.T) {
	v := NewPasskeyVerifier()
	err := v.Verify(context.Background(), ports.VerifyInput{
		Challenge: &core.Challenge{Bytes: []byte("x")},
		Signature: []byte{0x00, 0x01},
	})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestPasskeyLoginVerifier_Unsupported(t *testing.T) {
	v := NewPasskeyLoginVerifier()
	err := v.Verify(context.Background(), ports.VerifyInput{})
	assert.ErrorIs(t, err, core.ErrPasskeyLoginUnsupported)

	if kind := core.KindOf(err); kind != core.KindBadRequest {
		t.Fatalf("expected a client-visible rejection, got kind %v", kind)
	}
}
