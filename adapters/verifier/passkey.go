package verifier

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/0xsend/sendauth/core"
	"github.com/0xsend/sendauth/ports"
)

// PasskeyEnvelope is the signature payload a platform authenticator
// produces for a write authorization. The raw envelope bytes are prefixed
// with a single key-slot byte before submission because one account can
// hold several passkeys in different slots.
type PasskeyEnvelope struct {
	AuthenticatorData []byte `json:"authenticator_data"`
	ClientDataJSON    []byte `json:"client_data_json"`
	Signature         []byte `json:"signature"` // ASN.1 DER ECDSA signature
}

type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
}

// PasskeyVerifier checks a slot-prefixed WebAuthn assertion against the
// credential's stored COSE public key.
type PasskeyVerifier struct{}

// NewPasskeyVerifier creates a passkey verifier
func NewPasskeyVerifier() ports.Verifier {
	return &PasskeyVerifier{}
}

func (v *PasskeyVerifier) Verify(ctx context.Context, in ports.VerifyInput) error {
	if in.Credential == nil {
		return fmt.Errorf("no credential: %w", core.ErrInvalidSignature)
	}
	if len(in.Signature) < 2 {
		return fmt.Errorf("signature too short: %w", core.ErrInvalidSignature)
	}

	// First byte names the slot whose public key must be checked. It has to
	// agree with both the caller-resolved slot and the credential row; a
	// mismatch never falls back to another slot.
	slot := in.Signature[0]
	if slot != in.KeySlot || slot != in.Credential.KeySlot {
		return fmt.Errorf("key slot mismatch: %w", core.ErrInvalidSignature)
	}

	var envelope PasskeyEnvelope
	if err := json.Unmarshal(in.Signature[1:], &envelope); err != nil {
		return fmt.Errorf("malformed signature envelope: %w", core.ErrInvalidSignature)
	}
	if len(envelope.AuthenticatorData) == 0 || len(envelope.ClientDataJSON) == 0 || len(envelope.Signature) == 0 {
		return fmt.Errorf("incomplete signature envelope: %w", core.ErrInvalidSignature)
	}

	var cd clientData
	if err := json.Unmarshal(envelope.ClientDataJSON, &cd); err != nil {
		return fmt.Errorf("malformed client data: %w", core.ErrInvalidSignature)
	}
	want := base64.RawURLEncoding.EncodeToString(in.Challenge.Bytes)
	if cd.Challenge != want {
		return fmt.Errorf("challenge mismatch: %w", core.ErrInvalidSignature)
	}

	key, err := webauthncose.ParsePublicKey(in.Credential.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to parse credential key: %w", core.ErrInvalidSignature)
	}

	// The authenticator signs authenticatorData || SHA-256(clientDataJSON).
	clientDataHash := sha256.Sum256(envelope.ClientDataJSON)
	signed := append(append([]byte{}, envelope.AuthenticatorData...), clientDataHash[:]...)

	ok, err := webauthncose.VerifySignature(key, signed, envelope.Signature)
	if err != nil {
		return fmt.Errorf("%v: %w", err, core.ErrInvalidSignature)
	}
	if !ok {
		return core.ErrInvalidSignature
	}
	return nil
}

// PasskeyLoginVerifier rejects login-time passkey verification. The flow is
// implemented for write authorization only; login with a passkey identifier
// resolves the identity but cannot verify yet.
type PasskeyLoginVerifier struct{}

// NewPasskeyLoginVerifier creates the placeholder login-time verifier
func NewPasskeyLoginVerifier() ports.Verifier {
	return &PasskeyLoginVerifier{}
}

func (v *PasskeyLoginVerifier) Verify(ctx context.Context, in ports.VerifyInput) error {
	return core.ErrPasskeyLoginUnsupported
}
