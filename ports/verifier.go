package ports

import (
	"context"

	"github.com/0xsend/sendauth/core"
)

// VerifyInput carries everything a credential-family verifier may need.
// The chain-address verifier reads Account; the passkey verifier reads
// Credential and KeySlot.
type VerifyInput struct {
	Challenge  *core.Challenge
	Account    *core.Account
	Credential *core.Credential
	KeySlot    uint8
	Signature  []byte
}

// Verifier checks a signature against a challenge for one credential
// family. A failed check returns core.ErrInvalidSignature without naming
// which sub-check failed.
type Verifier interface {
	Verify(ctx context.Context, in VerifyInput) error
}
