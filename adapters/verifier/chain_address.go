// Package verifier implements one signature verifier per credential family.
// Both return core.ErrInvalidSignature on any mismatch so callers cannot
// tell which sub-check failed.
package verifier

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xsend/sendauth/core"
	"github.com/0xsend/sendauth/internal/eth"
	"github.com/0xsend/sendauth/ports"
)

// ChainAddressVerifier checks a personal-sign signature over the challenge
// bytes against the account's registered chain address.
type ChainAddressVerifier struct{}

// NewChainAddressVerifier creates a chain-address verifier
func NewChainAddressVerifier() ports.Verifier {
	return &ChainAddressVerifier{}
}

func (v *ChainAddressVerifier) Verify(ctx context.Context, in ports.VerifyInput) error {
	if in.Account == nil || in.Account.ChainAddress == (common.Address{}) {
		return fmt.Errorf("no chain address registered: %w", core.ErrInvalidSignature)
	}

	ok, err := eth.VerifyPersonalSign(in.Challenge.Bytes, in.Signature, in.Account.ChainAddress)
	if err != nil {
		return fmt.Errorf("%v: %w", err, core.ErrInvalidSignature)
	}
	if !ok {
		return core.ErrInvalidSignature
	}
	return nil
}
