package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Account is a smart-contract wallet account. ChainAddress is the optional
// externally-owned key registered for chain-address recovery.
type Account struct {
	UserID       string
	Name         string
	Address      common.Address
	ChainAddress common.Address
	MaxSigners   uint8
	CreatedAt    time.Time
}

// Credential is a registered passkey bound to one of the account's signing
// key slots. PublicKey holds the COSE-encoded curve point; the slot it
// occupies is unique per account and the raw credential id is unique
// globally. Rows are removed only once the matching on-chain key removal
// has confirmed.
type Credential struct {
	ID              string
	UserID          string
	AccountAddress  common.Address
	KeySlot         uint8
	PublicKey       []byte // COSE-encoded P-256 public key
	RawCredentialID string
	DisplayName     string
	CreatedAt       time.Time
}
