package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xsend/sendauth/core"
)

// ChallengeStore keeps at most one active challenge per user. Upsert
// replaces any prior challenge for the same user, making it permanently
// unusable. Challenges are never deleted, only superseded or expired.
type ChallengeStore interface {
	Upsert(ctx context.Context, challenge *core.Challenge) error
	Get(ctx context.Context, userID string) (*core.Challenge, error)
}

// CredentialStore is CRUD over registered passkey credentials and their
// key-slot assignment.
type CredentialStore interface {
	Create(ctx context.Context, credential *core.Credential) error
	GetByRawID(ctx context.Context, rawCredentialID string) (*core.Credential, error)
	GetByPublicKey(ctx context.Context, publicKey []byte) (*core.Credential, error)
	GetBySlot(ctx context.Context, account common.Address, slot uint8) (*core.Credential, error)
	ListByAccount(ctx context.Context, account common.Address) ([]*core.Credential, error)
	Delete(ctx context.Context, id string) error
}

// AccountStore resolves smart-wallet accounts by the identifiers login
// accepts.
type AccountStore interface {
	Create(ctx context.Context, account *core.Account) error
	GetByUserID(ctx context.Context, userID string) (*core.Account, error)
	GetByAddress(ctx context.Context, address common.Address) (*core.Account, error)
	GetByChainAddress(ctx context.Context, chainAddress common.Address) (*core.Account, error)
	GetByName(ctx context.Context, name string) (*core.Account, error)
}
