package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xsend/sendauth/userop"
)

// BundlerClient is the execution relay a signed operation is submitted to.
// GetUserOperationReceipt returns core.ErrReceiptNotReady while the
// operation is pending.
type BundlerClient interface {
	SendUserOperation(ctx context.Context, op *userop.UserOperation) (common.Hash, error)
	GetUserOperationReceipt(ctx context.Context, opHash common.Hash) (*userop.Receipt, error)
	EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation) (*userop.GasEstimate, error)
}

// PaymasterClient obtains gas sponsorship for a fully-formed-except-signature
// operation.
type PaymasterClient interface {
	SponsorUserOperation(ctx context.Context, op *userop.UserOperation) (*userop.PaymasterData, error)
}

// AccountStateReader reads the on-chain signer registry. The bitmap is
// derived state: it is queried at allocation time and never treated as a
// local source of truth.
type AccountStateReader interface {
	ActiveKeySlots(ctx context.Context, account common.Address) ([]uint8, error)
	MaxKeySlots(ctx context.Context, account common.Address) (uint8, error)
	Nonce(ctx context.Context, account common.Address) (*big.Int, error)
}
