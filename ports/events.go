package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogin(ctx context.Context, userID string, sessionID string) error
	PublishSignerAdded(ctx context.Context, account common.Address, keySlot uint8) error
	PublishSignerRemoved(ctx context.Context, account common.Address, keySlot uint8) error
	PublishTransferSettled(ctx context.Context, account common.Address, txHash common.Hash) error
}
