package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/0xsend/sendauth/ports"
)

const (
	TopicLogin           = "sendauth.login"
	TopicSignerAdded     = "sendauth.signer.added"
	TopicSignerRemoved   = "sendauth.signer.removed"
	TopicTransferSettled = "sendauth.transfer.settled"
)

// LoginEvent notifies other instances that a session was issued
type LoginEvent struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// SignerEvent notifies about a signing key slot change
type SignerEvent struct {
	Account string `json:"account"`
	KeySlot uint8  `json:"key_slot"`
}

// TransferEvent notifies that a submitted operation settled on-chain
type TransferEvent struct {
	Account         string `json:"account"`
	TransactionHash string `json:"transaction_hash"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) publish(topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// PublishLogin publishes a login event
func (p *WatermillPublisher) PublishLogin(ctx context.Context, userID string, sessionID string) error {
	return p.publish(TopicLogin, LoginEvent{UserID: userID, SessionID: sessionID})
}

// PublishSignerAdded publishes a signer-added event
func (p *WatermillPublisher) PublishSignerAdded(ctx context.Context, account common.Address, keySlot uint8) error {
	return p.publish(TopicSignerAdded, SignerEvent{Account: account.Hex(), KeySlot: keySlot})
}

// PublishSignerRemoved publishes a signer-removed event
func (p *WatermillPublisher) PublishSignerRemoved(ctx context.Context, account common.Address, keySlot uint8) error {
	return p.publish(TopicSignerRemoved, SignerEvent{Account: account.Hex(), KeySlot: keySlot})
}

// PublishTransferSettled publishes a transfer-settled event
func (p *WatermillPublisher) PublishTransferSettled(ctx context.Context, account common.Address, txHash common.Hash) error {
	return p.publish(TopicTransferSettled, TransferEvent{Account: account.Hex(), TransactionHash: txHash.Hex()})
}
