package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/0xsend/sendauth/core"
	"github.com/0xsend/sendauth/ports"
	"github.com/0xsend/sendauth/userop"
)

// BundlerClient talks ERC-4337 RPC to the execution relay.
type BundlerClient struct {
	client     *resty.Client
	entryPoint common.Address
}

// NewBundlerClient creates a bundler client for one endpoint + entry point.
func NewBundlerClient(endpoint string, entryPoint common.Address, timeout time.Duration) ports.BundlerClient {
	return &BundlerClient{
		client:     newRPCClient(endpoint, timeout),
		entryPoint: entryPoint,
	}
}

// SendUserOperation submits a fully-signed operation and returns its hash.
// Each submission carries a fresh idempotency key so a network-level retry
// has at most one effect.
func (b *BundlerClient) SendUserOperation(ctx context.Context, op *userop.UserOperation) (common.Hash, error) {
	var opHash common.Hash
	ok, err := call(ctx, b.client, uuid.New().String(),
		"eth_sendUserOperation", []interface{}{op, b.entryPoint}, &opHash)
	if err != nil {
		return common.Hash{}, err
	}
	if !ok {
		return common.Hash{}, fmt.Errorf("bundler returned no operation hash")
	}
	return opHash, nil
}

type rpcInnerReceipt struct {
	TransactionHash common.Hash `json:"transactionHash"`
}

type rpcUserOpReceipt struct {
	UserOpHash    common.Hash     `json:"userOpHash"`
	Success       bool            `json:"success"`
	ActualGasUsed *hexutil.Big    `json:"actualGasUsed"`
	Reason        string          `json:"reason"`
	Receipt       rpcInnerReceipt `json:"receipt"`
}

// GetUserOperationReceipt polls for the operation's receipt. While the
// operation is pending it returns core.ErrReceiptNotReady.
func (b *BundlerClient) GetUserOperationReceipt(ctx context.Context, opHash common.Hash) (*userop.Receipt, error) {
	var wire rpcUserOpReceipt
	ok, err := call(ctx, b.client, "", "eth_getUserOperationReceipt", []interface{}{opHash}, &wire)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.ErrReceiptNotReady
	}

	receipt := &userop.Receipt{
		UserOpHash:      wire.UserOpHash,
		TransactionHash: wire.Receipt.TransactionHash,
		Success:         wire.Success,
		Reason:          wire.Reason,
	}
	if wire.ActualGasUsed != nil {
		receipt.ActualGasUsed = wire.ActualGasUsed.ToInt()
	}
	return receipt, nil
}

type rpcGasEstimate struct {
	CallGasLimit         *hexutil.Big `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big `json:"preVerificationGas"`
}

// EstimateUserOperationGas asks the bundler for gas limits for a draft op.
func (b *BundlerClient) EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation) (*userop.GasEstimate, error) {
	var wire rpcGasEstimate
	ok, err := call(ctx, b.client, "", "eth_estimateUserOperationGas", []interface{}{op, b.entryPoint}, &wire)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("bundler returned no gas estimate")
	}
	return &userop.GasEstimate{
		CallGasLimit:         wire.CallGasLimit.ToInt(),
		VerificationGasLimit: wire.VerificationGasLimit.ToInt(),
		PreVerificationGas:   wire.PreVerificationGas.ToInt(),
	}, nil
}
