package service

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xsend/sendauth/userop"
)

type fakeEventPublisher struct {
	mu       sync.Mutex
	logins   int
	added    int
	removed  int
	settled  int
	failWith error
}

func (f *fakeEventPublisher) PublishLogin(ctx context.Context, userID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	return f.failWith
}

func (f *fakeEventPublisher) PublishSignerAdded(ctx context.Context, account common.Address, keySlot uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added++
	return f.failWith
}

func (f *fakeEventPublisher) PublishSignerRemoved(ctx context.Context, account common.Address, keySlot uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed++
	return f.failWith
}

func (f *fakeEventPublisher) PublishTransferSettled(ctx context.Context, account common.Address, txHash common.Hash) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled++
	return f.failWith
}

type fakeChainState struct {
	active   []uint8
	max      uint8
	nonce    *big.Int
	nonceErr error
}

func (f *fakeChainState) ActiveKeySlots(ctx context.Context, account common.Address) ([]uint8, error) {
	return append([]uint8{}, f.active...), nil
}

func (f *fakeChainState) MaxKeySlots(ctx context.Context, account common.Address) (uint8, error) {
	return f.max, nil
}

func (f *fakeChainState) Nonce(ctx context.Context, account common.Address) (*big.Int, error) {
	if f.nonceErr != nil {
		return nil, f.nonceErr
	}
	if f.nonce == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(f.nonce), nil
}

type fakeBundler struct {
	mu       sync.Mutex
	polls    int
	sent     []*userop.UserOperation
	sendErr  error
	receipt  *userop.Receipt
	readyAt  int // poll number at which the receipt appears; 0 means never
	notReady error
}

func (f *fakeBundler) SendUserOperation(ctx context.Context, op *userop.UserOperation) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent = append(f.sent, op)
	return op.Hash(common.Address{}, big.NewInt(1))
}

func (f *fakeBundler) GetUserOperationReceipt(ctx context.Context, opHash common.Hash) (*userop.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.readyAt == 0 || f.polls < f.readyAt {
		if f.notReady != nil {
			return nil, f.notReady
		}
		return nil, errors.New("receipt not found")
	}
	return f.receipt, nil
}

func (f *fakeBundler) EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation) (*userop.GasEstimate, error) {
	return &userop.GasEstimate{
		CallGasLimit:         big.NewInt(100_000),
		VerificationGasLimit: big.NewInt(200_000),
		PreVerificationGas:   big.NewInt(50_000),
	}, nil
}

func (f *fakeBundler) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type fakePaymaster struct {
	err error
}

func (f *fakePaymaster) SponsorUserOperation(ctx context.Context, op *userop.UserOperation) (*userop.PaymasterData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &userop.PaymasterData{
		Paymaster:            common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd"),
		VerificationGasLimit: big.NewInt(60_000),
		PostOpGasLimit:       big.NewInt(20_000),
		Data:                 []byte{0x01},
	}, nil
}
