package userop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GasDefaults seed a draft operation before estimation or sponsorship
// adjusts them.
type GasDefaults struct {
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Builder assembles draft user operations for one network.
type Builder struct {
	entryPoint common.Address
	chainID    *big.Int
	gas        GasDefaults
}

// NewBuilder creates a builder bound to an entry point and chain.
func NewBuilder(entryPoint common.Address, chainID *big.Int, gas GasDefaults) *Builder {
	return &Builder{entryPoint: entryPoint, chainID: chainID, gas: gas}
}

func (b *Builder) EntryPoint() common.Address { return b.entryPoint }
func (b *Builder) ChainID() *big.Int          { return b.chainID }

// Build drafts an operation for sender executing calls. The nonce is looked
// up by the caller; signature and paymaster fields are filled later.
func (b *Builder) Build(sender common.Address, nonce *big.Int, calls []Call) (*UserOperation, error) {
	callData, err := EncodeExecuteBatch(calls)
	if err != nil {
		return nil, fmt.Errorf("failed to build call batch: %w", err)
	}

	return &UserOperation{
		Sender:               sender,
		Nonce:                orZero(nonce),
		CallData:             callData,
		CallGasLimit:         orZero(b.gas.CallGasLimit),
		VerificationGasLimit: orZero(b.gas.VerificationGasLimit),
		PreVerificationGas:   orZero(b.gas.PreVerificationGas),
		MaxFeePerGas:         orZero(b.gas.MaxFeePerGas),
		MaxPriorityFeePerGas: orZero(b.gas.MaxPriorityFeePerGas),
	}, nil
}

// Hash computes the signable hash of op on this builder's network.
func (b *Builder) Hash(op *UserOperation) (common.Hash, error) {
	return op.Hash(b.entryPoint, b.chainID)
}

// Account contract methods the signer-registry flows call.
var (
	addSigningKeyArgs = abi.Arguments{
		{Name: "keySlot", Type: mustNewType("uint8", nil)},
		{Name: "x", Type: mustNewType("bytes32", nil)},
		{Name: "y", Type: mustNewType("bytes32", nil)},
	}
	addSigningKeySelector = crypto.Keccak256([]byte("addSigningKey(uint8,bytes32,bytes32)"))[:4]

	removeSigningKeyArgs = abi.Arguments{
		{Name: "keySlot", Type: mustNewType("uint8", nil)},
	}
	removeSigningKeySelector = crypto.Keccak256([]byte("removeSigningKey(uint8)"))[:4]
)

// AddSigningKeyCall targets the account's own addSigningKey method with the
// P-256 curve point for slot.
func AddSigningKeyCall(account common.Address, slot uint8, x, y [32]byte) (Call, error) {
	packed, err := addSigningKeyArgs.Pack(slot, x, y)
	if err != nil {
		return Call{}, fmt.Errorf("failed to encode addSigningKey: %w", err)
	}
	return Call{
		Dest:  account,
		Value: new(big.Int),
		Data:  append(append([]byte{}, addSigningKeySelector...), packed...),
	}, nil
}

// RemoveSigningKeyCall targets the account's removeSigningKey method.
func RemoveSigningKeyCall(account common.Address, slot uint8) (Call, error) {
	packed, err := removeSigningKeyArgs.Pack(slot)
	if err != nil {
		return Call{}, fmt.Errorf("failed to encode removeSigningKey: %w", err)
	}
	return Call{
		Dest:  account,
		Value: new(big.Int),
		Data:  append(append([]byte{}, removeSigningKeySelector...), packed...),
	}, nil
}

// TransferCall builds the call for a send: an ERC-20 transfer when token is
// non-nil, a bare value transfer otherwise.
func TransferCall(token *common.Address, to common.Address, amount *big.Int) (Call, error) {
	if token == nil {
		return Call{Dest: to, Value: new(big.Int).Set(amount), Data: []byte{}}, nil
	}
	packed, err := erc20TransferArgs.Pack(to, amount)
	if err != nil {
		return Call{}, fmt.Errorf("failed to encode transfer: %w", err)
	}
	return Call{
		Dest:  *token,
		Value: new(big.Int),
		Data:  append(append([]byte{}, erc20TransferSelector...), packed...),
	}, nil
}
