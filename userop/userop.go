package userop

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is the unpacked v0.7 form of an ERC-4337 operation. The
// builder drafts it, the paymaster coordinator fills the paymaster fields,
// and the signer fills Signature. It is immutable once submitted.
type UserOperation struct {
	Sender                        common.Address
	Nonce                         *big.Int
	Factory                       *common.Address // nil once the account is deployed
	FactoryData                   []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     *common.Address // nil if self-sponsored
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

// PaymasterData is the sponsorship bundle returned by the paymaster signer.
type PaymasterData struct {
	Paymaster            common.Address
	VerificationGasLimit *big.Int
	PostOpGasLimit       *big.Int
	Data                 []byte
}

// ApplyPaymaster merges sponsorship data into the operation.
func (op *UserOperation) ApplyPaymaster(pd PaymasterData) {
	paymaster := pd.Paymaster
	op.Paymaster = &paymaster
	op.PaymasterVerificationGasLimit = pd.VerificationGasLimit
	op.PaymasterPostOpGasLimit = pd.PostOpGasLimit
	op.PaymasterData = pd.Data
}

// Receipt is the bundler's terminal answer for a submitted operation. A
// receipt with Success=false is an application-level failure: the poll
// succeeded, the operation did not.
type Receipt struct {
	UserOpHash      common.Hash
	TransactionHash common.Hash
	Success         bool
	ActualGasUsed   *big.Int
	Reason          string
}

// GasEstimate mirrors eth_estimateUserOperationGas.
type GasEstimate struct {
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
}

// InitCode returns factory || factoryData, or nil for deployed accounts.
func (op *UserOperation) InitCode() []byte {
	if op.Factory == nil {
		return nil
	}
	return append(append([]byte{}, op.Factory.Bytes()...), op.FactoryData...)
}

// PaymasterAndData returns the packed paymaster field:
// paymaster || uint128(verificationGasLimit) || uint128(postOpGasLimit) || data.
func (op *UserOperation) PaymasterAndData() []byte {
	if op.Paymaster == nil {
		return nil
	}
	out := append([]byte{}, op.Paymaster.Bytes()...)
	out = append(out, uint128Bytes(op.PaymasterVerificationGasLimit)...)
	out = append(out, uint128Bytes(op.PaymasterPostOpGasLimit)...)
	return append(out, op.PaymasterData...)
}

var (
	packedOpArgs = abi.Arguments{
		{Type: mustNewType("address", nil)}, // sender
		{Type: mustNewType("uint256", nil)}, // nonce
		{Type: mustNewType("bytes32", nil)}, // keccak(initCode)
		{Type: mustNewType("bytes32", nil)}, // keccak(callData)
		{Type: mustNewType("bytes32", nil)}, // accountGasLimits
		{Type: mustNewType("uint256", nil)}, // preVerificationGas
		{Type: mustNewType("bytes32", nil)}, // gasFees
		{Type: mustNewType("bytes32", nil)}, // keccak(paymasterAndData)
	}
	opHashArgs = abi.Arguments{
		{Type: mustNewType("bytes32", nil)}, // keccak(packed op)
		{Type: mustNewType("address", nil)}, // entry point
		{Type: mustNewType("uint256", nil)}, // chain id
	}
)

// Hash computes the entry-point operation hash the account owner signs:
// keccak(abi.encode(keccak(packedOp), entryPoint, chainID)).
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := packedOpArgs.Pack(
		op.Sender,
		orZero(op.Nonce),
		crypto.Keccak256Hash(op.InitCode()),
		crypto.Keccak256Hash(op.CallData),
		packUint128Pair(op.VerificationGasLimit, op.CallGasLimit),
		orZero(op.PreVerificationGas),
		packUint128Pair(op.MaxPriorityFeePerGas, op.MaxFeePerGas),
		crypto.Keccak256Hash(op.PaymasterAndData()),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation: %w", err)
	}

	outer, err := opHashArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack operation hash: %w", err)
	}
	return crypto.Keccak256Hash(outer), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func uint128Bytes(v *big.Int) []byte {
	out := make([]byte, 16)
	orZero(v).FillBytes(out)
	return out
}

// packUint128Pair joins hi and lo as two big-endian uint128 halves of a
// bytes32, the v0.7 packing for paired gas fields.
func packUint128Pair(hi, lo *big.Int) common.Hash {
	var packed common.Hash
	copy(packed[:16], uint128Bytes(hi))
	copy(packed[16:], uint128Bytes(lo))
	return packed
}

// rpcUserOperation is the bundler wire form (ERC-4337 v0.7 RPC schema).
type rpcUserOperation struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   hexutil.Bytes   `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

func toHexBig(v *big.Int) *hexutil.Big {
	return (*hexutil.Big)(orZero(v))
}

func fromHexBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return (*big.Int)(v)
}

// MarshalJSON renders the operation in bundler wire form.
func (op *UserOperation) MarshalJSON() ([]byte, error) {
	out := rpcUserOperation{
		Sender:               op.Sender,
		Nonce:                toHexBig(op.Nonce),
		Factory:              op.Factory,
		FactoryData:          op.FactoryData,
		CallData:             op.CallData,
		CallGasLimit:         toHexBig(op.CallGasLimit),
		VerificationGasLimit: toHexBig(op.VerificationGasLimit),
		PreVerificationGas:   toHexBig(op.PreVerificationGas),
		MaxFeePerGas:         toHexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: toHexBig(op.MaxPriorityFeePerGas),
		Paymaster:            op.Paymaster,
		PaymasterData:        op.PaymasterData,
		Signature:            op.Signature,
	}
	if op.Paymaster != nil {
		out.PaymasterVerificationGasLimit = toHexBig(op.PaymasterVerificationGasLimit)
		out.PaymasterPostOpGasLimit = toHexBig(op.PaymasterPostOpGasLimit)
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the bundler wire form.
func (op *UserOperation) UnmarshalJSON(data []byte) error {
	var in rpcUserOperation
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	op.Sender = in.Sender
	op.Nonce = fromHexBig(in.Nonce)
	op.Factory = in.Factory
	op.FactoryData = in.FactoryData
	op.CallData = in.CallData
	op.CallGasLimit = fromHexBig(in.CallGasLimit)
	op.VerificationGasLimit = fromHexBig(in.VerificationGasLimit)
	op.PreVerificationGas = fromHexBig(in.PreVerificationGas)
	op.MaxFeePerGas = fromHexBig(in.MaxFeePerGas)
	op.MaxPriorityFeePerGas = fromHexBig(in.MaxPriorityFeePerGas)
	op.Paymaster = in.Paymaster
	if in.Paymaster != nil {
		op.PaymasterVerificationGasLimit = fromHexBig(in.PaymasterVerificationGasLimit)
		op.PaymasterPostOpGasLimit = fromHexBig(in.PaymasterPostOpGasLimit)
	}
	op.PaymasterData = in.PaymasterData
	op.Signature = in.Signature
	return nil
}
