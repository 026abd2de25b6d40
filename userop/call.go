// Package userop implements the batched-call codec and the ERC-4337 v0.7
// user operation model a smart wallet account submits for execution.
package userop

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0xsend/sendauth/core"
)

// Call is a single contract call inside a batch. Order within a batch is
// significant and preserved exactly through encode/decode.
type Call struct {
	Dest  common.Address `json:"dest"`
	Value *big.Int       `json:"value"`
	Data  []byte         `json:"data"`
}

const executeBatchSignature = "executeBatch((address,uint256,bytes)[])"

var (
	batchType = mustNewType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "dest", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
	})
	batchArgs = abi.Arguments{{Name: "calls", Type: batchType}}

	executeBatchSelector = crypto.Keccak256([]byte(executeBatchSignature))[:4]
)

func mustNewType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

// EncodeExecuteBatch encodes calls as executeBatch calldata. Calls are
// serialized exactly as given: no normalization and no coalescing of
// duplicate destinations.
func EncodeExecuteBatch(calls []Call) ([]byte, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("empty call batch: %w", core.ErrBadRequest)
	}

	normalized := make([]Call, len(calls))
	copy(normalized, calls)
	for i := range normalized {
		if normalized[i].Value == nil {
			normalized[i].Value = new(big.Int)
		}
		if normalized[i].Data == nil {
			normalized[i].Data = []byte{}
		}
	}

	packed, err := batchArgs.Pack(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode call batch: %w", err)
	}
	return append(append([]byte{}, executeBatchSelector...), packed...), nil
}

// DecodeError marks calldata that does not decode as a well-formed batch.
// A partial decode is never returned: it could misrepresent the financial
// effect of an operation.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid batch calldata: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return core.ErrBadRequest }

// DecodeExecuteBatch is the exact inverse of EncodeExecuteBatch. It rejects
// calldata with an unknown selector, a malformed envelope, trailing bytes,
// or an empty batch.
func DecodeExecuteBatch(data []byte) ([]Call, error) {
	if len(data) < 4 {
		return nil, &DecodeError{Reason: "calldata shorter than a selector"}
	}
	if !bytes.Equal(data[:4], executeBatchSelector) {
		return nil, &DecodeError{Reason: fmt.Sprintf("unexpected selector 0x%x", data[:4])}
	}

	unpacked, err := batchArgs.Unpack(data[4:])
	if err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}
	calls := *abi.ConvertType(unpacked[0], new([]Call)).(*[]Call)
	if len(calls) == 0 {
		return nil, &DecodeError{Reason: "empty batch"}
	}

	// The tuple encoding is canonical, so honest calldata re-encodes to the
	// identical bytes. Anything else smuggled in trailing or padding bytes
	// is rejected rather than silently dropped.
	reencoded, err := EncodeExecuteBatch(calls)
	if err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}
	if !bytes.Equal(reencoded, data) {
		return nil, &DecodeError{Reason: "calldata is not canonically encoded"}
	}

	return calls, nil
}
