package userop

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/0xsend/sendauth/core"
)

// NativeToken is the symbol used for value-carrying calls with no calldata.
const NativeToken = "native"

const nativeDecimals = 18

// erc20TransferSelector is the 4-byte prefix of transfer(address,uint256).
var erc20TransferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

var erc20TransferArgs = abi.Arguments{
	{Name: "to", Type: mustNewType("address", nil)},
	{Name: "amount", Type: mustNewType("uint256", nil)},
}

// TokenInfo describes a known ERC-20 token for human-unit rendering.
type TokenInfo struct {
	Symbol   string
	Decimals int32
}

// TokenBook maps token contract addresses to display metadata.
type TokenBook map[common.Address]TokenInfo

// Transfer is the human meaning reconstructed from a decoded batch, used by
// the activity and audit paths.
type Transfer struct {
	Token        string          `json:"token"` // symbol, or "native"
	TokenAddress *common.Address `json:"token_address,omitempty"`
	To           common.Address  `json:"to"`
	Amount       *big.Int        `json:"amount"` // raw token units
	Value        decimal.Decimal `json:"value"`  // amount scaled by decimals
}

// ClassifyTransfer finds the transfer a batch performs. A call whose data
// starts with the ERC-20 transfer selector classifies as a token transfer;
// a call with empty data and a value classifies as a native transfer. A
// batch matching neither pattern is a hard error, never a zero result.
func ClassifyTransfer(calls []Call, book TokenBook) (*Transfer, error) {
	for _, call := range calls {
		switch {
		case len(call.Data) >= 4 && bytes.Equal(call.Data[:4], erc20TransferSelector):
			to, amount, err := decodeERC20Transfer(call.Data)
			if err != nil {
				return nil, err
			}

			token := call.Dest
			info, known := book[token]
			if !known {
				info = TokenInfo{Symbol: token.Hex(), Decimals: 0}
			}
			return &Transfer{
				Token:        info.Symbol,
				TokenAddress: &token,
				To:           to,
				Amount:       amount,
				Value:        decimal.NewFromBigInt(amount, -info.Decimals),
			}, nil

		case len(call.Data) == 0 && call.Value != nil && call.Value.Sign() > 0:
			return &Transfer{
				Token:  NativeToken,
				To:     call.Dest,
				Amount: new(big.Int).Set(call.Value),
				Value:  decimal.NewFromBigInt(call.Value, -nativeDecimals),
			}, nil
		}
	}
	return nil, core.ErrNoTransfer
}

func decodeERC20Transfer(data []byte) (common.Address, *big.Int, error) {
	if len(data) != 4+64 {
		return common.Address{}, nil, &DecodeError{Reason: fmt.Sprintf("transfer calldata must be 68 bytes, got %d", len(data))}
	}
	unpacked, err := erc20TransferArgs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, &DecodeError{Reason: fmt.Sprintf("malformed transfer calldata: %v", err)}
	}
	to, ok := unpacked[0].(common.Address)
	if !ok {
		return common.Address{}, nil, &DecodeError{Reason: "malformed transfer recipient"}
	}
	amount, ok := unpacked[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, &DecodeError{Reason: "malformed transfer amount"}
	}
	return to, amount, nil
}
