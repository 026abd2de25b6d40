package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"

	"github.com/0xsend/sendauth/ports"
	"github.com/0xsend/sendauth/userop"
)

// PaymasterClient requests sponsorship authorization data from the external
// paymaster signer.
type PaymasterClient struct {
	client     *resty.Client
	entryPoint common.Address
}

// NewPaymasterClient creates a paymaster sponsorship client.
func NewPaymasterClient(endpoint string, entryPoint common.Address, timeout time.Duration) ports.PaymasterClient {
	return &PaymasterClient{
		client:     newRPCClient(endpoint, timeout),
		entryPoint: entryPoint,
	}
}

type rpcSponsorship struct {
	Paymaster                     common.Address `json:"paymaster"`
	PaymasterVerificationGasLimit *hexutil.Big   `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *hexutil.Big   `json:"paymasterPostOpGasLimit"`
	PaymasterData                 hexutil.Bytes  `json:"paymasterData"`
}

// SponsorUserOperation obtains paymaster data for an operation that is
// complete except for paymaster fields and signature.
func (p *PaymasterClient) SponsorUserOperation(ctx context.Context, op *userop.UserOperation) (*userop.PaymasterData, error) {
	var wire rpcSponsorship
	ok, err := call(ctx, p.client, "", "pm_sponsorUserOperation", []interface{}{op, p.entryPoint}, &wire)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("paymaster returned no sponsorship data")
	}
	return &userop.PaymasterData{
		Paymaster:            wire.Paymaster,
		VerificationGasLimit: wire.PaymasterVerificationGasLimit.ToInt(),
		PostOpGasLimit:       wire.PaymasterPostOpGasLimit.ToInt(),
		Data:                 wire.PaymasterData,
	}, nil
}
