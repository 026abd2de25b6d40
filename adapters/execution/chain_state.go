package execution

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/bluele/gcache"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-resty/resty/v2"

	"github.com/0xsend/sendauth/ports"
)

// Account contract views the signer registry reads, plus the entry point's
// nonce getter.
var (
	keySlotBitmapSelector = crypto.Keccak256([]byte("keySlotBitmap()"))[:4]
	maxKeySlotsSelector   = crypto.Keccak256([]byte("maxKeySlots()"))[:4]

	getNonceSelector = crypto.Keccak256([]byte("getNonce(address,uint192)"))[:4]
	getNonceArgs     = abi.Arguments{
		{Name: "sender", Type: mustType("address")},
		{Name: "key", Type: mustType("uint192")},
	}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// ChainStateReader reads the account's slot bitmap and signer capacity via
// eth_call. Bitmap reads are cached briefly: allocation only needs a
// point-in-time view and the chain remains the source of truth.
type ChainStateReader struct {
	client     *resty.Client
	entryPoint common.Address
	bitmaps    gcache.Cache
	capacities gcache.Cache
}

// NewChainStateReader creates a reader against a chain node endpoint.
func NewChainStateReader(endpoint string, entryPoint common.Address, timeout time.Duration) ports.AccountStateReader {
	return &ChainStateReader{
		client:     newRPCClient(endpoint, timeout),
		entryPoint: entryPoint,
		bitmaps:    gcache.New(1024).LRU().Expiration(5 * time.Second).Build(),
		capacities: gcache.New(1024).LRU().Expiration(10 * time.Minute).Build(),
	}
}

type ethCallParams struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

func (r *ChainStateReader) ethCall(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var result hexutil.Bytes
	ok, err := call(ctx, r.client, "", "eth_call",
		[]interface{}{ethCallParams{To: to, Data: data}, "latest"}, &result)
	if err != nil {
		return nil, err
	}
	if !ok || len(result) == 0 {
		return nil, fmt.Errorf("eth_call to %s returned no data", to.Hex())
	}
	return result, nil
}

// ActiveKeySlots returns the slots currently occupied on-chain.
func (r *ChainStateReader) ActiveKeySlots(ctx context.Context, account common.Address) ([]uint8, error) {
	if cached, err := r.bitmaps.Get(account); err == nil {
		return cached.([]uint8), nil
	}

	raw, err := r.ethCall(ctx, account, keySlotBitmapSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to read key slot bitmap: %w", err)
	}

	bitmap := new(big.Int).SetBytes(raw)
	var slots []uint8
	for i := 0; i < 256; i++ {
		if bitmap.Bit(i) == 1 {
			slots = append(slots, uint8(i))
		}
	}

	_ = r.bitmaps.Set(account, slots)
	return slots, nil
}

// MaxKeySlots returns the account's signer capacity.
func (r *ChainStateReader) MaxKeySlots(ctx context.Context, account common.Address) (uint8, error) {
	if cached, err := r.capacities.Get(account); err == nil {
		return cached.(uint8), nil
	}

	raw, err := r.ethCall(ctx, account, maxKeySlotsSelector)
	if err != nil {
		return 0, fmt.Errorf("failed to read max key slots: %w", err)
	}
	max := uint8(new(big.Int).SetBytes(raw).Uint64())

	_ = r.capacities.Set(account, max)
	return max, nil
}

// Nonce returns the account's next operation nonce from the entry point.
func (r *ChainStateReader) Nonce(ctx context.Context, account common.Address) (*big.Int, error) {
	packed, err := getNonceArgs.Pack(account, new(big.Int))
	if err != nil {
		return nil, fmt.Errorf("failed to encode getNonce: %w", err)
	}

	raw, err := r.ethCall(ctx, r.entryPoint, append(append([]byte{}, getNonceSelector...), packed...))
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	return new(big.Int).SetBytes(raw), nil
}
