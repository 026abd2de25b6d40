// Package execution holds the outbound clients for the execution relay
// (bundler), the paymaster sponsorship signer, and the chain node the
// signer registry is read from.
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const headerKeyIdempotency = "X-Idempotency-Key"

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

func newRPCClient(endpoint string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(endpoint).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
}

// call performs a JSON-RPC request and decodes the result into out. A null
// result leaves out untouched and returns false.
func call(ctx context.Context, client *resty.Client, idempotencyKey, method string, params []interface{}, out interface{}) (bool, error) {
	req := client.R().
		SetContext(ctx).
		SetBody(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if idempotencyKey != "" {
		req.SetHeader(headerKeyIdempotency, idempotencyKey)
	}

	resp, err := req.Post("")
	if err != nil {
		return false, fmt.Errorf("%s request failed: %w", method, err)
	}
	if !resp.IsSuccess() {
		return false, fmt.Errorf("%s returned status %s", method, resp.Status())
	}

	var envelope rpcResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return false, fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return false, fmt.Errorf("%s failed: %w", method, envelope.Error)
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return false, fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return true, nil
}
