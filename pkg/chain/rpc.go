package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/telemetry"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// RPCClient is a minimal Ethereum JSON-RPC client over HTTP.
type RPCClient struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Uint64
}

func NewRPCClient(url string, httpClient *http.Client) *RPCClient {
	if httpClient == nil {
		httpClient = telemetry.NewTracedHTTPClient("chain-rpc", 30*time.Second)
	}
	return &RPCClient{url: url, httpClient: httpClient}
}

// Call invokes method and decodes the result into out. Node-side errors are
// returned as *rpcError wrapped in ErrTransferRejected; transport failures as
// ErrChainUnavailable.
func (c *RPCClient) Call(ctx context.Context, method string, out any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return apperrors.ErrInternal.WithError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return apperrors.ErrInternal.WithError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.ErrChainUnavailable.WithError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.ErrChainUnavailable.WithError(err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return apperrors.ErrChainUnavailable.WithError(fmt.Errorf("%s: status %d", method, resp.StatusCode))
	}

	var rr rpcResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return apperrors.ErrChainUnavailable.WithError(fmt.Errorf("%s: invalid response: %w", method, err))
	}
	if rr.Error != nil {
		return apperrors.ErrTransferRejected.WithMessage(rr.Error.Message).WithError(rr.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rr.Result, out)
}

func (c *RPCClient) ChainID(ctx context.Context) (int64, error) {
	var hexID string
	if err := c.Call(ctx, "eth_chainId", &hexID); err != nil {
		return 0, err
	}
	var id int64
	if _, err := fmt.Sscanf(hexID, "0x%x", &id); err != nil {
		return 0, apperrors.ErrChainUnavailable.WithError(fmt.Errorf("invalid chain id %q", hexID))
	}
	return id, nil
}
