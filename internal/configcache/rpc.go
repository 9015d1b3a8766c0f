package configcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/plimsoll/firewall/internal/circuitbreaker"
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ethCall runs a read-only eth_call against to, with the given calldata
// (hex, 0x-prefixed), and returns the raw hex result. A non-2xx status,
// a JSON-RPC error object, or a malformed body all surface as an error
// — callers apply fail-soft policy, this function never guesses. The
// call is routed through breaker so a wedged or flapping parameter
// source trips open and fails fast instead of making every caller pay
// the full HTTP timeout.
func ethCall(ctx context.Context, breaker *circuitbreaker.CircuitBreaker, client *http.Client, rpcURL, to, data string) (string, error) {
	result, err := breaker.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return doEthCall(ctx, client, rpcURL, to, data)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func doEthCall(ctx context.Context, client *http.Client, rpcURL, to, data string) (string, error) {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_call",
		Params: []interface{}{
			map[string]string{"to": to, "data": data},
			"latest",
		},
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal eth_call request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, rpcURL, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build eth_call request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("eth_call transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read eth_call response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("eth_call upstream returned status %d", resp.StatusCode)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode eth_call response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("eth_call rpc error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	return parsed.Result, nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// decodeAddress extracts the right-most 20 bytes of a 32-byte ABI word.
func decodeAddress(hexResult string) string {
	h := strings.TrimPrefix(hexResult, "0x")
	if len(h) < 40 {
		return ""
	}
	return "0x" + strings.ToLower(h[len(h)-40:])
}

// decodeUint256 parses a full 32-byte ABI word as an unsigned integer.
func decodeUint256(hexResult string) *big.Int {
	h := strings.TrimPrefix(hexResult, "0x")
	if h == "" {
		return big.NewInt(0)
	}
	n := new(big.Int)
	n.SetString(h, 16)
	return n
}

// decodeBool reads a 32-byte ABI word as a boolean (nonzero = true).
func decodeBool(hexResult string) bool {
	return decodeUint256(hexResult).Sign() != 0
}

// encodeUint256Param left-pads an integer into a 32-byte ABI word for
// use as a whitelistedList(uint256) index argument.
func encodeUint256Param(n int) string {
	b := big.NewInt(int64(n)).Text(16)
	return strings.Repeat("0", 64-len(b)) + b
}

// encodeAddressParam left-pads a 20-byte address into a 32-byte ABI word.
func encodeAddressParam(addr string) string {
	a := strings.ToLower(strings.TrimPrefix(addr, "0x"))
	if len(a) < 40 {
		a = strings.Repeat("0", 40-len(a)) + a
	}
	return strings.Repeat("0", 24) + a
}
