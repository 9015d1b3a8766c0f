// Package normalize bridges raw JSON-RPC envelopes and the typed TxView
// every engine expects. It is the sole place untyped JSON is interpreted;
// everything downstream of Normalize deals only in txview.TxView.
package normalize

import (
	"strconv"
	"strings"

	"github.com/plimsoll/firewall/pkg/txview"
)

// writeMethods is the fixed set of state-changing JSON-RPC methods. Every
// other method is read-only and bypasses the firewall entirely.
var writeMethods = map[string]bool{
	"eth_sendTransaction":    true,
	"eth_sendRawTransaction": true,
	"eth_sign":               true,
	"personal_sign":          true,
	"eth_signTypedData":      true,
	"eth_signTypedData_v3":   true,
	"eth_signTypedData_v4":   true,
}

// IsReadOnly reports whether the given JSON-RPC method is read-only.
func IsReadOnly(method string) bool {
	return !writeMethods[method]
}

// Request is the subset of a JSON-RPC request body the normalizer cares
// about. Callers decode the full envelope and pass it here.
type Request struct {
	Method string                   `json:"method"`
	Params []map[string]interface{} `json:"params"`
}

// Normalize converts a decoded JSON-RPC request into a TxView. It never
// fails: malformed or missing fields degrade to safe defaults (empty
// target, zero amount) and the decision of what to do with a degenerate
// TxView is left to the engines.
func Normalize(req Request) txview.TxView {
	var params map[string]interface{}
	if len(req.Params) > 0 {
		params = req.Params[0]
	}

	to, _ := params["to"].(string)
	data, _ := params["data"].(string)
	if data == "" {
		data, _ = params["input"].(string)
	}
	value := params["value"]

	var selector string
	if len(data) >= 10 {
		selector = strings.ToLower(data[:10])
	}

	return txview.TxView{
		Target:   strings.ToLower(to),
		Amount:   decodeAmount(value),
		Function: selector,
		Data:     data,
		From:     stringField(params, "from"),
		Gas:      stringField(params, "gas"),
		GasPrice: stringField(params, "gasPrice"),
		MaxFee:   stringField(params, "maxFeePerGas"),
		ValueRaw: stringField(params, "value"),
		Memo:     stringField(params, "memo"),
		Method:   req.Method,
	}
}

func stringField(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	s, _ := params[key].(string)
	return s
}

// decodeAmount decodes a JSON-RPC "value" field (hex wei string, decimal
// string/number, or absent) into a float amount denominated in the
// chain's native unit (wei / 1e18). Unparseable values decode to 0.
func decodeAmount(value interface{}) float64 {
	switch v := value.(type) {
	case string:
		if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
			wei, err := strconv.ParseUint(v[2:], 16, 64)
			if err != nil {
				// Large values may overflow uint64; fall back to big parse.
				return hexWeiToEth(v[2:])
			}
			return float64(wei) / 1e18
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	case float64:
		return v
	default:
		return 0
	}
}

// hexWeiToEth parses an arbitrarily large hex wei string without
// overflowing uint64, for the rare large-value transfer.
func hexWeiToEth(hexDigits string) float64 {
	var result float64
	for _, c := range hexDigits {
		var digit float64
		switch {
		case c >= '0' && c <= '9':
			digit = float64(c - '0')
		case c >= 'a' && c <= 'f':
			digit = float64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			digit = float64(c-'A') + 10
		default:
			return 0
		}
		result = result*16 + digit
	}
	return result / 1e18
}

// ExtractSpend extracts the spend amount from a decoded JSON-RPC body
// using the same heuristic as the normalizer's amount decoding, for
// callers (the proxy) that need spend before/without building a full
// TxView.
func ExtractSpend(req Request) float64 {
	if len(req.Params) == 0 {
		return 0
	}
	return decodeAmount(req.Params[0]["value"])
}
