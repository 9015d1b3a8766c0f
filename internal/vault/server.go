package vault

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
)

// storeKeyParams/signEthParams/signTypedParams mirror the action
// payload shapes from spec.md §6's vault wire protocol exactly.
type storeKeyParams struct {
	KeyID  string `json:"key_id"`
	Secret string `json:"secret"`
}

type signEthParams struct {
	KeyID       string                 `json:"key_id"`
	TxDict      map[string]interface{} `json:"tx_dict"`
	SpendAmount float64                `json:"spend_amount"`
}

type signTypedParams struct {
	KeyID       string                 `json:"key_id"`
	TypedData   map[string]interface{} `json:"typed_data"`
	SpendAmount float64                `json:"spend_amount"`
}

// Serve runs the vault's single duplex request loop against rw until a
// read error (including io.EOF on clean shutdown) ends it. Only this
// channel's I/O is permitted inside the vault's trust domain — no
// action handler here makes any other network or disk call.
func Serve(rw io.ReadWriter, v *Vault) error {
	logger := log.New(log.Writer(), "[Vault] ", log.LstdFlags)
	for {
		req, err := ReadRequest(rw)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("vault wire read failed: %w", err)
		}

		resp := dispatch(v, req)
		if err := WriteResponse(rw, resp); err != nil {
			return fmt.Errorf("vault wire write failed: %w", err)
		}
		if !resp.OK && resp.Error != "" {
			logger.Printf("action %s (correlation %s) failed: %s", req.Action, req.CorrelationID, resp.Error)
		}
	}
}

func dispatch(v *Vault, req Request) Response {
	resp := Response{CorrelationID: req.CorrelationID}

	switch req.Action {
	case "store_key":
		var p storeKeyParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.Error = "malformed store_key params"
			return resp
		}
		if err := v.StoreKey(p.KeyID); err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.OK = true
		resp.Result = map[string]interface{}{"key_id": p.KeyID}

	case "sign_eth":
		var p signEthParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.Error = "malformed sign_eth params"
			return resp
		}
		result, err := v.SignNativeTransaction(p.KeyID, p.TxDict, p.SpendAmount)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		if result.Blocked {
			resp.OK = false
			resp.Blocked = true
			resp.Error = result.Verdict.Reason
			resp.Result = map[string]interface{}{"code": result.Verdict.Code, "engine": result.Verdict.Engine}
			return resp
		}
		resp.OK = true
		resp.Result = map[string]interface{}{"signature": result.Signature}

	case "sign_typed":
		var p signTypedParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.Error = "malformed sign_typed params"
			return resp
		}
		result, err := v.SignTyped(p.KeyID, p.TypedData, p.SpendAmount)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		if result.Blocked {
			resp.OK = false
			resp.Blocked = true
			resp.Error = result.Verdict.Reason
			resp.Result = map[string]interface{}{"code": result.Verdict.Code, "engine": result.Verdict.Engine}
			return resp
		}
		resp.OK = true
		resp.Result = map[string]interface{}{"signature": result.Signature}

	case "health":
		resp.OK = true
		resp.Result = v.Health()

	default:
		resp.Error = fmt.Sprintf("unrecognized action %q", req.Action)
	}

	return resp
}
