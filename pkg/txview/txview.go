// Package txview defines the typed boundary between raw JSON-RPC payloads
// and the detection engines. Everything downstream of the normalizer deals
// only in TxView and Verdict; nothing below this package touches raw JSON.
package txview

import "time"

// TxView is the normalized, immutable view of a state-changing RPC call
// that every detection engine evaluates. A TxView is never mutated after
// construction; engines that need derived values (bucketed amounts,
// fingerprints) compute them locally.
type TxView struct {
	Target    string // lowercased 20-byte address, or empty
	Amount    float64
	Function  string // 4-byte selector, hex, lowercase, or empty
	Data      string // full calldata hex
	From      string
	Gas       string
	GasPrice  string
	MaxFee    string
	ValueRaw  string
	Memo      string
	Method    string
}

// VerdictCode is the symbolic outcome of an engine or firewall evaluation.
type VerdictCode string

const (
	CodeAllow           VerdictCode = "ALLOW"
	CodeBlockDenylist   VerdictCode = "BLOCK_DENYLIST"
	CodeBlockLoop       VerdictCode = "BLOCK_LOOP"
	CodeBlockVelocity   VerdictCode = "BLOCK_VELOCITY"
	CodeBlockSingleCap  VerdictCode = "BLOCK_SINGLE_CAP"
	CodeBlockEntropy    VerdictCode = "BLOCK_ENTROPY"
	CodeBlockAsset      VerdictCode = "BLOCK_ASSET"
	CodeBlockQuantize   VerdictCode = "BLOCK_QUANTIZE"
	CodeBlockSimulation VerdictCode = "BLOCK_SIMULATION"
	CodeBlockSever      VerdictCode = "BLOCK_SEVER"
	CodeBlockWhitelist  VerdictCode = "BLOCK_WHITELIST"
)

// Verdict is the outcome of evaluating a TxView, either from a single
// engine or from the firewall's aggregate pipeline run.
type Verdict struct {
	Blocked  bool
	Code     VerdictCode
	Engine   string
	Reason   string
	Feedback string
}

// Allow builds the canonical ALLOW verdict for the given engine.
func Allow(engine string) Verdict {
	return Verdict{Blocked: false, Code: CodeAllow, Engine: engine}
}

// Block builds a BLOCK verdict, generating a feedback string that names
// the problem class and tells the caller that retrying identically will
// fail again — never leaking exact thresholds or internal state.
func Block(engine string, code VerdictCode, reason string) Verdict {
	return Verdict{
		Blocked:  true,
		Code:     code,
		Engine:   engine,
		Reason:   reason,
		Feedback: reason + ". Retrying with the same parameters will fail again.",
	}
}

// BlockEvent is a recorded BLOCK outcome kept in the firewall's bounded
// ring buffer and surfaced on observability endpoints.
type BlockEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	Code      VerdictCode `json:"code"`
	Engine    string      `json:"engine"`
	Target    string      `json:"target"`
	Amount    float64     `json:"amount"`
}
