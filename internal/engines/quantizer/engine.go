// Package quantizer implements Engine 5: Payload Quantizer. Calldata is
// re-serialized under a canonical encoding (lowercase hex, even-length,
// no padding beyond standard 32-byte ABI words); if the canonical form
// doesn't match the original modulo that normalization, the original
// carried extraneous bytes — a common steganographic-channel or
// malformed-calldata-smuggling technique.
package quantizer

import (
	"strings"

	"github.com/plimsoll/firewall/internal/clock"
	"github.com/plimsoll/firewall/pkg/txview"
)

// Config toggles the engine. Its zero value is disabled, since canonical
// re-encoding assumes standard ABI-word-aligned calldata and can
// false-positive on exotic but legitimate encodings; firewall.DefaultConfig
// enables it.
type Config struct {
	Enabled bool
}

type Engine struct {
	cfg        Config
	blockCount uint64
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) BlockCount() uint64 { return e.blockCount }

// canonicalize lowercases, ensures a 0x prefix, and trims any trailing
// nibble that would leave an odd byte count — calldata must be a whole
// number of bytes; anything else is already non-canonical.
func canonicalize(data string) string {
	d := strings.ToLower(data)
	d = strings.TrimPrefix(d, "0x")
	if len(d)%2 != 0 {
		d = d[:len(d)-1]
	}
	return "0x" + d
}

// Evaluate blocks when the canonical re-encoding of the calldata differs
// from the original payload, after accounting for case and the 0x
// prefix — i.e. the original carried bytes the canonical encoder drops
// or reorders.
func (e *Engine) Evaluate(tv txview.TxView, spend float64, clk clock.Clock) txview.Verdict {
	if !e.cfg.Enabled || tv.Data == "" {
		return txview.Allow("PayloadQuantizer")
	}

	original := strings.ToLower(tv.Data)
	if !strings.HasPrefix(original, "0x") {
		original = "0x" + original
	}

	if canonicalize(tv.Data) != original {
		e.blockCount++
		return txview.Block("PayloadQuantizer", txview.CodeBlockQuantize,
			"calldata does not match its canonical re-encoding, suggesting smuggled bytes")
	}

	return txview.Allow("PayloadQuantizer")
}
