// Package entropy implements Engine 3: Shannon-entropy scanning of the
// payload's string fields (chiefly memo) to catch exfiltrated secrets or
// steganographic payloads riding along with a legitimate call. The
// entropy computation itself is adapted near-verbatim from
// internal/security/entropy.go's CalculateShannonEntropy, which notes
// "Standard business text has an entropy of ~3.5 to 4.5. Encrypted/
// Steganographic payloads often spike toward 7.0+."
package entropy

import (
	"math"

	"github.com/plimsoll/firewall/internal/clock"
	"github.com/plimsoll/firewall/pkg/txview"
)

// Config controls the detection threshold and minimum scanned length.
type Config struct {
	EntropyThreshold float64
	MinLength        int
}

// DefaultConfig blocks fields of 32 or more characters whose entropy is
// at least 5.0 bits per character, the entropy of 32 equally frequent
// distinct characters.
func DefaultConfig() Config {
	return Config{EntropyThreshold: 5.0, MinLength: 32}
}

// Engine is stateless: entropy is a pure function of the payload.
type Engine struct {
	cfg        Config
	blockCount uint64
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) BlockCount() uint64 { return e.blockCount }

// ShannonEntropy computes the base-2 Shannon entropy of a string's
// character distribution.
func ShannonEntropy(data string) float64 {
	if len(data) == 0 {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range data {
		counts[r]++
	}
	length := float64(len([]rune(data)))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// fields returns every string-typed field on the TxView worth scanning,
// memo first since it is the primary vector for a smuggled secret.
func fields(tv txview.TxView) []string {
	return []string{tv.Memo, tv.Data, tv.ValueRaw}
}

// Evaluate blocks when any scanned field is at least MinLength long and
// its Shannon entropy is at or above EntropyThreshold.
func (e *Engine) Evaluate(tv txview.TxView, spend float64, clk clock.Clock) txview.Verdict {
	for _, f := range fields(tv) {
		if len(f) < e.cfg.MinLength {
			continue
		}
		if ShannonEntropy(f) >= e.cfg.EntropyThreshold {
			e.blockCount++
			return txview.Block("EntropyGuard", txview.CodeBlockEntropy,
				"payload contains a high-entropy field consistent with an exfiltrated secret")
		}
	}
	return txview.Allow("EntropyGuard")
}
