// Package trajectory implements Engine 1: duplicate/loop detection via a
// stable fingerprint of (target, selector, bucketed amount, calldata
// prefix) observed more than max_duplicates times inside window_seconds.
package trajectory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/plimsoll/firewall/internal/clock"
	"github.com/plimsoll/firewall/pkg/txview"
)

// Config controls duplicate tolerance and the trailing window.
type Config struct {
	MaxDuplicates  int
	WindowSeconds  float64
	// AmountBucketDigits is k in round(amount, k): the number of decimal
	// digits amounts are bucketed to before fingerprinting, absorbing
	// floating point noise between otherwise-identical calls.
	AmountBucketDigits int
	// CalldataPrefixLen is the number of leading characters of the
	// calldata hex string (including any "0x" prefix) folded into the
	// fingerprint.
	CalldataPrefixLen int
}

// DefaultConfig mirrors the values exercised by the test scenarios.
func DefaultConfig() Config {
	return Config{
		MaxDuplicates:      2,
		WindowSeconds:      60,
		AmountBucketDigits: 6,
		CalldataPrefixLen:  16,
	}
}

// Engine tracks a fingerprint -> timestamps map, pruned on every call.
type Engine struct {
	cfg Config

	mu         sync.Mutex
	seen       map[string][]time.Time
	blockCount uint64
}

// New constructs a Trajectory Hash engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, seen: make(map[string][]time.Time)}
}

// Fingerprint computes the stable hash this engine keys its history by.
func Fingerprint(tv txview.TxView, bucketDigits, prefixLen int) string {
	scale := math.Pow(10, float64(bucketDigits))
	bucketed := math.Round(tv.Amount*scale) / scale

	data := tv.Data
	if len(data) > prefixLen {
		data = data[:prefixLen]
	}

	raw := fmt.Sprintf("%s|%s|%.*f|%s", tv.Target, tv.Function, bucketDigits, bucketed, data)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (e *Engine) BlockCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.blockCount
}

// Evaluate prunes entries older than WindowSeconds, then checks whether
// the fingerprint has already been seen MaxDuplicates times within the
// window. It always records this call's timestamp, even on BLOCK — per
// I3, counters update exactly once per evaluation regardless of outcome.
func (e *Engine) Evaluate(tv txview.TxView, spend float64, clk clock.Clock) txview.Verdict {
	fp := Fingerprint(tv, e.cfg.AmountBucketDigits, e.cfg.CalldataPrefixLen)
	now := clk.Now()
	window := time.Duration(e.cfg.WindowSeconds * float64(time.Second))

	e.mu.Lock()
	defer e.mu.Unlock()

	history := e.seen[fp]
	pruned := history[:0]
	for _, t := range history {
		if now.Sub(t) <= window {
			pruned = append(pruned, t)
		}
	}

	blocked := len(pruned) >= e.cfg.MaxDuplicates
	pruned = append(pruned, now)
	e.seen[fp] = pruned

	if blocked {
		e.blockCount++
		return txview.Block("TrajectoryHash", txview.CodeBlockLoop,
			"transaction repeats the same destination, selector, and amount too often in this window")
	}
	return txview.Allow("TrajectoryHash")
}
