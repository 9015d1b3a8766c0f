// Package velocity implements Engine 2: Capital Velocity. Three ordered
// sub-checks — single-transaction cap, a PID-governed leaky-bucket
// velocity limiter, and an optional gross-transaction-value ratio cap —
// catch bursty or paymaster-parasitic drains that a flat rate limit
// would miss. Grounded in texture on internal/middleware/rate_limiter.go
// (read-lock fast path / write-lock slow path, sliding window) but the
// PID math and GTV ratio are new: the source rate limiter only does a
// flat per-minute counter, never this formula.
package velocity

import (
	"sync"

	"github.com/plimsoll/firewall/internal/clock"
	"github.com/plimsoll/firewall/pkg/txview"
)

// Config matches spec.md §4.4's velocity group verbatim.
type Config struct {
	VMax             float64
	WindowSeconds    float64
	MaxSingleAmount  float64
	PIDThreshold     float64
	KP, KI, KD       float64
	GTVEnabled       bool
	GTVMaxRatio      float64
	GTVMinValue      float64
	GTVWindowSeconds float64
	GTVCumulativeMax float64
}

// DefaultConfig mirrors original_source/plimsoll/proxy/interceptor.py's
// _production_config velocity defaults.
func DefaultConfig() Config {
	return Config{
		VMax:             100.0,
		WindowSeconds:    300.0,
		MaxSingleAmount:  50.0,
		PIDThreshold:     1.5,
		KP:               1.0,
		KI:               0.1,
		KD:               0.05,
		GTVEnabled:       true,
		GTVMaxRatio:      5.0,
		GTVMinValue:      0.001,
		GTVWindowSeconds: 300.0,
		GTVCumulativeMax: 10.0,
	}
}

// Engine holds the leaky-bucket accumulator, PID accumulators, and the
// GTV cumulative-outflow tracker. All state is private to this engine.
type Engine struct {
	cfg Config

	mu                sync.Mutex
	accumulator       float64
	lastUpdate        int64 // unix nano, 0 = never
	integral          float64
	prevError         float64

	gtvCumulative     float64
	gtvWindowStart    int64
	gtvPrevAmount     float64

	blockCount uint64
}

// New constructs a Capital Velocity engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) BlockCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.blockCount
}

// Evaluate runs the three sub-checks in order, returning on the first
// BLOCK. Even on single-cap BLOCK, the velocity accumulator and GTV
// tracker are NOT updated (the spend never actually happened from the
// firewall's perspective for rate-governance purposes) — only a
// successful pass through all three checks, or a BLOCK from the PID or
// GTV stage itself (which update state before blocking, since those
// stages are defined in terms of "would adding this amount exceed..."),
// commits state.
func (e *Engine) Evaluate(tv txview.TxView, spend float64, clk clock.Clock) txview.Verdict {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := clk.Now()
	nowNano := now.UnixNano()

	// 1. Single-tx cap.
	if spend > e.cfg.MaxSingleAmount {
		e.blockCount++
		return txview.Block("CapitalVelocity", txview.CodeBlockSingleCap,
			"transaction amount exceeds the single-transaction cap")
	}

	// 2. PID-governed velocity governor.
	if e.lastUpdate != 0 {
		elapsedSecs := float64(nowNano-e.lastUpdate) / 1e9
		if elapsedSecs < 0 {
			elapsedSecs = 0
		}
		leakRate := e.cfg.VMax
		leaked := leakRate * elapsedSecs
		e.accumulator -= leaked
		if e.accumulator < 0 {
			e.accumulator = 0
		}
	}
	e.accumulator += spend

	target := e.cfg.VMax * e.cfg.WindowSeconds
	errVal := e.accumulator - target

	var derivative float64
	if e.lastUpdate != 0 {
		elapsedSecs := float64(nowNano-e.lastUpdate) / 1e9
		if elapsedSecs > 0 {
			derivative = (errVal - e.prevError) / elapsedSecs
		}
	}
	e.integral += errVal
	e.prevError = errVal
	e.lastUpdate = nowNano

	u := e.cfg.KP*errVal + e.cfg.KI*e.integral + e.cfg.KD*derivative
	if u > e.cfg.PIDThreshold {
		e.blockCount++
		return txview.Block("CapitalVelocity", txview.CodeBlockVelocity,
			"outflow velocity over the recent window exceeds the configured rate")
	}

	// 3. GTV ratio cap (optional).
	if e.cfg.GTVEnabled && spend >= e.cfg.GTVMinValue {
		if e.gtvWindowStart == 0 || float64(nowNano-e.gtvWindowStart)/1e9 > e.cfg.GTVWindowSeconds {
			e.gtvCumulative = 0
			e.gtvWindowStart = nowNano
		}
		e.gtvCumulative += spend

		prev := e.gtvPrevAmount
		if prev < 1e-12 {
			prev = 1e-12
		}
		ratio := e.gtvCumulative / prev
		e.gtvPrevAmount = spend

		if ratio > e.cfg.GTVMaxRatio || e.gtvCumulative > e.cfg.GTVCumulativeMax {
			e.blockCount++
			return txview.Block("CapitalVelocity", txview.CodeBlockVelocity,
				"cumulative outflow relative to prior transfer size exceeds the gross-transaction-value cap")
		}
	}

	return txview.Allow("CapitalVelocity")
}
