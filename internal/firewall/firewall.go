// Package firewall implements the orchestrator that runs the seven
// detection engines in fixed order and enforces the two global
// policies: Cognitive Sever (temporary full lockout after too many
// recent blocks) and Paymaster Slashing (permanent lockout for a
// principal after too many simulator reverts). Sever/slash's
// temporary-vs-permanent split is grounded on
// internal/escrow/kill_switch.go's KillRecord (nil ExpiresAt =
// permanent, set ExpiresAt = temporary) — adapted here from an
// agent/tenant kill switch to a firewall-wide lockout gate.
package firewall

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/plimsoll/firewall/internal/clock"
	"github.com/plimsoll/firewall/internal/engines/asset"
	"github.com/plimsoll/firewall/internal/engines/entropy"
	"github.com/plimsoll/firewall/internal/engines/quantizer"
	"github.com/plimsoll/firewall/internal/engines/simulator"
	"github.com/plimsoll/firewall/internal/engines/threatfeed"
	"github.com/plimsoll/firewall/internal/engines/trajectory"
	"github.com/plimsoll/firewall/internal/engines/velocity"
	"github.com/plimsoll/firewall/pkg/txview"
)

const recentBlocksCapacity = 128

// Config is the single immutable configuration aggregate the firewall
// and all seven engines are built from, matching spec.md §4.4 exactly.
type Config struct {
	ThreatFeed threatfeed.Config
	Trajectory trajectory.Config
	Velocity   velocity.Config
	Entropy    entropy.Config
	Asset      asset.Config
	Quantizer  quantizer.Config
	Simulator  simulator.Config

	CognitiveSeverEnabled  bool
	StrikeMax              int
	StrikeWindowSecs       float64
	SeverDurationSecs      float64
	RevertStrikeMax        int
	RevertStrikeWindowSecs float64
	GasAnomalyRatio        float64
	MaxPreVerificationGas  uint64
	ChainID                int
}

// DefaultConfig mirrors original_source/plimsoll/proxy/interceptor.py's
// _production_config: every engine active, Cognitive Sever at 5
// strikes / 10 min -> 15 min lockout, Paymaster Slashing at 10 reverts
// / 5 min, gas anomaly at 3x, PVG ceiling 500,000, chain ID 8453 (Base).
func DefaultConfig() Config {
	return Config{
		ThreatFeed: threatfeed.Config{Enabled: true},
		Trajectory: trajectory.DefaultConfig(),
		Velocity:   velocity.DefaultConfig(),
		Entropy:    entropy.DefaultConfig(),
		Asset:      asset.Config{},
		Quantizer:  quantizer.Config{Enabled: true},
		Simulator:  simulator.DefaultConfig(),

		CognitiveSeverEnabled:  true,
		StrikeMax:              5,
		StrikeWindowSecs:       600,
		SeverDurationSecs:      900,
		RevertStrikeMax:        10,
		RevertStrikeWindowSecs: 300,
		GasAnomalyRatio:        3.0,
		MaxPreVerificationGas:  500_000,
		ChainID:                8453,
	}
}

// engine is the small capability interface every detection engine
// implements; the pipeline is an ordered slice of these.
type engine interface {
	Evaluate(tv txview.TxView, spend float64, clk clock.Clock) txview.Verdict
	BlockCount() uint64
}

// Firewall is the per-principal (or global) orchestrator. Each instance
// owns its own engine state; per spec.md, one principal's history must
// never influence another's verdict, so callers construct one Firewall
// per principal rather than sharing.
type Firewall struct {
	cfg Config
	clk clock.Clock
	log *log.Logger

	ThreatFeed *threatfeed.Engine
	Trajectory *trajectory.Engine
	Velocity   *velocity.Engine
	Entropy    *entropy.Engine
	Asset      *asset.Engine
	Quantizer  *quantizer.Engine
	Simulator  *simulator.Engine

	pipeline []namedEngine

	mu           sync.Mutex
	total        uint64
	allowed      uint64
	blocked      uint64
	recentBlocks []txview.BlockEvent

	strikes     []time.Time
	severUntil  time.Time

	revertStrikes []time.Time
	slashed       bool
}

type namedEngine struct {
	name string
	eng  engine
}

// New constructs a Firewall with all seven engines wired in the fixed
// pipeline order required by spec.md §4.3: ThreatFeed -> TrajectoryHash
// -> CapitalVelocity -> EntropyGuard -> AssetGuard -> PayloadQuantizer
// -> EVMSimulator.
func New(cfg Config, clk clock.Clock, simClient *simulator.Client) *Firewall {
	if clk == nil {
		clk = clock.RealClock{}
	}

	fw := &Firewall{
		cfg:        cfg,
		clk:        clk,
		log:        log.New(log.Writer(), "[Firewall] ", log.LstdFlags),
		ThreatFeed: threatfeed.New(cfg.ThreatFeed),
		Trajectory: trajectory.New(cfg.Trajectory),
		Velocity:   velocity.New(cfg.Velocity),
		Entropy:    entropy.New(cfg.Entropy),
		Asset:      asset.New(cfg.Asset),
		Quantizer:  quantizer.New(cfg.Quantizer),
		Simulator:  simulator.New(cfg.Simulator, simClient),
	}

	fw.pipeline = []namedEngine{
		{"ThreatFeed", fw.ThreatFeed},
		{"TrajectoryHash", fw.Trajectory},
		{"CapitalVelocity", fw.Velocity},
		{"EntropyGuard", fw.Entropy},
		{"AssetGuard", fw.Asset},
		{"PayloadQuantizer", fw.Quantizer},
		{"EVMSimulator", fw.Simulator},
	}

	return fw
}

// Evaluate runs the fixed pipeline against tv, enforcing Cognitive Sever
// and Paymaster Slashing ahead of the engines. Engine evaluation never
// panics to the caller: a recovered panic from any engine other than
// the simulator coerces to ALLOW with a logged warning, per spec.md
// §4.3's explicit asymmetry (the simulator's failure policy is governed
// by fail_closed instead).
func (fw *Firewall) Evaluate(tv txview.TxView, spendAmount float64) txview.Verdict {
	now := fw.clk.Now()

	fw.mu.Lock()
	if fw.slashed || (fw.cfg.CognitiveSeverEnabled && now.Before(fw.severUntil)) {
		fw.total++
		fw.blocked++
		fw.appendRecentBlock(txview.CodeBlockSever, "sever", tv.Target, spendAmount)
		fw.mu.Unlock()
		return txview.Block("Sever", txview.CodeBlockSever,
			"firewall is in a lockout state after repeated recent blocks")
	}
	fw.mu.Unlock()

	verdict := fw.runPipeline(tv, spendAmount)

	fw.mu.Lock()
	fw.total++
	if verdict.Blocked {
		fw.blocked++
		fw.appendRecentBlock(verdict.Code, verdict.Engine, tv.Target, spendAmount)
	} else {
		fw.allowed++
	}
	fw.updateSeverState(verdict, now)
	fw.updateRevertStrikes(verdict, now)
	fw.mu.Unlock()

	return verdict
}

// runPipeline executes each engine in the fixed order, stopping at the
// first BLOCK. Engines downstream of a blocker never see the TxView and
// never update their state — this is intentional per I2/I3.
func (fw *Firewall) runPipeline(tv txview.TxView, spend float64) (result txview.Verdict) {
	for _, ne := range fw.pipeline {
		verdict := fw.safeEvaluate(ne, tv, spend)
		if verdict.Blocked {
			return verdict
		}
	}
	return txview.Allow("Firewall")
}

func (fw *Firewall) safeEvaluate(ne namedEngine, tv txview.TxView, spend float64) (verdict txview.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			if ne.name == "EVMSimulator" && fw.cfg.Simulator.FailClosed {
				// The simulator's failure policy (fail_closed) governs a
				// panic too: with fail_closed set it BLOCKs like any other
				// simulator failure; otherwise it coerces to ALLOW below.
				fw.log.Printf("[WARN] panic in EVMSimulator, fail-closed, blocking: %v", r)
				verdict = txview.Block("EVMSimulator", txview.CodeBlockSimulation,
					"simulator failed and fail-closed policy is active")
				return
			}
			fw.log.Printf("[WARN] panic in %s, coercing to ALLOW: %v", ne.name, r)
			verdict = txview.Allow(ne.name)
		}
	}()
	return ne.eng.Evaluate(tv, spend, fw.clk)
}

// appendRecentBlock appends to the bounded ring buffer, evicting the
// oldest entry once capacity is reached. Callers must hold fw.mu.
func (fw *Firewall) appendRecentBlock(code txview.VerdictCode, engineName, target string, amount float64) {
	evt := txview.BlockEvent{Timestamp: fw.clk.Now(), Code: code, Engine: engineName, Target: target, Amount: amount}
	fw.recentBlocks = append(fw.recentBlocks, evt)
	if len(fw.recentBlocks) > recentBlocksCapacity {
		fw.recentBlocks = fw.recentBlocks[len(fw.recentBlocks)-recentBlocksCapacity:]
	}
}

// updateSeverState adds a strike on BLOCK, prunes the window, and enters
// SEVERED if the strike count crosses StrikeMax. Callers must hold fw.mu.
func (fw *Firewall) updateSeverState(verdict txview.Verdict, now time.Time) {
	if !fw.cfg.CognitiveSeverEnabled {
		return
	}
	if verdict.Blocked {
		fw.strikes = append(fw.strikes, now)
	}
	window := time.Duration(fw.cfg.StrikeWindowSecs * float64(time.Second))
	fw.strikes = pruneOlderThan(fw.strikes, now, window)

	if len(fw.strikes) >= fw.cfg.StrikeMax {
		fw.severUntil = now.Add(time.Duration(fw.cfg.SeverDurationSecs * float64(time.Second)))
		fw.strikes = nil
		fw.log.Printf("entering SEVERED state until %s", fw.severUntil)
	}
}

// updateRevertStrikes tracks simulator reverts attributed to this
// principal; crossing RevertStrikeMax marks the principal permanently
// slashed. Callers must hold fw.mu.
func (fw *Firewall) updateRevertStrikes(verdict txview.Verdict, now time.Time) {
	if fw.cfg.RevertStrikeMax <= 0 {
		return
	}
	if verdict.Engine != "EVMSimulator" || !strings.Contains(verdict.Reason, "reverts") {
		return
	}
	fw.revertStrikes = append(fw.revertStrikes, now)
	window := time.Duration(fw.cfg.RevertStrikeWindowSecs * float64(time.Second))
	fw.revertStrikes = pruneOlderThan(fw.revertStrikes, now, window)

	if len(fw.revertStrikes) >= fw.cfg.RevertStrikeMax {
		fw.slashed = true
		fw.log.Printf("paymaster slashing: principal permanently severed after %d reverts", len(fw.revertStrikes))
	}
}

func pruneOlderThan(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if now.Sub(t) <= window {
			kept = append(kept, t)
		}
	}
	return kept
}

// Stats returns the aggregate counters for observability endpoints.
func (fw *Firewall) Stats() map[string]interface{} {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return map[string]interface{}{
		"total":   fw.total,
		"allowed": fw.allowed,
		"blocked": fw.blocked,
		"severed": fw.clk.Now().Before(fw.severUntil),
		"slashed": fw.slashed,
	}
}

// RecentBlocks returns a snapshot copy of the bounded ring buffer.
func (fw *Firewall) RecentBlocks() []txview.BlockEvent {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	out := make([]txview.BlockEvent, len(fw.recentBlocks))
	copy(out, fw.recentBlocks)
	return out
}

// engineEnabled reports whether the named engine is active under the
// current config. ThreatFeed, PayloadQuantizer, and EVMSimulator carry
// their own enable flags; TrajectoryHash, CapitalVelocity, AssetGuard,
// and EntropyGuard have no kill switch and are always on, matching
// original_source/plimsoll/proxy/interceptor.py's _api_engines.
func (fw *Firewall) engineEnabled(name string) bool {
	switch name {
	case "ThreatFeed":
		return fw.cfg.ThreatFeed.Enabled
	case "PayloadQuantizer":
		return fw.cfg.Quantizer.Enabled
	case "EVMSimulator":
		return fw.cfg.Simulator.Enabled
	default:
		return true
	}
}

// EngineStats returns per-engine name/enabled/block-count triples in
// pipeline order.
func (fw *Firewall) EngineStats() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(fw.pipeline))
	for _, ne := range fw.pipeline {
		out = append(out, map[string]interface{}{
			"name":    ne.name,
			"enabled": fw.engineEnabled(ne.name),
			"blocks":  ne.eng.BlockCount(),
		})
	}
	return out
}

// Config returns the firewall's immutable configuration.
func (fw *Firewall) Config() Config { return fw.cfg }
