// Package threatfeed implements Engine 0: exact-match blocking against a
// curated set of known-malicious addresses, function selectors, and
// calldata-hash prefixes. Grounded on the seed/lookup shape of
// original_source/plimsoll/proxy/threat_seed.py.
package threatfeed

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/plimsoll/firewall/internal/clock"
	"github.com/plimsoll/firewall/pkg/txview"
)

// Config controls whether the engine is active. A disabled engine returns
// ALLOW in O(1) and never touches its sets.
type Config struct {
	Enabled bool
}

// Engine holds the three exact-match sets plus feed metadata. State is
// private to this engine and guarded by its own lock.
type Engine struct {
	cfg Config

	mu              sync.RWMutex
	addresses       map[string]struct{}
	selectors       map[string]struct{}
	calldataHashes  map[string]struct{}
	version         int
	consensusCount  int
	lastUpdated     time.Time
	blockCount      uint64
}

// New constructs a Threat Feed engine with empty sets.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:            cfg,
		addresses:      make(map[string]struct{}),
		selectors:      make(map[string]struct{}),
		calldataHashes: make(map[string]struct{}),
	}
}

// AddAddress adds a lowercase attacker/drainer address to the feed.
func (e *Engine) AddAddress(addr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addresses[addr] = struct{}{}
}

// AddSelector adds a malicious 4-byte function selector.
func (e *Engine) AddSelector(sel string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selectors[sel] = struct{}{}
}

// AddCalldataHash adds a known exploit calldata SHA-256 prefix.
func (e *Engine) AddCalldataHash(h string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calldataHashes[h] = struct{}{}
}

// MarkSeeded sets feed metadata after a seeding pass.
func (e *Engine) MarkSeeded(version, consensusCount int, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.version = version
	e.consensusCount = consensusCount
	e.lastUpdated = at
}

// Size returns the total number of entries across all three sets.
func (e *Engine) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.addresses) + len(e.selectors) + len(e.calldataHashes)
}

// Stats returns a snapshot suitable for observability endpoints.
func (e *Engine) Stats() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return map[string]interface{}{
		"addresses":       len(e.addresses),
		"selectors":       len(e.selectors),
		"calldata_hashes": len(e.calldataHashes),
		"version":         e.version,
		"consensus_count": e.consensusCount,
		"last_updated":    e.lastUpdated,
		"blocks":          e.blockCount,
	}
}

// BlockCount reports how many evaluations this engine has blocked.
func (e *Engine) BlockCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.blockCount
}

// Evaluate blocks when the target address, function selector, or
// sha256(data) prefix appears in the threat feed's sets.
func (e *Engine) Evaluate(tv txview.TxView, spend float64, clk clock.Clock) txview.Verdict {
	if !e.cfg.Enabled {
		return txview.Allow("ThreatFeed")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if tv.Target != "" {
		if _, bad := e.addresses[tv.Target]; bad {
			e.blockCount++
			return txview.Block("ThreatFeed", txview.CodeBlockDenylist,
				"destination address is on the known-malicious feed")
		}
	}
	if tv.Function != "" {
		if _, bad := e.selectors[tv.Function]; bad {
			e.blockCount++
			return txview.Block("ThreatFeed", txview.CodeBlockDenylist,
				"function selector matches a known drainer pattern")
		}
	}
	if tv.Data != "" {
		sum := sha256.Sum256([]byte(tv.Data))
		prefix := hex.EncodeToString(sum[:])[:16]
		if _, bad := e.calldataHashes[prefix]; bad {
			e.blockCount++
			return txview.Block("ThreatFeed", txview.CodeBlockDenylist,
				"calldata matches a known exploit payload hash")
		}
	}

	return txview.Allow("ThreatFeed")
}
