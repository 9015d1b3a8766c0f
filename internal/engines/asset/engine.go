// Package asset implements Engine 4: Asset Guard. Per spec.md's Open
// Question (c), the configuration surface is an allow-list of asset
// (token contract) addresses plus a deny-list of function selectors,
// checked against the call's target address and function selector only;
// ERC-20/721 argument positions in calldata are not decoded or inspected.
// Classification-style allow/deny shape is grounded
// on internal/escrow/classifier.go's ToolClassification/allow-deny
// pattern, adapted from tool-call classification to asset classification.
package asset

import (
	"strings"

	"github.com/plimsoll/firewall/internal/clock"
	"github.com/plimsoll/firewall/pkg/txview"
)

// Config carries the allow-list/deny-list pair. An empty AllowList means
// "no allow-list restriction" (every asset not explicitly denied passes).
type Config struct {
	AllowList     []string // lowercase asset addresses; empty = unrestricted
	DenyList      []string // lowercase asset addresses, always blocked
	DenySelectors []string // function selectors always blocked regardless of asset
}

// Engine evaluates asset touches against the configured allow/deny sets.
type Engine struct {
	cfg           Config
	deny          map[string]bool
	allow         map[string]bool
	denySelectors map[string]bool
	blockCount    uint64
}

func New(cfg Config) *Engine {
	e := &Engine{
		cfg:           cfg,
		deny:          make(map[string]bool),
		allow:         make(map[string]bool),
		denySelectors: make(map[string]bool),
	}
	for _, a := range cfg.DenyList {
		e.deny[strings.ToLower(a)] = true
	}
	for _, a := range cfg.AllowList {
		e.allow[strings.ToLower(a)] = true
	}
	for _, s := range cfg.DenySelectors {
		e.denySelectors[strings.ToLower(s)] = true
	}
	return e
}

func (e *Engine) BlockCount() uint64 { return e.blockCount }

// Evaluate blocks when the touched asset (the call target for a
// standard transfer-shaped selector, otherwise the target itself) is on
// the deny-list, or when an allow-list is configured and the asset is
// not on it.
func (e *Engine) Evaluate(tv txview.TxView, spend float64, clk clock.Clock) txview.Verdict {
	if tv.Target == "" {
		return txview.Allow("AssetGuard")
	}

	// The asset touched is always the call's own target: ERC-20/721
	// transfer selectors move tokens held BY that contract, they don't
	// name a different asset in their arguments.
	asset := tv.Target

	if tv.Function != "" && e.denySelectors[tv.Function] {
		e.blockCount++
		return txview.Block("AssetGuard", txview.CodeBlockAsset,
			"function selector touches assets via a disallowed call pattern")
	}

	if e.deny[asset] {
		e.blockCount++
		return txview.Block("AssetGuard", txview.CodeBlockAsset,
			"touched asset is on the configured deny-list")
	}

	if len(e.allow) > 0 && !e.allow[asset] {
		e.blockCount++
		return txview.Block("AssetGuard", txview.CodeBlockAsset,
			"touched asset is not on the configured allow-list")
	}

	return txview.Allow("AssetGuard")
}
