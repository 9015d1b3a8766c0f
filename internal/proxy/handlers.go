package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/plimsoll/firewall/internal/firewall"
)

// handleHealth serves GET /health, matching spec.md §6's exact body
// shape plus the engine-count and stats fields.
func (p *Proxy) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"upstream":    p.cfg.UpstreamRPC,
		"engines":     len(p.globalFirewall.EngineStats()),
		"uptime_secs": int(time.Since(p.bootTime).Seconds()),
		"stats":       p.globalFirewall.Stats(),
	})
}

// handleThreatFeed serves GET /api/threat-feed: the threat feed's
// version/consensus metadata plus recent blocks, reproducing
// original_source/plimsoll/proxy/interceptor.py's _api_threat_feed.
func (p *Proxy) handleThreatFeed(w http.ResponseWriter, r *http.Request) {
	stats := p.globalFirewall.ThreatFeed.Stats()
	stats["recent_blocks"] = p.globalFirewall.RecentBlocks()
	writeJSON(w, http.StatusOK, stats)
}

// handleEngines serves GET /api/engines: per-engine enablement and
// block counts plus a human-readable feature summary, reproducing
// interceptor.py's _api_engines in full — including the gtv/gas-anomaly/
// pvg/chain-id feature fields the distilled spec omitted.
func (p *Proxy) handleEngines(w http.ResponseWriter, r *http.Request) {
	cfg := p.globalFirewall.Config()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"engines": p.globalFirewall.EngineStats(),
		"cognitive_sever": map[string]interface{}{
			"enabled": cfg.CognitiveSeverEnabled,
			"summary": summarizeSever(cfg),
		},
		"paymaster_slashing": map[string]interface{}{
			"enabled": cfg.RevertStrikeMax > 0,
			"summary": summarizeSlashing(cfg),
		},
		"gtv_enabled":       cfg.Velocity.GTVEnabled,
		"gtv_max_ratio":     cfg.Velocity.GTVMaxRatio,
		"gas_anomaly_ratio": cfg.GasAnomalyRatio,
		"pvg_max":           cfg.MaxPreVerificationGas,
		"chain_id":          cfg.ChainID,
		"recent_blocks":     p.globalFirewall.RecentBlocks(),
	})
}

func summarizeSever(cfg firewall.Config) string {
	return fmt.Sprintf("%d strikes / %ds window", cfg.StrikeMax, int(cfg.StrikeWindowSecs))
}

func summarizeSlashing(cfg firewall.Config) string {
	return fmt.Sprintf("%d reverts / %ds window", cfg.RevertStrikeMax, int(cfg.RevertStrikeWindowSecs))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
