package config

import "github.com/plimsoll/firewall/internal/firewall"

// FirewallConfig overlays the YAML/env-derived thresholds onto the
// built-in production defaults, leaving engine sub-configs (thresholds
// spec.md does not expose at the deployment layer) untouched.
func (c *Config) Firewall() firewall.Config {
	fw := firewall.DefaultConfig()
	fw.StrikeMax = c.Firewall.StrikeMax
	fw.StrikeWindowSecs = c.Firewall.StrikeWindowSecs
	fw.SeverDurationSecs = c.Firewall.SeverDurationSecs
	fw.RevertStrikeMax = c.Firewall.RevertStrikeMax
	fw.RevertStrikeWindowSecs = c.Firewall.RevertStrikeWindowSecs
	fw.GasAnomalyRatio = c.Firewall.GasAnomalyRatio
	if c.Firewall.MaxPreVerificationGas > 0 {
		fw.MaxPreVerificationGas = c.Firewall.MaxPreVerificationGas
	}
	if c.Firewall.ChainID != 0 {
		fw.ChainID = c.Firewall.ChainID
	}
	return fw
}
