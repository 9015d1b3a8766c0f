package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirewallOverlaysDeploymentThresholdsOntoDefaults(t *testing.T) {
	c := &Config{}
	c.applyDefaults()
	c.Firewall.StrikeMax = 2
	c.Firewall.ChainID = 1

	fw := c.Firewall()

	assert.Equal(t, 2, fw.StrikeMax)
	assert.Equal(t, 1, fw.ChainID)
	assert.Equal(t, c.Firewall.GasAnomalyRatio, fw.GasAnomalyRatio)
}

func TestFirewallLeavesChainIDAtBuiltinDefaultWhenUnset(t *testing.T) {
	c := &Config{}
	c.applyDefaults()
	c.Firewall.ChainID = 0 // reset after defaults to simulate "never configured"

	fw := c.Firewall()

	assert.NotZero(t, fw.ChainID)
}
