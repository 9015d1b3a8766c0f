package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plimsoll/firewall/internal/firewall"
)

func testCfg() firewall.Config {
	cfg := firewall.DefaultConfig()
	cfg.Velocity.MaxSingleAmount = 1000
	cfg.Velocity.GTVEnabled = false
	return cfg
}

func TestStoreAndSignNativeTransactionAllowed(t *testing.T) {
	v, err := New(testCfg())
	require.NoError(t, err)
	require.NoError(t, v.StoreKey("agent-key-1"))

	res, err := v.SignNativeTransaction("agent-key-1", map[string]interface{}{
		"to":    "0x00000000000000000000000000000000000001",
		"value": "0x0",
	}, 1.0)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.NotEmpty(t, res.Signature)
}

func TestSignNativeTransactionBlockedByFirewallNeverTouchesKey(t *testing.T) {
	v, err := New(testCfg())
	require.NoError(t, err)
	require.NoError(t, v.StoreKey("agent-key-1"))
	v.fw.ThreatFeed.AddAddress("0xbadbadbadbadbadbadbadbadbadbadbadbadbad")

	res, err := v.SignNativeTransaction("agent-key-1", map[string]interface{}{
		"to":    "0xbadbadbadbadbadbadbadbadbadbadbadbadbad",
		"value": "0x0",
	}, 1.0)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.Empty(t, res.Signature)
	assert.Equal(t, "ThreatFeed", res.Verdict.Engine)
}

func TestSignWithUnknownKeyReturnsKeyNotFound(t *testing.T) {
	v, err := New(testCfg())
	require.NoError(t, err)

	_, err = v.SignNativeTransaction("never-stored", map[string]interface{}{
		"to": "0x00000000000000000000000000000000000001",
	}, 1.0)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSignTypedDataBlockedOnMessageTarget(t *testing.T) {
	v, err := New(testCfg())
	require.NoError(t, err)
	require.NoError(t, v.StoreKey("agent-key-1"))
	v.fw.ThreatFeed.AddAddress("0xbadbadbadbadbadbadbadbadbadbadbadbadbad")

	res, err := v.SignTyped("agent-key-1", map[string]interface{}{
		"message": map[string]interface{}{
			"to": "0xbadbadbadbadbadbadbadbadbadbadbadbadbad",
		},
	}, 1.0)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
}

func TestHealthReportsStoredKeyCount(t *testing.T) {
	v, err := New(testCfg())
	require.NoError(t, err)
	require.NoError(t, v.StoreKey("k1"))
	require.NoError(t, v.StoreKey("k2"))

	h := v.Health()
	assert.Equal(t, 2, h["keys"])
	assert.Equal(t, "ok", h["status"])
}
