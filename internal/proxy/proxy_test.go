package proxy

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plimsoll/firewall/internal/firewall"
)

func testConfig(upstream string) Config {
	cfg := firewall.DefaultConfig()
	cfg.StrikeMax = 3
	cfg.Velocity.VMax = 1000
	cfg.Velocity.MaxSingleAmount = 1000
	return Config{
		UpstreamRPC:    upstream,
		RPCParamSource: "http://127.0.0.1:1", // unreachable, forces fail-soft defaults/legacy-allow
		ConfigCacheTTL: time.Minute,
		BaseConfig:     cfg,
		BootTime:       time.Now(),
	}
}

func newTestProxy(t *testing.T, upstream string) *Proxy {
	p, err := New(testConfig(upstream))
	require.NoError(t, err)
	return p
}

func rpcBody(method string, params ...map[string]interface{}) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	return body
}

func TestHandleGlobalRPCForwardsReadOnlyCalls(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL)
	srv := httptest.NewServer(p.Router)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/", "application/json", bytes.NewReader(rpcBody("eth_blockNumber")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleGlobalRPCAllowsOrdinaryWrite(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0xhash"}`))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL)
	srv := httptest.NewServer(p.Router)
	defer srv.Close()

	params := map[string]interface{}{"to": "0xabc", "value": "0x1"}
	resp, err := http.Post(srv.URL+"/", "application/json", bytes.NewReader(rpcBody("eth_sendTransaction", params)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleGlobalRPCBlocksDenylistedAddress(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0xhash"}`))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL)
	p.GlobalFirewall().ThreatFeed.AddAddress("0xbad")
	srv := httptest.NewServer(p.Router)
	defer srv.Close()

	params := map[string]interface{}{"to": "0xbad", "value": "0x1"}
	resp, err := http.Post(srv.URL+"/", "application/json", bytes.NewReader(rpcBody("eth_sendTransaction", params)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, true, decoded["blocked"])
}

func TestHandleVaultRPCRejectsMalformedPrincipal(t *testing.T) {
	p := newTestProxy(t, "http://unused")
	srv := httptest.NewServer(p.Router)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/not-an-address", "application/json", bytes.NewReader(rpcBody("eth_blockNumber")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleVaultRPCAllowsWriteInLegacyWhitelistMode(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0xhash"}`))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL)
	srv := httptest.NewServer(p.Router)
	defer srv.Close()

	vault := "0x" + "1111111111111111111111111111111111111111"
	params := map[string]interface{}{"to": "0xabc", "value": "0x1"}
	resp, err := http.Post(srv.URL+"/v1/"+vault, "application/json", bytes.NewReader(rpcBody("eth_sendTransaction", params)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleVaultRPCBlocksSeededDenylistAddress(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0xhash"}`))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL)
	srv := httptest.NewServer(p.Router)
	defer srv.Close()

	vault := "0x" + "2222222222222222222222222222222222222222"
	// Drawn from internal/threatseed's seeded denylist so a freshly
	// constructed per-principal firewall must have it pre-loaded.
	denylisted := "0x0000000000ffe8b47b3e2130213b802212439497"
	params := map[string]interface{}{"to": denylisted, "value": "0x1"}
	resp, err := http.Post(srv.URL+"/v1/"+vault, "application/json", bytes.NewReader(rpcBody("eth_sendTransaction", params)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, true, decoded["blocked"])
}

func TestHandleHealthReportsEngineCount(t *testing.T) {
	p := newTestProxy(t, "http://unused")
	srv := httptest.NewServer(p.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, "ok", decoded["status"])
	assert.EqualValues(t, 7, decoded["engines"])
}

func TestHandleThreatFeedReportsRecentBlocks(t *testing.T) {
	p := newTestProxy(t, "http://unused")
	srv := httptest.NewServer(p.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/threat-feed")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	_, hasRecent := decoded["recent_blocks"]
	assert.True(t, hasRecent)
}

func TestHandleEnginesReportsSeverAndSlashingSummaries(t *testing.T) {
	p := newTestProxy(t, "http://unused")
	srv := httptest.NewServer(p.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/engines")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Contains(t, decoded, "cognitive_sever")
	assert.Contains(t, decoded, "paymaster_slashing")
	assert.Contains(t, decoded, "gtv_max_ratio")
	assert.Contains(t, decoded, "gas_anomaly_ratio")
	assert.Contains(t, decoded, "pvg_max")
	assert.Contains(t, decoded, "chain_id")

	engines, ok := decoded["engines"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, engines)
	first, ok := engines[0].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, first, "enabled")
}

func TestHandleGlobalRPCRejectsMalformedJSON(t *testing.T) {
	p := newTestProxy(t, "http://unused")
	srv := httptest.NewServer(p.Router)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/", "application/json", bytes.NewReader([]byte("not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
