package vault

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loopConn struct {
	in  bytes.Buffer
	out bytes.Buffer
}

func (l *loopConn) Read(p []byte) (int, error)  { return l.in.Read(p) }
func (l *loopConn) Write(p []byte) (int, error) { return l.out.Write(p) }

func sendAndDispatch(t *testing.T, v *Vault, action string, params interface{}) Response {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	req := Request{Action: action, CorrelationID: "c1", Params: raw}
	resp := dispatch(v, req)
	return resp
}

func TestDispatchStoreKeyThenSignEth(t *testing.T) {
	v, err := New(testCfg())
	require.NoError(t, err)

	storeResp := sendAndDispatch(t, v, "store_key", storeKeyParams{KeyID: "k1"})
	require.True(t, storeResp.OK)

	signResp := sendAndDispatch(t, v, "sign_eth", signEthParams{
		KeyID: "k1",
		TxDict: map[string]interface{}{
			"to":    "0x00000000000000000000000000000000000001",
			"value": "0x0",
		},
	})
	require.True(t, signResp.OK)
	assert.False(t, signResp.Blocked)
}

func TestDispatchSignEthBlockedReturnsNoSignature(t *testing.T) {
	v, err := New(testCfg())
	require.NoError(t, err)
	require.NoError(t, v.StoreKey("k1"))
	v.fw.ThreatFeed.AddAddress("0xbadbadbadbadbadbadbadbadbadbadbadbadbad")

	resp := sendAndDispatch(t, v, "sign_eth", signEthParams{
		KeyID:  "k1",
		TxDict: map[string]interface{}{"to": "0xbadbadbadbadbadbadbadbadbadbadbadbadbad"},
	})
	assert.False(t, resp.OK)
	assert.True(t, resp.Blocked)
}

func TestDispatchUnrecognizedAction(t *testing.T) {
	v, err := New(testCfg())
	require.NoError(t, err)

	resp := dispatch(v, Request{Action: "nonexistent", CorrelationID: "c1"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "unrecognized action")
}

func TestDispatchHealthAction(t *testing.T) {
	v, err := New(testCfg())
	require.NoError(t, err)
	resp := dispatch(v, Request{Action: "health"})
	assert.True(t, resp.OK)
}

func TestServeProcessesOneRequestThenEOF(t *testing.T) {
	v, err := New(testCfg())
	require.NoError(t, err)

	var transcript bytes.Buffer
	params, _ := json.Marshal(storeKeyParams{KeyID: "k1"})
	req := Request{Action: "store_key", CorrelationID: "c1", Params: params}
	payload, _ := json.Marshal(req)
	require.NoError(t, writeFrame(&transcript, payload))

	conn := &loopConn{in: transcript}
	require.NoError(t, Serve(conn, v))

	out, err := readFrame(&conn.out)
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.True(t, resp.OK)
}
