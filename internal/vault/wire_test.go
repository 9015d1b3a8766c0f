package vault

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrameThenReadRequestFraming(t *testing.T) {
	var buf bytes.Buffer

	params, _ := json.Marshal(storeKeyParams{KeyID: "k1"})
	req := Request{Action: "store_key", CorrelationID: "corr-1", Params: params}

	// Encode a request frame by hand using the same framing WriteResponse
	// uses, to prove ReadRequest's framing is symmetric.
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, writeFrame(&buf, payload))

	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, "store_key", got.Action)
	assert.Equal(t, "corr-1", got.CorrelationID)
}

func TestWriteResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	resp := Response{CorrelationID: "corr-2", OK: true, Result: map[string]interface{}{"key_id": "k1"}}
	require.NoError(t, WriteResponse(&buf, resp))

	payload, err := readFrame(&buf)
	require.NoError(t, err)

	var got Response
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "corr-2", got.CorrelationID)
	assert.True(t, got.OK)
}

func TestReadFrameRejectsOversizedLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	// 0xFFFFFFFF as a length prefix, no payload following.
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	_, err := readFrame(&buf)
	assert.Error(t, err)
}
