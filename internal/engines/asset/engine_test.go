package asset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plimsoll/firewall/internal/clock"
	"github.com/plimsoll/firewall/pkg/txview"
)

func TestEvaluateAllowsUnrestrictedAssetByDefault(t *testing.T) {
	e := New(Config{})
	clk := clock.NewFakeClock(time.Now())
	v := e.Evaluate(txview.TxView{Target: "0xabc"}, 0, clk)
	assert.False(t, v.Blocked)
}

func TestEvaluateBlocksDenyListedAsset(t *testing.T) {
	e := New(Config{DenyList: []string{"0xABC"}})
	clk := clock.NewFakeClock(time.Now())
	v := e.Evaluate(txview.TxView{Target: "0xabc"}, 0, clk)
	require.True(t, v.Blocked)
	assert.Equal(t, txview.CodeBlockAsset, v.Code)
}

func TestEvaluateBlocksAssetNotOnAllowList(t *testing.T) {
	e := New(Config{AllowList: []string{"0xgood"}})
	clk := clock.NewFakeClock(time.Now())
	v := e.Evaluate(txview.TxView{Target: "0xabc"}, 0, clk)
	assert.True(t, v.Blocked)
}

func TestEvaluateAllowsAssetOnAllowList(t *testing.T) {
	e := New(Config{AllowList: []string{"0xabc"}})
	clk := clock.NewFakeClock(time.Now())
	v := e.Evaluate(txview.TxView{Target: "0xabc"}, 0, clk)
	assert.False(t, v.Blocked)
}

func TestEvaluateBlocksDenySelectorRegardlessOfAsset(t *testing.T) {
	e := New(Config{DenySelectors: []string{"0xbadbad01"}})
	clk := clock.NewFakeClock(time.Now())
	v := e.Evaluate(txview.TxView{Target: "0xabc", Function: "0xbadbad01"}, 0, clk)
	assert.True(t, v.Blocked)
}

func TestEvaluateAllowsEmptyTarget(t *testing.T) {
	e := New(Config{DenyList: []string{"0xabc"}})
	clk := clock.NewFakeClock(time.Now())
	v := e.Evaluate(txview.TxView{}, 0, clk)
	assert.False(t, v.Blocked)
}
