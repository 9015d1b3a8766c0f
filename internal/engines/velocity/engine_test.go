package velocity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plimsoll/firewall/internal/clock"
	"github.com/plimsoll/firewall/pkg/txview"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.VMax = 10
	cfg.WindowSeconds = 60
	cfg.MaxSingleAmount = 100
	cfg.PIDThreshold = 1.5
	cfg.GTVEnabled = false
	return cfg
}

func TestEvaluateAllowsBelowThresholds(t *testing.T) {
	e := New(testConfig())
	clk := clock.NewFakeClock(time.Now())

	v := e.Evaluate(txview.TxView{}, 1.0, clk)
	assert.False(t, v.Blocked)
	assert.Equal(t, uint64(0), e.BlockCount())
}

func TestEvaluateBlocksSingleTransactionOverCap(t *testing.T) {
	e := New(testConfig())
	clk := clock.NewFakeClock(time.Now())

	v := e.Evaluate(txview.TxView{}, 200.0, clk)
	require.True(t, v.Blocked)
	assert.Equal(t, txview.CodeBlockSingleCap, v.Code)
	assert.Equal(t, uint64(1), e.BlockCount())
}

func TestEvaluateBlocksOnSustainedVelocity(t *testing.T) {
	e := New(testConfig())
	start := time.Now()
	clk := clock.NewFakeClock(start)

	var last txview.Verdict
	for i := 0; i < 20; i++ {
		last = e.Evaluate(txview.TxView{}, 90.0, clk)
		if last.Blocked {
			break
		}
		clk.Advance(time.Second)
	}

	require.True(t, last.Blocked)
	assert.Equal(t, txview.CodeBlockVelocity, last.Code)
}

func TestLeakyBucketDrainsOverTime(t *testing.T) {
	e := New(testConfig())
	start := time.Now()
	clk := clock.NewFakeClock(start)

	v := e.Evaluate(txview.TxView{}, 9.0, clk)
	assert.False(t, v.Blocked)

	// Advance well past the window so the accumulator fully drains.
	clk.Advance(2 * time.Minute)
	v = e.Evaluate(txview.TxView{}, 9.0, clk)
	assert.False(t, v.Blocked)
}
