package quantizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plimsoll/firewall/internal/clock"
	"github.com/plimsoll/firewall/pkg/txview"
)

func TestEvaluateAllowsWhenDisabled(t *testing.T) {
	e := New(Config{Enabled: false})
	clk := clock.NewFakeClock(time.Now())
	v := e.Evaluate(txview.TxView{Data: "0xDEADBEEF"}, 0, clk)
	assert.False(t, v.Blocked)
}

func TestEvaluateAllowsCanonicalEvenLengthCalldata(t *testing.T) {
	e := New(Config{Enabled: true})
	clk := clock.NewFakeClock(time.Now())
	v := e.Evaluate(txview.TxView{Data: "0xdeadbeef"}, 0, clk)
	assert.False(t, v.Blocked)
}

func TestEvaluateBlocksOddLengthCalldata(t *testing.T) {
	e := New(Config{Enabled: true})
	clk := clock.NewFakeClock(time.Now())
	v := e.Evaluate(txview.TxView{Data: "0xdeadbee"}, 0, clk) // odd hex digit count
	require.True(t, v.Blocked)
	assert.Equal(t, txview.CodeBlockQuantize, v.Code)
}

func TestEvaluateAllowsEmptyCalldata(t *testing.T) {
	e := New(Config{Enabled: true})
	clk := clock.NewFakeClock(time.Now())
	v := e.Evaluate(txview.TxView{}, 0, clk)
	assert.False(t, v.Blocked)
}
