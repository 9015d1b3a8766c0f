package entropy

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plimsoll/firewall/internal/clock"
	"github.com/plimsoll/firewall/pkg/txview"
)

func TestShannonEntropyOfUniformStringIsHigh(t *testing.T) {
	// A fully random-looking base64-ish string has entropy well above
	// typical business text (~3.5-4.5).
	high := ShannonEntropy("aZ9fQ2kLp0xR7vM1sT4wU8yN3bC6dE5g")
	assert.Greater(t, high, 4.5)
}

func TestShannonEntropyOfRepeatedCharIsZero(t *testing.T) {
	assert.Equal(t, 0.0, ShannonEntropy(strings.Repeat("a", 50)))
}

func TestEvaluateAllowsShortHighEntropyField(t *testing.T) {
	e := New(DefaultConfig())
	clk := clock.NewFakeClock(time.Now())
	tv := txview.TxView{Memo: "abc"} // shorter than MinLength
	v := e.Evaluate(tv, 0, clk)
	assert.False(t, v.Blocked)
}

func TestEvaluateBlocksLongHighEntropyMemo(t *testing.T) {
	e := New(DefaultConfig())
	clk := clock.NewFakeClock(time.Now())
	memo := strings.Repeat("aZ9fQ2kLp0xR7vM1sT4wU8yN3bC6dE5g", 2)
	require.True(t, len(memo) >= DefaultConfig().MinLength)
	tv := txview.TxView{Memo: memo}
	v := e.Evaluate(tv, 0, clk)
	assert.True(t, v.Blocked)
	assert.Equal(t, txview.CodeBlockEntropy, v.Code)
}

func TestEvaluateAllowsLongLowEntropyMemo(t *testing.T) {
	e := New(DefaultConfig())
	clk := clock.NewFakeClock(time.Now())
	tv := txview.TxView{Memo: strings.Repeat("payment for invoice number ", 3)}
	v := e.Evaluate(tv, 0, clk)
	assert.False(t, v.Blocked)
}
