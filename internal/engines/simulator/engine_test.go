package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/plimsoll/firewall/internal/clock"
	"github.com/plimsoll/firewall/pkg/txview"
)

func TestEvaluateDisabledAlwaysAllows(t *testing.T) {
	e := New(Config{Enabled: false}, nil)
	clk := clock.NewFakeClock(time.Now())
	v := e.Evaluate(txview.TxView{}, 0, clk)
	assert.False(t, v.Blocked)
}

func TestEvaluateNoClientFailOpenAllows(t *testing.T) {
	e := New(Config{Enabled: true, FailClosed: false}, nil)
	clk := clock.NewFakeClock(time.Now())
	v := e.Evaluate(txview.TxView{}, 0, clk)
	assert.False(t, v.Blocked)
}

func TestEvaluateNoClientFailClosedBlocks(t *testing.T) {
	e := New(Config{Enabled: true, FailClosed: true}, nil)
	clk := clock.NewFakeClock(time.Now())
	v := e.Evaluate(txview.TxView{}, 0, clk)
	assert.True(t, v.Blocked)
	assert.Equal(t, txview.CodeBlockSimulation, v.Code)
}
