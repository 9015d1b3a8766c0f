package simulator

import (
	"context"
	"sync"
	"time"

	"github.com/plimsoll/firewall/internal/circuitbreaker"
	"github.com/plimsoll/firewall/internal/clock"
	"github.com/plimsoll/firewall/pkg/txview"
)

// Config matches spec.md §4.4's simulator group.
type Config struct {
	Enabled       bool
	FailClosed    bool
	Endpoint      string
	TimeoutMS     int
	GasAnomalyRatio float64
}

// DefaultConfig mirrors original_source/plimsoll/proxy/interceptor.py's
// production config: fail-open simulator, 3x gas-anomaly ratio.
func DefaultConfig() Config {
	return Config{Enabled: true, FailClosed: false, TimeoutMS: 3000, GasAnomalyRatio: 3.0}
}

// Engine wraps a simulator Client with a circuit breaker so a flapping
// or wedged simulator degrades to "unreachable" quickly instead of
// letting every request pay the full timeout. Grounded on
// internal/circuitbreaker/breaker.go's PlimsollBreakers pattern of
// one named, tuned breaker per external dependency.
type Engine struct {
	cfg Config

	mu              sync.Mutex
	client          *Client
	breaker         *circuitbreaker.CircuitBreaker
	revertHistory   map[string][]time.Time // per-principal, for observability only; strike accounting lives in the firewall
	blockCount      uint64
}

// New constructs an EVM Simulator engine. client may be nil (e.g. no
// endpoint configured); Evaluate then always reports Unreachable and
// defers to FailClosed.
func New(cfg Config, client *Client) *Engine {
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:        "EVMSimulator",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &Engine{
		cfg:           cfg,
		client:        client,
		breaker:       breaker,
		revertHistory: make(map[string][]time.Time),
	}
}

func (e *Engine) BlockCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.blockCount
}

// Evaluate invokes the external simulator (through the circuit breaker)
// and maps its outcome to a verdict. A revert always BLOCKs. A gas
// anomaly (actual/predicted >= GasAnomalyRatio) BLOCKs. An unreachable
// simulator (timeout, connection failure, or open breaker) BLOCKs if
// FailClosed, otherwise ALLOWs.
func (e *Engine) Evaluate(tv txview.TxView, spend float64, clk clock.Clock) txview.Verdict {
	if !e.cfg.Enabled {
		return txview.Allow("EVMSimulator")
	}

	if e.client == nil {
		return e.unreachable()
	}

	timeout := time.Duration(e.cfg.TimeoutMS) * time.Millisecond
	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.client.Simulate(context.Background(), tv.Target, tv.Data, 0, timeout), nil
	})
	if err != nil {
		return e.unreachable()
	}

	outcome := result.(Outcome)
	if outcome.Unreachable {
		return e.unreachable()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if outcome.Reverted {
		e.blockCount++
		e.revertHistory[tv.Target] = append(e.revertHistory[tv.Target], clk.Now())
		return txview.Block("EVMSimulator", txview.CodeBlockSimulation,
			"simulated execution reverts")
	}

	if outcome.PredictedGas > 0 {
		ratio := float64(outcome.ActualGas) / float64(outcome.PredictedGas)
		if ratio >= e.cfg.GasAnomalyRatio {
			e.blockCount++
			return txview.Block("EVMSimulator", txview.CodeBlockSimulation,
				"simulated gas usage deviates far enough from prediction to signal a crafted exploit path")
		}
	}

	return txview.Allow("EVMSimulator")
}

func (e *Engine) unreachable() txview.Verdict {
	if e.cfg.FailClosed {
		e.mu.Lock()
		e.blockCount++
		e.mu.Unlock()
		return txview.Block("EVMSimulator", txview.CodeBlockSimulation,
			"simulator unreachable and fail-closed policy is active")
	}
	return txview.Allow("EVMSimulator")
}
