package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plimsoll/firewall/internal/circuitbreaker"
	"github.com/plimsoll/firewall/internal/configcache"
	"github.com/plimsoll/firewall/internal/engines/simulator"
	"github.com/plimsoll/firewall/internal/firewall"
	"github.com/plimsoll/firewall/internal/metrics"
	"github.com/plimsoll/firewall/internal/normalize"
	"github.com/plimsoll/firewall/internal/threatseed"
	"github.com/plimsoll/firewall/pkg/txview"
)

var vaultAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Config configures the Proxy's global behavior; per-principal behavior
// is additionally shaped by the config cache's on-chain reads.
type Config struct {
	UpstreamRPC    string
	RPCParamSource string // RPC URL used for on-chain config/whitelist reads; defaults to UpstreamRPC
	SimulatorAddr  string // gRPC address of the external EVM simulator; empty disables it
	RedisAddr      string
	ConfigCacheTTL time.Duration
	BaseConfig     firewall.Config
	BootTime       time.Time
}

// Proxy is the Intercept Proxy: a reverse proxy in front of an upstream
// JSON-RPC endpoint that normalizes every write call into a TxView,
// evaluates it through a firewall, and either forwards the request
// upstream or returns a structured 403 block. Grounded on
// original_source/plimsoll/proxy/interceptor.py's create_proxy_app and
// the teacher's internal/api/server.go for the gorilla/mux + CORS shape.
type Proxy struct {
	cfg        Config
	httpClient *http.Client
	simClient  *simulator.Client
	cache      *configcache.Cache
	feed       *BlockFeed
	metrics    *metrics.Metrics
	breakers   *circuitbreaker.PlimsollBreakers
	log        *log.Logger
	bootTime   time.Time

	globalFirewall *firewall.Firewall

	mu             sync.Mutex
	vaultFirewalls map[string]*firewall.Firewall

	Router *mux.Router
}

// New constructs a Proxy and registers its routes. The simulator client
// is dialed lazily and tolerated as nil (SimulatorAddr empty disables
// the EVMSimulator engine's external call, falling back to its
// fail_open/fail_closed unreachable policy).
func New(cfg Config) (*Proxy, error) {
	if cfg.RPCParamSource == "" {
		cfg.RPCParamSource = cfg.UpstreamRPC
	}
	if cfg.ConfigCacheTTL == 0 {
		cfg.ConfigCacheTTL = 300 * time.Second
	}
	if cfg.BootTime.IsZero() {
		cfg.BootTime = time.Now()
	}

	var simClient *simulator.Client
	if cfg.SimulatorAddr != "" {
		c, err := simulator.NewClient(cfg.SimulatorAddr)
		if err != nil {
			return nil, fmt.Errorf("connect to simulator: %w", err)
		}
		simClient = c
	}

	var cache *configcache.Cache
	if cfg.RedisAddr != "" {
		cache = configcache.NewWithRedis(cfg.RPCParamSource, cfg.ConfigCacheTTL, cfg.RedisAddr)
	} else {
		cache = configcache.New(cfg.RPCParamSource, cfg.ConfigCacheTTL)
	}

	p := &Proxy{
		cfg:            cfg,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		simClient:      simClient,
		cache:          cache,
		feed:           NewBlockFeed(),
		metrics:        metrics.New(),
		breakers:       circuitbreaker.NewPlimsollBreakers(),
		log:            log.New(log.Writer(), "[Proxy] ", log.LstdFlags),
		bootTime:       cfg.BootTime,
		globalFirewall: firewall.New(cfg.BaseConfig, nil, simClient),
		vaultFirewalls: make(map[string]*firewall.Firewall),
	}

	go p.feed.Run()
	p.Router = p.buildRouter()
	return p, nil
}

func (p *Proxy) buildRouter() *mux.Router {
	r := mux.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.HandleFunc("/", p.handleGlobalRPC).Methods(http.MethodPost)
	r.HandleFunc("/v1/{principal}", p.handleVaultRPC).Methods(http.MethodPost)
	r.HandleFunc("/health", p.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/threat-feed", p.handleThreatFeed).Methods(http.MethodGet)
	r.HandleFunc("/api/engines", p.handleEngines).Methods(http.MethodGet)
	r.HandleFunc("/ws/blocks", p.feed.HandleWebSocket)
	r.Handle("/metrics", promhttp.HandlerFor(p.metrics.Registry, promhttp.HandlerOpts{}))

	return r
}

// handleGlobalRPC serves POST / against the globally-shared firewall
// instance (no per-principal whitelist gate — spec.md §6).
func (p *Proxy) handleGlobalRPC(w http.ResponseWriter, r *http.Request) {
	body, req, err := decodeRequest(r)
	if err != nil {
		writeParseError(w, err)
		return
	}

	if normalize.IsReadOnly(req.Method) {
		p.forwardUpstream(w, r.Context(), body)
		return
	}

	tv := normalize.Normalize(req)
	spend := normalize.ExtractSpend(req)
	verdict := p.evaluateAndRecord("global", p.globalFirewall, tv, spend)
	if verdict.Blocked {
		p.publishBlock(verdict, tv, spend)
		writeBlockResponse(w, verdict)
		return
	}

	p.forwardUpstream(w, r.Context(), body)
}

// handleVaultRPC serves POST /v1/{principal}, adding the whitelist gate
// and a lazily-constructed per-principal firewall ahead of the shared
// evaluation path.
func (p *Proxy) handleVaultRPC(w http.ResponseWriter, r *http.Request) {
	principal := strings.ToLower(mux.Vars(r)["principal"])
	if !vaultAddressPattern.MatchString(principal) {
		http.Error(w, `{"error":"invalid principal address"}`, http.StatusBadRequest)
		return
	}

	body, req, err := decodeRequest(r)
	if err != nil {
		writeParseError(w, err)
		return
	}

	if normalize.IsReadOnly(req.Method) {
		p.forwardUpstream(w, r.Context(), body)
		return
	}

	tv := normalize.Normalize(req)
	spend := normalize.ExtractSpend(req)

	if ok, reason := p.cache.CheckWhitelist(r.Context(), principal, tv.Target); !ok {
		writeWhitelistBlockResponse(w, tv.Target, reason)
		return
	}

	fw := p.vaultFirewall(r.Context(), principal)

	if p.cache.EmergencyLocked(principal) {
		writeWhitelistBlockResponse(w, tv.Target, "vault is emergency-locked")
		return
	}

	verdict := p.evaluateAndRecord(principal, fw, tv, spend)
	if verdict.Blocked {
		p.publishBlock(verdict, tv, spend)
		writeBlockResponse(w, verdict)
		return
	}

	p.forwardUpstream(w, r.Context(), body)
}

// vaultFirewall returns the per-principal firewall, constructing it
// (idempotently under concurrent callers) from the current chain config
// the first time a principal is seen or after a rebuild is warranted.
// Per spec.md §5, construction must be idempotent under concurrent
// construction — double-checked locking.
func (p *Proxy) vaultFirewall(ctx context.Context, principal string) *firewall.Firewall {
	p.mu.Lock()
	if fw, ok := p.vaultFirewalls[principal]; ok {
		p.mu.Unlock()
		return fw
	}
	p.mu.Unlock()

	chainCfg := p.cache.Get(ctx, principal)
	cfg := p.cfg.BaseConfig
	cfg.Velocity.VMax = chainCfg.VMaxPerHour / 3600.0
	cfg.Velocity.MaxSingleAmount = chainCfg.MaxSingleAmount

	p.mu.Lock()
	defer p.mu.Unlock()
	if fw, ok := p.vaultFirewalls[principal]; ok {
		return fw
	}
	fw := firewall.New(cfg, nil, p.simClient)
	threatseed.Seed(fw.ThreatFeed)
	p.vaultFirewalls[principal] = fw
	return fw
}

// evaluateAndRecord runs fw.Evaluate and records timing/outcome metrics
// without changing the evaluation's semantics.
func (p *Proxy) evaluateAndRecord(principal string, fw *firewall.Firewall, tv txview.TxView, spend float64) txview.Verdict {
	start := time.Now()
	verdict := fw.Evaluate(tv, spend)
	p.metrics.RecordEvaluation(principal, verdict.Blocked, time.Since(start).Seconds())
	if verdict.Blocked {
		p.metrics.RecordEngineBlock(verdict.Engine, string(verdict.Code))
	}
	stats := fw.Stats()
	p.metrics.SetSevered(principal, stats["severed"].(bool))
	p.metrics.SetSlashed(principal, stats["slashed"].(bool))
	return verdict
}

// GlobalFirewall exposes the shared firewall instance so callers (e.g.
// startup seeding) can reach its engines directly.
func (p *Proxy) GlobalFirewall() *firewall.Firewall { return p.globalFirewall }

// publishBlock pushes a BlockEvent to the live observability feed; it
// never blocks the request path (BlockFeed.Publish drops on backpressure).
func (p *Proxy) publishBlock(verdict txview.Verdict, tv txview.TxView, spend float64) {
	p.feed.Publish(txview.BlockEvent{
		Code:   verdict.Code,
		Engine: verdict.Engine,
		Target: tv.Target,
		Amount: spend,
	})
}

func decodeRequest(r *http.Request) ([]byte, normalize.Request, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		return nil, normalize.Request{}, fmt.Errorf("read request body: %w", err)
	}
	var envelope struct {
		Method string        `json:"method"`
		Params []interface{} `json:"params"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, normalize.Request{}, fmt.Errorf("decode json-rpc request: %w", err)
	}
	req := normalize.Request{Method: envelope.Method}
	for _, param := range envelope.Params {
		if m, ok := param.(map[string]interface{}); ok {
			req.Params = append(req.Params, m)
		}
	}
	return body, req, nil
}

func writeParseError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeBlockResponse(w http.ResponseWriter, verdict txview.Verdict) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"blocked":  true,
		"code":     verdict.Code,
		"reason":   verdict.Reason,
		"feedback": verdict.Feedback,
	})
}

func writeWhitelistBlockResponse(w http.ResponseWriter, destination, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"blocked":     true,
		"code":        "BLOCK_WHITELIST",
		"destination": destination,
		"reason":      reason,
		"feedback":    reason + ". Retrying with the same parameters will fail again.",
	})
}

// forwardUpstream relays body to UpstreamRPC unmodified and streams the
// upstream response back, carrying the caller's context deadline. The
// call runs through the UpstreamRPC circuit breaker so a wedged chain
// node trips open and fails every subsequent request immediately
// instead of each one paying the full timeout.
func (p *Proxy) forwardUpstream(w http.ResponseWriter, ctx context.Context, body []byte) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := p.breakers.UpstreamRPC.ExecuteContext(reqCtx, func(reqCtx context.Context) (interface{}, error) {
		httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.cfg.UpstreamRPC, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-Request-Id", uuid.NewString())
		return p.httpClient.Do(httpReq)
	})
	if err != nil {
		http.Error(w, `{"error":"upstream unreachable"}`, http.StatusBadGateway)
		return
	}

	resp := result.(*http.Response)
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
