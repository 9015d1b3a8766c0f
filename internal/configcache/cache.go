// Package configcache resolves per-principal (per-vault) firewall
// parameters and whitelists from on-chain contract state, with a TTL
// cache in front so every request doesn't pay a round trip of eth_call
// reads. Grounded on original_source/plimsoll/proxy/vault_config.py's
// VaultConfigCache: same ABI surface, same fail-soft policy (a read
// failure falls back to the last-known value, or the conservative
// default if nothing has ever been fetched — it never blocks traffic
// because an RPC call failed).
package configcache

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plimsoll/firewall/internal/circuitbreaker"
)

// ChainConfig is the subset of firewall parameters this cache can
// resolve from a vault contract's on-chain modules.
type ChainConfig struct {
	VMaxPerHour     float64 // ETH/hour, from velocityModule().maxPerHour()
	MaxSingleAmount float64 // ETH, from velocityModule().maxSingleTx()
	MaxDrawdownBps  float64 // basis points, from drawdownModule().maxDrawdownBps()
}

// DefaultChainConfig is returned when a vault has never been
// successfully read and chain lookups keep failing — conservative
// production defaults. MaxSingleAmount matches firewall.DefaultConfig's
// velocity group; VMaxPerHour of 100 ETH/hour is a tighter rate than
// that group's per-second VMax.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{VMaxPerHour: 100, MaxSingleAmount: 50, MaxDrawdownBps: 0}
}

type cachedEntry struct {
	cfg             ChainConfig
	fetchedAt       time.Time
	owner           string
	emergencyLocked bool
}

// Cache is a TTL-backed, per-vault-address resolver for chain config and
// whitelists. An optional redis.Client gives the cache a shared backing
// store across multiple proxy processes; when nil, everything lives in
// the local maps only.
type Cache struct {
	rpcURL     string
	httpClient *http.Client
	ttl        time.Duration
	log        *log.Logger
	breaker    *circuitbreaker.CircuitBreaker

	redisClient *redis.Client

	mu                 sync.Mutex
	entries            map[string]cachedEntry
	whitelist          map[string][]string
	whitelistFetchedAt map[string]time.Time
}

// New constructs a Cache with no distributed backing store. Every
// on-chain read it performs (fetchFromChain, fetchWhitelist) runs
// through a dedicated circuit breaker so a wedged or flapping parameter
// source degrades to "unreachable" (triggering the fail-soft path)
// quickly instead of making every request pay the full HTTP timeout.
func New(rpcURL string, ttl time.Duration) *Cache {
	return &Cache{
		rpcURL:             rpcURL,
		httpClient:         defaultHTTPClient(),
		ttl:                ttl,
		log:                log.New(log.Writer(), "[ConfigCache] ", log.LstdFlags),
		breaker:            circuitbreaker.NewPlimsollBreakers().ParameterSource,
		entries:            make(map[string]cachedEntry),
		whitelist:          make(map[string][]string),
		whitelistFetchedAt: make(map[string]time.Time),
	}
}

// NewWithRedis constructs a Cache that additionally mirrors resolved
// entries into Redis so a fleet of proxy processes shares one warm
// cache instead of each cold-starting independently. A Redis outage
// degrades silently back to the in-process map.
func NewWithRedis(rpcURL string, ttl time.Duration, redisAddr string) *Cache {
	c := New(rpcURL, ttl)
	if redisAddr == "" {
		return c
	}
	c.redisClient = redis.NewClient(&redis.Options{Addr: redisAddr, DB: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.redisClient.Ping(ctx).Err(); err != nil {
		c.log.Printf("redis unavailable at %s, continuing with in-process cache only: %v", redisAddr, err)
		c.redisClient = nil
	}
	return c
}

// Get returns the chain config for vault, refreshing from chain if the
// cached entry is stale or missing. A fetch failure retains the last
// known value (or DefaultChainConfig if nothing was ever fetched) —
// never blocks or errors out to the caller.
func (c *Cache) Get(ctx context.Context, vault string) ChainConfig {
	c.mu.Lock()
	entry, ok := c.entries[vault]
	fresh := ok && time.Since(entry.fetchedAt) < c.ttl
	c.mu.Unlock()

	if fresh {
		return entry.cfg
	}

	fetched, err := c.fetchFromChain(ctx, vault)
	if err != nil {
		c.log.Printf("chain config fetch failed for vault %s, retaining last known: %v", vault, err)
		if ok {
			return entry.cfg
		}
		return DefaultChainConfig()
	}

	c.mu.Lock()
	c.entries[vault] = cachedEntry{cfg: fetched.cfg, fetchedAt: time.Now(), owner: fetched.owner, emergencyLocked: fetched.emergencyLocked}
	c.mu.Unlock()
	return fetched.cfg
}

// EmergencyLocked reports whether the last successful fetch for vault
// observed emergencyLocked() == true. Unknown vaults report false.
func (c *Cache) EmergencyLocked(vault string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[vault].emergencyLocked
}

type fetchResult struct {
	cfg             ChainConfig
	owner           string
	emergencyLocked bool
}

func (c *Cache) fetchFromChain(ctx context.Context, vault string) (fetchResult, error) {
	velocityModuleHex, err := ethCall(ctx, c.breaker, c.httpClient, c.rpcURL, vault, selVelocityModule)
	if err != nil {
		return fetchResult{}, fmt.Errorf("read velocityModule: %w", err)
	}
	drawdownModuleHex, err := ethCall(ctx, c.breaker, c.httpClient, c.rpcURL, vault, selDrawdownModule)
	if err != nil {
		return fetchResult{}, fmt.Errorf("read drawdownModule: %w", err)
	}
	ownerHex, err := ethCall(ctx, c.breaker, c.httpClient, c.rpcURL, vault, selOwner)
	if err != nil {
		return fetchResult{}, fmt.Errorf("read owner: %w", err)
	}
	lockedHex, err := ethCall(ctx, c.breaker, c.httpClient, c.rpcURL, vault, selEmergencyLocked)
	if err != nil {
		return fetchResult{}, fmt.Errorf("read emergencyLocked: %w", err)
	}

	velocityModule := decodeAddress(velocityModuleHex)
	drawdownModule := decodeAddress(drawdownModuleHex)

	maxPerHourHex, err := ethCall(ctx, c.breaker, c.httpClient, c.rpcURL, velocityModule, selMaxPerHour)
	if err != nil {
		return fetchResult{}, fmt.Errorf("read maxPerHour: %w", err)
	}
	maxSingleTxHex, err := ethCall(ctx, c.breaker, c.httpClient, c.rpcURL, velocityModule, selMaxSingleTx)
	if err != nil {
		return fetchResult{}, fmt.Errorf("read maxSingleTx: %w", err)
	}
	maxDrawdownHex, err := ethCall(ctx, c.breaker, c.httpClient, c.rpcURL, drawdownModule, selMaxDrawdownBp)
	if err != nil {
		return fetchResult{}, fmt.Errorf("read maxDrawdownBps: %w", err)
	}

	maxPerHourWei := decodeUint256(maxPerHourHex)
	maxSingleTxWei := decodeUint256(maxSingleTxHex)

	maxPerHourEth, _ := new(big.Float).Quo(new(big.Float).SetInt(maxPerHourWei), big.NewFloat(weiPerEth)).Float64()
	maxSingleTxEth, _ := new(big.Float).Quo(new(big.Float).SetInt(maxSingleTxWei), big.NewFloat(weiPerEth)).Float64()
	maxDrawdownBps, _ := new(big.Float).SetInt(decodeUint256(maxDrawdownHex)).Float64()

	return fetchResult{
		cfg: ChainConfig{
			VMaxPerHour:     maxPerHourEth,
			MaxSingleAmount: maxSingleTxEth,
			MaxDrawdownBps:  maxDrawdownBps,
		},
		owner:           decodeAddress(ownerHex),
		emergencyLocked: decodeBool(lockedHex),
	}, nil
}

// CheckWhitelist reports whether target is whitelisted for vault. An
// empty whitelist is legacy mode: every target is allowed, matching
// original_source's "no whitelist module deployed yet" fallback. A
// fetch failure never blocks — it falls back to the last known list,
// or legacy-mode-allow if nothing was ever fetched.
func (c *Cache) CheckWhitelist(ctx context.Context, vault, target string) (bool, string) {
	list := c.whitelistSnapshot(ctx, vault)
	if len(list) == 0 {
		return true, "legacy mode: no whitelist configured for this vault"
	}
	for _, addr := range list {
		if addr == target {
			return true, "target is on the configured whitelist"
		}
	}
	return false, "target is not on the configured whitelist"
}

func (c *Cache) whitelistSnapshot(ctx context.Context, vault string) []string {
	c.mu.Lock()
	fetchedAt, ok := c.whitelistFetchedAt[vault]
	fresh := ok && time.Since(fetchedAt) < c.ttl
	current := c.whitelist[vault]
	c.mu.Unlock()

	if fresh {
		return current
	}

	fetched, err := c.fetchWhitelist(ctx, vault)
	if err != nil {
		c.log.Printf("whitelist fetch failed for vault %s, retaining last known: %v", vault, err)
		return current
	}

	c.mu.Lock()
	c.whitelist[vault] = fetched
	c.whitelistFetchedAt[vault] = time.Now()
	c.mu.Unlock()
	return fetched
}

// fetchWhitelist reads the whitelist module's array then verifies each
// entry against the active mapping, since removals clear the mapping
// without shrinking the backing array (an entry can be stale).
func (c *Cache) fetchWhitelist(ctx context.Context, vault string) ([]string, error) {
	moduleHex, err := ethCall(ctx, c.breaker, c.httpClient, c.rpcURL, vault, selWhitelistModule)
	if err != nil {
		return nil, fmt.Errorf("read whitelistModule: %w", err)
	}
	module := decodeAddress(moduleHex)
	if module == "" || module == "0x0000000000000000000000000000000000000000" {
		return nil, nil
	}

	countHex, err := ethCall(ctx, c.breaker, c.httpClient, c.rpcURL, module, selWhitelistCount)
	if err != nil {
		return nil, fmt.Errorf("read getWhitelistCount: %w", err)
	}
	count := int(decodeUint256(countHex).Int64())
	if count > maxWhitelistEntries {
		count = maxWhitelistEntries
	}

	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		entryData := selWhitelistedList + encodeUint256Param(i)
		entryHex, err := ethCall(ctx, c.breaker, c.httpClient, c.rpcURL, module, entryData)
		if err != nil {
			return nil, fmt.Errorf("read whitelistedList(%d): %w", i, err)
		}
		addr := decodeAddress(entryHex)
		if addr == "" {
			continue
		}

		activeData := selWhitelisted + encodeAddressParam(addr)
		activeHex, err := ethCall(ctx, c.breaker, c.httpClient, c.rpcURL, module, activeData)
		if err != nil {
			return nil, fmt.Errorf("read whitelisted(%s): %w", addr, err)
		}
		if decodeBool(activeHex) {
			out = append(out, addr)
		}
	}
	return out, nil
}
