// Command plimsoll-proxy runs the Intercept Proxy: an HTTP reverse proxy
// that gates every state-changing JSON-RPC call through the firewall
// before it reaches the upstream chain endpoint.
package main

import (
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/plimsoll/firewall/internal/config"
	"github.com/plimsoll/firewall/internal/proxy"
	"github.com/plimsoll/firewall/internal/threatseed"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, continuing with process environment")
	}

	appCfg := config.Get()

	upstream := appCfg.Upstream.RPCURL
	if upstream == "" {
		log.Fatal("UPSTREAM_RPC is required for the global route")
	}

	cc := proxy.Config{
		UpstreamRPC:    upstream,
		RPCParamSource: appCfg.Upstream.RPCParamSource,
		SimulatorAddr:  appCfg.Upstream.SimulatorAddr,
		RedisAddr:      appCfg.Redis.Addr,
		ConfigCacheTTL: time.Duration(appCfg.Firewall.ConfigCacheTTLSecs) * time.Second,
		BaseConfig:     appCfg.Firewall(),
		BootTime:       time.Now(),
	}

	p, err := proxy.New(cc)
	if err != nil {
		log.Fatalf("failed to start proxy: %v", err)
	}

	threatseed.Seed(p.GlobalFirewall().ThreatFeed)

	addr := ":" + appCfg.Server.Port
	log.Printf("[Proxy] listening on %s, forwarding to %s", addr, upstream)
	if err := http.ListenAndServe(addr, p.Router); err != nil {
		log.Fatalf("proxy server failed: %v", err)
	}
}
