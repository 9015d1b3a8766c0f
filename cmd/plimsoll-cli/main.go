// Command plimsoll-cli is an operator CLI for talking to a running
// plimsoll-proxy instance: checking health, listing engine status, and
// watching recent blocks.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	gateway := os.Getenv("PLIMSOLL_GATEWAY_URL")
	if gateway == "" {
		gateway = "http://localhost:8443"
	}

	switch os.Args[1] {
	case "health":
		cmdGet(gateway + "/health")
	case "threat-feed":
		cmdGet(gateway + "/api/threat-feed")
	case "engines":
		cmdGet(gateway + "/api/engines")
	case "version":
		fmt.Printf("plimsoll-cli v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func cmdGet(url string) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read response: %v\n", err)
		os.Exit(1)
	}

	var pretty interface{}
	if err := json.Unmarshal(body, &pretty); err == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
		return
	}
	fmt.Println(string(body))
}

func printUsage() {
	fmt.Println(`plimsoll-cli v` + version + `

Usage: plimsoll-cli <command>

Commands:
  health        Show proxy health and aggregate stats
  threat-feed   Show threat feed stats and recent blocks
  engines       Show per-engine status and recent blocks
  version       Print the CLI version
  help          Show this message

Environment:
  PLIMSOLL_GATEWAY_URL  Base URL of the proxy (default http://localhost:8443)`)
}
