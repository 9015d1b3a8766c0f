// Command plimsoll-vault runs the Key Vault's duplex wire server over
// stdin/stdout — the isolated trust domain described in spec.md §4.7.
// It performs no other I/O: no HTTP listener, no outbound connections.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/plimsoll/firewall/internal/config"
	"github.com/plimsoll/firewall/internal/vault"
)

type stdioConn struct{}

func (stdioConn) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioConn) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, continuing with process environment")
	}

	cfg := config.Get().Firewall()
	v, err := vault.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize vault: %v", err)
	}

	log.Println("[Vault] serving duplex wire protocol on stdio")
	if err := vault.Serve(stdioConn{}, v); err != nil {
		log.Fatalf("vault serve loop exited: %v", err)
	}
}
