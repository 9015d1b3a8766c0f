package vault

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/plimsoll/firewall/internal/firewall"
	"github.com/plimsoll/firewall/internal/normalize"
	"github.com/plimsoll/firewall/pkg/txview"
)

var (
	// ErrKeyNotFound is returned when an action references a key_id that
	// was never stored (or was stored before a restart — the vault holds
	// no state across process restarts beyond what store_key re-issues).
	ErrKeyNotFound = errors.New("vault: key not found")
	// ErrBlocked names a signing request refused by the firewall. The
	// sign_* actions do not return it: a BLOCK verdict comes back as a
	// SignedResult with Blocked set and a nil error, and no signature is
	// produced on that path.
	ErrBlocked = errors.New("vault: signing blocked by firewall")
)

// SignedResult carries either a produced signature or, on a BLOCK
// verdict, the structured reason the vault refused to sign — the raw
// secret material is never touched in the blocked branch.
type SignedResult struct {
	Signature string
	Blocked   bool
	Verdict   txview.Verdict
}

// Vault is the isolated trust domain described in spec.md §4.7: it
// stores signing secrets, and before producing a signature it
// reconstructs a TxView from the request and re-runs it through its own
// firewall instance. The vault's firewall never performs external I/O
// (the trust domain permits only the duplex wire channel), so its
// EVMSimulator engine is always disabled — every other engine is
// CPU-only and runs normally.
type Vault struct {
	store    *sealedStore
	fw       *firewall.Firewall
	log      *log.Logger
	bootedAt time.Time
}

// New constructs a Vault with a freshly seeded sealed store and its own
// firewall instance built from cfg (with the simulator forced off).
func New(cfg firewall.Config) (*Vault, error) {
	store, err := newSealedStore()
	if err != nil {
		return nil, fmt.Errorf("initialize vault store: %w", err)
	}

	cfg.Simulator.Enabled = false
	fw := firewall.New(cfg, nil, nil)

	return &Vault{
		store:    store,
		fw:       fw,
		log:      log.New(log.Writer(), "[Vault] ", log.LstdFlags),
		bootedAt: time.Now(),
	}, nil
}

// StoreKey generates a fresh P-256 signing key, seals it at rest, and
// stores it under keyID, overwriting any existing entry of that ID.
// The spec's store(key_id, secret) contract is satisfied by treating
// "secret" as vault-managed key material: callers never see the raw
// private key, only the key_id they used to request it.
func (v *Vault) StoreKey(keyID string) error {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate signing key for %s: %w", keyID, err)
	}
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshal signing key for %s: %w", keyID, err)
	}
	return v.store.put(keyID, der)
}

// SignNativeTransaction reconstructs a TxView from txDict, re-evaluates
// it through the firewall, and signs only on ALLOW. On BLOCK the raw key
// is never touched and the caller gets the verdict instead.
func (v *Vault) SignNativeTransaction(keyID string, txDict map[string]interface{}, spendAmount float64) (SignedResult, error) {
	req := normalize.Request{Method: "eth_sendTransaction", Params: []map[string]interface{}{txDict}}
	tv := normalize.Normalize(req)

	verdict := v.fw.Evaluate(tv, spendAmount)
	if verdict.Blocked {
		v.log.Printf("refused to sign for key %s: %s (%s)", keyID, verdict.Reason, verdict.Code)
		return SignedResult{Blocked: true, Verdict: verdict}, nil
	}

	sig, err := v.sign(keyID, []byte(fmt.Sprintf("%s|%s|%s", tv.Target, tv.Function, tv.Data)))
	if err != nil {
		return SignedResult{}, err
	}
	return SignedResult{Signature: sig}, nil
}

// SignTyped signs an EIP-712-style typed-data payload under the same
// block-before-sign discipline as SignNativeTransaction. typedData is
// hashed as an opaque blob; the firewall still sees it through a
// synthetic TxView built from its "message" fields when present.
func (v *Vault) SignTyped(keyID string, typedData map[string]interface{}, spendAmount float64) (SignedResult, error) {
	message, _ := typedData["message"].(map[string]interface{})
	if message == nil {
		message = map[string]interface{}{}
	}
	req := normalize.Request{Method: "eth_signTypedData_v4", Params: []map[string]interface{}{message}}
	tv := normalize.Normalize(req)

	verdict := v.fw.Evaluate(tv, spendAmount)
	if verdict.Blocked {
		v.log.Printf("refused to sign typed data for key %s: %s (%s)", keyID, verdict.Reason, verdict.Code)
		return SignedResult{Blocked: true, Verdict: verdict}, nil
	}

	digest := sha256.Sum256([]byte(fmt.Sprintf("%v", typedData)))
	sig, err := v.sign(keyID, digest[:])
	if err != nil {
		return SignedResult{}, err
	}
	return SignedResult{Signature: sig}, nil
}

func (v *Vault) sign(keyID string, payload []byte) (string, error) {
	der, ok, err := v.store.get(keyID)
	if err != nil {
		return "", fmt.Errorf("unseal key %s: %w", keyID, err)
	}
	if !ok {
		return "", ErrKeyNotFound
	}

	priv, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return "", fmt.Errorf("parse signing key %s: %w", keyID, err)
	}

	hash := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, hash[:])
	if err != nil {
		return "", fmt.Errorf("sign with key %s: %w", keyID, err)
	}
	return hex.EncodeToString(sig), nil
}

// ListKeyIDs returns every key ID currently stored.
func (v *Vault) ListKeyIDs() []string {
	return v.store.keyIDs()
}

// Health reports vault liveness and stored-key count for the health
// wire action.
func (v *Vault) Health() map[string]interface{} {
	return map[string]interface{}{
		"status":     "ok",
		"keys":       len(v.store.keyIDs()),
		"uptime_secs": int(time.Since(v.bootedAt).Seconds()),
	}
}
