// Package identity manages the did:jwk identity that authors every
// record. The key is an Ed25519 pair; the DID is the base64url encoded
// public JWK, so resolving it needs no network.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const didPrefix = "did:jwk:"

// ErrUnsupportedDID is returned by Resolve for anything but an Ed25519 did:jwk.
var ErrUnsupportedDID = errors.New("identity: unsupported did")

// Identity is a DID with its signing key.
type Identity struct {
	did       string
	key       ed25519.PrivateKey
	Source    string    // "env" | "file" | "generated"
	CreatedAt time.Time // when the key was generated, if known
}

type jwk struct {
	Crv string `json:"crv"`
	Kty string `json:"kty"`
	X   string `json:"x"`
}

// Generate creates a fresh identity.
func Generate() (*Identity, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return fromKey(key, "generated", time.Now().UTC()), nil
}

// FromSeed rebuilds an identity from a 32-byte Ed25519 seed.
func FromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed: want %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return fromKey(ed25519.NewKeyFromSeed(seed), "", time.Time{}), nil
}

func fromKey(key ed25519.PrivateKey, source string, created time.Time) *Identity {
	return &Identity{
		did:       DIDFromPublicKey(key.Public().(ed25519.PublicKey)),
		key:       key,
		Source:    source,
		CreatedAt: created,
	}
}

func (i *Identity) DID() string                    { return i.did }
func (i *Identity) SigningKey() ed25519.PrivateKey { return i.key }
func (i *Identity) PublicKey() ed25519.PublicKey   { return i.key.Public().(ed25519.PublicKey) }
func (i *Identity) Seed() []byte                   { return i.key.Seed() }

// Short abbreviates the DID for status lines.
func (i *Identity) Short() string { return ShortDID(i.did) }

// DIDFromPublicKey encodes pub as a did:jwk.
func DIDFromPublicKey(pub ed25519.PublicKey) string {
	// Marshal of a fixed struct cannot fail.
	b, _ := json.Marshal(jwk{Crv: "Ed25519", Kty: "OKP", X: base64.RawURLEncoding.EncodeToString(pub)})
	return didPrefix + base64.RawURLEncoding.EncodeToString(b)
}

// Resolve returns the Ed25519 public key a did:jwk encodes.
func Resolve(did string) (ed25519.PublicKey, error) {
	did = strings.TrimSuffix(did, "#0")
	if !strings.HasPrefix(did, didPrefix) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDID, did)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(did, didPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDID, err)
	}
	var key jwk
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDID, err)
	}
	if key.Kty != "OKP" || key.Crv != "Ed25519" {
		return nil, fmt.Errorf("%w: key type %s/%s", ErrUnsupportedDID, key.Kty, key.Crv)
	}
	pub, err := base64.RawURLEncoding.DecodeString(key.X)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: bad public key", ErrUnsupportedDID)
	}
	return ed25519.PublicKey(pub), nil
}

// ShortDID keeps the method and the last few characters of a DID.
func ShortDID(did string) string {
	const keep = 8
	if !strings.HasPrefix(did, didPrefix) || len(did) <= len(didPrefix)+keep {
		return did
	}
	return didPrefix + "…" + did[len(did)-keep:]
}
