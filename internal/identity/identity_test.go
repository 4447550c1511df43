package identity

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func noEnv(string) string { return "" }

func TestResolveRoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(id.DID(), "did:jwk:") {
		t.Fatalf("unexpected did %q", id.DID())
	}
	pub, err := Resolve(id.DID())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !pub.Equal(id.PublicKey()) {
		t.Error("resolved key differs from identity key")
	}
	if _, err := Resolve(id.DID() + "#0"); err != nil {
		t.Errorf("resolve with fragment: %v", err)
	}
}

func TestResolveRejectsOtherMethods(t *testing.T) {
	for _, did := range []string{"did:web:example.com", "did:jwk:!!!", "did:jwk:" + base64.RawURLEncoding.EncodeToString([]byte(`{"kty":"EC","crv":"P-256","x":"AA"}`))} {
		if _, err := Resolve(did); !errors.Is(err, ErrUnsupportedDID) {
			t.Errorf("%s: expected ErrUnsupportedDID, got %v", did, err)
		}
	}
}

func TestFromSeedIsStable(t *testing.T) {
	seed := make([]byte, 32)
	a, err := FromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := FromSeed(seed)
	if a.DID() != b.DID() {
		t.Error("same seed produced different DIDs")
	}
	if _, err := FromSeed(seed[:10]); err == nil {
		t.Error("expected error for short seed")
	}
}

func TestShortDID(t *testing.T) {
	if got := ShortDID("did:web:x"); got != "did:web:x" {
		t.Errorf("expected unchanged, got %q", got)
	}
	id, _ := Generate()
	short := id.Short()
	if !strings.HasPrefix(short, "did:jwk:…") || !strings.HasSuffix(id.DID(), strings.TrimPrefix(short, "did:jwk:…")) {
		t.Errorf("unexpected short form %q", short)
	}
}

func TestStoreLoadOrCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")
	s := &Store{Dir: dir, Getenv: noEnv}

	if _, err := s.Load(); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}

	id, created, err := s.LoadOrCreate()
	if err != nil || !created {
		t.Fatalf("expected a new identity, got created=%v err=%v", created, err)
	}
	fi, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600, got %v", fi.Mode().Perm())
	}

	again, created, err := s.LoadOrCreate()
	if err != nil || created {
		t.Fatalf("expected existing identity, got created=%v err=%v", created, err)
	}
	if again.DID() != id.DID() || again.Source != "file" {
		t.Errorf("expected %s from file, got %s from %s", id.DID(), again.DID(), again.Source)
	}

	if err := s.Delete(); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}

func TestStoreEnvOverride(t *testing.T) {
	seed := make([]byte, 32)
	seed[0] = 7
	want, _ := FromSeed(seed)

	s := &Store{Dir: t.TempDir(), Getenv: func(k string) string {
		if k == EnvPrivateKey {
			return base64.RawURLEncoding.EncodeToString(seed)
		}
		return ""
	}}
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.DID() != want.DID() || got.Source != "env" {
		t.Errorf("expected env identity %s, got %s (%s)", want.DID(), got.DID(), got.Source)
	}
}

func TestStoreSealed(t *testing.T) {
	dir := t.TempDir()
	s := &Store{Dir: dir, Passphrase: "correct horse", WorkFactor: 10, Getenv: noEnv}

	id, _, err := s.LoadOrCreate()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(s.Path(), ".age") {
		t.Fatalf("expected sealed path, got %s", s.Path())
	}
	raw, _ := os.ReadFile(s.Path())
	if strings.Contains(string(raw), id.DID()) {
		t.Error("sealed file contains the DID in clear text")
	}

	loaded, err := (&Store{Dir: dir, Passphrase: "correct horse", Getenv: noEnv}).Load()
	if err != nil {
		t.Fatalf("load sealed: %v", err)
	}
	if loaded.DID() != id.DID() {
		t.Error("sealed identity did not round-trip")
	}

	if _, err := (&Store{Dir: dir, Getenv: noEnv}).Load(); !errors.Is(err, ErrPassphraseRequired) {
		t.Errorf("expected ErrPassphraseRequired, got %v", err)
	}
	if _, err := (&Store{Dir: dir, Passphrase: "wrong", Getenv: noEnv}).Load(); err == nil {
		t.Error("expected error with wrong passphrase")
	}
}
