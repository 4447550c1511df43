package identity

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
)

const (
	fileName     = "identity.json"
	sealedSuffix = ".age"

	// EnvPrivateKey overrides the identity file with a base64url seed.
	EnvPrivateKey = "DWNTODO_PRIVATE_KEY"
)

var (
	// ErrNoIdentity is returned by Load when nothing is stored yet.
	ErrNoIdentity = errors.New("identity: none stored")

	// ErrPassphraseRequired is returned when only a sealed file exists
	// and no passphrase was given.
	ErrPassphraseRequired = errors.New("identity: sealed identity needs a passphrase")
)

// Store keeps one identity in a directory, either as plain JSON or
// sealed with an age passphrase.
type Store struct {
	Dir string

	// Passphrase seals the file with age scrypt when set.
	Passphrase string

	// WorkFactor is the scrypt log2 work factor; zero keeps age's default.
	WorkFactor int

	// Getenv looks up EnvPrivateKey; nil means os.Getenv.
	Getenv func(string) string
}

type fileFormat struct {
	DID       string    `json:"did"`
	Seed      string    `json:"seed"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) plainPath() string  { return filepath.Join(s.Dir, fileName) }
func (s *Store) sealedPath() string { return filepath.Join(s.Dir, fileName+sealedSuffix) }

// Path is where Save writes.
func (s *Store) Path() string {
	if s.Passphrase != "" {
		return s.sealedPath()
	}
	return s.plainPath()
}

func (s *Store) getenv(key string) string {
	if s.Getenv != nil {
		return s.Getenv(key)
	}
	return os.Getenv(key)
}

// Load returns the stored identity. The environment wins over the file;
// a sealed file wins over a plain one.
func (s *Store) Load() (*Identity, error) {
	// 1) env override
	if env := strings.TrimSpace(s.getenv(EnvPrivateKey)); env != "" {
		seed, err := base64.RawURLEncoding.DecodeString(env)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvPrivateKey, err)
		}
		id, err := FromSeed(seed)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvPrivateKey, err)
		}
		id.Source = "env"
		return id, nil
	}

	// 2) file
	b, err := s.readFile()
	if err != nil {
		return nil, err
	}
	var ff fileFormat
	if err := json.Unmarshal(b, &ff); err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}
	seed, err := base64.RawURLEncoding.DecodeString(ff.Seed)
	if err != nil {
		return nil, fmt.Errorf("parse identity seed: %w", err)
	}
	id, err := FromSeed(seed)
	if err != nil {
		return nil, err
	}
	if ff.DID != "" && ff.DID != id.DID() {
		return nil, fmt.Errorf("identity file: did %s does not match key", ff.DID)
	}
	id.Source = "file"
	id.CreatedAt = ff.CreatedAt
	return id, nil
}

func (s *Store) readFile() ([]byte, error) {
	sealed, err := os.ReadFile(s.sealedPath())
	switch {
	case err == nil:
		if s.Passphrase == "" {
			return nil, ErrPassphraseRequired
		}
		return s.open(sealed)
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read identity: %w", err)
	}

	b, err := os.ReadFile(s.plainPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoIdentity
		}
		return nil, fmt.Errorf("read identity: %w", err)
	}
	return b, nil
}

// Save writes id to Path with owner-only permissions.
func (s *Store) Save(id *Identity) error {
	// ensure the directory exists with 0700
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	created := id.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	b, err := json.MarshalIndent(fileFormat{
		DID:       id.DID(),
		Seed:      base64.RawURLEncoding.EncodeToString(id.Seed()),
		CreatedAt: created,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if s.Passphrase != "" {
		if b, err = s.seal(b); err != nil {
			return err
		}
	}
	// write with 0600 (owner-only)
	if err := os.WriteFile(s.Path(), b, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Delete removes both the plain and the sealed file. Missing files are
// not an error.
func (s *Store) Delete() error {
	for _, p := range []string{s.plainPath(), s.sealedPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove: %w", err)
		}
	}
	return nil
}

// LoadOrCreate loads the stored identity or generates and saves a new
// one. created reports whether a new identity was made.
func (s *Store) LoadOrCreate() (id *Identity, created bool, err error) {
	id, err = s.Load()
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, ErrNoIdentity) {
		return nil, false, err
	}
	id, err = Generate()
	if err != nil {
		return nil, false, err
	}
	if err := s.Save(id); err != nil {
		return nil, false, err
	}
	return id, true, nil
}

func (s *Store) seal(plaintext []byte) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(s.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("age recipient: %w", err)
	}
	if s.WorkFactor > 0 {
		recipient.SetWorkFactor(s.WorkFactor)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("age encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("age encrypt: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Store) open(ciphertext []byte) ([]byte, error) {
	ageID, err := age.NewScryptIdentity(s.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("age identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), ageID)
	if err != nil {
		return nil, fmt.Errorf("unseal identity: %w", err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unseal identity: %w", err)
	}
	return b, nil
}
