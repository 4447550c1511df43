package testutil

import (
	"net/http/httptest"
	"testing"

	"github.com/idilsaglam/dwntodo/internal/dwn"
	"github.com/idilsaglam/dwntodo/internal/identity"
)

// NewClient serves node for the life of the test and returns a client
// for it, authored by a fresh identity and using the test server's
// HTTP client.
func NewClient(t testing.TB, node *FakeNode, opts ...dwn.Option) (*dwn.Client, *identity.Identity) {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	opts = append([]dwn.Option{dwn.WithHTTPClient(srv.Client())}, opts...)
	client, err := dwn.New(srv.URL, id, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, id
}
