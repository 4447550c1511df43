package dwn_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/idilsaglam/dwntodo/internal/dwn"
	"github.com/idilsaglam/dwntodo/internal/identity"
	"github.com/idilsaglam/dwntodo/internal/testutil"
)

const schema = "http://127.0.0.1:5173"

type payload struct {
	Completed   bool   `json:"completed"`
	Description string `json:"description"`
}

// steppingClock returns strictly increasing times so successive writes
// are ordered.
func steppingClock() func() time.Time {
	t := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func create(t *testing.T, c *dwn.Client, body string) *dwn.Record {
	t.Helper()
	rec, err := c.Create(context.Background(), dwn.CreateRequest{
		Data:       []byte(body),
		Schema:     schema,
		DataFormat: "application/json",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return rec
}

func TestCreateThenQueryInCreationOrder(t *testing.T) {
	node := testutil.NewFakeNode()
	c, _ := testutil.NewClient(t, node, dwn.WithClock(steppingClock()))

	first := create(t, c, `{"completed":false,"description":"buy milk"}`)
	second := create(t, c, `{"completed":true,"description":"walk dog"}`)

	if first.ID() == "" || first.ID() == second.ID() {
		t.Fatalf("expected distinct record ids, got %q and %q", first.ID(), second.ID())
	}
	if !strings.HasPrefix(first.ID(), "b") {
		t.Errorf("expected multibase base32 id, got %q", first.ID())
	}

	records, err := c.Query(context.Background(), dwn.QueryFilter{Schema: schema}, dwn.CreatedAscending)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID() != first.ID() || records[1].ID() != second.ID() {
		t.Errorf("expected createdAscending order")
	}
	var p payload
	if err := records[1].JSON(&p); err != nil {
		t.Fatalf("json: %v", err)
	}
	if p.Description != "walk dog" || !p.Completed {
		t.Errorf("unexpected payload %+v", p)
	}

	desc, err := c.Query(context.Background(), dwn.QueryFilter{Schema: schema}, dwn.CreatedDescending)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if desc[0].ID() != second.ID() {
		t.Errorf("expected createdDescending to start with the newest record")
	}
}

func TestQueryFiltersBySchema(t *testing.T) {
	node := testutil.NewFakeNode()
	c, _ := testutil.NewClient(t, node)

	create(t, c, `{"description":"mine"}`)
	if _, err := c.Create(context.Background(), dwn.CreateRequest{
		Data:   []byte(`{}`),
		Schema: "https://example.com/other",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	records, err := c.Query(context.Background(), dwn.QueryFilter{Schema: schema}, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}

func TestQueryReadsLargeRecords(t *testing.T) {
	node := testutil.NewFakeNode()
	node.InlineLimit = 4
	c, _ := testutil.NewClient(t, node)

	rec := create(t, c, `{"description":"too long to inline"}`)

	records, err := c.Query(context.Background(), dwn.QueryFilter{Schema: schema}, dwn.CreatedAscending)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 1 || string(records[0].Data()) != string(rec.Data()) {
		t.Fatalf("expected record data to be read, got %v", records)
	}
	if node.Calls(dwn.MethodRead) != 1 {
		t.Errorf("expected 1 read, got %d", node.Calls(dwn.MethodRead))
	}
}

func TestReadUpdateKeepsRecordIdentity(t *testing.T) {
	node := testutil.NewFakeNode()
	c, _ := testutil.NewClient(t, node, dwn.WithClock(steppingClock()))

	created := create(t, c, `{"completed":false,"description":"a"}`)

	rec, err := c.Read(context.Background(), created.ID())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !rec.DateCreated().Equal(created.DateCreated()) {
		t.Errorf("expected dateCreated %v, got %v", created.DateCreated(), rec.DateCreated())
	}
	if err := rec.Update(context.Background(), []byte(`{"completed":true,"description":"a"}`)); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, ok := node.Payload(created.ID())
	if !ok || string(got) != `{"completed":true,"description":"a"}` {
		t.Errorf("expected updated payload, got %q", got)
	}
	if node.Len() != 1 {
		t.Errorf("expected update in place, node holds %d records", node.Len())
	}
	if rec.Schema() != schema || rec.DataFormat() != "application/json" {
		t.Errorf("update lost metadata: %q %q", rec.Schema(), rec.DataFormat())
	}
}

func TestDelete(t *testing.T) {
	node := testutil.NewFakeNode()
	c, _ := testutil.NewClient(t, node)

	rec := create(t, c, `{}`)
	if err := c.Delete(context.Background(), rec.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if node.Len() != 0 {
		t.Errorf("expected empty node, got %d records", node.Len())
	}

	err := c.Delete(context.Background(), rec.ID())
	if !errors.Is(err, dwn.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := c.Read(context.Background(), rec.ID()); !errors.Is(err, dwn.ErrNotFound) {
		t.Errorf("expected ErrNotFound on read, got %v", err)
	}
}

func TestStatusErrors(t *testing.T) {
	node := testutil.NewFakeNode()
	c, _ := testutil.NewClient(t, node)

	node.FailMethod(dwn.MethodQuery, http.StatusForbidden)
	_, err := c.Query(context.Background(), dwn.QueryFilter{Schema: schema}, dwn.CreatedAscending)
	if !errors.Is(err, dwn.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	var statusErr *dwn.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusForbidden {
		t.Errorf("expected *StatusError with 403, got %v", err)
	}

	node.FailMethod(dwn.MethodQuery, 0)
	if _, err := c.Query(context.Background(), dwn.QueryFilter{Schema: schema}, dwn.CreatedAscending); err != nil {
		t.Errorf("expected query to recover, got %v", err)
	}
}

func TestOtherTenantIsRejected(t *testing.T) {
	node := testutil.NewFakeNode()
	other, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	c, _ := testutil.NewClient(t, node, dwn.WithTarget(other.DID()))

	_, err = c.Create(context.Background(), dwn.CreateRequest{Data: []byte(`{}`), Schema: schema})
	if !errors.Is(err, dwn.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized writing to another tenant, got %v", err)
	}
}

func TestRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","error":{"code":-32601,"message":"method not found"}}`))
	}))
	defer srv.Close()

	id, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	c, err := dwn.New(srv.URL, id)
	if err != nil {
		t.Fatal(err)
	}
	err = c.Delete(context.Background(), "bafy")
	var rpcErr *dwn.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32601 {
		t.Errorf("expected RPCError -32601, got %v", err)
	}
}

func TestHTTPFailureWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "", http.StatusNotFound)
	}))
	defer srv.Close()

	id, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	c, err := dwn.New(srv.URL, id)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Read(context.Background(), "bafy"); !errors.Is(err, dwn.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	id, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	c, err := dwn.New(srv.URL, id, dwn.WithTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Read(context.Background(), "bafy"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	id, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dwn.New("ftp://node", id); err == nil {
		t.Error("expected error for ftp endpoint")
	}
	if _, err := dwn.New("http://node", nil); err == nil {
		t.Error("expected error for nil signer")
	}
}
