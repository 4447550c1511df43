package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/idilsaglam/dwntodo/internal/config"
	"github.com/idilsaglam/dwntodo/internal/dwn"
	"github.com/idilsaglam/dwntodo/internal/identity"
	"github.com/idilsaglam/dwntodo/internal/testutil"
	"github.com/idilsaglam/dwntodo/internal/todo"
	"github.com/idilsaglam/dwntodo/internal/ui"
)

type testEnv struct {
	*Env
	node     *testutil.FakeNode
	out, err *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ui.SetTheme("mono")
	t.Cleanup(func() { ui.SetTheme("classic") })

	node := testutil.NewFakeNode()
	cfg := config.Default()
	cfg.Endpoint = node.Start(t)

	var out, errOut bytes.Buffer
	return &testEnv{
		Env: &Env{
			Out:    &out,
			Err:    &errOut,
			Config: cfg,
			Identities: &identity.Store{
				Dir:    t.TempDir(),
				Getenv: func(string) string { return "" },
			},
			Plain:   true,
			Version: "test",
		},
		node: node,
		out:  &out,
		err:  &errOut,
	}
}

func (e *testEnv) run(t *testing.T, args ...string) int {
	t.Helper()
	e.out.Reset()
	e.err.Reset()
	return Run(context.Background(), args, e.Env)
}

func TestAddListToggleEditRemove(t *testing.T) {
	e := newTestEnv(t)

	if code := e.run(t, "add", "buy", "milk"); code != ExitOK {
		t.Fatalf("add: exit %d: %s", code, e.err)
	}
	if code := e.run(t, "add", "walk dog"); code != ExitOK {
		t.Fatalf("add: exit %d: %s", code, e.err)
	}
	if e.node.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", e.node.Len())
	}

	if code := e.run(t, "ls"); code != ExitOK {
		t.Fatalf("ls: exit %d: %s", code, e.err)
	}
	out := e.out.String()
	if !strings.Contains(out, " 1. [ ] buy milk") || !strings.Contains(out, " 2. [ ] walk dog") {
		t.Fatalf("unexpected listing:\n%s", out)
	}

	if code := e.run(t, "done", "1"); code != ExitOK {
		t.Fatalf("done: exit %d: %s", code, e.err)
	}
	e.run(t, "ls")
	if !strings.Contains(e.out.String(), " 1. [x] buy milk") {
		t.Errorf("expected first todo done:\n%s", e.out)
	}

	if code := e.run(t, "edit", "2", "walk", "the", "dog"); code != ExitOK {
		t.Fatalf("edit: exit %d: %s", code, e.err)
	}
	if code := e.run(t, "rm", "1"); code != ExitOK {
		t.Fatalf("rm: exit %d: %s", code, e.err)
	}
	e.run(t, "ls")
	out = e.out.String()
	if strings.Contains(out, "buy milk") || !strings.Contains(out, " 1. [ ] walk the dog") {
		t.Errorf("unexpected listing after rm:\n%s", out)
	}
}

func TestGroupedListingKeepsIndexes(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, "add", "first")
	e.run(t, "add", "second")
	e.run(t, "done", "1")

	if code := e.run(t, "ls", "--group"); code != ExitOK {
		t.Fatalf("ls --group: exit %d: %s", code, e.err)
	}
	out := e.out.String()
	open := strings.Index(out, "Open")
	done := strings.Index(out, "Done")
	second := strings.Index(out, " 2. [ ] second")
	first := strings.Index(out, " 1. [x] first")
	if open < 0 || done < 0 || second < open || first < done {
		t.Errorf("unexpected grouped listing:\n%s", out)
	}
}

func TestUsageErrors(t *testing.T) {
	e := newTestEnv(t)
	cases := [][]string{
		{"add"},
		{"add", "   "},
		{"done"},
		{"done", "x"},
		{"edit", "1"},
		{"rm", "one"},
		{"bogus"},
		{"id"},
		{"ls", "--nope"},
	}
	for _, args := range cases {
		if code := e.run(t, args...); code != ExitUsage {
			t.Errorf("%v: expected exit %d, got %d", args, ExitUsage, code)
		}
	}
}

func TestIndexOutOfRange(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, "add", "only")
	if code := e.run(t, "done", "2"); code != ExitUsage {
		t.Fatalf("expected usage exit, got %d", code)
	}
	if !strings.Contains(e.err.String(), "index out of range: have 1, got 2") {
		t.Errorf("unexpected stderr %q", e.err)
	}
}

func TestBackendFailureExitsOne(t *testing.T) {
	e := newTestEnv(t)
	e.node.FailMethod(dwn.MethodQuery, http.StatusInternalServerError)
	if code := e.run(t, "ls"); code != ExitError {
		t.Fatalf("expected exit %d, got %d", ExitError, code)
	}
	if !strings.Contains(e.err.String(), "fetch:") {
		t.Errorf("unexpected stderr %q", e.err)
	}
}

func TestUnauthorizedShowsHint(t *testing.T) {
	e := newTestEnv(t)
	e.node.FailMethod(dwn.MethodWrite, http.StatusForbidden)
	if code := e.run(t, "add", "x"); code != ExitError {
		t.Fatalf("expected exit %d, got %d", ExitError, code)
	}
	if !strings.Contains(e.err.String(), "tenant") {
		t.Errorf("expected tenant hint, got %q", e.err)
	}
}

func TestInteractiveUnlessPlain(t *testing.T) {
	e := newTestEnv(t)
	e.Plain = false
	var gotDID string
	e.Interactive = func(_ context.Context, _ todo.Backend, did string) error {
		gotDID = did
		return nil
	}

	if code := e.run(t); code != ExitOK {
		t.Fatalf("exit %d: %s", code, e.err)
	}
	if !strings.HasPrefix(gotDID, "did:jwk:") {
		t.Fatalf("list view not started, did %q", gotDID)
	}

	gotDID = ""
	e.run(t, "ls", "--plain")
	if gotDID != "" {
		t.Errorf("--plain started the list view")
	}

	e.Interactive = func(context.Context, todo.Backend, string) error { return errors.New("no tty") }
	if code := e.run(t, "ls"); code != ExitError {
		t.Errorf("expected exit %d from a failing list view, got %d", ExitError, code)
	}
}

func TestIdentityCommands(t *testing.T) {
	e := newTestEnv(t)

	if code := e.run(t, "id", "show"); code != ExitError {
		t.Fatalf("show before new: expected exit %d, got %d", ExitError, code)
	}
	if code := e.run(t, "id", "new"); code != ExitOK {
		t.Fatalf("new: exit %d: %s", code, e.err)
	}
	e.run(t, "id", "show")
	first := strings.TrimSpace(e.out.String())
	if !strings.HasPrefix(first, "did:jwk:") {
		t.Fatalf("unexpected did %q", first)
	}

	if code := e.run(t, "id", "new"); code != ExitUsage {
		t.Fatalf("second new without --force: expected exit %d, got %d", ExitUsage, code)
	}
	if code := e.run(t, "id", "new", "--force"); code != ExitOK {
		t.Fatalf("new --force: exit %d: %s", code, e.err)
	}
	e.run(t, "id", "show")
	if second := strings.TrimSpace(e.out.String()); second == first {
		t.Errorf("expected a different DID after --force")
	}

	if code := e.run(t, "id", "status"); code != ExitOK || !strings.Contains(e.out.String(), "source   file") {
		t.Errorf("unexpected status (exit %d):\n%s", code, e.out)
	}
	e.run(t, "id", "path")
	if strings.TrimSpace(e.out.String()) != e.Identities.Path() {
		t.Errorf("unexpected path %q", e.out)
	}
}

func TestHelpAndVersion(t *testing.T) {
	e := newTestEnv(t)
	if code := e.run(t, "help"); code != ExitOK || !strings.Contains(e.out.String(), "Subcommands:") {
		t.Errorf("unexpected help (exit %d)", code)
	}
	if code := e.run(t, "version"); code != ExitOK || strings.TrimSpace(e.out.String()) != "dwntodo test" {
		t.Errorf("unexpected version %q", e.out)
	}
}
