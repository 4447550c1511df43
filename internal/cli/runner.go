// Package cli implements the dwntodo subcommands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/idilsaglam/dwntodo/internal/config"
	"github.com/idilsaglam/dwntodo/internal/dwn"
	"github.com/idilsaglam/dwntodo/internal/identity"
	"github.com/idilsaglam/dwntodo/internal/logging"
	"github.com/idilsaglam/dwntodo/internal/model"
	"github.com/idilsaglam/dwntodo/internal/todo"
	"github.com/idilsaglam/dwntodo/internal/ui"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// Env is everything a command needs from the outside world.
type Env struct {
	Out, Err io.Writer
	Logger   *slog.Logger
	Config   *config.Config

	Identities *identity.Store

	// Connect builds the backend for id. Nil dials Config.Endpoint.
	Connect func(id *identity.Identity) (todo.Backend, error)

	// Interactive runs the list view. Nil makes ls always plain.
	Interactive func(ctx context.Context, backend todo.Backend, did string) error

	// Plain forces ls to print instead of starting the list view.
	Plain bool

	Version string
}

// Run dispatches args and returns an exit code.
func Run(ctx context.Context, args []string, env *Env) int {
	if env.Logger == nil {
		env.Logger = logging.Discard()
	}
	if len(args) == 0 {
		return doList(ctx, env, nil)
	}
	cmd, a := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		PrintHelp(env.Out)
		return ExitOK

	case "version", "--version":
		fmt.Fprintln(env.Out, "dwntodo", env.Version)
		return ExitOK

	case "ls":
		return doList(ctx, env, a)

	case "add":
		if len(a) == 0 {
			ui.Fail(env.Err, "usage: dwntodo add <description...>")
			return ExitUsage
		}
		return doAdd(ctx, env, strings.Join(a, " "))

	case "done":
		if len(a) != 1 {
			ui.Fail(env.Err, "usage: dwntodo done <index>")
			return ExitUsage
		}
		n, err := strconv.Atoi(a[0])
		if err != nil {
			ui.Fail(env.Err, "done: not a number: "+a[0])
			return ExitUsage
		}
		return doToggle(ctx, env, n)

	case "edit":
		if len(a) < 2 {
			ui.Fail(env.Err, "usage: dwntodo edit <index> <description...>")
			return ExitUsage
		}
		n, err := strconv.Atoi(a[0])
		if err != nil {
			ui.Fail(env.Err, "edit: not a number: "+a[0])
			return ExitUsage
		}
		return doEdit(ctx, env, n, strings.Join(a[1:], " "))

	case "rm":
		if len(a) != 1 {
			ui.Fail(env.Err, "usage: dwntodo rm <index>")
			return ExitUsage
		}
		n, err := strconv.Atoi(a[0])
		if err != nil {
			ui.Fail(env.Err, "rm: not a number: "+a[0])
			return ExitUsage
		}
		return doRemove(ctx, env, n)

	case "id":
		return doIdentity(env, a)
	}

	ui.Fail(env.Err, "unknown subcommand: "+cmd)
	fmt.Fprintln(env.Err)
	PrintHelp(env.Err)
	return ExitUsage
}

func PrintHelp(w io.Writer) {
	fmt.Fprint(w, `dwntodo - a todo list kept in your Decentralized Web Node

Usage:
  dwntodo [flags] [subcommand] [args]

Subcommands:
  ls [--plain] [--group]   Open the list view (or print it with --plain)
  add <description...>     Add a todo
  done <index>             Toggle completion of the todo at a 1-based index
  edit <index> <text...>   Replace the description of a todo
  rm <index>               Delete a todo
  id show|status|new|path  Manage the local DID
  version                  Print the version

Examples:
  dwntodo add "Buy milk"
  dwntodo ls --plain
  dwntodo done 2
  dwntodo rm 3
`)
}

// connect loads or creates the identity and builds the backend.
func (env *Env) connect() (todo.Backend, *identity.Identity, error) {
	id, created, err := env.Identities.LoadOrCreate()
	if err != nil {
		return nil, nil, fmt.Errorf("identity: %w", err)
	}
	if created {
		env.Logger.Info("generated a new identity", "did", id.DID(), "path", env.Identities.Path())
	}
	if env.Connect != nil {
		backend, err := env.Connect(id)
		return backend, id, err
	}
	client, err := dwn.New(env.Config.Endpoint, id, dwn.WithTimeout(env.Config.Timeout))
	if err != nil {
		return nil, nil, err
	}
	return todo.NewController(client, env.Config.Schema, env.Config.DataFormat), id, nil
}

// fail prints err and maps it to an exit code.
func fail(env *Env, what string, err error) int {
	env.Logger.Error(what+" failed", "error", err)
	ui.Fail(env.Err, what+": "+err.Error())
	switch {
	case errors.Is(err, identity.ErrPassphraseRequired):
		ui.Hint(env.Err, "set DWNTODO_PASSPHRASE or pass --passphrase-prompt")
	case errors.Is(err, dwn.ErrUnauthorized):
		ui.Hint(env.Err, "the node does not accept this DID as tenant")
	}
	return ExitError
}

// -------------- subcommand impls ----------------

func doList(ctx context.Context, env *Env, args []string) int {
	fs := pflag.NewFlagSet("ls", pflag.ContinueOnError)
	fs.SetOutput(env.Err)
	plain := fs.Bool("plain", env.Plain, "print the list instead of opening the list view")
	group := fs.Bool("group", false, "group printed output by open/done")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}

	backend, id, err := env.connect()
	if err != nil {
		return fail(env, "connect", err)
	}
	if !*plain && env.Interactive != nil {
		if err := env.Interactive(ctx, backend, id.DID()); err != nil {
			return fail(env, "list view", err)
		}
		return ExitOK
	}

	items, err := backend.Fetch(ctx)
	if err != nil {
		return fail(env, "fetch", err)
	}
	ui.Panel(env.Out, listLines(items, *group, id))
	return ExitOK
}

func doAdd(ctx context.Context, env *Env, description string) int {
	description = strings.TrimSpace(description)
	if description == "" {
		ui.Fail(env.Err, "add: empty description")
		return ExitUsage
	}
	backend, _, err := env.connect()
	if err != nil {
		return fail(env, "connect", err)
	}
	created, err := backend.Create(ctx, model.Data{Description: description})
	if err != nil {
		return fail(env, "add", err)
	}
	env.Logger.Debug("record created", "id", created.ID)
	ui.OK(env.Out, "added")
	return ExitOK
}

// lookup fetches the list and resolves a 1-based index.
func lookup(ctx context.Context, env *Env, userIndex int) (todo.Backend, model.Todo, int) {
	backend, _, err := env.connect()
	if err != nil {
		return nil, model.Todo{}, fail(env, "connect", err)
	}
	items, err := backend.Fetch(ctx)
	if err != nil {
		return nil, model.Todo{}, fail(env, "fetch", err)
	}
	if userIndex < 1 || userIndex > len(items) {
		ui.Fail(env.Err, fmt.Sprintf("index out of range: have %d, got %d", len(items), userIndex))
		ui.Hint(env.Err, "run `dwntodo ls --plain` to see valid indexes")
		return nil, model.Todo{}, ExitUsage
	}
	return backend, items[userIndex-1], ExitOK
}

func doToggle(ctx context.Context, env *Env, userIndex int) int {
	backend, it, code := lookup(ctx, env, userIndex)
	if code != ExitOK {
		return code
	}
	it.Completed = !it.Completed
	if err := backend.Save(ctx, it.ID, it.Data()); err != nil {
		return fail(env, "save", err)
	}
	if it.Completed {
		ui.OK(env.Out, "done")
	} else {
		ui.OK(env.Out, "reopened")
	}
	return ExitOK
}

func doEdit(ctx context.Context, env *Env, userIndex int, description string) int {
	description = strings.TrimSpace(description)
	if description == "" {
		ui.Fail(env.Err, "edit: empty description")
		return ExitUsage
	}
	backend, it, code := lookup(ctx, env, userIndex)
	if code != ExitOK {
		return code
	}
	it.Description = description
	if err := backend.Save(ctx, it.ID, it.Data()); err != nil {
		return fail(env, "save", err)
	}
	ui.OK(env.Out, "updated")
	return ExitOK
}

func doRemove(ctx context.Context, env *Env, userIndex int) int {
	backend, it, code := lookup(ctx, env, userIndex)
	if code != ExitOK {
		return code
	}
	if err := backend.Delete(ctx, it.ID); err != nil {
		return fail(env, "rm", err)
	}
	ui.OK(env.Out, "removed")
	return ExitOK
}

// -------------- rendering helpers --------------

func listLines(items []model.Todo, group bool, id *identity.Identity) []string {
	t := ui.Current()
	done, open := stats(items)
	header := fmt.Sprintf("%s  %s %d  %s %d  %s %d",
		t.Title.Render("Todo List"),
		t.Success.Render(t.SymDone), done,
		t.Pending.Render(t.SymUnchecked), open,
		t.Accent.Render("Total"), len(items),
	)

	lines := []string{
		header,
		t.Muted.Render(ui.ProgressBar(done, done+open, 28)),
		"",
	}
	if group {
		lines = append(lines, groupLines(items)...)
	} else {
		lines = append(lines, flatLines(items, 0)...)
	}
	lines = append(lines, "", t.Muted.Render("DWN connected  "+id.Short()))
	return lines
}

func stats(items []model.Todo) (done, open int) {
	for _, it := range items {
		if it.Completed {
			done++
		} else {
			open++
		}
	}
	return
}

func flatLines(items []model.Todo, offset int) []string {
	t := ui.Current()
	if len(items) == 0 {
		return []string{t.Muted.Render("no todos")}
	}
	out := make([]string, 0, len(items))
	for i, it := range items {
		box := t.Muted.Render(t.BoxUnchecked)
		text := it.Description
		if len([]rune(text)) > 80 {
			text = string([]rune(text)[:77]) + "..."
		}
		if it.Completed {
			box = t.Success.Render(t.BoxChecked)
			text = t.Done.Render(text)
		}
		out = append(out, fmt.Sprintf("%s %s %s", t.Muted.Render(fmt.Sprintf("%2d.", offset+i+1)), box, text))
	}
	return out
}

// groupLines keeps the ls numbering so indexes still work with done/rm.
func groupLines(items []model.Todo) []string {
	t := ui.Current()
	var open, done []string
	for i, it := range items {
		line := flatLines([]model.Todo{it}, i)[0]
		if it.Completed {
			done = append(done, line)
		} else {
			open = append(open, line)
		}
	}
	section := func(title string, lines []string) []string {
		out := []string{t.Accent.Render(title)}
		if len(lines) == 0 {
			return append(out, t.Muted.Render("(none)"))
		}
		return append(out, lines...)
	}
	lines := section("Open", open)
	lines = append(lines, "")
	return append(lines, section("Done", done)...)
}
