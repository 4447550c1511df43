package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/idilsaglam/dwntodo/internal/identity"
	"github.com/idilsaglam/dwntodo/internal/ui"
)

func doIdentity(env *Env, args []string) int {
	if len(args) == 0 {
		ui.Fail(env.Err, "usage: dwntodo id show|status|new|path")
		return ExitUsage
	}
	store := env.Identities

	switch args[0] {
	case "path":
		fmt.Fprintln(env.Out, store.Path())
		return ExitOK

	case "show":
		id, err := store.Load()
		if err != nil {
			if errors.Is(err, identity.ErrNoIdentity) {
				ui.Fail(env.Err, "no identity yet")
				ui.Hint(env.Err, "run `dwntodo id new`, or any command that talks to the node")
				return ExitError
			}
			return fail(env, "load identity", err)
		}
		fmt.Fprintln(env.Out, id.DID())
		return ExitOK

	case "status":
		id, err := store.Load()
		switch {
		case errors.Is(err, identity.ErrNoIdentity):
			ui.Hint(env.Out, "no identity stored at "+store.Path())
			return ExitOK
		case err != nil:
			return fail(env, "load identity", err)
		}
		lines := []string{
			"DID      " + id.Short(),
			"source   " + id.Source,
		}
		if id.Source == "file" {
			lines = append(lines, "path     "+store.Path())
		}
		if !id.CreatedAt.IsZero() {
			lines = append(lines, "created  "+id.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		lines = append(lines, "endpoint "+env.Config.Endpoint)
		ui.Panel(env.Out, lines)
		return ExitOK

	case "new":
		fs := pflag.NewFlagSet("id new", pflag.ContinueOnError)
		fs.SetOutput(env.Err)
		force := fs.BoolP("force", "f", false, "replace an existing identity")
		if err := fs.Parse(args[1:]); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				return ExitOK
			}
			return ExitUsage
		}
		existing, err := store.Load()
		switch {
		case err == nil && !*force:
			ui.Fail(env.Err, "an identity already exists")
			ui.Hint(env.Err, "pass --force to replace it; its todos stay with the old DID")
			return ExitUsage
		case err != nil && !errors.Is(err, identity.ErrNoIdentity) && !*force:
			return fail(env, "load identity", err)
		}
		if existing != nil && existing.Source == "env" {
			ui.Hint(env.Err, identity.EnvPrivateKey+" is set and overrides the stored identity")
		}
		if err := store.Delete(); err != nil {
			return fail(env, "remove identity", err)
		}
		id, err := identity.Generate()
		if err != nil {
			return fail(env, "generate identity", err)
		}
		if err := store.Save(id); err != nil {
			return fail(env, "save identity", err)
		}
		env.Logger.Info("identity replaced", "did", id.DID())
		ui.OK(env.Out, "new identity "+id.Short())
		return ExitOK
	}

	ui.Fail(env.Err, "unknown id subcommand: "+args[0])
	return ExitUsage
}
