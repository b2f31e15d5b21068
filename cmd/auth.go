package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/offbeat/internal/session"
	"github.com/desertthunder/offbeat/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin stores a bearer token in the session file.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	role, err := session.ParseRole(cmd.String("role"))
	if err != nil {
		return err
	}

	holder := session.New()
	holder.SetAccessToken(cmd.String("token"), role, cmd.Duration("ttl"))
	if !holder.Authenticated() {
		return fmt.Errorf("%w: token is empty or already expired", shared.ErrInvalidArgument)
	}

	if err := holder.Save(r.config.Session.Path); err != nil {
		return err
	}
	r.logger.Info("session saved", "path", r.config.Session.Path, "role", role)

	return r.writePlain("✓ Signed in as %s\n", role)
}

// AuthLogout removes the session file.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := session.Remove(r.config.Session.Path); err != nil {
		return err
	}
	return r.writePlain("✓ Signed out\n")
}

// AuthStatus reports the session, server reachability and the pending change count.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	r.writePlainHeader("offbeat status")

	if a.session.Authenticated() {
		r.writePlain("Session: ✓ Signed in (%s)\n", a.session.Role())
	} else {
		r.writePlain("Session: ✗ Not signed in\n")
	}

	if err := a.remote.Ping(ctx); err != nil {
		r.logger.Debug("ping failed", "error", err)
		if errors.Is(err, shared.ErrNetworkUnavailable) {
			r.writePlain("Server: ✗ Unreachable (%s)\n", a.remote.BaseURL())
		} else {
			r.writePlain("Server: ✗ %v\n", err)
		}
	} else {
		r.writePlain("Server: ✓ Reachable (%s)\n", a.remote.BaseURL())
	}

	n, err := a.queue.Len(ctx)
	if err != nil {
		return err
	}
	r.writePlain("Pending changes: %d\n", n)
	if a.store.Degraded() {
		r.writePlain("Storage: ✗ Memory only\n")
	}
	return nil
}
