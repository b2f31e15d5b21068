package main

import (
	"context"

	"github.com/desertthunder/offbeat/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the control server with background sync until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	host := cmd.String("host")
	if host == "" {
		host = r.config.Server.Host
	}
	port := cmd.Int("port")
	if port == 0 {
		port = r.config.Server.Port
	}

	a, err := r.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	engine := r.engine(a)
	defer engine.Close()

	a.probe.Start()
	a.sync.Start(ctx)

	srv := server.New(server.Options{
		Player:        engine,
		Queue:         a.queue,
		Syncer:        a.sync,
		Notifications: a.notifications,
		Logger:        r.logger,
	})
	return srv.ListenAndServe(ctx, server.Addr(host, port))
}
