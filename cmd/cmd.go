// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func formatFlags(usage string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: " + usage,
			Value:   "text",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write to a file instead of stdout",
		},
	}
}

// setupCommand handles setup operations for the local store.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand manages the persisted session.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Store a bearer token for the music API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "token",
						Aliases:  []string{"t"},
						Usage:    "Access token",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "role",
						Usage: "Account role (user or admin)",
						Value: "user",
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Token lifetime, 0 never expires",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored session",
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "Show session, server reachability and pending changes",
				Action: r.AuthStatus,
			},
		},
	}
}

// playCommand plays files, urls or imported tracks.
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Play mp3 files, stream urls or imported track ids",
		ArgsUsage: "<path|url|id>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "shuffle",
				Usage: "Shuffle the queue",
			},
			&cli.StringFlag{
				Name:  "repeat",
				Usage: "Repeat mode: none, all or one",
			},
		},
		Action: r.Play,
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "tui",
		Aliases:   []string{"interactive", "ui"},
		Usage:     "Launch the interactive player",
		ArgsUsage: "[path|url|id]...",
		Action:    r.TUI,
	}
}

// syncCommand handles reconciliation with the server.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Reconcile local changes with the server",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run one sync cycle",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SyncRun,
			},
			{
				Name:   "daemon",
				Usage:  "Sync on a schedule and on reconnect until interrupted",
				Action: r.SyncDaemon,
			},
		},
	}
}

// queueCommand inspects the pending action queue.
func queueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Inspect changes waiting for the server",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List pending actions",
				Flags:  formatFlags("text, csv, md or json"),
				Action: r.QueueList,
			},
			{
				Name:   "clear",
				Usage:  "Discard every pending action",
				Action: r.QueueClear,
			},
			{
				Name:   "drain",
				Usage:  "Replay pending actions in order without batching",
				Action: r.QueueDrain,
			},
		},
	}
}

func likeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "like",
		Usage: "Toggle a like",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "type",
				Usage: "Item type: song, album or playlist",
				Value: "song",
			},
		},
		Action: r.Like,
	}
}

func followCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "follow",
		Usage: "Toggle following an artist",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "artist"},
		},
		Action: r.Follow,
	}
}

// playlistCommand handles playlist operations.
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlist",
		Aliases: []string{"pl"},
		Usage:   "Playlist operations",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "name"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "description",
						Usage: "Playlist description",
					},
					&cli.BoolFlag{
						Name:  "public",
						Usage: "Make the playlist public",
					},
					&cli.StringSliceFlag{
						Name:  "track",
						Usage: "Track id to include (repeatable)",
					},
				},
				Action: r.PlaylistCreate,
			},
			{
				Name:  "rename",
				Usage: "Rename a playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "name"},
				},
				Action: r.PlaylistRename,
			},
			{
				Name:  "delete",
				Usage: "Delete a playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.PlaylistDelete,
			},
			{
				Name:  "visibility",
				Usage: "Set playlist visibility",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "public",
						Usage: "Make the playlist public; omit for private",
					},
				},
				Action: r.PlaylistVisibility,
			},
			{
				Name:   "list",
				Usage:  "List playlists, from the server when reachable",
				Flags:  formatFlags("text, csv, md or json"),
				Action: r.PlaylistList,
			},
		},
	}
}

// lyricsCommand handles lyrics operations.
func lyricsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "lyrics",
		Usage: "Lyrics operations",
		Commands: []*cli.Command{
			{
				Name:  "upload",
				Usage: "Upload lyrics for a song (admin)",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "song"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "Read lyrics from a file",
					},
					&cli.StringFlag{
						Name:  "text",
						Usage: "Lyrics text",
					},
					&cli.StringFlag{
						Name:  "language",
						Usage: "Language code",
					},
				},
				Action: r.LyricsUpload,
			},
			{
				Name:  "show",
				Usage: "Print lyrics for a song",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "song"},
				},
				Action: r.LyricsShow,
			},
		},
	}
}

func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import mp3 files into the local library",
		ArgsUsage: "<file>...",
		Action:    r.Import,
	}
}

func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Import mp3 files as they appear in a directory",
		ArgsUsage: "[dir]",
		Action:    r.Watch,
	}
}

// serveCommand runs the control server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP and websocket control server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port",
			},
		},
		Action: r.Serve,
	}
}
