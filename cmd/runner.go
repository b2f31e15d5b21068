package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/offbeat/internal/actions"
	"github.com/desertthunder/offbeat/internal/library"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/player"
	"github.com/desertthunder/offbeat/internal/repositories"
	"github.com/desertthunder/offbeat/internal/services"
	"github.com/desertthunder/offbeat/internal/session"
	"github.com/desertthunder/offbeat/internal/shared"
	"github.com/desertthunder/offbeat/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	transport  player.Transport
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Transport  player.Transport // nil plays through the speaker
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		transport:  opts.Transport,
	}
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, playCommand, tuiCommand, syncCommand, queueCommand,
		likeCommand, followCommand, playlistCommand, lyricsCommand, importCommand, watchCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// app is the wired core shared by the commands.
type app struct {
	sqlite        *repositories.SQLiteStore
	store         *repositories.FallbackStore
	session       *session.Holder
	remote        *services.APIService
	probe         *tasks.ProbeMonitor
	queue         *actions.Queue
	playlists     *repositories.PlaylistRepository
	lyrics        *repositories.LyricsRepository
	uploads       *repositories.UploadRepository
	history       *repositories.HistoryRepository
	library       *library.Library
	sync          *tasks.SyncService
	notifications *notify.Broadcaster
}

// open wires the local store, session, remote client, queue, library and sync service.
//
// A database that cannot be opened degrades to memory rather than failing the command.
func (r *Runner) open(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*app, error) {
	cfg := r.config
	a := &app{notifications: notify.NewBroadcaster(notify.NewLogNotifier(r.logger))}

	var primary repositories.Store
	if sqlite, err := repositories.OpenSQLiteStore(cfg.Database.Path); err != nil {
		r.logger.Warn("failed to open database", "path", cfg.Database.Path, "error", err)
	} else {
		shared.ConfigureDatabase(sqlite.DB(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		a.sqlite = sqlite
		primary = sqlite
	}
	a.store = repositories.NewFallbackStore(primary, a.notifications, r.logger)

	holder, err := session.Load(cfg.Session.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	holder.OnClear(func() {
		if err := session.Remove(cfg.Session.Path); err != nil {
			r.logger.Warn("failed to remove session file", "error", err)
		}
	})
	a.session = holder

	a.remote = services.NewAPIServiceFromConfig(cfg.Remote, holder.TokenSource())
	a.probe = tasks.NewProbeMonitor(a.remote, nil, cfg.Sync.ProbeInterval.Duration, r.logger)
	a.queue = actions.NewQueue(a.store, r.logger)
	a.playlists = repositories.NewPlaylistRepository(a.store)
	a.lyrics = repositories.NewLyricsRepository(a.store)
	a.uploads = repositories.NewUploadRepository(a.store)
	a.history = repositories.NewHistoryRepository(a.store)

	a.library = library.New(library.Options{
		Queue:        a.queue,
		Remote:       a.remote,
		Session:      holder,
		Connectivity: a.probe,
		Playlists:    a.playlists,
		Lyrics:       a.lyrics,
		Uploads:      a.uploads,
		Notifier:     a.notifications,
		Logger:       r.logger,
	})
	if err := a.library.Warm(ctx); err != nil {
		r.logger.Warn("failed to restore pending library state", "error", err)
	}

	a.sync = tasks.NewSyncService(tasks.Options{
		Queue:        a.queue,
		Remote:       a.remote,
		Session:      holder,
		Connectivity: a.probe,
		Playlists:    a.playlists,
		Lyrics:       a.lyrics,
		Uploads:      a.uploads,
		Rollback:     a.library,
		Notifier:     a.notifications,
		Logger:       r.logger,
		Config:       cfg.Sync,
		Progress:     progress,
	})

	return a, nil
}

// Close stops background work and releases the database.
func (a *app) Close() {
	if a.sync != nil {
		a.sync.Stop()
	}
	if a.probe != nil {
		a.probe.Stop()
	}
	if a.sqlite != nil {
		a.sqlite.Close()
	}
}

// engine creates a playback engine over the configured transport.
func (r *Runner) engine(a *app) *player.Engine {
	transport := r.transport
	if transport == nil {
		speaker, err := player.NewSpeakerTransport(r.httpClient)
		if err != nil {
			r.logger.Warn("audio output unavailable, playing silently", "error", err)
			transport = player.NullTransport{}
		} else {
			transport = speaker
		}
	}

	repeat, err := player.ParseRepeatMode(r.config.Player.Repeat)
	if err != nil {
		r.logger.Warn("ignoring repeat setting", "error", err)
		repeat = player.RepeatNone
	}

	return player.NewEngine(player.Options{
		Transport: transport,
		Resolver:  player.NewStoreResolver(a.uploads, player.NewFileHandleFactory(r.config.Player.TempDir)),
		History:   a.history,
		Remote:    a.remote,
		Session:   a.session,
		Notifier:  a.notifications,
		Logger:    r.logger,
		Volume:    r.config.Player.Volume,
		Repeat:    repeat,
		Shuffle:   r.config.Player.Shuffle,
	})
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
