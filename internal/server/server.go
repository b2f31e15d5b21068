package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/offbeat/internal/actions"
	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/player"
	"github.com/desertthunder/offbeat/internal/shared"
	"github.com/desertthunder/offbeat/internal/tasks"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

// Player is the part of the playback engine the server drives.
type Player interface {
	State() player.State
	Play(ctx context.Context, tracks ...models.Track) player.State
	PlayIndex(ctx context.Context, i int) (player.State, error)
	Toggle(ctx context.Context) player.State
	Next(ctx context.Context) player.State
	Previous(ctx context.Context) player.State
	SetRepeat(mode player.RepeatMode) player.State
	SetShuffle(on bool) player.State
	SetVolume(v float64) player.State
	SetMuted(muted bool) player.State
	Subscribe() *player.Subscription
}

// Options configures a [Server]. Player and Queue are required.
type Options struct {
	Player        Player
	Queue         *actions.Queue
	Syncer        tasks.Syncer
	Notifications *notify.Broadcaster
	Logger        *log.Logger
}

// Server is the local control API.
type Server struct {
	player        Player
	queue         *actions.Queue
	syncer        tasks.Syncer
	notifications *notify.Broadcaster
	logger        *log.Logger
	engine        *gin.Engine
	hub           *hub
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	logger = shared.WithLogger(logger, "component", "server")

	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(logger))

	s := &Server{
		player:        opts.Player,
		queue:         opts.Queue,
		syncer:        opts.Syncer,
		notifications: opts.Notifications,
		logger:        logger,
		engine:        engine,
		hub:           newHub(logger),
	}
	s.routes()
	return s
}

// Use adds middleware to routes registered afterwards.
func (s *Server) Use(middleware ...Middleware) {
	s.engine.Use(middleware...)
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Addr joins a host and port.
func Addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down and closes websocket clients.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.hub.closeAll()
		return err
	case <-ctx.Done():
	}

	s.hub.closeAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
