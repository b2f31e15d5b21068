package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/desertthunder/offbeat/internal/formatter"
	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/player"
	"github.com/desertthunder/offbeat/internal/shared"
	"github.com/desertthunder/offbeat/internal/tasks"
	"github.com/gin-gonic/gin"
)

type playRequest struct {
	Tracks []models.Track `json:"tracks"`
	Index  *int           `json:"index"`
}

type repeatRequest struct {
	Mode string `json:"mode"`
}

type shuffleRequest struct {
	On bool `json:"on"`
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
	Muted  *bool    `json:"muted"`
}

type enqueueRequest struct {
	Kind     string          `json:"kind"`
	TargetID string          `json:"target_id"`
	Payload  json.RawMessage `json:"payload"`
}

// enqueueResponse reports the stored action; Action is nil when the enqueue cancelled a pending toggle.
type enqueueResponse struct {
	Action    *models.PendingAction `json:"action"`
	Cancelled bool                  `json:"cancelled"`
}

// syncResponse is the JSON view of a [tasks.CycleResult].
type syncResponse struct {
	Skipped   string   `json:"skipped,omitempty"`
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
	Dropped   []string `json:"dropped"`
	Aborted   bool     `json:"aborted"`
	Duration  string   `json:"duration"`
}

// detached keeps playback and sync running after the request that started them returns.
func detached(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abortWith(c, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return false
	}
	return true
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.player.State())
}

func (s *Server) handlePlay(c *gin.Context) {
	var req playRequest
	if !bind(c, &req) {
		return
	}
	ctx := detached(c)

	for _, t := range req.Tracks {
		if t.ID == "" {
			abortWith(c, fmt.Errorf("%w: every track needs an id", shared.ErrInvalidInput))
			return
		}
	}

	switch {
	case len(req.Tracks) > 0 && req.Index != nil:
		s.player.Play(ctx, req.Tracks...)
		fallthrough
	case req.Index != nil:
		state, err := s.player.PlayIndex(ctx, *req.Index)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, state)
	case len(req.Tracks) > 0:
		c.JSON(http.StatusOK, s.player.Play(ctx, req.Tracks...))
	default:
		c.JSON(http.StatusOK, s.player.Play(ctx))
	}
}

func (s *Server) handleToggle(c *gin.Context) {
	c.JSON(http.StatusOK, s.player.Toggle(detached(c)))
}

func (s *Server) handleNext(c *gin.Context) {
	c.JSON(http.StatusOK, s.player.Next(detached(c)))
}

func (s *Server) handlePrevious(c *gin.Context) {
	c.JSON(http.StatusOK, s.player.Previous(detached(c)))
}

func (s *Server) handleRepeat(c *gin.Context) {
	var req repeatRequest
	if !bind(c, &req) {
		return
	}
	mode, err := player.ParseRepeatMode(req.Mode)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, s.player.SetRepeat(mode))
}

func (s *Server) handleShuffle(c *gin.Context) {
	var req shuffleRequest
	if !bind(c, &req) {
		return
	}
	c.JSON(http.StatusOK, s.player.SetShuffle(req.On))
}

func (s *Server) handleVolume(c *gin.Context) {
	var req volumeRequest
	if !bind(c, &req) {
		return
	}
	if req.Volume == nil && req.Muted == nil {
		abortWith(c, fmt.Errorf("%w: volume or muted is required", shared.ErrMissingArgument))
		return
	}

	state := s.player.State()
	if req.Volume != nil {
		state = s.player.SetVolume(*req.Volume)
	}
	if req.Muted != nil {
		state = s.player.SetMuted(*req.Muted)
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleListActions(c *gin.Context) {
	format, err := formatter.ParseFormat(c.DefaultQuery("format", string(formatter.JSON)))
	if err != nil {
		abortWith(c, err)
		return
	}

	pending, err := s.queue.List(c.Request.Context())
	if err != nil {
		abortWith(c, err)
		return
	}

	data, err := formatter.FormatActions(format, pending)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.Data(http.StatusOK, format.ContentType(), data)
}

func (s *Server) handleEnqueue(c *gin.Context) {
	var req enqueueRequest
	if !bind(c, &req) {
		return
	}

	kind, err := models.ParseActionKind(req.Kind)
	if err != nil {
		abortWith(c, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}
	if len(req.Payload) == 0 || !json.Valid(req.Payload) {
		abortWith(c, fmt.Errorf("%w: payload must be a JSON value", shared.ErrInvalidInput))
		return
	}

	action, err := s.queue.Enqueue(c.Request.Context(), kind, req.TargetID, req.Payload)
	if err != nil {
		abortWith(c, err)
		return
	}
	if action == nil {
		c.JSON(http.StatusOK, enqueueResponse{Cancelled: true})
		return
	}
	c.JSON(http.StatusCreated, enqueueResponse{Action: action})
}

func (s *Server) handleSync(c *gin.Context) {
	if s.syncer == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody{Error: "sync is not running"})
		return
	}

	res, err := s.syncer.RunCycle(detached(c))
	if res == nil {
		abortWith(c, err)
		return
	}

	body := syncResponse{
		Skipped:   string(res.Skipped),
		Succeeded: nonNil(res.Succeeded),
		Failed:    nonNil(res.Failed),
		Dropped:   nonNil(res.Dropped),
		Aborted:   res.Aborted,
		Duration:  res.Duration.String(),
	}

	status := http.StatusOK
	switch {
	case res.Skipped == tasks.SkipBusy:
		status = http.StatusConflict
	case res.Aborted:
		status = http.StatusUnauthorized
	}
	c.JSON(status, body)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
