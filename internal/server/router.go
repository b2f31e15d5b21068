package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/offbeat/internal/shared"
	"github.com/gin-gonic/gin"
)

// Middleware wraps request handling. Call c.Next to continue the chain.
type Middleware = gin.HandlerFunc

// RequestLogger logs method, path, status and latency for every request.
func RequestLogger(logger *log.Logger) Middleware {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		kv := []any{"method", c.Request.Method, "path", c.Request.URL.Path, "status", status, "latency", time.Since(start)}
		switch {
		case status >= 500:
			logger.Error("request", kv...)
		case status >= 400:
			logger.Warn("request", kv...)
		default:
			logger.Debug("request", kv...)
		}
	}
}

func (s *Server) routes() {
	api := s.engine.Group("/api")

	api.GET("/state", s.handleState)
	api.POST("/play", s.handlePlay)
	api.POST("/toggle", s.handleToggle)
	api.POST("/next", s.handleNext)
	api.POST("/previous", s.handlePrevious)
	api.PUT("/repeat", s.handleRepeat)
	api.PUT("/shuffle", s.handleShuffle)
	api.PUT("/volume", s.handleVolume)

	api.GET("/actions", s.handleListActions)
	api.POST("/actions", s.handleEnqueue)
	api.POST("/sync", s.handleSync)

	s.engine.GET("/ws", s.ServeWS)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// statusOf maps the shared error taxonomy onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrMissingArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), errorBody{Error: err.Error()})
}
