// Package api exposes the conversion session over local HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ah-its-andy/sparkconvert/internal/converter"
	"github.com/ah-its-andy/sparkconvert/internal/db"
	"github.com/ah-its-andy/sparkconvert/internal/formats"
	"github.com/ah-its-andy/sparkconvert/internal/job"
	"github.com/ah-its-andy/sparkconvert/internal/livelog"
	"github.com/ah-its-andy/sparkconvert/internal/worker"
)

// UsageStore reads back usage and task history.
type UsageStore interface {
	CurrentStats(ctx context.Context) (db.Stats, error)
	ListTasks(ctx context.Context, status string, limit, offset int) ([]db.TaskHistory, int64, error)
}

// WatchState reports whether the watch folder is active.
type WatchState interface {
	Paused() bool
	Pause()
	Resume()
}

type Deps struct {
	Manager *job.Manager
	Router  *converter.Router
	Runner  *worker.Runner
	Logs    *livelog.Manager
	Store   UsageStore
	// Watch may be nil when no directories are watched.
	Watch WatchState
}

type Server struct {
	Router *gin.Engine
	deps   Deps
}

func NewServer(d Deps) *Server {
	g := gin.Default()
	s := &Server{Router: g, deps: d}

	api := g.Group("/api")
	api.GET("/formats", s.listFormats)
	api.GET("/strategies", s.listStrategies)

	api.POST("/jobs", s.submitJobs)
	api.GET("/jobs", s.listJobs)
	api.DELETE("/jobs", s.removeJobs)
	api.GET("/jobs/:id", s.getJob)
	api.DELETE("/jobs/:id", s.removeJob)
	api.PUT("/jobs/:id/target", s.setTarget)
	api.GET("/jobs/:id/output", s.downloadOutput)
	api.GET("/jobs/:id/log", s.getJobLog)
	api.GET("/logs/active", s.activeLogs)

	api.POST("/convert", s.convert)
	api.GET("/settings", s.getSettings)
	api.PUT("/settings", s.putSettings)

	api.GET("/stats", s.getStats)
	api.GET("/tasks", s.listTasks)
	api.POST("/watcher/pause", s.pauseWatcher)
	api.POST("/watcher/resume", s.resumeWatcher)

	return s
}

func (s *Server) listFormats(c *gin.Context) {
	c.JSON(http.StatusOK, formats.Table())
}

func (s *Server) listStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Router.Info())
}

func (s *Server) convert(c *gin.Context) {
	eligible := s.deps.Manager.Eligible()
	if c.Query("wait") == "true" {
		report, err := s.deps.Runner.Wait(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
		return
	}
	if !s.deps.Runner.Trigger() {
		writeError(c, worker.ErrStopped)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true, "eligible": eligible})
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Manager.Settings())
}

type settingsRequest struct {
	PreserveMetadata *bool   `json:"preserve_metadata"`
	Compression      *string `json:"compression"`
}

func (s *Server) putSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cur := s.deps.Manager.Settings()
	if req.PreserveMetadata != nil {
		cur.PreserveMetadata = *req.PreserveMetadata
	}
	if req.Compression != nil {
		level, err := converter.ParseCompression(*req.Compression)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cur.Compression = level
	}
	s.deps.Manager.SetSettings(cur)
	c.JSON(http.StatusOK, s.deps.Manager.Settings())
}

func (s *Server) getStats(c *gin.Context) {
	resp := gin.H{
		"jobs":     len(s.deps.Manager.List()),
		"eligible": s.deps.Manager.Eligible(),
		"worker":   s.deps.Runner.Status(),
	}
	if s.deps.Store != nil {
		st, err := s.deps.Store.CurrentStats(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		resp["usage"] = st
	}
	resp["watcher_state"] = s.watcherState()
	c.JSON(http.StatusOK, resp)
}

func (s *Server) watcherState() string {
	switch {
	case s.deps.Watch == nil:
		return "disabled"
	case s.deps.Watch.Paused():
		return "paused"
	default:
		return "running"
	}
}

func (s *Server) listTasks(c *gin.Context) {
	if s.deps.Store == nil {
		c.JSON(http.StatusOK, gin.H{"data": []db.TaskHistory{}, "total": 0})
		return
	}
	limit := parseIntDefault(c.Query("limit"), 100)
	offset := parseIntDefault(c.Query("offset"), 0)
	rows, total, err := s.deps.Store.ListTasks(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "total": total})
}

func (s *Server) pauseWatcher(c *gin.Context) {
	if s.deps.Watch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no watched directories"})
		return
	}
	s.deps.Watch.Pause()
	c.JSON(http.StatusOK, gin.H{"watcher_state": s.watcherState()})
}

func (s *Server) resumeWatcher(c *gin.Context) {
	if s.deps.Watch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no watched directories"})
		return
	}
	s.deps.Watch.Resume()
	c.JSON(http.StatusOK, gin.H{"watcher_state": s.watcherState()})
}

// writeError maps job and conversion errors to a status code.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var convErr *converter.Error
	switch {
	case errors.Is(err, job.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, job.ErrNotPending), errors.Is(err, job.ErrNoOutput):
		status = http.StatusConflict
	case errors.Is(err, worker.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	case errors.As(err, &convErr):
		status = http.StatusUnprocessableEntity
		c.JSON(status, gin.H{"error": err.Error(), "kind": convErr.Kind})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
