// Package httpapi exposes an admin/control-plane HTTP surface over the
// interpreter runtime: start an execution, read a snapshot, resume a failed
// or crashed one, and liveness/metrics endpoints.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flatagents/flatagents/machine"
	"github.com/flatagents/flatagents/telemetry"
)

// Runner is the subset of machine execution control the server needs,
// satisfied by a thin wrapper around machine.Interpreter plus a machine
// registry (launch.Registry). Declared locally to keep httpapi decoupled
// from how the caller wires interpreters/registries together.
type Runner interface {
	// Start begins a new execution of machineName. If executionID is
	// empty, the runner mints a fresh one (the common case); a caller that
	// already minted an id upstream (e.g. a WebhookInvoker request
	// carrying one from the launching parent's outbox) passes it through
	// so the parent's later result read matches.
	Start(ctx context.Context, machineName string, input map[string]any, executionID machine.ExecutionId) (*machine.Snapshot, error)
	Resume(ctx context.Context, executionID machine.ExecutionId) (*machine.Snapshot, error)
	Snapshot(ctx context.Context, executionID machine.ExecutionId) (*machine.Snapshot, error)
}

// Server wires a Runner, logger, and metrics registry into a gin.Engine.
type Server struct {
	Runner  Runner
	Logger  zerolog.Logger
	Metrics *telemetry.Metrics

	engine *gin.Engine
}

// NewServer builds the gin engine and registers routes. gin runs in release
// mode unless its mode is already something other than debug.
func NewServer(runner Runner, logger zerolog.Logger, metrics *telemetry.Metrics) *Server {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{Runner: runner, Logger: logger, Metrics: metrics}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

// Handler returns the http.Handler to mount on an *http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	v1 := s.engine.Group("/v1")
	v1.POST("/executions", s.handleStart)
	v1.GET("/executions/:id", s.handleGetSnapshot)
	v1.POST("/executions/:id/resume", s.handleResume)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type startRequest struct {
	Machine     string         `json:"machine" binding:"required"`
	Input       map[string]any `json:"input"`
	ExecutionID string         `json:"execution_id"`
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request: " + err.Error()})
		return
	}

	snap, err := s.Runner.Start(c.Request.Context(), req.Machine, req.Input, machine.ExecutionId(req.ExecutionID))
	if err != nil {
		s.respondMachineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, snapshotView(snap))
}

func (s *Server) handleGetSnapshot(c *gin.Context) {
	id := machine.ExecutionId(c.Param("id"))
	snap, err := s.Runner.Snapshot(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "execution not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshotView(snap))
}

func (s *Server) handleResume(c *gin.Context) {
	id := machine.ExecutionId(c.Param("id"))
	snap, err := s.Runner.Resume(c.Request.Context(), id)
	if err != nil {
		s.respondMachineError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshotView(snap))
}

func (s *Server) respondMachineError(c *gin.Context, err error) {
	if me, ok := err.(*machine.Error); ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": me.Message,
			"type":    me.Type,
			"code":    me.Code,
			"state":   me.State,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
}

func snapshotView(snap *machine.Snapshot) gin.H {
	return gin.H{
		"execution_id":   snap.ExecutionId,
		"machine_name":   snap.MachineName,
		"current_state":  snap.CurrentState,
		"step":           snap.Step,
		"event":          snap.Event,
		"context":        snap.Context,
		"output":         snap.Output,
	}
}

// NewExecutionId is a convenience re-export so httpapi callers building a
// Runner don't need their own import of the machine package just to mint
// ids for WebhookInvoker-style flows.
func NewExecutionId() machine.ExecutionId {
	return machine.ExecutionId(uuid.NewString())
}
