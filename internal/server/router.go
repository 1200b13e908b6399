// Package server exposes the embeddable HTTP control API for a supervised
// game server.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	mng "github.com/loykin/craftherd/internal/manager"
	"github.com/loykin/craftherd/internal/restart"
	"github.com/loykin/craftherd/internal/supervisor"
)

// Router provides embeddable HTTP handlers for one supervised server.
// Endpoints:
//
//	GET  {basePath}/status       composite server/policy/roster snapshot
//	GET  {basePath}/roster       player count and names
//	GET  {basePath}/autorestart  current auto-restart policy and counter
//	PUT  {basePath}/autorestart  body: restart.Config JSON
//	POST {basePath}/start        body: LaunchParams JSON (all fields optional)
//	POST {basePath}/stop         graceful shutdown
//	POST {basePath}/kill         forceful termination
//	POST {basePath}/command      body: {"command": "..."}
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *mng.Manager
	basePath string
}

// NewRouter constructs a Router with a configurable basePath. Example
// basePath "/craftherd" results in /craftherd/status, /craftherd/start, etc.
func NewRouter(mgr *mng.Manager, basePath string) *Router {
	return &Router{mgr: mgr, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/roster", r.handleRoster)
	group.GET("/autorestart", r.handleGetAutoRestart)
	group.PUT("/autorestart", r.handlePutAutoRestart)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/kill", r.handleKill)
	group.POST("/command", r.handleCommand)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router. Shut
// it down via http.Server's Close or Shutdown.
func NewServer(addr, basePath string, mgr *mng.Manager) (*http.Server, error) {
	r := NewRouter(mgr, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.Status())
}

func (r *Router) handleRoster(c *gin.Context) {
	count, names := r.mgr.Roster()
	writeJSON(c, http.StatusOK, gin.H{"count": count, "names": names})
}

func (r *Router) handleGetAutoRestart(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.AutoRestart())
}

func (r *Router) handlePutAutoRestart(c *gin.Context) {
	var cfg restart.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.mgr.SetAutoRestart(cfg); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, r.mgr.AutoRestart())
}

func (r *Router) handleStart(c *gin.Context) {
	var p supervisor.LaunchParams
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&p); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	if !isSafeAbsPath(p.TargetPath) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid target_path: must be absolute path without traversal"})
		return
	}
	if err := r.mgr.Start(p); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.mgr.Stop(); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleKill(c *gin.Context) {
	if err := r.mgr.Kill(); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Command == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "command required"})
		return
	}
	if err := r.mgr.SendCommand(req.Command); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning), errors.Is(err, supervisor.ErrNotRunning):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
