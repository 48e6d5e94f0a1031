package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"calfilter/internal/apperr"
	"calfilter/internal/config"
	"calfilter/internal/group"
	appLog "calfilter/internal/log"
	"calfilter/internal/metrics"
	"calfilter/internal/model"
	"calfilter/internal/preview"
	"calfilter/internal/refresh"
	"calfilter/internal/workspace"
)

// Refresher triggers a feed refresh on demand. *refresh.Refresher implements it.
type Refresher interface {
	RunOnce(ctx context.Context) (refresh.Report, error)
	Next() time.Time
}

// Server provides the HTTP API over a workspace.
type Server struct {
	cfg       *config.Config
	ws        *workspace.Workspace
	refresher Refresher
	metrics   *metrics.Metrics
	engine    *gin.Engine
}

// NewServer constructs a new Server. refresher and m may be nil.
func NewServer(cfg *config.Config, ws *workspace.Workspace, refresher Refresher, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:       cfg,
		ws:        ws,
		refresher: refresher,
		metrics:   m,
		engine:    gin.New(),
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve listens on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.cfg.BasicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	// /health is always served without authentication.
	s.engine.GET("/health", s.handleHealth)

	protected := s.engine.Group("/")
	if s.cfg.BasicAuthEnabled() {
		protected.Use(gin.BasicAuthForRealm(gin.Accounts{
			s.cfg.BasicAuth.Username: s.cfg.BasicAuth.Password,
		}, "calfilter"))
	}

	if s.metrics != nil {
		protected.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := protected.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/categories", s.handleCategories)

		api.GET("/groups", s.handleListGroups)
		api.POST("/groups", s.handleCreateGroup)
		api.PUT("/groups/:id", s.handleRenameGroup)
		api.DELETE("/groups/:id", s.handleDeleteGroup)
		api.POST("/groups/:id/categories", s.handleAssign)

		api.GET("/rules", s.handleListRules)
		api.POST("/rules", s.handleCreateRule)
		api.DELETE("/rules/:id", s.handleDeleteRule)

		api.POST("/compile", s.handleCompile)
		api.POST("/mode-switch", s.handleModeSwitch)

		api.GET("/filters", s.handleListFilters)
		api.POST("/filters", s.handleSaveFilter)
		api.DELETE("/filters/:id", s.handleDeleteFilter)
		api.GET("/filters/:id/events", s.handleFilterEvents)

		api.POST("/refresh", s.handleRefresh)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		appLog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// writeError maps err onto a status code: validation 400, not found 404,
// anything else 500.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		appLog.Error("api request failed", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, gin.H{"error": apperr.KindOf(err).String(), "message": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": apperr.KindValidation.String(), "message": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

type statusResponse struct {
	workspace.Status
	NextRefresh *time.Time `json:"next_refresh,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{Status: s.ws.Status()}
	if s.refresher != nil {
		if next := s.refresher.Next(); !next.IsZero() {
			resp.NextRefresh = &next
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCategories(c *gin.Context) {
	c.JSON(http.StatusOK, s.ws.Categories(c.Query("q")))
}

type groupRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListGroups(c *gin.Context) {
	c.JSON(http.StatusOK, s.ws.Groups())
}

func (s *Server) handleCreateGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := s.ws.CreateGroup(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (s *Server) handleRenameGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := s.ws.RenameGroup(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) handleDeleteGroup(c *gin.Context) {
	if err := s.ws.DeleteGroup(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type assignRequest struct {
	Categories []string `json:"categories"`
	Mode       string   `json:"mode"`
}

// handleAssign adds categories to the group in the path. With mode
// "unassign" the categories are removed from every group instead.
func (s *Server) handleAssign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mode, err := group.ParseAssignMode(req.Mode)
	if err != nil {
		writeError(c, err)
		return
	}
	changed, err := s.ws.AssignCategories(c.Request.Context(), c.Param("id"), req.Categories, mode)
	if err != nil {
		writeError(c, err)
		return
	}
	if changed == nil {
		changed = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode, "changed": changed})
}

func (s *Server) handleListRules(c *gin.Context) {
	if gid := c.Query("group"); gid != "" {
		c.JSON(http.StatusOK, s.ws.RulesFor(gid))
		return
	}
	c.JSON(http.StatusOK, s.ws.Rules())
}

func (s *Server) handleCreateRule(c *gin.Context) {
	var req model.AssignmentRule
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.ID = ""
	rule, res, err := s.ws.CreateRule(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	if res.AssignedCategories == nil {
		res.AssignedCategories = []string{}
	}
	c.JSON(http.StatusCreated, gin.H{"rule": rule, "result": res})
}

func (s *Server) handleDeleteRule(c *gin.Context) {
	if err := s.ws.DeleteRule(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type compileRequest struct {
	Selection model.Selection `json:"selection"`
	GroupBy   string          `json:"group_by"`
	Order     string          `json:"order"`
}

func parseProjection(groupBy, order string) (preview.GroupKey, preview.Order, error) {
	key, err := preview.ParseGroupKey(groupBy)
	if err != nil {
		return "", "", err
	}
	ord, err := preview.ParseOrder(order)
	if err != nil {
		return "", "", err
	}
	return key, ord, nil
}

func (s *Server) handleCompile(c *gin.Context) {
	var req compileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	key, ord, err := parseProjection(req.GroupBy, req.Order)
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := s.ws.Preview(req.Selection, key, ord)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type modeSwitchRequest struct {
	Selection model.Selection `json:"selection"`
	// Query is the search text of the category view at the time of the switch.
	Query string `json:"query"`
	// All complements over every category instead of the visible ones.
	All bool `json:"all"`
}

func (s *Server) handleModeSwitch(c *gin.Context) {
	var req modeSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := model.ParseMode(string(req.Selection.Mode)); err != nil {
		badRequest(c, err)
		return
	}
	if req.All {
		c.JSON(http.StatusOK, s.ws.Complement(req.Selection))
		return
	}
	c.JSON(http.StatusOK, s.ws.SwitchMode(req.Selection, req.Query))
}

type saveFilterRequest struct {
	Name      string          `json:"name"`
	Selection model.Selection `json:"selection"`
}

func (s *Server) handleListFilters(c *gin.Context) {
	filters, err := s.ws.Filters(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, filters)
}

func (s *Server) handleSaveFilter(c *gin.Context) {
	var req saveFilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	f, err := s.ws.SaveFilter(c.Request.Context(), req.Name, req.Selection)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (s *Server) handleDeleteFilter(c *gin.Context) {
	if err := s.ws.DeleteFilter(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleFilterEvents re-applies a saved filter.
//
// GET /api/filters/:id/events?group_by=month&order=desc
func (s *Server) handleFilterEvents(c *gin.Context) {
	key, ord, err := parseProjection(c.Query("group_by"), c.Query("order"))
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := s.ws.FilterPreview(c.Request.Context(), c.Param("id"), key, ord)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleRefresh(c *gin.Context) {
	if s.refresher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refresh unavailable"})
		return
	}
	rep, err := s.refresher.RunOnce(c.Request.Context())
	if errors.Is(err, refresh.ErrNoFeeds) {
		badRequest(c, err)
		return
	}
	if err != nil {
		appLog.Error("manual refresh failed", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "refresh failed", "message": err.Error(), "report": rep})
		return
	}
	c.JSON(http.StatusOK, rep)
}
