package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jkyin/quotio/internal/core"
	"github.com/jkyin/quotio/internal/events"
	"github.com/jkyin/quotio/internal/proxyctl"
)

// ServeOptions control the resident serve mode.
type ServeOptions struct {
	// Addr overrides the configured listen address.
	Addr string
	// ExitWithParent shuts the server down when the monitored parent
	// process dies. Implied when QUOTIO_MONITOR_PID is set.
	ExitWithParent bool
	// StopProxyOnExit also stops the worker during shutdown. By default
	// the worker keeps running and is re-adopted on the next run.
	StopProxyOnExit bool
}

// Router builds the control API. All state flows through the manager, the
// router itself is stateless and safe to rebuild.
func (m *Manager) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(requestLogger(), gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "port": m.Store.Port(core.DefaultPort)})
	})

	api := engine.Group("/api")
	{
		api.GET("/status", m.handleStatus)
		api.POST("/start", m.handleStart)
		api.POST("/stop", m.handleStop)
		api.POST("/restart", m.handleRestart)
		api.POST("/toggle", m.handleToggle)
		api.POST("/install", m.handleInstall)
		api.GET("/auth", m.handleAuthState)
		api.POST("/auth/:flow", m.handleAuth)
		api.GET("/events", m.handleEvents)
		api.GET("/logs", m.handleLogs)
		api.GET("/logs/stream", m.handleLogsStream)
	}

	return engine
}

// Serve runs the control API until ctx is cancelled or the parent process
// dies (when enabled). The worker keeps running across server restarts
// unless StopProxyOnExit is set.
func (m *Manager) Serve(ctx context.Context, opts ServeOptions) error {
	addr := opts.Addr
	if addr == "" {
		addr = core.GetManagerListenAddr()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if opts.ExitWithParent || os.Getenv(monitorPIDEnv) != "" {
		NewParentMonitor(cancel).Start(ctx)
	}
	m.watchWorkerConfig(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Control API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down control API")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Control API shutdown incomplete", "error", err)
	}

	if opts.StopProxyOnExit {
		if err := m.Supervisor.Stop(); err != nil {
			slog.Warn("Failed to stop worker during shutdown", "error", err)
		}
	}
	return nil
}

func (m *Manager) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, m.Status())
}

// Lifecycle handlers run on a background context: a dropped HTTP request
// must not abort a start confirmation or a half-finished download.
func (m *Manager) handleStart(c *gin.Context) {
	if err := m.Supervisor.Start(context.Background()); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, m.Status())
}

func (m *Manager) handleStop(c *gin.Context) {
	if err := m.Supervisor.Stop(); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, m.Status())
}

func (m *Manager) handleRestart(c *gin.Context) {
	if err := m.Supervisor.Restart(context.Background()); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, m.Status())
}

func (m *Manager) handleToggle(c *gin.Context) {
	if err := m.Supervisor.Toggle(context.Background()); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, m.Status())
}

func (m *Manager) handleInstall(c *gin.Context) {
	state, err := m.Installer.InstallLatest(context.Background())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (m *Manager) handleAuth(c *gin.Context) {
	flow, err := proxyctl.ParseAuthFlow(c.Param("flow"))
	if err != nil {
		writeErr(c, err)
		return
	}
	// The request context stays armed here: an abandoned sign-in request
	// should kill the login helper, nobody is waiting for its result.
	c.JSON(http.StatusOK, m.Auth.Run(c.Request.Context(), flow))
}

// handleAuthState reports each provider with its most recent session event,
// so a shell can render sign-in state without replaying the event log.
func (m *Manager) handleAuthState(c *gin.Context) {
	if m.Events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event log is not available"})
		return
	}
	last, err := m.Events.LastAuthEventPerFlow()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	byFlow := make(map[string]events.AuthEvent, len(last))
	for _, e := range last {
		byFlow[e.Flow] = e
	}

	flows := proxyctl.AuthFlows()
	states := make([]gin.H, 0, len(flows))
	for _, flow := range flows {
		state := gin.H{"flow": string(flow), "label": flow.Label()}
		if e, ok := byFlow[string(flow)]; ok {
			state["last_event"] = e.EventType
			state["details"] = e.Details
			state["timestamp"] = e.Timestamp
		}
		states = append(states, state)
	}
	c.JSON(http.StatusOK, gin.H{"flows": states})
}

func (m *Manager) handleEvents(c *gin.Context) {
	if m.Events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event log is not available"})
		return
	}
	limit := queryInt(c, "limit", 20)

	proxyEvents, err := m.Events.RecentProxyEvents(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	installEvents, err := m.Events.RecentInstallEvents(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	authEvents, err := m.Events.RecentAuthEvents(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"proxy":   proxyEvents,
		"install": installEvents,
		"auth":    authEvents,
	})
}

func (m *Manager) handleLogs(c *gin.Context) {
	lines := queryInt(c, "lines", 50)
	c.JSON(http.StatusOK, gin.H{"lines": m.Supervisor.Output.Recent(lines)})
}

// handleLogsStream replays recent worker output and then follows it live as
// plain text, one line per write, until the client goes away.
func (m *Manager) handleLogsStream(c *gin.Context) {
	lines := queryInt(c, "lines", 50)
	ch, history := m.Supervisor.Output.SubscribeWithHistory(lines)
	defer m.Supervisor.Output.Unsubscribe(ch)

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)

	for _, line := range history {
		fmt.Fprintln(c.Writer, line)
	}
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case line, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintln(c.Writer, line)
			c.Writer.Flush()
		}
	}
}

func writeErr(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// requestLogger logs one line per API request and propagates a request ID.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.Request.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-Id", requestID)

		c.Next()

		slog.Info("API request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).Truncate(time.Millisecond),
			"request_id", requestID)
	}
}
