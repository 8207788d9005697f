// Package httpapi implements the HTTP API gateway for ASECN.
//
// Security:
//   - Optional API key authentication on /v1 (constant-time comparison)
//   - Request body size limit (1 MB)
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/asecn/asecn/internal/affinity"
	"github.com/asecn/asecn/internal/observability"
	"github.com/asecn/asecn/internal/orchestrator"
	"github.com/asecn/asecn/internal/ratelimit"
	"github.com/asecn/asecn/internal/workflow"
)

const (
	defaultMaxRequestSize = 1 << 20 // 1 MB
	defaultWriteTimeout   = 11 * time.Minute
)

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr   string // e.g., ":8080"
	EnableDocs   bool
	APIKeys      []string           // Empty = /v1 is unauthenticated.
	ReadTimeout  time.Duration      // 0 = 30s.
	WriteTimeout time.Duration      // 0 = 11m; tasks run inside the request.
	RateLimiter  *ratelimit.Limiter // Per-key task submission limit. nil = unlimited.

	// Observability
	MetricsGatherer prometheus.Gatherer             // Registry served on MetricsPath. nil = no endpoint.
	MetricsPath     string                          // Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Backs /readyz.
	Metrics         *observability.MetricsCollector // HTTP middleware metrics.
	Tracer          trace.Tracer                    // HTTP middleware spans.
}

// TaskService runs tasks and exposes the live affinity map.
type TaskService interface {
	ExecuteTask(ctx context.Context, req orchestrator.TaskRequest) (*orchestrator.TaskResult, error)
	Snapshot() map[string]affinity.Metrics
}

// Deps are the gateway's collaborators. Only Tasks and Directory are required.
type Deps struct {
	Tasks     TaskService
	Directory *workflow.Directory
	Selector  *workflow.Selector // nil = /v1/workflows/select disabled.
	Store     TaskStore          // nil = task history endpoints disabled.
	Cron      CronJobs           // nil = cron job endpoints disabled.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config Config
	deps   Deps
	logger *slog.Logger
	server *http.Server

	okapi *okapi.Okapi
	group *okapi.Group
}

// NewGateway creates the gateway and registers every route.
func NewGateway(cfg Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if deps.Tasks == nil || deps.Directory == nil {
		return nil, fmt.Errorf("httpapi: task service and workflow directory are required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	g := &Gateway{
		config: cfg,
		deps:   deps,
		logger: logger,
		okapi:  okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
	g.routes()
	return g, nil
}

// WithHandler mounts an additional GET handler at pattern, outside /v1.
// Used for the WebSocket results endpoint.
func (g *Gateway) WithHandler(pattern string, handler http.Handler) *Gateway {
	g.okapi.HandleStd("GET", pattern, handler.ServeHTTP)
	return g
}

// ServeHTTP lets the gateway be used directly as an http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.okapi.ServeHTTP(w, r)
}

func (g *Gateway) routes() {
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.Use(observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer))
	}

	g.group = g.okapi.Group("/v1", g.authenticate)

	g.group.Post("/tasks", g.handleTaskSubmit,
		okapi.DocSummary("Execute a task through its workflow"),
		okapi.DocTags("Tasks"),
		okapi.DocRequestBody(TaskRequest{}),
		okapi.DocResponse(orchestrator.TaskResult{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusUnprocessableEntity, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Get("/affinity", g.handleAffinity,
		okapi.DocSummary("Current affinity metrics keyed by task description"),
		okapi.DocTags("Affinity"),
		okapi.DocResponse(map[string]affinity.Metrics{}),
	)
	g.group.Get("/workflows", g.handleWorkflows,
		okapi.DocSummary("List workflow definitions"),
		okapi.DocTags("Workflows"),
		okapi.DocResponse([]WorkflowResponse{}),
	)
	if g.deps.Selector != nil {
		g.group.Post("/workflows/select", g.handleWorkflowSelect,
			okapi.DocSummary("Select a workflow for a task description"),
			okapi.DocTags("Workflows"),
			okapi.DocRequestBody(SelectRequest{}),
			okapi.DocResponse(SelectResponse{}),
			okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		)
	}

	if g.deps.Store != nil {
		g.group.Get("/tasks", g.handleTaskList,
			okapi.DocSummary("List recent task results, newest first"),
			okapi.DocTags("Tasks"),
			okapi.DocResponse([]*orchestrator.TaskResult{}),
		)
		g.group.Get("/tasks/{id}", g.handleTaskGet,
			okapi.DocSummary("Get a recorded task result"),
			okapi.DocTags("Tasks"),
			okapi.DocPathParam("id", "string", "Task ID (UUID)"),
			okapi.DocResponse(orchestrator.TaskResult{}),
			okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		)
		g.group.Get("/affinity/latest", g.handleAffinityLatest,
			okapi.DocSummary("Most recently persisted affinity snapshot"),
			okapi.DocTags("Affinity"),
			okapi.DocResponse(map[string]affinity.Metrics{}),
		)
	}

	if g.deps.Cron != nil {
		g.group.Get("/cronjobs", g.handleCronJobList,
			okapi.DocSummary("List scheduled jobs"),
			okapi.DocTags("CronJobs"),
			okapi.DocResponse([]CronJobResponse{}),
		)
		g.group.Post("/cronjobs/{name}/trigger", g.handleCronJobTrigger,
			okapi.DocSummary("Run a scheduled job now"),
			okapi.DocTags("CronJobs"),
			okapi.DocPathParam("name", "string", "Job name"),
			okapi.DocResponse(orchestrator.TaskResult{}),
			okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
			okapi.DocResponse(http.StatusConflict, ErrorBody{}),
		)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsGatherer != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsGatherer, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.okapi.WithOpenAPIDocs(okapi.OpenAPI{
			Title:   "ASECN",
			Version: "v0.1.0",
		})
	}
}

// Start launches the HTTP server and blocks until it exits.
func (g *Gateway) Start(ctx context.Context) error {
	readTimeout := g.config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := g.config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.server.Shutdown(ctx)
}

// HealthResponse is the JSON response for /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the bearer API key when keys are configured and
// stores the caller's identity as "userID".
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		if len(g.config.APIKeys) == 0 {
			c.Set("userID", "anonymous")
			return next(c)
		}

		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		userID := ""
		for i, key := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				userID = fmt.Sprintf("key-%d", i)
			}
		}
		if userID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("userID", userID)
		return next(c)
	}
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
