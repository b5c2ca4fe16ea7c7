// Gateway is the single entrypoint for agent action requests. It authorizes
// each action against the session's declared intent, injects credentials
// server-side, dispatches to the matching connector, and appends an audit
// record for every call.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/edonhq/gateway/pkg/approvals"
	"github.com/edonhq/gateway/pkg/audit"
	"github.com/edonhq/gateway/pkg/auth"
	"github.com/edonhq/gateway/pkg/config"
	"github.com/edonhq/gateway/pkg/connectors"
	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/governor"
	egOtel "github.com/edonhq/gateway/pkg/otel"
	"github.com/edonhq/gateway/pkg/session"
	"github.com/edonhq/gateway/pkg/types"
)

const (
	maxBodyBytes    = 1 << 20 // 1 MB
	maxRateLimiters = 10_000
)

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_actions_total",
		Help: "Actions processed, by tool and audit status.",
	}, []string{"tool", "status"})
	executeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_execute_duration_seconds",
		Help:    "End-to-end latency of /execute calls.",
		Buckets: prometheus.DefBuckets,
	})
	refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_credential_refreshes_total",
		Help: "OAuth refresh attempts, by outcome.",
	}, []string{"outcome"})
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ── OpenTelemetry ────────────────────────────────────────────────────
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	otelShutdown, err := egOtel.Setup(ctx, egOtel.Config{
		ServiceName:    config.EnvOr("OTEL_SERVICE_NAME", "edon-gateway"),
		OTLPEndpoint:   otelEndpoint,
		MetricsEnabled: true,
		TracingEnabled: otelEndpoint != "",
	})
	if err != nil {
		log.Error("otel setup failed", "error", err)
	} else {
		defer otelShutdown(context.Background()) //nolint:errcheck // best-effort shutdown
	}

	// ── Postgres ─────────────────────────────────────────────────────────
	pool, err := pgxpool.New(ctx, buildPostgresDSN())
	if err != nil {
		log.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// ── Dependencies ─────────────────────────────────────────────────────
	auditStore := audit.NewStore(pool)
	auditLogger := audit.NewLogger(auditStore, log)
	credStore := credential.NewStore(pool)
	refresher := credential.NewRefresher(credStore)
	sessionStore := session.NewStore(pool)
	approvalsStore := approvals.NewStore(pool)
	keyStore := auth.NewKeyStore(os.Getenv("API_KEYS"))
	if keyStore.Len() == 0 {
		log.Warn("API_KEYS is empty, every request will be rejected")
	}

	reg := connectors.NewRegistry()
	reg.Register(connectors.NewBraveSearch())
	reg.Register(connectors.NewPolygon())
	reg.Register(connectors.NewFMP())
	reg.Register(connectors.NewNewsAPI())
	reg.Register(connectors.NewGemini())
	reg.Register(connectors.NewElevenLabs())
	reg.Register(connectors.NewGitHub())
	reg.Register(connectors.NewGmail())
	reg.Register(connectors.NewGoogleCalendar())
	reg.Register(connectors.NewHomeAssistant())
	reg.Register(connectors.NewClawdbot())

	gov := governor.New(governor.RiskPolicy{
		ConfirmOps: parseConfirmOps(config.EnvOr("CONFIRM_OPS", "gmail:send,github:create_issue")),
	})

	gw := &Gateway{
		log:            log,
		sessions:       sessionStore,
		governor:       gov,
		creds:          credStore,
		refresher:      refresher,
		connectors:     reg,
		audit:          auditLogger,
		auditReader:    auditStore,
		approvals:      approvalsStore,
		baseURL:        config.EnvOr("GATEWAY_BASE_URL", "http://localhost:8080"),
		rateLimiters:   make(map[string]*rate.Limiter),
		perTenantLimit: config.EnvOrInt("RATE_LIMIT_PER_TENANT", 100),
	}

	// ── Router ───────────────────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Logger)
	r.Use(auth.APIKeyAuth(keyStore))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Post("/execute", gw.HandleExecute)
	r.Post("/v1/sessions", gw.HandleDeclareSession)
	r.Post("/integrations/{tool}/connect", gw.HandleConnect)
	r.Get("/v1/audit/records/{record_id}", gw.HandleGetAuditRecord)
	approvals.NewHandlers(approvalsStore, log).Mount(r)

	// ── Metrics (internal) ───────────────────────────────────────────────
	metricsAddr := config.EnvOr("METRICS_ADDR", "127.0.0.1:9090")
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsMux,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	go func() {
		log.Info("metrics server starting", "addr", metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	// ── Server ───────────────────────────────────────────────────────────
	addr := config.EnvOr("GATEWAY_ADDR", ":8080")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("gateway starting", "addr", addr, "tools", reg.Tools())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gateway")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if err := metricsSrv.Shutdown(shutCtx); err != nil {
		log.Error("metrics server shutdown error", "error", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Gateway handler
// ──────────────────────────────────────────────────────────────────────────────

type Gateway struct {
	log            *slog.Logger
	sessions       gatewaySessions
	governor       gatewayGovernor
	creds          gatewayCredentials
	refresher      gatewayRefresher
	connectors     gatewayConnectors
	audit          gatewayAudit
	auditReader    gatewayAuditReader
	approvals      gatewayApprovals
	baseURL        string
	rateLimiters   map[string]*rate.Limiter
	rlOrder        []string
	rlMu           sync.Mutex
	perTenantLimit int
}

type gatewaySessions interface {
	Declare(ctx context.Context, tenantID, agentID string, intent types.Intent) (*types.Session, error)
	Active(ctx context.Context, tenantID, agentID string) (*types.Session, error)
}

type gatewayGovernor interface {
	Authorize(session *types.Session, action types.Action) governor.Decision
}

type gatewayCredentials interface {
	Resolve(ctx context.Context, tenantID, tool string) (credential.Resolved, error)
	Put(ctx context.Context, tenantID, tool string, cred credential.Credential) error
}

type gatewayRefresher interface {
	EnsureFresh(ctx context.Context, res credential.Resolved) (credential.Credential, error)
}

type gatewayConnectors interface {
	Lookup(tool string) (connectors.Connector, error)
	Dispatch(ctx context.Context, action types.Action, cred credential.Credential) (json.RawMessage, error)
}

type gatewayAudit interface {
	Record(ctx context.Context, rec *audit.Record) error
}

type gatewayAuditReader interface {
	GetRecord(ctx context.Context, recordID string) (*audit.Record, error)
}

type gatewayApprovals interface {
	Create(ctx context.Context, in approvals.CreateInput) (*approvals.Request, error)
	FindAndConsume(ctx context.Context, tenantID, agentID, tool, op string) (*approvals.Request, error)
}

// HandleExecute is POST /execute. Each step is a possible exit point, and
// every exit appends exactly one audit record with redacted params.
func (gw *Gateway) HandleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		types.ErrMalformedAction("invalid JSON body").WriteJSON(w)
		return
	}
	if err := req.Validate(); err != nil {
		writeGatewayError(w, err)
		return
	}
	tenantID := auth.TenantFromContext(ctx)
	if tenantID == "" {
		types.ErrUnauthorized("no tenant in request context").WriteJSON(w)
		return
	}
	if !gw.allowRate(tenantID) {
		types.ErrRateLimited().WriteJSON(w)
		return
	}

	sess, err := gw.sessions.Active(ctx, tenantID, req.AgentID)
	if err != nil {
		gw.log.ErrorContext(ctx, "session lookup failed", "error", err)
		types.ErrInternal("session lookup failed").WriteJSON(w)
		return
	}

	// Authorization is pure and runs before any credential is touched.
	decision := gw.governor.Authorize(sess, req.Action)
	switch decision.Verdict {
	case governor.VerdictDeny:
		gerr := types.ErrScopeDenied(decision.Reason)
		gw.writeAudit(ctx, tenantID, &req, audit.StatusDenied, gerr.Kind, start)
		writeGatewayError(w, gerr)
		return

	case governor.VerdictRequireApproval:
		grant, err := gw.approvals.FindAndConsume(ctx, tenantID, req.AgentID, req.Action.Tool, req.Action.Op)
		if err != nil {
			gw.log.ErrorContext(ctx, "grant lookup failed", "error", err)
			types.ErrInternal("approval lookup failed").WriteJSON(w)
			return
		}
		if grant == nil {
			ar, err := gw.approvals.Create(ctx, approvals.CreateInput{
				TenantID: tenantID,
				AgentID:  req.AgentID,
				Tool:     req.Action.Tool,
				Op:       req.Action.Op,
				Reason:   decision.Reason,
			})
			if err != nil {
				gw.log.ErrorContext(ctx, "create approval failed", "error", err)
				types.ErrInternal("approval creation failed").WriteJSON(w)
				return
			}
			recordID := gw.writeAudit(ctx, tenantID, &req, audit.StatusPendingApproval, "", start)
			writeJSONStatus(w, http.StatusAccepted, types.ExecuteResponse{
				RecordID:    recordID,
				Status:      "pending_approval",
				ApprovalID:  ar.ID,
				ApprovalURL: fmt.Sprintf("%s/v1/approvals/requests/%s", gw.baseURL, ar.ID),
				Reason:      decision.Reason,
			})
			return
		}
		// Grant consumed; fall through to execution.

	case governor.VerdictAllow:

	default:
		// Fail closed on anything unrecognized.
		gerr := types.ErrScopeDenied("unrecognized authorization verdict")
		gw.writeAudit(ctx, tenantID, &req, audit.StatusDenied, gerr.Kind, start)
		writeGatewayError(w, gerr)
		return
	}

	result, execErr := gw.execute(ctx, tenantID, req.Action)
	executeDuration.Observe(time.Since(start).Seconds())

	if execErr != nil {
		gw.writeAudit(ctx, tenantID, &req, audit.StatusFailed, result.ErrorKind, start)
		writeGatewayError(w, execErr)
		return
	}

	recordID := gw.writeAudit(ctx, tenantID, &req, audit.StatusSuccess, "", start)
	if recordID == "" {
		// Execution happened but the trail did not; surface it rather than
		// pretend the call is fully accounted for.
		types.ErrInternal("audit append failed after execution").WriteJSON(w)
		return
	}
	writeJSONStatus(w, http.StatusOK, types.ExecuteResponse{
		RecordID: recordID,
		Status:   result.Status,
		Data:     result.Data,
	})
}

// execute resolves and freshens the credential, then dispatches to the
// connector. Secrets stay inside this call; the result and error carry no
// credential material. The returned ExecutionResult is non-nil on both
// paths so the caller can audit the outcome uniformly.
func (gw *Gateway) execute(ctx context.Context, tenantID string, action types.Action) (*types.ExecutionResult, error) {
	start := time.Now()

	res, err := gw.creds.Resolve(ctx, tenantID, action.Tool)
	if err != nil {
		return failedResult(start, err), err
	}
	cred, err := gw.refresher.EnsureFresh(ctx, res)
	if err != nil {
		refreshesTotal.WithLabelValues("failure").Inc()
		return failedResult(start, err), err
	}
	if oa, ok := res.Credential.(*credential.OAuth); ok {
		if fresh, ok := cred.(*credential.OAuth); ok && fresh.AccessToken != oa.AccessToken {
			refreshesTotal.WithLabelValues("success").Inc()
		}
	}
	data, err := gw.connectors.Dispatch(ctx, action, cred)
	if err != nil {
		return failedResult(start, err), err
	}
	return &types.ExecutionResult{
		Status:     "success",
		Data:       data,
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}

func failedResult(start time.Time, err error) *types.ExecutionResult {
	gerr := types.AsGatewayError(err)
	return &types.ExecutionResult{
		Status:     "error",
		ErrorKind:  gerr.Kind,
		Error:      gerr.Message,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

// writeAudit appends the single audit record for this call. Params are
// redacted before the record is built. Returns the record ID, or "" when the
// append failed.
func (gw *Gateway) writeAudit(ctx context.Context, tenantID string, req *types.ExecuteRequest, status string, kind types.ErrorKind, start time.Time) string {
	rec := &audit.Record{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		AgentID:   req.AgentID,
		Tool:      req.Action.Tool,
		Op:        req.Action.Op,
		Params:    audit.RedactParams(req.Action.Params),
		Status:    status,
		ErrorKind: kind,
		LatencyMS: time.Since(start).Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
	actionsTotal.WithLabelValues(req.Action.Tool, status).Inc()
	if err := gw.audit.Record(ctx, rec); err != nil {
		gw.log.ErrorContext(ctx, "audit append failed",
			"record_id", rec.ID, "tenant_id", tenantID, "error", err)
		return ""
	}
	return rec.ID
}

// HandleDeclareSession is POST /v1/sessions. Declaring a new session replaces
// the agent's previous one; the intent itself is immutable once attached.
func (gw *Gateway) HandleDeclareSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req types.DeclareSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		types.ErrMalformedAction("invalid JSON body").WriteJSON(w)
		return
	}
	if req.AgentID == "" {
		types.ErrMalformedAction("agent_id is required").WriteJSON(w)
		return
	}
	tenantID := auth.TenantFromContext(ctx)
	if tenantID == "" {
		types.ErrUnauthorized("no tenant in request context").WriteJSON(w)
		return
	}

	sess, err := gw.sessions.Declare(ctx, tenantID, req.AgentID, req.Intent)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	gw.log.InfoContext(ctx, "session declared",
		"session_id", sess.ID, "tenant_id", tenantID, "agent_id", req.AgentID,
		"risk_level", string(req.Intent.RiskLevel))
	writeJSONStatus(w, http.StatusCreated, sess)
}

type connectRequest struct {
	Type       credential.Kind `json:"type"`
	Credential json.RawMessage `json:"credential"`
}

// HandleConnect is POST /integrations/{tool}/connect. It stores a credential
// for the authenticated tenant; the agent never sees it.
func (gw *Gateway) HandleConnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tool := strings.ToLower(chi.URLParam(r, "tool"))

	if _, err := gw.connectors.Lookup(tool); err != nil {
		writeGatewayError(w, err)
		return
	}
	tenantID := auth.TenantFromContext(ctx)
	if tenantID == "" {
		types.ErrUnauthorized("no tenant in request context").WriteJSON(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		types.ErrMalformedAction("invalid JSON body").WriteJSON(w)
		return
	}
	cred, err := credential.Unmarshal(req.Type, req.Credential)
	if err != nil {
		types.ErrMalformedAction("invalid credential payload").WriteJSON(w)
		return
	}
	if err := gw.creds.Put(ctx, tenantID, tool, cred); err != nil {
		gw.log.ErrorContext(ctx, "credential store failed", "tool", tool, "error", err)
		types.ErrInternal("credential store failed").WriteJSON(w)
		return
	}
	gw.log.InfoContext(ctx, "credential connected",
		"tenant_id", tenantID, "tool", tool, "type", string(req.Type))
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetAuditRecord is GET /v1/audit/records/{record_id}. Records are
// tenant-scoped; a record belonging to another tenant reads as absent.
func (gw *Gateway) HandleGetAuditRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID := chi.URLParam(r, "record_id")

	if _, err := uuid.Parse(recordID); err != nil {
		types.ErrMalformedAction("invalid record_id format").WriteJSON(w)
		return
	}
	rec, err := gw.auditReader.GetRecord(ctx, recordID)
	if err != nil {
		gw.log.ErrorContext(ctx, "audit record lookup failed", "record_id", recordID, "error", err)
		types.ErrInternal("audit record lookup failed").WriteJSON(w)
		return
	}
	if rec == nil || rec.TenantID != auth.TenantFromContext(ctx) {
		types.ErrNotFound("audit record").WriteJSON(w)
		return
	}
	writeJSONStatus(w, http.StatusOK, rec)
}

// ──────────────────────────────────────────────────────────────────────────────
// Rate limiting (bounded map with eviction)
// ──────────────────────────────────────────────────────────────────────────────

func (gw *Gateway) allowRate(tenantID string) bool {
	gw.rlMu.Lock()
	defer gw.rlMu.Unlock()

	lim, ok := gw.rateLimiters[tenantID]
	if ok {
		// Move to end of LRU order.
		for i, k := range gw.rlOrder {
			if k == tenantID {
				gw.rlOrder = append(gw.rlOrder[:i], gw.rlOrder[i+1:]...)
				break
			}
		}
		gw.rlOrder = append(gw.rlOrder, tenantID)
		return lim.Allow()
	}

	if len(gw.rateLimiters) >= maxRateLimiters {
		oldest := gw.rlOrder[0]
		gw.rlOrder = gw.rlOrder[1:]
		delete(gw.rateLimiters, oldest)
	}

	lim = rate.NewLimiter(rate.Limit(gw.perTenantLimit), gw.perTenantLimit*2)
	gw.rateLimiters[tenantID] = lim
	gw.rlOrder = append(gw.rlOrder, tenantID)
	return lim.Allow()
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

func writeGatewayError(w http.ResponseWriter, err error) {
	types.AsGatewayError(err).WriteJSON(w)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseConfirmOps parses "tool:op,tool:op" into the RiskPolicy map.
func parseConfirmOps(raw string) map[string][]string {
	out := make(map[string][]string)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			out[parts[0]] = append(out[parts[0]], parts[1])
		}
	}
	return out
}

func buildPostgresDSN() string {
	sslmode := config.EnvOr("POSTGRES_SSLMODE", "disable")
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(config.EnvOr("POSTGRES_USER", "edon"), config.EnvOr("POSTGRES_PASSWORD", "changeme")),
		Host:     net.JoinHostPort(config.EnvOr("POSTGRES_HOST", "localhost"), config.EnvOr("POSTGRES_PORT", "5432")),
		Path:     config.EnvOr("POSTGRES_DB", "edon"),
		RawQuery: "sslmode=" + url.QueryEscape(sslmode),
	}
	return u.String()
}
