package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/retainly/internal/cache"
	"github.com/retainly/internal/health"
	"github.com/retainly/pkg/models"
)

const defaultHistoryLimit = 12

// Cache helpers. Failures degrade to the backing store; a miss is
// never an error to the caller.

func (g *Gateway) cacheGet(ctx context.Context, key string, target interface{}) bool {
	if g.cache == nil {
		return false
	}
	hit, err := g.cache.Get(ctx, key, target)
	if err != nil {
		log.Printf("Cache read failed for %s: %v", key, err)
		return false
	}
	return hit
}

func (g *Gateway) cacheSet(ctx context.Context, key string, value interface{}) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, key, value, 0); err != nil {
		log.Printf("Cache write failed for %s: %v", key, err)
	}
}

func (g *Gateway) cacheDelete(ctx context.Context, key string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Delete(ctx, key); err != nil {
		log.Printf("Cache delete failed for %s: %v", key, err)
	}
}

// Profile handlers

func (g *Gateway) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := g.profiles.ListProfiles(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, profiles, &APIMeta{Total: len(profiles)})
}

func (g *Gateway) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var profile models.RetentionProfile
	if err := parseRequestBody(r, &profile); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}

	if err := g.profiles.SaveProfile(r.Context(), &profile); err != nil {
		writeDomainError(w, err)
		return
	}
	g.cacheDelete(r.Context(), cache.ProfileKey(profile.VerticalID))
	writeSuccessResponse(w, profile, nil)
}

func (g *Gateway) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	verticalID := mux.Vars(r)["verticalId"]

	var cached models.RetentionProfile
	if g.cacheGet(r.Context(), cache.ProfileKey(verticalID), &cached) {
		writeSuccessResponse(w, &cached, nil)
		return
	}

	profile, err := g.profiles.GetProfile(r.Context(), verticalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	g.cacheSet(r.Context(), cache.ProfileKey(verticalID), profile)
	writeSuccessResponse(w, profile, nil)
}

func (g *Gateway) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	verticalID := mux.Vars(r)["verticalId"]

	if err := g.profiles.DeleteProfile(r.Context(), verticalID); err != nil {
		writeDomainError(w, err)
		return
	}
	g.cacheDelete(r.Context(), cache.ProfileKey(verticalID))
	writeSuccessResponse(w, map[string]string{"vertical_id": verticalID, "status": "deleted"}, nil)
}

// Playbook handlers

func (g *Gateway) handleListPlaybooks(w http.ResponseWriter, r *http.Request) {
	defs, err := g.playbooks.ListDefinitions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, defs, &APIMeta{Total: len(defs)})
}

func (g *Gateway) handleSavePlaybook(w http.ResponseWriter, r *http.Request) {
	var def models.PlaybookDefinition
	if err := parseRequestBody(r, &def); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}

	if err := g.playbooks.SaveDefinition(r.Context(), &def); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, def, nil)
}

func (g *Gateway) handleGetPlaybook(w http.ResponseWriter, r *http.Request) {
	playbookID := mux.Vars(r)["id"]

	def, err := g.playbooks.GetDefinition(r.Context(), playbookID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, def, nil)
}

func (g *Gateway) handleDeletePlaybook(w http.ResponseWriter, r *http.Request) {
	playbookID := mux.Vars(r)["id"]

	if err := g.playbooks.DeleteDefinition(r.Context(), playbookID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, map[string]string{"playbook_id": playbookID, "status": "deleted"}, nil)
}

type executePlaybookRequest struct {
	TenantID string `json:"tenant_id"`
}

func (g *Gateway) handleExecutePlaybook(w http.ResponseWriter, r *http.Request) {
	playbookID := mux.Vars(r)["id"]

	var req executePlaybookRequest
	if err := parseRequestBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}
	if req.TenantID == "" {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "tenant_id is required", "")
		return
	}

	exec, err := g.playbooks.Execute(r.Context(), playbookID, req.TenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, exec, nil)
}

// Execution handlers

func (g *Gateway) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")

	execs, err := g.playbooks.ListExecutions(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, execs, &APIMeta{Total: len(execs)})
}

func (g *Gateway) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	executionID := mux.Vars(r)["id"]

	exec, err := g.playbooks.GetExecution(r.Context(), executionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, exec, nil)
}

type overrideExecutionRequest struct {
	Action models.OverrideAction `json:"action"`
	Reason string                `json:"reason"`
}

func (g *Gateway) handleOverrideExecution(w http.ResponseWriter, r *http.Request) {
	executionID := mux.Vars(r)["id"]

	var req overrideExecutionRequest
	if err := parseRequestBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}

	exec, err := g.playbooks.Override(r.Context(), executionID, req.Action, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, exec, nil)
}

// Health score handlers

func (g *Gateway) handleGetHealth(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	var cached models.HealthScore
	if g.cacheGet(r.Context(), cache.LatestHealthKey(tenantID), &cached) {
		writeSuccessResponse(w, &cached, nil)
		return
	}

	score, err := g.health.GetLatest(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	g.cacheSet(r.Context(), cache.LatestHealthKey(tenantID), score)
	writeSuccessResponse(w, score, nil)
}

func (g *Gateway) handleGetHealthHistory(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]
	limit := parseLimit(r, defaultHistoryLimit)

	history, err := g.health.GetHistory(r.Context(), tenantID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, history, &APIMeta{Total: len(history), Limit: limit})
}

func (g *Gateway) handleCalculateHealth(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	score, err := g.health.Calculate(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	g.cacheSet(r.Context(), cache.LatestHealthKey(tenantID), score)
	writeSuccessResponse(w, score, nil)
}

// Churn handlers

func (g *Gateway) handleGetChurn(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	var cached models.ChurnPrediction
	if g.cacheGet(r.Context(), cache.LatestChurnKey(tenantID), &cached) {
		writeSuccessResponse(w, &cached, nil)
		return
	}

	prediction, err := g.churn.GetLatest(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	g.cacheSet(r.Context(), cache.LatestChurnKey(tenantID), prediction)
	writeSuccessResponse(w, prediction, nil)
}

func (g *Gateway) handleGetChurnHistory(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]
	limit := parseLimit(r, defaultHistoryLimit)

	history, err := g.churn.GetHistory(r.Context(), tenantID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, history, &APIMeta{Total: len(history), Limit: limit})
}

func (g *Gateway) handlePredictChurn(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	prediction, err := g.churn.Predict(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	g.cacheSet(r.Context(), cache.LatestChurnKey(tenantID), prediction)
	writeSuccessResponse(w, prediction, nil)
}

// Expansion handlers

func (g *Gateway) handleScanExpansion(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	signal, err := g.expansion.Scan(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if signal == nil {
		writeSuccessResponse(w, map[string]string{"tenant_id": tenantID, "result": "no_signal"}, nil)
		return
	}
	writeSuccessResponse(w, signal, nil)
}

func (g *Gateway) handleListSignals(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")

	signals, err := g.expansion.ListSignals(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, signals, &APIMeta{Total: len(signals)})
}

type updateSignalStatusRequest struct {
	Status models.ExpansionStatus `json:"status"`
}

func (g *Gateway) handleUpdateSignalStatus(w http.ResponseWriter, r *http.Request) {
	signalID := mux.Vars(r)["id"]

	var req updateSignalStatusRequest
	if err := parseRequestBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}

	signal, err := g.expansion.UpdateStatus(r.Context(), signalID, req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, signal, nil)
}

// NPS handlers

type npsScoreResponse struct {
	TenantID  string `json:"tenant_id"`
	Score     *int   `json:"score"`
	Responses int    `json:"responses"`
}

func (g *Gateway) handleGetNps(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	score, responses, err := g.nps.GetScore(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, npsScoreResponse{TenantID: tenantID, Score: score, Responses: responses}, nil)
}

type collectNpsRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

func (g *Gateway) handleCollectNps(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	var req collectNpsRequest
	if err := parseRequestBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}

	response, err := g.nps.Collect(r.Context(), tenantID, req.Score, req.Comment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, response, nil)
}

func (g *Gateway) handleGetNpsTrend(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	months := defaultHistoryLimit
	if raw := r.URL.Query().Get("months"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid months parameter", err.Error())
			return
		}
		months = parsed
	}

	trend, err := g.nps.GetTrend(r.Context(), tenantID, months)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, trend, &APIMeta{Total: len(trend)})
}

func (g *Gateway) handleSendNpsSurvey(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	if err := g.nps.MarkSent(r.Context(), tenantID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, map[string]string{"tenant_id": tenantID, "status": "sent"}, nil)
}

// Sweep handlers

func (g *Gateway) handleTriggerHealthSweep(w http.ResponseWriter, r *http.Request) {
	processed, err := g.sweeper.RunHealthSweep(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccessResponse(w, map[string]int{"processed": processed}, nil)
}

// Service handlers

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    health.StatusHealthy,
		"timestamp": time.Now().UTC(),
	}

	if g.checker != nil {
		results := g.checker.Check(r.Context())
		status["status"] = health.Overall(results)
		status["checks"] = results
	}

	writeSuccessResponse(w, status, nil)
}

// metricsSnapshot is the lock-free copy served by the metrics endpoint
type metricsSnapshot struct {
	RequestsTotal    int64            `json:"requests_total"`
	RequestsFailed   int64            `json:"requests_failed"`
	AverageLatency   time.Duration    `json:"average_latency"`
	RequestsByPath   map[string]int64 `json:"requests_by_path"`
	RequestsByMethod map[string]int64 `json:"requests_by_method"`
	RequestsByStatus map[int]int64    `json:"requests_by_status"`
	LastRequest      time.Time        `json:"last_request"`
}

func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	g.metrics.mu.Lock()
	snapshot := metricsSnapshot{
		RequestsTotal:    g.metrics.RequestsTotal,
		RequestsFailed:   g.metrics.RequestsFailed,
		AverageLatency:   g.metrics.AverageLatency,
		RequestsByPath:   make(map[string]int64, len(g.metrics.RequestsByPath)),
		RequestsByMethod: make(map[string]int64, len(g.metrics.RequestsByMethod)),
		RequestsByStatus: make(map[int]int64, len(g.metrics.RequestsByStatus)),
		LastRequest:      g.metrics.LastRequest,
	}
	for k, v := range g.metrics.RequestsByPath {
		snapshot.RequestsByPath[k] = v
	}
	for k, v := range g.metrics.RequestsByMethod {
		snapshot.RequestsByMethod[k] = v
	}
	for k, v := range g.metrics.RequestsByStatus {
		snapshot.RequestsByStatus[k] = v
	}
	g.metrics.mu.Unlock()

	writeSuccessResponse(w, snapshot, nil)
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
