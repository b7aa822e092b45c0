package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/skillflow/orchestrator/internal/artifact"
	"github.com/skillflow/orchestrator/internal/composer"
	"github.com/skillflow/orchestrator/internal/config"
	"github.com/skillflow/orchestrator/internal/graph"
	"github.com/skillflow/orchestrator/internal/matcher"
	"github.com/skillflow/orchestrator/internal/metrics"
	"github.com/skillflow/orchestrator/internal/registry"
	"github.com/skillflow/orchestrator/internal/runstore"
	"github.com/skillflow/orchestrator/internal/scanner"
	"github.com/skillflow/orchestrator/internal/template"
	"github.com/skillflow/orchestrator/internal/validator"
	"github.com/skillflow/orchestrator/pkg/types"
)

// Deps carries the services the handlers operate on. Scanner, matcher,
// composer and artifacts are optional; their endpoints return 503 when
// absent.
type Deps struct {
	Store     runstore.RunStore
	Templates template.Store
	Registry  registry.SkillRegistry
	Scanner   *scanner.Scanner
	Matcher   *matcher.Matcher
	Composer  *composer.Composer
	Validator *validator.Validator
	Launcher  *Launcher
	Artifacts *artifact.Store
	Config    *config.Config
	Logger    *slog.Logger
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	store     runstore.RunStore
	templates template.Store
	registry  registry.SkillRegistry
	scanner   *scanner.Scanner
	matcher   *matcher.Matcher
	composer  *composer.Composer
	validator *validator.Validator
	launcher  *Launcher
	artifacts *artifact.Store
	config    *config.Config
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:     d.Store,
		templates: d.Templates,
		registry:  d.Registry,
		scanner:   d.Scanner,
		matcher:   d.Matcher,
		composer:  d.Composer,
		validator: d.Validator,
		launcher:  d.Launcher,
		artifacts: d.Artifacts,
		config:    d.Config,
		logger:    logger,
	}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint, checking dependencies.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ready",
		"runstore": h.store.AdapterInfo(),
	})
}

// --- Run Management ---

// CreateRunRequest is the request body for creating a run. GlobalContext is
// an optional map every node's input bundle sees alongside the task.
type CreateRunRequest struct {
	Graph         json.RawMessage        `json:"graph"`
	Task          string                 `json:"task"`
	GlobalContext map[string]interface{} `json:"global_context,omitempty"`
	Mode          types.ExecutionMode    `json:"mode,omitempty"`
	Policy        types.FailurePolicy    `json:"policy,omitempty"`
	AutoStart     bool                   `json:"auto_start,omitempty"`
}

// CreateRunResponse is the response body after creating a run.
type CreateRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	SSEURL string `json:"sse_url,omitempty"`
}

// CreateRun handles POST /api/v1/runs
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Graph) == 0 {
		h.respondError(w, r, http.StatusBadRequest, "graph is required", errors.New("missing graph"))
		return
	}

	g, err := h.decodeGraph(req.Graph)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid graph", err)
		return
	}

	mode, policy := normalizeRunOptions(req.Mode, req.Policy)
	run, err := h.store.CreateRun(ctx, g, req.Task, req.GlobalContext, mode, policy)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to create run", err)
		return
	}

	resp := CreateRunResponse{
		RunID:  run.Meta.RunID,
		Status: "created",
	}

	if req.AutoStart {
		if err := h.launcher.Start(run); err != nil {
			h.logger.Error("failed to start run", "error", err, "run_id", run.Meta.RunID)
		} else {
			resp.Status = "running"
			resp.SSEURL = "/api/v1/runs/" + run.Meta.RunID + "/events"
		}
	}

	h.respondJSON(w, http.StatusCreated, resp)
}

// StartRun handles POST /api/v1/runs/{id}/start
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := mux.Vars(r)["id"]

	run, err := h.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, runstore.ErrRunNotFound) {
			h.respondError(w, r, http.StatusNotFound, "run not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get run", err)
		return
	}

	if run.Meta.Status != types.RunStatusQueued {
		h.respondError(w, r, http.StatusConflict, "run already started", errors.New("status "+string(run.Meta.Status)))
		return
	}

	if err := h.launcher.Start(run); err != nil {
		if errors.Is(err, ErrRunActive) {
			h.respondError(w, r, http.StatusConflict, "run already executing", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to start run", err)
		return
	}

	h.respondJSON(w, http.StatusOK, CreateRunResponse{
		RunID:  runID,
		Status: "running",
		SSEURL: "/api/v1/runs/" + runID + "/events",
	})
}

// ListRuns handles GET /api/v1/runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := queryInt(r, "limit", 50)

	runs, err := h.store.ListRuns(ctx, limit)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to list runs", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetRun handles GET /api/v1/runs/{id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := mux.Vars(r)["id"]

	run, err := h.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, runstore.ErrRunNotFound) {
			h.respondError(w, r, http.StatusNotFound, "run not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get run", err)
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

// GetRunOutputs handles GET /api/v1/runs/{id}/outputs
func (h *Handlers) GetRunOutputs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := mux.Vars(r)["id"]

	outputs, err := h.store.GetOutputs(ctx, runID)
	if err != nil {
		if errors.Is(err, runstore.ErrRunNotFound) {
			h.respondError(w, r, http.StatusNotFound, "run not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get outputs", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"outputs": outputs})
}

// ListRunArtifacts handles GET /api/v1/runs/{id}/artifacts
// Each offloaded output is returned with a presigned download link when the
// backend supports presigning.
func (h *Handlers) ListRunArtifacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := mux.Vars(r)["id"]

	if h.artifacts == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "artifact storage not configured", errors.New("no artifact store"))
		return
	}
	if _, err := h.store.GetRunMeta(ctx, runID); err != nil {
		if errors.Is(err, runstore.ErrRunNotFound) {
			h.respondError(w, r, http.StatusNotFound, "run not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get run", err)
		return
	}

	refs, err := h.artifacts.ListRun(ctx, runID)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to list artifacts", err)
		return
	}

	type artifactEntry struct {
		*artifact.Ref
		DownloadURL string `json:"download_url,omitempty"`
	}
	entries := make([]artifactEntry, 0, len(refs))
	for _, ref := range refs {
		entry := artifactEntry{Ref: ref}
		if url, err := h.artifacts.PresignURL(ctx, ref, 15*time.Minute); err == nil {
			entry.DownloadURL = url
		}
		entries = append(entries, entry)
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"artifacts": entries})
}

// CancelRun handles POST /api/v1/runs/{id}/cancel
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := mux.Vars(r)["id"]

	if err := h.store.CancelRun(ctx, runID); err != nil {
		if errors.Is(err, runstore.ErrRunNotFound) {
			h.respondError(w, r, http.StatusNotFound, "run not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to cancel run", err)
		return
	}
	h.launcher.Cancel(runID)

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// --- Composition ---

// ComposeRequest is the request body for composing a workflow from a task.
type ComposeRequest struct {
	Task      string              `json:"task"`
	Mode      string              `json:"mode,omitempty"`
	Variables map[string]string   `json:"variables,omitempty"`
	Run       bool                `json:"run,omitempty"`
	ExecMode  types.ExecutionMode `json:"execution_mode,omitempty"`
	Policy    types.FailurePolicy `json:"policy,omitempty"`
}

// ComposeResponse is the composition plus, when requested, the started run.
type ComposeResponse struct {
	*composer.Composition
	RunID  string `json:"run_id,omitempty"`
	SSEURL string `json:"sse_url,omitempty"`
}

// Compose handles POST /api/v1/compose
func (h *Handlers) Compose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.composer == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "composer not available", errors.New("composer not configured"))
		return
	}

	var req ComposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Task == "" {
		h.respondError(w, r, http.StatusBadRequest, "task is required", errors.New("missing task"))
		return
	}

	mode, err := composer.ParseMode(req.Mode)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid mode", err)
		return
	}

	comp, err := h.composer.Compose(ctx, req.Task, mode, req.Variables)
	if err != nil {
		if errors.Is(err, composer.ErrNoMatchingSkills) {
			h.respondError(w, r, http.StatusUnprocessableEntity, "no matching skills", err)
			return
		}
		var missing *template.MissingVariableError
		if errors.As(err, &missing) {
			h.respondError(w, r, http.StatusBadRequest, "missing template variable", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "composition failed", err)
		return
	}

	resp := ComposeResponse{Composition: comp}

	if req.Run {
		execMode, policy := normalizeRunOptions(req.ExecMode, req.Policy)
		run, err := h.store.CreateRun(ctx, comp.Graph, req.Task, nil, execMode, policy)
		if err != nil {
			h.respondError(w, r, http.StatusInternalServerError, "failed to create run", err)
			return
		}
		if err := h.launcher.Start(run); err != nil {
			h.respondError(w, r, http.StatusInternalServerError, "failed to start run", err)
			return
		}
		resp.RunID = run.Meta.RunID
		resp.SSEURL = "/api/v1/runs/" + run.Meta.RunID + "/events"
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// MatchRequest is the request body for ranking skills against a task.
type MatchRequest struct {
	Task  string `json:"task"`
	Limit int    `json:"limit,omitempty"`
}

// Match handles POST /api/v1/match
func (h *Handlers) Match(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.matcher == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "matcher not available", errors.New("matcher not configured"))
		return
	}

	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Task == "" {
		h.respondError(w, r, http.StatusBadRequest, "task is required", errors.New("missing task"))
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	ranked, err := h.matcher.Top(ctx, req.Task, limit)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "match failed", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"matches": ranked})
}

// --- Graph Validation ---

// ValidateGraph handles POST /api/v1/graphs/validate
func (h *Handlers) ValidateGraph(w http.ResponseWriter, r *http.Request) {
	var doc json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result := h.validator.ValidateGraphJSON(doc)
	if result.Valid {
		// Schema-valid graphs can still have structural problems.
		var g types.Graph
		if err := json.Unmarshal(doc, &g); err == nil {
			if _, err := graph.New(&g); err != nil {
				result.Valid = false
				result.Errors = append(result.Errors, validator.ValidationError{
					Path:    "$",
					Message: err.Error(),
				})
			}
		}
	}

	h.respondJSON(w, http.StatusOK, result)
}

// --- Skill Registry ---

// ListSkills handles GET /api/v1/skills
func (h *Handlers) ListSkills(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts := &registry.ListOptions{
		Keywords: r.URL.Query()["keyword"],
		Limit:    queryInt(r, "limit", 0),
		Offset:   queryInt(r, "offset", 0),
	}

	skills, err := h.registry.List(ctx, opts)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to list skills", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"skills": skills})
}

// GetSkill handles GET /api/v1/skills/{name}
func (h *Handlers) GetSkill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	skill, err := h.registry.Get(ctx, name)
	if err != nil {
		if errors.Is(err, registry.ErrSkillNotFound) {
			h.respondError(w, r, http.StatusNotFound, "skill not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get skill", err)
		return
	}

	h.respondJSON(w, http.StatusOK, skill)
}

// RegisterSkill handles POST /api/v1/skills
func (h *Handlers) RegisterSkill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var doc json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if result := h.validator.ValidateSkillJSON(doc); !result.Valid {
		h.respondJSON(w, http.StatusUnprocessableEntity, result)
		return
	}

	var skill registry.Skill
	if err := json.Unmarshal(doc, &skill); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid skill", err)
		return
	}

	created, err := h.registry.Register(ctx, &skill)
	if err != nil {
		if errors.Is(err, registry.ErrSkillExists) {
			h.respondError(w, r, http.StatusConflict, "skill already registered", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to register skill", err)
		return
	}

	h.respondJSON(w, http.StatusCreated, created)
}

// UpdateSkill handles PATCH /api/v1/skills/{name}
func (h *Handlers) UpdateSkill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	var req registry.UpdateSkillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	skill, err := h.registry.Update(ctx, name, &req)
	if err != nil {
		if errors.Is(err, registry.ErrSkillNotFound) {
			h.respondError(w, r, http.StatusNotFound, "skill not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to update skill", err)
		return
	}

	h.respondJSON(w, http.StatusOK, skill)
}

// DeleteSkill handles DELETE /api/v1/skills/{name}
func (h *Handlers) DeleteSkill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	if err := h.registry.Delete(ctx, name); err != nil {
		if errors.Is(err, registry.ErrSkillNotFound) {
			h.respondError(w, r, http.StatusNotFound, "skill not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to delete skill", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ScanSkills handles POST /api/v1/skills/scan
func (h *Handlers) ScanSkills(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.scanner == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "scanner not available", errors.New("no skills root configured"))
		return
	}

	count, err := h.scanner.Scan(ctx)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "scan failed", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"indexed": count})
}

// --- Templates ---

// ListTemplates handles GET /api/v1/templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts := &template.ListOptions{
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}

	templates, err := h.templates.List(ctx, opts)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to list templates", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"templates": templates})
}

// GetTemplate handles GET /api/v1/templates/{name}
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	tpl, err := h.templates.Get(ctx, name)
	if err != nil {
		if errors.Is(err, template.ErrTemplateNotFound) {
			h.respondError(w, r, http.StatusNotFound, "template not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get template", err)
		return
	}

	h.respondJSON(w, http.StatusOK, tpl)
}

// SaveTemplate handles POST /api/v1/templates
func (h *Handlers) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var tpl types.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	saved, err := h.templates.Save(ctx, &tpl)
	if err != nil {
		if errors.Is(err, template.ErrTemplateExists) {
			h.respondError(w, r, http.StatusConflict, "template already exists", err)
			return
		}
		h.respondError(w, r, http.StatusBadRequest, "invalid template", err)
		return
	}

	h.respondJSON(w, http.StatusCreated, saved)
}

// UpdateTemplate handles PUT /api/v1/templates/{name}
func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	var tpl types.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	tpl.Name = name

	updated, err := h.templates.Update(ctx, &tpl)
	if err != nil {
		if errors.Is(err, template.ErrTemplateNotFound) {
			h.respondError(w, r, http.StatusNotFound, "template not found", err)
			return
		}
		h.respondError(w, r, http.StatusBadRequest, "invalid template", err)
		return
	}

	h.respondJSON(w, http.StatusOK, updated)
}

// DeleteTemplate handles DELETE /api/v1/templates/{name}
func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	if err := h.templates.Delete(ctx, name); err != nil {
		if errors.Is(err, template.ErrTemplateNotFound) {
			h.respondError(w, r, http.StatusNotFound, "template not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to delete template", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// InstantiateTemplateRequest is the request body for instantiating a template.
type InstantiateTemplateRequest struct {
	Variables map[string]string   `json:"variables,omitempty"`
	Task      string              `json:"task,omitempty"`
	Run       bool                `json:"run,omitempty"`
	Mode      types.ExecutionMode `json:"mode,omitempty"`
	Policy    types.FailurePolicy `json:"policy,omitempty"`
}

// InstantiateTemplate handles POST /api/v1/templates/{name}/instantiate
func (h *Handlers) InstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	var req InstantiateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	tpl, err := h.templates.Get(ctx, name)
	if err != nil {
		if errors.Is(err, template.ErrTemplateNotFound) {
			h.respondError(w, r, http.StatusNotFound, "template not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get template", err)
		return
	}

	g, err := template.Instantiate(tpl, req.Variables)
	if err != nil {
		var missing *template.MissingVariableError
		if errors.As(err, &missing) {
			metrics.TemplateInstantiations.WithLabelValues("missing_variable").Inc()
			h.respondError(w, r, http.StatusBadRequest, "missing template variable", err)
			return
		}
		metrics.TemplateInstantiations.WithLabelValues("invalid").Inc()
		h.respondError(w, r, http.StatusBadRequest, "instantiation failed", err)
		return
	}
	metrics.TemplateInstantiations.WithLabelValues("ok").Inc()

	resp := map[string]interface{}{"graph": g}

	if req.Run {
		mode, policy := normalizeRunOptions(req.Mode, req.Policy)
		run, err := h.store.CreateRun(ctx, g, req.Task, nil, mode, policy)
		if err != nil {
			h.respondError(w, r, http.StatusInternalServerError, "failed to create run", err)
			return
		}
		if err := h.launcher.Start(run); err != nil {
			h.respondError(w, r, http.StatusInternalServerError, "failed to start run", err)
			return
		}
		resp["run_id"] = run.Meta.RunID
		resp["sse_url"] = "/api/v1/runs/" + run.Meta.RunID + "/events"
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// --- RunStore Diagnostics ---

// RunStoreInfo handles GET /api/v1/runstore/info
func (h *Handlers) RunStoreInfo(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"adapter": h.store.AdapterInfo()})
}

// --- Helper Methods ---

// decodeGraph validates a raw graph document and decodes it. Structural
// validation (cycles, dangling references) happens here so bad graphs are
// rejected before a run record exists.
func (h *Handlers) decodeGraph(raw json.RawMessage) (*types.Graph, error) {
	if result := h.validator.ValidateGraphJSON(raw); !result.Valid {
		return nil, errors.New(result.Errors[0].Message)
	}
	var g types.Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	if _, err := graph.New(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

func normalizeRunOptions(mode types.ExecutionMode, policy types.FailurePolicy) (types.ExecutionMode, types.FailurePolicy) {
	if mode == "" {
		mode = types.ModeParallel
	}
	if policy == "" {
		policy = types.PolicyFailFast
	}
	return mode, policy
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	h.logger.Error(message, "error", err, "status", status)
	details := map[string]interface{}{}
	if err != nil {
		details["cause"] = err.Error()
	}
	writeErrorResponse(w, r, status, HTTPStatusToErrorCode(status), message, details)
}
