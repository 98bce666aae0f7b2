package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/middleware"
	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/utils"
)

// AdminService defines the operator operations exposed over HTTP
type AdminService interface {
	CreateModel(ctx context.Context, m *models.AIModel) error
	GetModel(ctx context.Context, id uuid.UUID) (*models.AIModel, error)
	ListModels(ctx context.Context, includeDisabled bool) ([]*models.AIModel, error)
	UpdateModel(ctx context.Context, m *models.AIModel) error
	DisableModel(ctx context.Context, id uuid.UUID) error

	CreatePlanQuota(ctx context.Context, q *models.PlanQuota) error
	GetPlanQuota(ctx context.Context, id uuid.UUID) (*models.PlanQuota, error)
	ListPlanQuotas(ctx context.Context) ([]*models.PlanQuota, error)
	UpdatePlanQuota(ctx context.Context, q *models.PlanQuota) error
	DeletePlanQuota(ctx context.Context, id uuid.UUID) error

	CreatePolicy(ctx context.Context, p *models.GuardrailPolicy) error
	GetPolicy(ctx context.Context, id uuid.UUID) (*models.GuardrailPolicy, error)
	ListPolicies(ctx context.Context) ([]*models.GuardrailPolicy, error)
	UpdatePolicy(ctx context.Context, p *models.GuardrailPolicy) error
	DeletePolicy(ctx context.Context, id uuid.UUID) error

	CreateFallbackRule(ctx context.Context, r *models.FallbackRule) error
	GetFallbackRule(ctx context.Context, id uuid.UUID) (*models.FallbackRule, error)
	ListFallbackRules(ctx context.Context) ([]*models.FallbackRule, error)
	UpdateFallbackRule(ctx context.Context, r *models.FallbackRule) error
	DeleteFallbackRule(ctx context.Context, id uuid.UUID) error
}

// AdminHandler serves CRUD endpoints for the governance catalog and rules.
// Updates are partial: the stored record is loaded and the body is decoded over it.
type AdminHandler struct {
	service AdminService
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(service AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		logger:  logger,
	}
}

// Routes mounts the admin endpoints on a fresh router
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/models", func(r chi.Router) {
		r.Get("/", h.HandleListModels)
		r.Post("/", h.HandleCreateModel)
		r.Get("/{id}", h.HandleGetModel)
		r.Patch("/{id}", h.HandleUpdateModel)
		r.Delete("/{id}", h.HandleDisableModel)
	})

	r.Route("/plan-quotas", func(r chi.Router) {
		r.Get("/", h.HandleListPlanQuotas)
		r.Post("/", h.HandleCreatePlanQuota)
		r.Get("/{id}", h.HandleGetPlanQuota)
		r.Patch("/{id}", h.HandleUpdatePlanQuota)
		r.Delete("/{id}", h.HandleDeletePlanQuota)
	})

	r.Route("/policies", func(r chi.Router) {
		r.Get("/", h.HandleListPolicies)
		r.Post("/", h.HandleCreatePolicy)
		r.Get("/{id}", h.HandleGetPolicy)
		r.Patch("/{id}", h.HandleUpdatePolicy)
		r.Delete("/{id}", h.HandleDeletePolicy)
	})

	r.Route("/fallback-rules", func(r chi.Router) {
		r.Get("/", h.HandleListFallbackRules)
		r.Post("/", h.HandleCreateFallbackRule)
		r.Get("/{id}", h.HandleGetFallbackRule)
		r.Patch("/{id}", h.HandleUpdateFallbackRule)
		r.Delete("/{id}", h.HandleDeleteFallbackRule)
	})

	return r
}

// Models

// HandleListModels handles GET /models?include_disabled=true
func (h *AdminHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	includeDisabled := r.URL.Query().Get("include_disabled") == "true"
	list, err := h.service.ListModels(r.Context(), includeDisabled)
	h.writeResult(w, r, list, err)
}

// HandleCreateModel handles POST /models
func (h *AdminHandler) HandleCreateModel(w http.ResponseWriter, r *http.Request) {
	var m models.AIModel
	if !h.decodeBody(w, r, &m) {
		return
	}
	m.ID = uuid.Nil

	if err := h.service.CreateModel(r.Context(), &m); err != nil {
		h.writeError(w, r, "create model", err)
		return
	}
	h.audit(r, "model created", m.ID)
	_ = utils.WriteCreated(w, &m)
}

// HandleGetModel handles GET /models/{id}
func (h *AdminHandler) HandleGetModel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	m, err := h.service.GetModel(r.Context(), id)
	h.writeResult(w, r, m, err)
}

// HandleUpdateModel handles PATCH /models/{id}
func (h *AdminHandler) HandleUpdateModel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	m, err := h.service.GetModel(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "update model", err)
		return
	}
	if !h.decodeBody(w, r, m) {
		return
	}
	m.ID = id

	if err := h.service.UpdateModel(r.Context(), m); err != nil {
		h.writeError(w, r, "update model", err)
		return
	}
	h.audit(r, "model updated", id)
	_ = utils.WriteOK(w, m)
}

// HandleDisableModel handles DELETE /models/{id}. Models are disabled, never removed.
func (h *AdminHandler) HandleDisableModel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DisableModel(r.Context(), id); err != nil {
		h.writeError(w, r, "disable model", err)
		return
	}
	h.audit(r, "model disabled", id)
	utils.WriteNoContent(w)
}

// Plan quotas

// HandleListPlanQuotas handles GET /plan-quotas
func (h *AdminHandler) HandleListPlanQuotas(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPlanQuotas(r.Context())
	h.writeResult(w, r, list, err)
}

// HandleCreatePlanQuota handles POST /plan-quotas. Omitted limits are unlimited.
func (h *AdminHandler) HandleCreatePlanQuota(w http.ResponseWriter, r *http.Request) {
	q := models.NewPlanQuota(uuid.Nil)
	if !h.decodeBody(w, r, q) {
		return
	}
	q.ID = uuid.Nil

	if err := h.service.CreatePlanQuota(r.Context(), q); err != nil {
		h.writeError(w, r, "create plan quota", err)
		return
	}
	h.audit(r, "plan quota created", q.ID)
	_ = utils.WriteCreated(w, q)
}

// HandleGetPlanQuota handles GET /plan-quotas/{id}
func (h *AdminHandler) HandleGetPlanQuota(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	q, err := h.service.GetPlanQuota(r.Context(), id)
	h.writeResult(w, r, q, err)
}

// HandleUpdatePlanQuota handles PATCH /plan-quotas/{id}
func (h *AdminHandler) HandleUpdatePlanQuota(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	q, err := h.service.GetPlanQuota(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "update plan quota", err)
		return
	}
	if !h.decodeBody(w, r, q) {
		return
	}
	q.ID = id

	if err := h.service.UpdatePlanQuota(r.Context(), q); err != nil {
		h.writeError(w, r, "update plan quota", err)
		return
	}
	h.audit(r, "plan quota updated", id)
	_ = utils.WriteOK(w, q)
}

// HandleDeletePlanQuota handles DELETE /plan-quotas/{id}
func (h *AdminHandler) HandleDeletePlanQuota(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePlanQuota(r.Context(), id); err != nil {
		h.writeError(w, r, "delete plan quota", err)
		return
	}
	h.audit(r, "plan quota deleted", id)
	utils.WriteNoContent(w)
}

// Policies

// HandleListPolicies handles GET /policies
func (h *AdminHandler) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPolicies(r.Context())
	h.writeResult(w, r, list, err)
}

// HandleCreatePolicy handles POST /policies
func (h *AdminHandler) HandleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	p := &models.GuardrailPolicy{IsEnabled: true}
	if !h.decodeBody(w, r, p) {
		return
	}
	p.ID = uuid.Nil
	// System policies are seeded, never created over the API
	p.IsSystem = false

	if err := h.service.CreatePolicy(r.Context(), p); err != nil {
		h.writeError(w, r, "create policy", err)
		return
	}
	h.audit(r, "policy created", p.ID)
	_ = utils.WriteCreated(w, p)
}

// HandleGetPolicy handles GET /policies/{id}
func (h *AdminHandler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	p, err := h.service.GetPolicy(r.Context(), id)
	h.writeResult(w, r, p, err)
}

// HandleUpdatePolicy handles PATCH /policies/{id}
func (h *AdminHandler) HandleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	p, err := h.service.GetPolicy(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "update policy", err)
		return
	}
	if !h.decodeBody(w, r, p) {
		return
	}
	p.ID = id

	if err := h.service.UpdatePolicy(r.Context(), p); err != nil {
		h.writeError(w, r, "update policy", err)
		return
	}
	h.audit(r, "policy updated", id)
	_ = utils.WriteOK(w, p)
}

// HandleDeletePolicy handles DELETE /policies/{id}
func (h *AdminHandler) HandleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePolicy(r.Context(), id); err != nil {
		h.writeError(w, r, "delete policy", err)
		return
	}
	h.audit(r, "policy deleted", id)
	utils.WriteNoContent(w)
}

// Fallback rules

// HandleListFallbackRules handles GET /fallback-rules
func (h *AdminHandler) HandleListFallbackRules(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListFallbackRules(r.Context())
	h.writeResult(w, r, list, err)
}

// HandleCreateFallbackRule handles POST /fallback-rules
func (h *AdminHandler) HandleCreateFallbackRule(w http.ResponseWriter, r *http.Request) {
	rule := &models.FallbackRule{IsEnabled: true}
	if !h.decodeBody(w, r, rule) {
		return
	}
	rule.ID = uuid.Nil

	if err := h.service.CreateFallbackRule(r.Context(), rule); err != nil {
		h.writeError(w, r, "create fallback rule", err)
		return
	}
	h.audit(r, "fallback rule created", rule.ID)
	_ = utils.WriteCreated(w, rule)
}

// HandleGetFallbackRule handles GET /fallback-rules/{id}
func (h *AdminHandler) HandleGetFallbackRule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rule, err := h.service.GetFallbackRule(r.Context(), id)
	h.writeResult(w, r, rule, err)
}

// HandleUpdateFallbackRule handles PATCH /fallback-rules/{id}
func (h *AdminHandler) HandleUpdateFallbackRule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rule, err := h.service.GetFallbackRule(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "update fallback rule", err)
		return
	}
	if !h.decodeBody(w, r, rule) {
		return
	}
	rule.ID = id

	if err := h.service.UpdateFallbackRule(r.Context(), rule); err != nil {
		h.writeError(w, r, "update fallback rule", err)
		return
	}
	h.audit(r, "fallback rule updated", id)
	_ = utils.WriteOK(w, rule)
}

// HandleDeleteFallbackRule handles DELETE /fallback-rules/{id}
func (h *AdminHandler) HandleDeleteFallbackRule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteFallbackRule(r.Context(), id); err != nil {
		h.writeError(w, r, "delete fallback rule", err)
		return
	}
	h.audit(r, "fallback rule deleted", id)
	utils.WriteNoContent(w)
}

// Helpers

func (h *AdminHandler) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return decodeJSON(w, r, v, h.logger)
}

func (h *AdminHandler) writeResult(w http.ResponseWriter, r *http.Request, data interface{}, err error) {
	if err != nil {
		h.writeError(w, r, r.Method+" "+r.URL.Path, err)
		return
	}
	_ = utils.WriteOK(w, data)
}

func (h *AdminHandler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Debug("admin request failed",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("op", op),
		zap.Error(err))
	HandleServiceError(w, err, h.logger)
}

// audit records which operator changed what
func (h *AdminHandler) audit(r *http.Request, msg string, id uuid.UUID) {
	h.logger.Info(msg,
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("operator", middleware.GetOperatorFromContext(r.Context())),
		zap.String("id", id.String()))
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid ID format", nil)
		return uuid.Nil, false
	}
	return id, true
}

// decodeJSON decodes the body over v, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, logger *zap.Logger) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		logger.Warn("failed to parse request body",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", map[string]interface{}{"error": err.Error()})
		return false
	}
	return true
}
