package tenant

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/wardenbot/warden/internal/capability"
	"github.com/wardenbot/warden/internal/i18n"
	"github.com/wardenbot/warden/internal/policy"
	"github.com/wardenbot/warden/internal/shared"
)

// Handler exposes authorization and policy administration over JSON/HTTP
// for the bot gateway.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the tenant HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers the tenant API under the given router. Mutation
// routes are rate limited per tenant.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(30, time.Minute,
		httprate.WithKeyFuncs(tenantRateKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	)

	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Post("/authorize", h.handleAuthorize)
		r.Get("/policy", h.handleDescribePolicy)
		r.Get("/config", h.handleGetConfig)
		r.Get("/", h.handleDescribe)

		r.Group(func(r chi.Router) {
			r.Use(limiter)
			r.Put("/policy/defaults", h.handleSetDefaults)
			r.Put("/policy/roles/{roleID}", h.handleBindRole)
			r.Delete("/policy/roles/{roleID}", h.handleUnbindRole)
			r.Put("/policy/users/{userID}", h.handleBindUser)
			r.Delete("/policy/users/{userID}", h.handleUnbindUser)
			r.Patch("/config", h.handlePatchConfig)
		})
	})
}

func tenantRateKey(r *http.Request) (string, error) {
	if id := chi.URLParam(r, "tenantID"); id != "" {
		return "tenant:" + id, nil
	}
	return httprate.KeyByIP(r)
}

type authorizeRequest struct {
	UserID                string   `json:"user_id" validate:"required"`
	RoleIDs               []string `json:"role_ids"`
	IsOwner               bool     `json:"is_owner"`
	HasElevatedPermission bool     `json:"has_elevated_permission"`
	Capability            string   `json:"capability" validate:"required"`
}

type authorizeResponse struct {
	DecisionID string   `json:"decision_id"`
	Allowed    bool     `json:"allowed"`
	IsAdmin    bool     `json:"is_admin"`
	Capability string   `json:"capability"`
	Effective  []string `json:"effective"`
	Message    string   `json:"message,omitempty"`
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	c := capability.Capability(req.Capability)
	if !capability.Known(c) {
		writeError(w, http.StatusBadRequest, "unknown capability: "+req.Capability)
		return
	}

	actor := policy.Actor{
		UserID:                req.UserID,
		RoleIDs:               req.RoleIDs,
		IsOwner:               req.IsOwner,
		HasElevatedPermission: req.HasElevatedPermission,
	}
	decision, err := h.service.Authorize(r.Context(), chi.URLParam(r, "tenantID"), actor, c)
	if err != nil {
		h.fail(w, r, "authorize", err)
		return
	}

	resp := authorizeResponse{
		DecisionID: decision.ID,
		Allowed:    decision.Allowed,
		IsAdmin:    decision.IsAdmin,
		Capability: string(c),
		Effective:  decision.Effective.Strings(),
	}
	if !decision.Allowed {
		resp.Message = i18n.DenialMessage(r.Header.Get("Accept-Language"), c)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDescribePolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.DescribePolicy(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, r, "describe policy", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleDescribe(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Describe(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, r, "describe", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.GetConfig(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, r, "get config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type capabilitiesRequest struct {
	Capabilities []string `json:"capabilities" validate:"required"`
}

type bindingResponse struct {
	Dropped []string `json:"dropped,omitempty"`
}

func (h *Handler) handleSetDefaults(w http.ResponseWriter, r *http.Request) {
	var req capabilitiesRequest
	if !h.decode(w, r, &req) {
		return
	}
	dropped, err := h.service.SetDefaultCapabilities(r.Context(), chi.URLParam(r, "tenantID"), req.Capabilities)
	if err != nil {
		h.fail(w, r, "set defaults", err)
		return
	}
	writeJSON(w, http.StatusOK, bindingResponse{Dropped: dropped})
}

type bindRoleRequest struct {
	DisplayName  string   `json:"display_name"`
	Capabilities []string `json:"capabilities" validate:"required"`
}

func (h *Handler) handleBindRole(w http.ResponseWriter, r *http.Request) {
	var req bindRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	dropped, err := h.service.BindRole(r.Context(),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "roleID"), req.DisplayName, req.Capabilities)
	if err != nil {
		h.fail(w, r, "bind role", err)
		return
	}
	writeJSON(w, http.StatusOK, bindingResponse{Dropped: dropped})
}

func (h *Handler) handleUnbindRole(w http.ResponseWriter, r *http.Request) {
	err := h.service.UnbindRole(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "roleID"))
	if err != nil {
		h.fail(w, r, "unbind role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bindUserRequest struct {
	DisplayName  string   `json:"display_name"`
	Capabilities []string `json:"capabilities" validate:"required"`
	Custom       bool     `json:"custom"`
}

func (h *Handler) handleBindUser(w http.ResponseWriter, r *http.Request) {
	var req bindUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	dropped, err := h.service.BindUser(r.Context(),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "userID"), req.DisplayName, req.Capabilities, req.Custom)
	if err != nil {
		h.fail(w, r, "bind user", err)
		return
	}
	writeJSON(w, http.StatusOK, bindingResponse{Dropped: dropped})
}

func (h *Handler) handleUnbindUser(w http.ResponseWriter, r *http.Request) {
	err := h.service.UnbindUser(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, "unbind user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// patchConfigRequest updates only the fields present in the body.
type patchConfigRequest struct {
	DisplayName        *string   `json:"display_name"`
	Provider           *string   `json:"provider"`
	CustomPrompt       *string   `json:"custom_prompt"`
	AnalyzedChannelIDs *[]string `json:"analyzed_channel_ids"`
	CommunityRules     *[]string `json:"community_rules"`
	AdminRoleIDs       *[]string `json:"admin_role_ids"`
	Settings           *Settings `json:"settings"`
}

func (h *Handler) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var req patchConfigRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantID")

	type op func() error
	ops := []op{}
	if req.DisplayName != nil {
		ops = append(ops, func() error { return h.service.SetDisplayName(ctx, tenantID, *req.DisplayName) })
	}
	if req.Provider != nil {
		ops = append(ops, func() error { return h.service.SetProvider(ctx, tenantID, Provider(*req.Provider)) })
	}
	if req.CustomPrompt != nil {
		ops = append(ops, func() error { return h.service.SetCustomPrompt(ctx, tenantID, *req.CustomPrompt) })
	}
	if req.AnalyzedChannelIDs != nil {
		ops = append(ops, func() error { return h.service.SetAnalyzedChannels(ctx, tenantID, *req.AnalyzedChannelIDs) })
	}
	if req.CommunityRules != nil {
		ops = append(ops, func() error { return h.service.SetCommunityRules(ctx, tenantID, *req.CommunityRules) })
	}
	if req.AdminRoleIDs != nil {
		ops = append(ops, func() error { return h.service.SetAdminRoles(ctx, tenantID, *req.AdminRoleIDs) })
	}
	if req.Settings != nil {
		ops = append(ops, func() error { return h.service.UpdateSettings(ctx, tenantID, *req.Settings) })
	}
	for _, apply := range ops {
		if err := apply(); err != nil {
			h.fail(w, r, "patch config", err)
			return
		}
	}

	cfg, err := h.service.GetConfig(ctx, tenantID)
	if err != nil {
		h.fail(w, r, "patch config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// decode parses and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	if err := h.validator.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, "missing or invalid field: "+verrs[0].Field())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}

// fail maps service errors to HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrNotFound):
		writeError(w, http.StatusNotFound, "binding not found")
	case errors.Is(err, shared.ErrPersistence):
		h.logger.Error(op, slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "change could not be persisted")
	default:
		h.logger.Error(op, slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
