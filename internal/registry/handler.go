package registry

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/acl"
	"github.com/gatekit/gatekit/internal/capability"
	"github.com/gatekit/gatekit/internal/platform/httpx"
	"github.com/gatekit/gatekit/internal/roleset"
	"github.com/gatekit/gatekit/internal/shared"
)

// Handler exposes the registry over HTTP. The caller principal is taken from
// the request context; authenticating it is the environment's job.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/objects", h.allocate)
	r.Route("/objects/{objectID}", func(r chi.Router) {
		r.Get("/", h.describe)
		r.Post("/initialize", h.initialize)
		r.Get("/owner", h.owner)
		r.Post("/owner/transfer", h.transferOwnership)
		r.Post("/owner/renounce", h.renounceOwnership)
		r.Post("/roles/grant", h.grantRole)
		r.Post("/roles/revoke", h.revokeRole)
		r.Post("/roles/renounce", h.renounceRole)
		r.Post("/roles/admin", h.setRoleAdmin)
		r.Get("/roles/{principal}", h.rolesOf)
		r.Get("/roles/{principal}/has", h.hasRole)
		r.Get("/capabilities", h.capabilities)
		r.Get("/capabilities/{capabilityID}", h.supports)
		r.Post("/authorize", h.authorize)
		r.Get("/events", h.events)
	})
}

func (h *Handler) objectID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "objectID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "object id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.Allocate(r.Context())
	if err != nil {
		h.fail(w, "allocate object", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

type initializeRequest struct {
	Owner       string              `json:"owner"`
	EnableRoles bool                `json:"enable_roles"`
	Grants      map[string][]string `json:"grants"`
	RoleNames   map[string]uint8    `json:"role_names"`
}

func (h *Handler) initialize(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	var req initializeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}

	names := make(map[string]roleset.Role, len(req.RoleNames))
	for name, bit := range req.RoleNames {
		names[name] = roleset.Role(bit)
	}
	book, err := roleset.NewBook(names)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	grants := make(map[shared.Principal]roleset.Set, len(req.Grants))
	for principal, tokens := range req.Grants {
		var set roleset.Set
		for _, token := range tokens {
			role, err := acl.ResolveRoleToken(book, token)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			set = set.With(role)
		}
		grants[shared.Principal(principal)] = set
	}

	params := acl.InitParams{
		Owner:       shared.Principal(req.Owner),
		EnableRoles: req.EnableRoles,
		Grants:      grants,
		RoleNames:   names,
	}
	if err := h.service.Initialize(r.Context(), id, h.caller(r), params); err != nil {
		h.fail(w, "initialize object", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) describe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	info, err := h.service.Describe(r.Context(), id)
	if err != nil {
		h.fail(w, "describe object", err)
		return
	}
	httpx.JSON(w, http.StatusOK, info)
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	owner, err := h.service.Owner(r.Context(), id)
	if err != nil {
		h.fail(w, "get owner", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"owner": owner})
}

type transferRequest struct {
	NewOwner string `json:"new_owner" validate:"required"`
}

func (h *Handler) transferOwnership(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.TransferOwnership(r.Context(), id, h.caller(r), shared.Principal(req.NewOwner)); err != nil {
		h.fail(w, "transfer ownership", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) renounceOwnership(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	if err := h.service.RenounceOwnership(r.Context(), id, h.caller(r)); err != nil {
		h.fail(w, "renounce ownership", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roleChangeRequest struct {
	Principal string `json:"principal" validate:"required"`
	Role      string `json:"role" validate:"required"`
}

func (h *Handler) grantRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	var req roleChangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.GrantRole(r.Context(), id, h.caller(r), shared.Principal(req.Principal), req.Role); err != nil {
		h.fail(w, "grant role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	var req roleChangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.RevokeRole(r.Context(), id, h.caller(r), shared.Principal(req.Principal), req.Role); err != nil {
		h.fail(w, "revoke role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type renounceRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) renounceRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	var req renounceRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.RenounceRole(r.Context(), id, h.caller(r), req.Role); err != nil {
		h.fail(w, "renounce role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setRoleAdminRequest struct {
	Role      string `json:"role" validate:"required"`
	AdminRole string `json:"admin_role" validate:"required"`
}

func (h *Handler) setRoleAdmin(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	var req setRoleAdminRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetRoleAdmin(r.Context(), id, h.caller(r), req.Role, req.AdminRole); err != nil {
		h.fail(w, "set role admin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rolesOf(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	principal := shared.Principal(chi.URLParam(r, "principal"))
	set, err := h.service.RolesOf(r.Context(), id, principal)
	if err != nil {
		h.fail(w, "roles of", err)
		return
	}
	bits := make([]int, 0, len(set.Roles()))
	for _, role := range set.Roles() {
		bits = append(bits, int(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"principal": principal,
		"roles":     bits,
		"set":       set,
	})
}

func (h *Handler) hasRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	principal := shared.Principal(chi.URLParam(r, "principal"))
	query := r.URL.Query()
	if role := query.Get("role"); role != "" {
		held, err := h.service.HasRole(r.Context(), id, principal, role)
		if err != nil {
			h.fail(w, "has role", err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"has": held})
		return
	}
	if anyRoles := query["any"]; len(anyRoles) > 0 {
		held, err := h.service.HasAnyRole(r.Context(), id, principal, anyRoles)
		if err != nil {
			h.fail(w, "has any role", err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"has": held})
		return
	}
	httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "provide ?role= or ?any=")
}

func (h *Handler) capabilities(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	caps, err := h.service.Capabilities(r.Context(), id)
	if err != nil {
		h.fail(w, "capabilities", err)
		return
	}
	if caps == nil {
		caps = []capability.ID{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"capabilities": caps})
}

func (h *Handler) supports(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	capID, err := capability.ParseID(chi.URLParam(r, "capabilityID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	supported, err := h.service.Supports(r.Context(), id, capID)
	if err != nil {
		h.fail(w, "supports capability", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"capability": capID,
		"supported":  supported,
	})
}

type authorizeRequest struct {
	Owner    bool     `json:"owner"`
	AnyRoles []string `json:"any_roles"`
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	var req authorizeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	err := h.service.Authorize(r.Context(), id, h.caller(r), AuthorizeRequest{
		Owner:    req.Owner,
		AnyRoles: req.AnyRoles,
	})
	if err != nil {
		h.fail(w, "authorize", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	events, err := h.service.Events(r.Context(), id, limit)
	if err != nil {
		if err == ErrEventLogUnavailable {
			httpx.Problem(w, http.StatusNotImplemented, "Event Log Unavailable", err.Error())
			return
		}
		h.fail(w, "list events", err)
		return
	}
	if events == nil {
		events = []acl.Event{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) caller(r *http.Request) shared.Principal {
	return shared.PrincipalFromContext(r.Context())
}

// decode parses and validates a JSON body, responding on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Debug(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
