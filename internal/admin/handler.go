package admin

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"memberd/internal/account/models"
	"memberd/internal/eventlog"
	"memberd/internal/platform/middleware"
	"memberd/internal/transport/http/json"
	"memberd/internal/transport/http/shared"
	dErrors "memberd/pkg/domain-errors"
)

// Handler exposes admin operations over HTTP. All routes assume the admin
// middleware already ran.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(service *Service, opts ...HandlerOption) *Handler {
	h := &Handler{service: service, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mount registers the admin routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/dashboard", h.dashboard)
	r.Get("/users", h.listAccounts)
	r.Get("/users/{user_id}", h.getAccount)
	r.Put("/users/{user_id}", h.updateAccount)
	r.Delete("/users/{user_id}", h.deleteAccount)
	r.Get("/users/{user_id}/events", h.accountEvents)
	r.Post("/impersonate/{user_id}", h.impersonate)
	r.Get("/events", h.listEvents)
}

// MountSession registers the admin routes that run under a plain
// authenticated session. Stopping impersonation lives here: the session's
// effective identity is the impersonated member, so the admin middleware
// would wrongly reject it.
func (h *Handler) MountSession(r chi.Router) {
	r.Post("/admin/stop-impersonate", h.stopImpersonate)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.GetDashboard(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, dashboard)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ListFilter{
		Search:    q.Get("search"),
		IsAdmin:   boolParam(q.Get("is_admin")),
		IsPremium: boolParam(q.Get("is_premium")),
		Limit:     intParam(q.Get("limit")),
		Offset:    intParam(q.Get("offset")),
	}

	page, err := h.service.ListAccounts(r.Context(), filter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	targetID, ok := pathID(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetAccount(r.Context(), targetID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	targetID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	session := middleware.GetSession(r.Context())
	view, err := h.service.UpdateAccount(r.Context(), session.Subject().ID, targetID, req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	targetID, ok := pathID(w, r)
	if !ok {
		return
	}

	session := middleware.GetSession(r.Context())
	if err := h.service.DeleteAccount(r.Context(), session.Subject().ID, targetID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) impersonate(w http.ResponseWriter, r *http.Request) {
	targetID, ok := pathID(w, r)
	if !ok {
		return
	}

	session := middleware.GetSession(r.Context())
	resp, err := h.service.Impersonate(r.Context(), session, targetID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) stopImpersonate(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	resp, err := h.service.StopImpersonate(r.Context(), session)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, page, err := eventQuery(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	events, err := h.service.ListEvents(r.Context(), filter, page)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) accountEvents(w http.ResponseWriter, r *http.Request) {
	targetID, ok := pathID(w, r)
	if !ok {
		return
	}

	filter, page, err := eventQuery(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	filter.AccountID = &targetID

	events, err := h.service.ListEvents(r.Context(), filter, page)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, events)
}

func eventQuery(r *http.Request) (eventlog.Filter, eventlog.Page, error) {
	q := r.URL.Query()
	filter := eventlog.Filter{
		Action:       q.Get("action"),
		ActionPrefix: q.Get("action_prefix"),
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filter, eventlog.Page{}, dErrors.New(dErrors.CodeBadRequest, "from must be an RFC 3339 timestamp")
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filter, eventlog.Page{}, dErrors.New(dErrors.CodeBadRequest, "to must be an RFC 3339 timestamp")
		}
		filter.To = t
	}
	page := eventlog.Page{Limit: intParam(q.Get("limit")), Offset: intParam(q.Get("offset"))}
	return filter, page, nil
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "user id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func boolParam(raw string) *bool {
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &value
}

func intParam(raw string) int {
	value, _ := strconv.Atoi(raw)
	return value
}
