// Package handler exposes account operations over HTTP.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"memberd/internal/account/models"
	"memberd/internal/account/service"
	"memberd/internal/platform/middleware"
	"memberd/internal/transport/http/json"
	"memberd/internal/transport/http/shared"
	dErrors "memberd/pkg/domain-errors"
)

type Handler struct {
	service *service.Service
	logger  *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func New(service *service.Service, opts ...Option) *Handler {
	h := &Handler{service: service, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MountPublic registers the unauthenticated account routes on r.
func (h *Handler) MountPublic(r chi.Router) {
	r.Post("/users", h.register)
	r.Post("/users/login", h.login)
	r.Post("/auth/verify-email", h.verifyEmail)
	r.Post("/auth/request-password-reset", h.requestPasswordReset)
	r.Post("/auth/reset-password", h.resetPassword)
}

// MountAuthenticated registers the routes requiring a valid session on r.
func (h *Handler) MountAuthenticated(r chi.Router) {
	r.Get("/users/me", h.me)
	r.Post("/users/me/token", h.refreshToken)
	r.Patch("/users/me", h.updateProfile)
	r.Put("/users/me/password", h.changePassword)
	r.Get("/users/{user_id}", h.publicProfile)
	r.Post("/auth/send-verification-email", h.sendVerificationEmail)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())

	profile, err := h.service.GetProfile(r.Context(), session.Subject().ID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := middleware.GetSession(ctx)

	resp, err := h.service.RefreshToken(ctx, session, middleware.GetRawToken(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())

	var req models.UpdateProfileRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), session.Subject().ID, req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())

	var req models.ChangePasswordRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), session.Subject().ID, req); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) publicProfile(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "user id must be a UUID"))
		return
	}

	profile, err := h.service.GetPublicProfile(r.Context(), accountID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) sendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())

	if err := h.service.SendVerificationEmail(r.Context(), session.Subject().ID); err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyEmailRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.service.VerifyEmail(r.Context(), req); err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req models.RequestPasswordResetRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req); err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "if the address is registered, a reset link has been sent",
	})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req); err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}
