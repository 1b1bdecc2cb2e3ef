// Package handler exposes the directory endpoints: subject registration and
// membership listings.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/directory/models"
	"rollcall/internal/transport/http/shared"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/requestcontext"
)

// Service defines the directory operations the handler needs.
type Service interface {
	RegisterSubject(ctx context.Context, displayName, email string) (*models.Subject, error)
	GetSubject(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error)
	ListMemberships(ctx context.Context, orgID id.OrgID) ([]*models.Membership, error)
}

// Handler handles directory endpoints.
type Handler struct {
	logger    *slog.Logger
	directory Service
}

// New creates a directory Handler.
func New(directory Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, directory: directory}
}

// Register registers the directory routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/subjects", h.handleRegisterSubject)
	r.Get("/subjects/{subjectID}", h.handleGetSubject)
	r.Get("/orgs/{orgID}/memberships", h.handleListMemberships)
}

type registerSubjectRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type subjectResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *Handler) handleRegisterSubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	subject, err := h.directory.RegisterSubject(ctx, req.DisplayName, req.Email)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "failed to register subject",
				"request_id", requestcontext.RequestID(ctx),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, toSubjectResponse(subject))
}

func (h *Handler) handleGetSubject(w http.ResponseWriter, r *http.Request) {
	subjectID, err := id.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid subject id"))
		return
	}

	subject, err := h.directory.GetSubject(r.Context(), subjectID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toSubjectResponse(subject))
}

type membershipResponse struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	OrgID     string    `json:"org_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) handleListMemberships(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid org id"))
		return
	}

	memberships, err := h.directory.ListMemberships(r.Context(), orgID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	out := make([]membershipResponse, 0, len(memberships))
	for _, membership := range memberships {
		out = append(out, toMembershipResponse(membership))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func toSubjectResponse(subject *models.Subject) subjectResponse {
	return subjectResponse{
		ID:          subject.ID.String(),
		DisplayName: subject.DisplayName,
		Email:       subject.Email,
		CreatedAt:   subject.CreatedAt,
	}
}

func toMembershipResponse(membership *models.Membership) membershipResponse {
	return membershipResponse{
		ID:        membership.ID.String(),
		SubjectID: membership.SubjectID.String(),
		OrgID:     membership.OrgID.String(),
		Role:      string(membership.Role),
		CreatedAt: membership.CreatedAt,
	}
}
