// Package handler exposes the invitation endpoints: issuing tickets and
// redeeming them into memberships.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	directorymodels "rollcall/internal/directory/models"
	"rollcall/internal/invite/models"
	"rollcall/internal/platform/middleware"
	"rollcall/internal/transport/http/shared"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/requestcontext"
)

// Service defines the invitation operations the handler needs.
type Service interface {
	Issue(ctx context.Context, orgID id.OrgID, inviterID id.SubjectID, role directorymodels.Role, email string) (*models.IssueResult, error)
	InviteURL(ticket *models.Ticket, token string) string
	Redeem(ctx context.Context, ticketID id.TicketID, orgID id.OrgID, presentedToken string, subjectID id.SubjectID) (*models.RedeemResult, error)
	Sweep(ctx context.Context) (int64, error)
}

// Handler handles invitation endpoints.
type Handler struct {
	logger  *slog.Logger
	invites Service
}

// New creates an invitation Handler.
func New(invites Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, invites: invites}
}

// Register registers the invitation routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/invitations", h.handleIssue)
	r.Post("/invitations/redeem", h.handleRedeem)
	r.Post("/invitations/sweep", h.handleSweep)
}

type issueRequest struct {
	OrgID string `json:"org_id"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

type ticketResponse struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Role      string    `json:"role"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type issueResponse struct {
	Ticket    ticketResponse `json:"ticket"`
	Token     string         `json:"token,omitempty"`
	InviteURL string         `json:"invite_url"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	inviterID, err := id.ParseSubjectID(middleware.GetSubjectID(ctx))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authenticated subject is not recognized"))
		return
	}

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	orgID, err := id.ParseOrgID(req.OrgID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid org id"))
		return
	}

	result, err := h.invites.Issue(ctx, orgID, inviterID, directorymodels.Role(req.Role), req.Email)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logError(ctx, "failed to issue invitation", err)
		}
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, issueResponse{
		Ticket:    toTicketResponse(result.Ticket),
		Token:     result.Token,
		InviteURL: h.invites.InviteURL(result.Ticket, result.Token),
	})
}

type redeemRequest struct {
	OrgID    string `json:"org_id"`
	TicketID string `json:"ticket_id"`
	Token    string `json:"token,omitempty"`
}

type redeemResponse struct {
	Status     string `json:"status"`
	Membership struct {
		ID        string    `json:"id"`
		SubjectID string    `json:"subject_id"`
		OrgID     string    `json:"org_id"`
		Role      string    `json:"role"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"membership"`
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjectID, err := id.ParseSubjectID(middleware.GetSubjectID(ctx))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authenticated subject is not recognized"))
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	orgID, err := id.ParseOrgID(req.OrgID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid org id"))
		return
	}
	ticketID, err := id.ParseTicketID(req.TicketID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid ticket id"))
		return
	}

	result, err := h.invites.Redeem(ctx, ticketID, orgID, req.Token, subjectID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logError(ctx, "failed to redeem invitation", err)
		}
		shared.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Status == models.RedeemStatusAlreadyMember {
		status = http.StatusOK
	}
	resp := redeemResponse{Status: string(result.Status)}
	resp.Membership.ID = result.Membership.ID.String()
	resp.Membership.SubjectID = result.Membership.SubjectID.String()
	resp.Membership.OrgID = result.Membership.OrgID.String()
	resp.Membership.Role = string(result.Membership.Role)
	resp.Membership.CreatedAt = result.Membership.CreatedAt
	shared.WriteJSON(w, status, resp)
}

type sweepResponse struct {
	Removed int64 `json:"removed"`
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	removed, err := h.invites.Sweep(ctx)
	if err != nil {
		h.logError(ctx, "failed to sweep tickets", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sweepResponse{Removed: removed})
}

func toTicketResponse(ticket *models.Ticket) ticketResponse {
	return ticketResponse{
		ID:        ticket.ID.String(),
		OrgID:     ticket.OrgID.String(),
		Role:      string(ticket.Role),
		Email:     ticket.Email,
		CreatedAt: ticket.CreatedAt,
		ExpiresAt: ticket.ExpiresAt,
	}
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}
