// Package handler exposes the scan session endpoints: session lifecycle,
// recording scans, and claiming the quorum reward.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/platform/middleware"
	"rollcall/internal/scan/models"
	"rollcall/internal/transport/http/shared"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/requestcontext"
)

// Service defines the scan operations the handler needs.
type Service interface {
	CreateSession(ctx context.Context, orgID id.OrgID, purpose string) (*models.Session, error)
	GetSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	CloseSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	RecordScan(ctx context.Context, sessionID id.SessionID, payload string) (*models.ScanOutcome, error)
	ListRecords(ctx context.Context, sessionID id.SessionID) ([]*models.Record, error)
	ClaimReward(ctx context.Context, sessionID id.SessionID, subjectID id.SubjectID) (*models.ClaimResult, error)
}

// Handler handles scan session endpoints.
type Handler struct {
	logger *slog.Logger
	scans  Service
}

// New creates a scan Handler.
func New(scans Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, scans: scans}
}

// Register registers the scan session routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/scan-sessions", h.handleCreateSession)
	r.Get("/scan-sessions/{sessionID}", h.handleGetSession)
	r.Post("/scan-sessions/{sessionID}/close", h.handleCloseSession)
	r.Post("/scan-sessions/{sessionID}/scans", h.handleRecordScan)
	r.Get("/scan-sessions/{sessionID}/scans", h.handleListRecords)
	r.Post("/scan-sessions/{sessionID}/claim", h.handleClaimReward)
}

type createSessionRequest struct {
	OrgID   string `json:"org_id"`
	Purpose string `json:"purpose"`
}

type sessionResponse struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	Purpose   string     `json:"purpose"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	orgID, err := id.ParseOrgID(req.OrgID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid org id"))
		return
	}

	session, err := h.scans.CreateSession(ctx, orgID, req.Purpose)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logError(ctx, "failed to create scan session", err)
		}
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.scans.GetSession(r.Context(), sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.scans.CloseSession(r.Context(), sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSessionResponse(session))
}

type recordScanRequest struct {
	Payload string `json:"payload"`
}

type recordResponse struct {
	SessionID string    `json:"session_id"`
	SubjectID string    `json:"subject_id"`
	ScannedAt time.Time `json:"scanned_at"`
}

type scanOutcomeResponse struct {
	Status string         `json:"status"`
	Record recordResponse `json:"record"`
}

func (h *Handler) handleRecordScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req recordScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Payload == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	outcome, err := h.scans.RecordScan(ctx, sessionID, req.Payload)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logError(ctx, "failed to record scan", err)
		}
		shared.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if outcome.Status == models.OutcomeAlreadyRecorded {
		status = http.StatusOK
	}
	shared.WriteJSON(w, status, scanOutcomeResponse{
		Status: string(outcome.Status),
		Record: toRecordResponse(outcome.Record),
	})
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	records, err := h.scans.ListRecords(r.Context(), sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toRecordResponse(record))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

type claimResponse struct {
	SessionID        string    `json:"session_id"`
	DistinctSubjects int       `json:"distinct_subjects"`
	ClaimedAt        time.Time `json:"claimed_at"`
	AlreadyClaimed   bool      `json:"already_claimed"`
}

func (h *Handler) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	subjectID, err := id.ParseSubjectID(middleware.GetSubjectID(ctx))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authenticated subject is not recognized"))
		return
	}

	result, err := h.scans.ClaimReward(ctx, sessionID, subjectID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logError(ctx, "failed to claim reward", err)
		}
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, claimResponse{
		SessionID:        result.SessionID.String(),
		DistinctSubjects: result.DistinctSubjects,
		ClaimedAt:        result.ClaimedAt,
		AlreadyClaimed:   result.AlreadyClaimed,
	})
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (id.SessionID, bool) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return id.SessionID{}, false
	}
	return sessionID, true
}

func toSessionResponse(session *models.Session) sessionResponse {
	return sessionResponse{
		ID:        session.ID.String(),
		OrgID:     session.OrgID.String(),
		Purpose:   session.Purpose,
		Status:    string(session.Status),
		CreatedAt: session.CreatedAt,
		ClaimedAt: session.ClaimedAt,
	}
}

func toRecordResponse(record *models.Record) recordResponse {
	return recordResponse{
		SessionID: record.SessionID.String(),
		SubjectID: record.SubjectID.String(),
		ScannedAt: record.ScannedAt,
	}
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}
