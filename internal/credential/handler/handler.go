// Package handler exposes the credential endpoints: issuing the caller's
// scannable credential, validating a presented payload, and serving rendered
// images behind signed URLs.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/blob"
	"rollcall/internal/credential/models"
	"rollcall/internal/platform/middleware"
	"rollcall/internal/transport/http/shared"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/requestcontext"
)

// Service defines the credential operations the handler needs.
type Service interface {
	GetOrCreate(ctx context.Context, subjectID id.SubjectID) (*models.Credential, error)
	Validate(ctx context.Context, payload string) (*models.Credential, error)
	ImageURL(ctx context.Context, credential *models.Credential) (string, error)
}

// Handler handles credential endpoints.
type Handler struct {
	logger      *slog.Logger
	credentials Service
	blobs       blob.Store
	signer      *blob.URLSigner
}

// New creates a credential Handler.
func New(credentials Service, blobs blob.Store, signer *blob.URLSigner, logger *slog.Logger) *Handler {
	return &Handler{
		logger:      logger,
		credentials: credentials,
		blobs:       blobs,
		signer:      signer,
	}
}

// Register registers the authenticated credential routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials", h.handleGetOrCreate)
	r.Post("/credentials/validate", h.handleValidate)
}

// RegisterPublic registers the image route. Access control is the signed URL
// token itself, so the route sits outside the bearer-auth chain.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/credentials/images/{key}", h.handleImage)
}

type credentialResponse struct {
	SubjectID string    `json:"subject_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token"`
	ImageURL  string    `json:"image_url,omitempty"`
}

func (h *Handler) handleGetOrCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjectID, err := id.ParseSubjectID(middleware.GetSubjectID(ctx))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authenticated subject is not recognized"))
		return
	}

	credential, err := h.credentials.GetOrCreate(ctx, subjectID)
	if err != nil {
		h.logError(ctx, "failed to issue credential", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, h.toResponse(ctx, credential))
}

type validateRequest struct {
	Payload string `json:"payload"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Payload == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	credential, err := h.credentials.Validate(ctx, req.Payload)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, h.toResponse(ctx, credential))
}

func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key, err := h.signer.Verify(r.URL.Query().Get("token"), requestcontext.Now(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if key != chi.URLParam(r, "key") {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "token does not grant access to this image"))
		return
	}

	data, contentType, err := h.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "image not found"))
			return
		}
		h.logError(ctx, "failed to load credential image", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to load image"))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, no-store")
	_, _ = w.Write(data)
}

func (h *Handler) toResponse(ctx context.Context, credential *models.Credential) credentialResponse {
	resp := credentialResponse{
		SubjectID: credential.SubjectID.String(),
		IssuedAt:  credential.IssuedAt,
		ExpiresAt: credential.ExpiresAt,
		Token:     credential.Token,
	}
	if credential.ImageKey != "" {
		if imageURL, err := h.credentials.ImageURL(ctx, credential); err == nil {
			resp.ImageURL = imageURL
		}
	}
	return resp
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}
