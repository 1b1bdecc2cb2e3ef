// Package service implements the credential issuer: time-bounded, scannable
// identity credentials, at most one live credential per subject.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/blob"
	"rollcall/internal/credential/metrics"
	"rollcall/internal/credential/models"
	"rollcall/internal/credential/render"
	"rollcall/internal/credential/store"
	"rollcall/internal/credential/token"
	directorymodels "rollcall/internal/directory/models"
	"rollcall/internal/history"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/requestcontext"
)

// SubjectResolver is the slice of the directory the issuer needs: proof that
// a subject exists at issue and validation time.
type SubjectResolver interface {
	FindSubject(ctx context.Context, subjectID id.SubjectID) (*directorymodels.Subject, error)
}

// Service issues and validates credentials.
type Service struct {
	subjects SubjectResolver
	store    store.Store
	blobs    blob.Store
	codec    *token.Codec
	signer   *blob.URLSigner
	recorder history.Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithHistoryRecorder(recorder history.Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// New constructs the credential Service.
func New(subjects SubjectResolver, st store.Store, blobs blob.Store, codec *token.Codec, signer *blob.URLSigner, opts ...Option) *Service {
	s := &Service{
		subjects: subjects,
		store:    st,
		blobs:    blobs,
		codec:    codec,
		signer:   signer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the subject's live credential, issuing a fresh one only
// when none exists or the previous one has run out. The returned credential
// always has validity remaining: ExpiresAt is strictly after now at the
// moment of return. A row at its exact expiry instant is still presentable
// for validation, but it is replaced here rather than reused.
//
// Concurrency: the store upsert is the compare-and-swap. When two calls race
// to replace the same expired credential, the loser discards its local write
// and returns the winner's row. The loser's rendered image stays behind in
// the blob store as harmless garbage; only the row decides validity.
func (s *Service) GetOrCreate(ctx context.Context, subjectID id.SubjectID) (*models.Credential, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject id is required")
	}
	if _, err := s.subjects.FindSubject(ctx, subjectID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "subject not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve subject")
	}

	now := requestcontext.Now(ctx)

	existing, err := s.store.Find(ctx, subjectID)
	if err == nil && now.Before(existing.ExpiresAt) {
		s.metrics.IncrementReused()
		return existing, nil
	}
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}

	return s.issue(ctx, subjectID, now)
}

func (s *Service) issue(ctx context.Context, subjectID id.SubjectID, now time.Time) (*models.Credential, error) {
	start := time.Now()

	expiresAt := now.Add(models.TTL)
	signed, err := s.codec.Sign(subjectID, now, expiresAt)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign credential")
	}

	png, err := render.QR(signed)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render credential")
	}

	// The blob write happens before and outside the row write. If it fails,
	// no row has changed and the previous state stays fully visible.
	imageKey := uuid.NewString()
	if _, err := s.blobs.Put(ctx, imageKey, png, render.ImageContentType); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential image")
	}

	credential := &models.Credential{
		SubjectID: subjectID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		Token:     signed,
		ImageKey:  imageKey,
	}
	if err := s.store.SaveIfExpired(ctx, credential); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent issuance won. Its row is authoritative; our
			// rendered image becomes unreferenced garbage.
			winner, findErr := s.store.Find(ctx, subjectID)
			if findErr != nil {
				return nil, dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to re-read credential after lost race")
			}
			s.logger.DebugContext(ctx, "credential issuance lost race, returning winner",
				"subject_id", subjectID.String(),
			)
			return winner, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save credential")
	}

	s.metrics.ObserveIssue(start)
	s.appendHistory(ctx, subjectID)
	return credential, nil
}

func (s *Service) appendHistory(ctx context.Context, subjectID id.SubjectID) {
	if s.recorder == nil {
		return
	}
	event := history.Event{
		Kind:       history.KindCredentialIssued,
		SubjectID:  subjectID,
		OccurredAt: requestcontext.Now(ctx),
		Station:    history.StationFrom(requestcontext.UserAgent(ctx), requestcontext.ClientIP(ctx)),
	}
	if err := s.recorder.Append(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to record history event",
			"kind", string(history.KindCredentialIssued),
			"subject_id", subjectID.String(),
			"error", err,
		)
	}
}

// Validate parses a presented wire payload, applies the strict expiry
// boundary, and re-resolves the subject. Expiry equality is valid: a
// credential presented at exactly ExpiresAt passes.
func (s *Service) Validate(ctx context.Context, payload string) (*models.Credential, error) {
	decoded, err := s.codec.Parse(payload)
	if err != nil {
		s.metrics.IncrementValidationFailure("malformed")
		return nil, err
	}

	now := requestcontext.Now(ctx)
	if decoded.Expired(now) {
		s.metrics.IncrementValidationFailure("expired")
		return nil, dErrors.New(dErrors.CodeExpired, "credential expired")
	}

	if _, err := s.subjects.FindSubject(ctx, decoded.SubjectID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementValidationFailure("subject_not_found")
			return nil, dErrors.New(dErrors.CodeNotFound, "subject not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve subject")
	}

	// The stored row carries the image key; when the row has already been
	// replaced or is missing, the payload alone is still authoritative for
	// validity.
	if row, err := s.store.Find(ctx, decoded.SubjectID); err == nil && row.Token == payload {
		return row, nil
	}
	return &models.Credential{
		SubjectID: decoded.SubjectID,
		IssuedAt:  decoded.IssuedAt,
		ExpiresAt: decoded.ExpiresAt,
		Token:     payload,
	}, nil
}

// ImageURL returns a signed, short-lived URL for the credential's rendered
// image.
func (s *Service) ImageURL(ctx context.Context, credential *models.Credential) (string, error) {
	if credential.ImageKey == "" {
		return "", dErrors.New(dErrors.CodeNotFound, "credential has no rendered image")
	}
	now := requestcontext.Now(ctx)
	url, err := s.signer.SignedURL(credential.ImageKey, credential.ExpiresAt.Sub(now), now)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign image url")
	}
	return url, nil
}
