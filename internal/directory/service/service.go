// Package service exposes the directory operations the core needs: subject
// registration and lookups. Organization and profile-field CRUD beyond this
// is owned by other systems.
package service

import (
	"context"
	"errors"
	"log/slog"

	"rollcall/internal/directory/models"
	"rollcall/internal/directory/store"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/requestcontext"
)

// Service orchestrates subject and membership reads/writes.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs a directory Service.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterSubject creates a member profile.
func (s *Service) RegisterSubject(ctx context.Context, displayName, email string) (*models.Subject, error) {
	subject, err := models.NewSubject(id.NewSubjectID(), displayName, email, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.store.CreateSubject(ctx, subject); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "subject already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register subject")
	}
	return subject, nil
}

// GetSubject loads a subject profile.
func (s *Service) GetSubject(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject id is required")
	}
	subject, err := s.store.FindSubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "subject not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subject")
	}
	return subject, nil
}

// GetSubjectByEmail loads a subject profile by its registered email.
func (s *Service) GetSubjectByEmail(ctx context.Context, email string) (*models.Subject, error) {
	if email == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "email is required")
	}
	subject, err := s.store.FindSubjectByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "subject not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subject")
	}
	return subject, nil
}

// ListMemberships lists an organization's memberships.
func (s *Service) ListMemberships(ctx context.Context, orgID id.OrgID) ([]*models.Membership, error) {
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "org id is required")
	}
	memberships, err := s.store.ListMemberships(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list memberships")
	}
	return memberships, nil
}
