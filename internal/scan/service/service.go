// Package service implements scan sessions: bounded group activities that
// accumulate deduplicated scans and unlock a reward once quorum is met.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	credentialmodels "rollcall/internal/credential/models"
	"rollcall/internal/history"
	"rollcall/internal/scan/metrics"
	"rollcall/internal/scan/models"
	"rollcall/internal/scan/store"
	"rollcall/internal/storage"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/requestcontext"
)

var tracer = otel.Tracer("rollcall/internal/scan")

// CredentialValidator is the slice of the credential issuer the reconciler
// needs: turning a presented wire payload into a validated credential.
type CredentialValidator interface {
	Validate(ctx context.Context, payload string) (*credentialmodels.Credential, error)
}

// MembershipChecker answers whether a subject belongs to an organization.
type MembershipChecker interface {
	HasMembership(ctx context.Context, subjectID id.SubjectID, orgID id.OrgID) (bool, error)
}

// Service manages scan sessions and their records.
type Service struct {
	store       store.Store
	tx          storage.Tx
	credentials CredentialValidator
	memberships MembershipChecker
	recorder    history.Recorder
	logger      *slog.Logger
	metrics     *metrics.Metrics
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

// New constructs the scan Service.
func New(st store.Store, tx storage.Tx, credentials CredentialValidator, memberships MembershipChecker, opts ...Option) *Service {
	s := &Service{
		store:       st,
		tx:          tx,
		credentials: credentials,
		memberships: memberships,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession opens a new active session for the organization.
func (s *Service) CreateSession(ctx context.Context, orgID id.OrgID, purpose string) (*models.Session, error) {
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "org id is required")
	}
	now := requestcontext.Now(ctx)
	session, err := models.NewSession(id.NewSessionID(), orgID, purpose, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}
	s.logger.InfoContext(ctx, "scan session created",
		"session_id", session.ID.String(),
		"org_id", orgID.String(),
	)
	return session, nil
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, err := s.store.FindSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return session, nil
}

// CloseSession transitions an active session to closed. Closing a session
// that is already closed is a conflict, not an idempotent success: the caller
// is told their view of the session was stale.
func (s *Service) CloseSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	if err := s.store.CloseSession(ctx, sessionID); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeConflict, "session already closed")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to close session")
		}
	}
	return s.GetSession(ctx, sessionID)
}

// RecordScan validates a presented credential against a session and records
// the scan. The load-validate-insert sequence runs in one transaction; the
// (session, subject) uniqueness constraint is the arbiter under concurrency,
// and a lost insert race folds into the AlreadyRecorded outcome carrying the
// winner's record.
func (s *Service) RecordScan(ctx context.Context, sessionID id.SessionID, payload string) (*models.ScanOutcome, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "scan.RecordScan",
		trace.WithAttributes(attribute.String("session_id", sessionID.String())))
	defer span.End()

	var outcome *models.ScanOutcome
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		session, err := s.store.FindSession(txCtx, sessionID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "session not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
		}
		if !session.IsActive() {
			return dErrors.New(dErrors.CodeInvalidInput, "session is closed")
		}

		credential, err := s.credentials.Validate(txCtx, payload)
		if err != nil {
			return err
		}

		member, err := s.memberships.HasMembership(txCtx, credential.SubjectID, session.OrgID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check membership")
		}
		if !member {
			return dErrors.New(dErrors.CodeForbidden, "subject is not a member of the session's organization")
		}

		record := &models.Record{
			SessionID: sessionID,
			SubjectID: credential.SubjectID,
			ScannedAt: requestcontext.Now(txCtx),
		}
		if err := s.store.InsertRecord(txCtx, record); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				existing, findErr := s.store.FindRecord(txCtx, sessionID, credential.SubjectID)
				if findErr != nil {
					return dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to re-read scan record after lost race")
				}
				outcome = &models.ScanOutcome{Status: models.OutcomeAlreadyRecorded, Record: existing}
				return nil
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to insert scan record")
		}
		outcome = &models.ScanOutcome{Status: models.OutcomeRecorded, Record: record}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	switch outcome.Status {
	case models.OutcomeRecorded:
		s.metrics.IncrementRecorded()
		s.appendHistory(ctx, history.KindScanRecorded, outcome.Record.SubjectID, sessionID)
	case models.OutcomeAlreadyRecorded:
		s.metrics.IncrementDeduplicated()
	}
	s.metrics.ObserveRecordScan(start)
	span.SetAttributes(attribute.String("outcome", string(outcome.Status)))
	return outcome, nil
}

// ListRecords returns the session's scan records.
func (s *Service) ListRecords(ctx context.Context, sessionID id.SessionID) ([]*models.Record, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	records, err := s.store.ListRecords(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list scan records")
	}
	return records, nil
}

// ClaimReward claims the session's reward once quorum distinct subjects have
// scanned in. The first claim stamps the claim time; later claims succeed
// idempotently and report the original stamp. Claiming does not close the
// session.
func (s *Service) ClaimReward(ctx context.Context, sessionID id.SessionID, subjectID id.SubjectID) (*models.ClaimResult, error) {
	ctx, span := tracer.Start(ctx, "scan.ClaimReward",
		trace.WithAttributes(attribute.String("session_id", sessionID.String())))
	defer span.End()

	var result *models.ClaimResult
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		session, err := s.store.FindSession(txCtx, sessionID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "session not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
		}

		member, err := s.memberships.HasMembership(txCtx, subjectID, session.OrgID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check membership")
		}
		if !member {
			return dErrors.New(dErrors.CodeForbidden, "subject is not a member of the session's organization")
		}

		count, err := s.store.CountDistinctSubjects(txCtx, sessionID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count scans")
		}
		if count < models.Quorum {
			return dErrors.New(dErrors.CodeValidation, "quorum not met")
		}

		now := requestcontext.Now(txCtx)
		claimedAt, already, err := s.store.MarkClaimed(txCtx, sessionID, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark session claimed")
		}
		result = &models.ClaimResult{
			SessionID:        sessionID,
			DistinctSubjects: count,
			ClaimedAt:        claimedAt,
			AlreadyClaimed:   already,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !result.AlreadyClaimed {
		s.metrics.IncrementRewardClaimed()
		s.appendHistory(ctx, history.KindRewardClaimed, subjectID, sessionID)
	}
	return result, nil
}

func (s *Service) appendHistory(ctx context.Context, kind history.Kind, subjectID id.SubjectID, sessionID id.SessionID) {
	if s.recorder == nil {
		return
	}
	event := history.Event{
		Kind:       kind,
		SubjectID:  subjectID,
		SessionID:  sessionID,
		OccurredAt: requestcontext.Now(ctx),
		Station:    history.StationFrom(requestcontext.UserAgent(ctx), requestcontext.ClientIP(ctx)),
	}
	if err := s.recorder.Append(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to record history event",
			"kind", string(kind),
			"subject_id", subjectID.String(),
			"error", err,
		)
	}
}
