// Package service implements the invitation ledger: issuing organization
// admission tickets and redeeming them into memberships, exactly once per
// subject.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	directorymodels "rollcall/internal/directory/models"
	"rollcall/internal/history"
	"rollcall/internal/invite/metrics"
	"rollcall/internal/invite/models"
	"rollcall/internal/invite/store"
	"rollcall/internal/storage"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/requestcontext"
	"rollcall/pkg/secrets"
)

var tracer = otel.Tracer("rollcall/internal/invite")

// Directory is the slice of the directory the ledger needs: resolving the
// redeeming subject and granting membership.
type Directory interface {
	FindSubject(ctx context.Context, subjectID id.SubjectID) (*directorymodels.Subject, error)
	FindMembership(ctx context.Context, subjectID id.SubjectID, orgID id.OrgID) (*directorymodels.Membership, error)
	CreateMembership(ctx context.Context, membership *directorymodels.Membership) error
}

// Service issues, redeems, and sweeps invitation tickets.
type Service struct {
	store     store.Store
	tx        storage.Tx
	directory Directory
	baseURL   string
	recorder  history.Recorder
	logger    *slog.Logger
	metrics   *metrics.Metrics
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

// New constructs the invitation Service. baseURL is the externally reachable
// prefix rendered into invitation URLs.
func New(st store.Store, tx storage.Tx, directory Directory, baseURL string, opts ...Option) *Service {
	s := &Service{
		store:     st,
		tx:        tx,
		directory: directory,
		baseURL:   baseURL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates an invitation ticket. With an email the ticket is bound to
// that identity and the live (org, email) pair must be unique: an unexpired
// duplicate is a conflict, an expired one is replaced transparently. Without
// an email the ticket is link-style and carries a random secret, returned in
// plaintext exactly once.
func (s *Service) Issue(ctx context.Context, orgID id.OrgID, inviterID id.SubjectID, role directorymodels.Role, email string) (*models.IssueResult, error) {
	s.sweepOpportunistically(ctx)

	ticket, err := models.NewTicket(id.NewTicketID(), orgID, inviterID, role, email, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	var token string
	if ticket.IsLink() {
		token, err = secrets.Generate()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate invitation token")
		}
		ticket.TokenHash, err = secrets.Hash(token)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash invitation token")
		}
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if !ticket.IsLink() {
			existing, findErr := s.store.FindByEmail(txCtx, orgID, email)
			switch {
			case findErr == nil:
				if !existing.Expired(ticket.CreatedAt) {
					s.metrics.IncrementIssueConflict()
					return dErrors.New(dErrors.CodeConflict, "a live invitation already exists for this email")
				}
				if delErr := s.store.Delete(txCtx, existing.ID); delErr != nil {
					return dErrors.Wrap(delErr, dErrors.CodeInternal, "failed to replace expired invitation")
				}
			case !errors.Is(findErr, sentinel.ErrNotFound):
				return dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to check for existing invitation")
			}
		}
		if createErr := s.store.Create(txCtx, ticket); createErr != nil {
			if errors.Is(createErr, sentinel.ErrConflict) {
				s.metrics.IncrementIssueConflict()
				return dErrors.New(dErrors.CodeConflict, "a live invitation already exists for this email")
			}
			return dErrors.Wrap(createErr, dErrors.CodeInternal, "failed to create invitation ticket")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := "email"
	if ticket.IsLink() {
		kind = "link"
	}
	s.metrics.IncrementIssued(kind)
	s.appendHistory(ctx, history.KindTicketIssued, inviterID, orgID)
	s.logger.InfoContext(ctx, "invitation ticket issued",
		"ticket_id", ticket.ID.String(),
		"org_id", orgID.String(),
		"kind", kind,
	)
	return &models.IssueResult{Ticket: ticket, Token: token}, nil
}

// InviteURL renders the shareable invitation URL. token is empty for
// email-bound tickets.
func (s *Service) InviteURL(ticket *models.Ticket, token string) string {
	values := url.Values{}
	values.Set("org", ticket.OrgID.String())
	values.Set("ticket", ticket.ID.String())
	if token != "" {
		values.Set("token", token)
	}
	return fmt.Sprintf("%s/invites/redeem?%s", s.baseURL, values.Encode())
}

// Redeem turns a ticket into a membership for the subject. The whole check
// sequence runs in one transaction; the membership uniqueness constraint is
// the arbiter under concurrency, and a lost grant race folds into the
// AlreadyMember outcome carrying the existing membership.
func (s *Service) Redeem(ctx context.Context, ticketID id.TicketID, orgID id.OrgID, presentedToken string, subjectID id.SubjectID) (*models.RedeemResult, error) {
	ctx, span := tracer.Start(ctx, "invite.Redeem",
		trace.WithAttributes(attribute.String("ticket_id", ticketID.String())))
	defer span.End()

	var result *models.RedeemResult
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		ticket, err := s.store.Find(txCtx, ticketID, orgID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				// A consumed single-use ticket leaves the membership as its
				// only trace. A retried redemption by a subject who already
				// holds one reports the idempotent outcome, not an unknown
				// ticket.
				existing, findErr := s.directory.FindMembership(txCtx, subjectID, orgID)
				if findErr == nil {
					result = &models.RedeemResult{Status: models.RedeemStatusAlreadyMember, Membership: existing}
					return nil
				}
				if !errors.Is(findErr, sentinel.ErrNotFound) {
					return dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to check membership")
				}
				s.metrics.IncrementRedeemRejection("not_found")
				return dErrors.New(dErrors.CodeNotFound, "ticket not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ticket")
		}

		if ticket.TokenHash != "" {
			if presentedToken == "" || secrets.Verify(presentedToken, ticket.TokenHash) != nil {
				s.metrics.IncrementRedeemRejection("token_invalid")
				return dErrors.New(dErrors.CodeValidation, "invitation token invalid")
			}
		}

		subject, err := s.directory.FindSubject(txCtx, subjectID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "subject not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve subject")
		}
		if ticket.Email != "" && ticket.Email != subject.Email {
			s.metrics.IncrementRedeemRejection("identity_mismatch")
			return dErrors.New(dErrors.CodeForbidden, "invitation is addressed to a different identity")
		}

		now := requestcontext.Now(txCtx)
		if ticket.Expired(now) {
			if delErr := s.store.Delete(txCtx, ticket.ID); delErr != nil {
				return dErrors.Wrap(delErr, dErrors.CodeInternal, "failed to remove expired ticket")
			}
			s.metrics.IncrementRedeemRejection("expired")
			return dErrors.New(dErrors.CodeExpired, "ticket expired")
		}

		existing, err := s.directory.FindMembership(txCtx, subjectID, orgID)
		if err == nil {
			if !ticket.IsLink() {
				if delErr := s.store.Delete(txCtx, ticket.ID); delErr != nil {
					return dErrors.Wrap(delErr, dErrors.CodeInternal, "failed to consume ticket")
				}
			}
			result = &models.RedeemResult{Status: models.RedeemStatusAlreadyMember, Membership: existing}
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check membership")
		}

		membership := &directorymodels.Membership{
			ID:        id.NewMembershipID(),
			SubjectID: subjectID,
			OrgID:     orgID,
			Role:      ticket.Role,
			CreatedAt: now,
		}
		if err := s.directory.CreateMembership(txCtx, membership); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				winner, findErr := s.directory.FindMembership(txCtx, subjectID, orgID)
				if findErr != nil {
					return dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to re-read membership after lost race")
				}
				if !ticket.IsLink() {
					if delErr := s.store.Delete(txCtx, ticket.ID); delErr != nil {
						return dErrors.Wrap(delErr, dErrors.CodeInternal, "failed to consume ticket")
					}
				}
				result = &models.RedeemResult{Status: models.RedeemStatusAlreadyMember, Membership: winner}
				return nil
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create membership")
		}

		if !ticket.IsLink() {
			if delErr := s.store.Delete(txCtx, ticket.ID); delErr != nil {
				return dErrors.Wrap(delErr, dErrors.CodeInternal, "failed to consume ticket")
			}
		}
		result = &models.RedeemResult{Status: models.RedeemStatusRedeemed, Membership: membership}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.IncrementRedeemed(string(result.Status))
	if result.Status == models.RedeemStatusRedeemed {
		s.appendHistory(ctx, history.KindTicketRedeemed, subjectID, orgID)
	}
	span.SetAttributes(attribute.String("outcome", string(result.Status)))
	return result, nil
}

// Sweep deletes every expired ticket. It is safe to run concurrently and
// redundantly; correctness never depends on it.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	removed, err := s.store.DeleteExpired(ctx, requestcontext.Now(ctx))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep expired tickets")
	}
	s.metrics.AddSwept(removed)
	if removed > 0 {
		s.logger.InfoContext(ctx, "swept expired invitation tickets", "removed", removed)
	}
	return removed, nil
}

func (s *Service) sweepOpportunistically(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.WarnContext(ctx, "opportunistic ticket sweep failed", "error", err)
	}
}

func (s *Service) appendHistory(ctx context.Context, kind history.Kind, subjectID id.SubjectID, orgID id.OrgID) {
	if s.recorder == nil {
		return
	}
	event := history.Event{
		Kind:       kind,
		SubjectID:  subjectID,
		OrgID:      orgID,
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
