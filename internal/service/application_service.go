package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/memberhq/be-board-approvals/internal/errors"
	"github.com/memberhq/be-board-approvals/internal/repository"
)

// ApplicationService handles the applicant-facing application lifecycle up to
// the point where the board review workflow takes over.
type ApplicationService struct {
	applications *repository.ApplicationRepository
	members      *repository.MemberRepository
	notifier     Notifier
	log          zerolog.Logger
}

// NewApplicationService creates a new ApplicationService.
func NewApplicationService(
	applications *repository.ApplicationRepository,
	members *repository.MemberRepository,
	notifier Notifier,
	log zerolog.Logger,
) *ApplicationService {
	return &ApplicationService{
		applications: applications,
		members:      members,
		notifier:     notifier,
		log:          log,
	}
}

// CreateApplicationRequest carries the applicant's form data.
type CreateApplicationRequest struct {
	ApplicantID string
	FullName    string
	Email       string
	Motivation  string
}

// CreateApplication stores a new application in DRAFT.
func (s *ApplicationService) CreateApplication(ctx context.Context, req *CreateApplicationRequest) (*repository.Application, error) {
	if req.ApplicantID == "" {
		return nil, errors.InvalidInput("applicant_id", "applicant id is required")
	}
	if strings.TrimSpace(req.FullName) == "" {
		return nil, errors.InvalidInput("full_name", "full name is required")
	}
	if !strings.Contains(req.Email, "@") {
		return nil, errors.InvalidInput("email", "a valid email address is required")
	}

	app := &repository.Application{
		ApplicantID: req.ApplicantID,
		FullName:    strings.TrimSpace(req.FullName),
		Email:       strings.TrimSpace(req.Email),
		Motivation:  strings.TrimSpace(req.Motivation),
		Status:      repository.ApplicationStatusDraft,
	}
	if err := s.applications.Create(ctx, app); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("application_id", app.ID).
		Str("applicant_id", app.ApplicantID).
		Msg("Application created")

	return app, nil
}

// GetApplication loads one application.
func (s *ApplicationService) GetApplication(ctx context.Context, id string) (*repository.Application, error) {
	return s.applications.GetByID(ctx, id)
}

// ListApplications lists applications, optionally filtered by status.
func (s *ApplicationService) ListApplications(ctx context.Context, status repository.ApplicationStatus) ([]*repository.Application, error) {
	return s.applications.ListByStatus(ctx, status)
}

// UpdateDraft lets the applicant revise their own draft.
func (s *ApplicationService) UpdateDraft(ctx context.Context, id, callerID, fullName, email, motivation string) (*repository.Application, error) {
	app, err := s.applications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.assertOwner(app, callerID); err != nil {
		return nil, err
	}
	if app.Status != repository.ApplicationStatusDraft {
		return nil, errors.New(errors.ErrCodeInvalidStatus,
			fmt.Sprintf("cannot edit application with status '%s'", app.Status))
	}
	if strings.TrimSpace(fullName) == "" {
		return nil, errors.InvalidInput("full_name", "full name is required")
	}
	if !strings.Contains(email, "@") {
		return nil, errors.InvalidInput("email", "a valid email address is required")
	}

	return s.applications.UpdateDraft(ctx, id,
		strings.TrimSpace(fullName), strings.TrimSpace(email), strings.TrimSpace(motivation))
}

// Submit moves the applicant's draft to SUBMITTED and tells the admins a new
// application is waiting for a review roster.
func (s *ApplicationService) Submit(ctx context.Context, id, callerID string) (*repository.Application, error) {
	app, err := s.applications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.assertOwner(app, callerID); err != nil {
		return nil, err
	}
	if app.Status != repository.ApplicationStatusDraft {
		return nil, errors.New(errors.ErrCodeInvalidStatus,
			fmt.Sprintf("cannot submit application with status '%s'", app.Status))
	}

	app, err = s.applications.UpdateStatus(ctx, id, repository.ApplicationStatusSubmitted)
	if err != nil {
		return nil, err
	}

	if recipients := s.memberIDsByRole(ctx, "admin"); len(recipients) > 0 {
		s.notifier.PublishApplicationEvent(ctx, EventApplicationSubmitted, app, recipients, nil)
	}

	s.log.Info().
		Str("application_id", app.ID).
		Str("applicant_id", app.ApplicantID).
		Msg("Application submitted")

	return app, nil
}

// WithdrawDraft deletes the applicant's own draft. Applications that entered
// review are part of the audit trail and cannot be withdrawn.
func (s *ApplicationService) WithdrawDraft(ctx context.Context, id, callerID string) error {
	app, err := s.applications.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.assertOwner(app, callerID); err != nil {
		return err
	}
	if app.Status != repository.ApplicationStatusDraft {
		return errors.New(errors.ErrCodeInvalidStatus,
			fmt.Sprintf("cannot withdraw application with status '%s'", app.Status))
	}

	if err := s.applications.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().
		Str("application_id", id).
		Str("applicant_id", callerID).
		Msg("Draft application withdrawn")

	return nil
}

// BoardRoster returns the ids of all members holding the board_member role.
func (s *ApplicationService) BoardRoster(ctx context.Context) ([]string, error) {
	members, err := s.members.ListByRole(ctx, "board_member")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (s *ApplicationService) assertOwner(app *repository.Application, callerID string) error {
	if app.ApplicantID != callerID {
		return errors.New(errors.ErrCodeUnauthorized, "only the applicant can act on this application")
	}
	return nil
}

func (s *ApplicationService) memberIDsByRole(ctx context.Context, role string) []string {
	members, err := s.members.ListByRole(ctx, role)
	if err != nil {
		s.log.Warn().Err(err).Str("role", role).Msg("Could not resolve notification recipients")
		return nil
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}
