package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/memberhq/be-board-approvals/internal/docstore"
	"github.com/memberhq/be-board-approvals/internal/errors"
)

// ApplicationRepository reads and writes membership applications. Review-state
// writes go through UpdateReviewState, which is conditional on the version the
// caller read.
type ApplicationRepository struct {
	store docstore.Store
}

// NewApplicationRepository creates a new ApplicationRepository.
func NewApplicationRepository(store docstore.Store) *ApplicationRepository {
	return &ApplicationRepository{store: store}
}

// Create inserts a new application and fills in its assigned id.
func (r *ApplicationRepository) Create(ctx context.Context, app *Application) error {
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	app.Version = 1

	doc := docstore.Document{
		"applicant_id":         app.ApplicantID,
		"full_name":            app.FullName,
		"email":                app.Email,
		"motivation":           app.Motivation,
		"status":               string(app.Status),
		"required_approvals":   app.RequiredApprovals,
		"approval_count":       0,
		"rejection_count":      0,
		"approver_ids":         []string{},
		"rejector_ids":         []string{},
		"board_votes":          []string{},
		"pending_board_review": false,
		"version":              app.Version,
		"created_at":           now.Format(time.RFC3339Nano),
		"updated_at":           now.Format(time.RFC3339Nano),
	}

	created, err := r.store.Create(ctx, CollectionApplications, doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create application")
	}
	app.ID = created.String("id")
	return nil
}

// GetByID loads one application by id.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*Application, error) {
	doc, err := r.store.Get(ctx, CollectionApplications, id)
	if stderrors.Is(err, docstore.ErrNotFound) {
		return nil, errors.NotFound("application", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get application")
	}
	return applicationFromDoc(doc), nil
}

// ListByStatus returns applications in the given status. An empty status
// returns every application.
func (r *ApplicationRepository) ListByStatus(ctx context.Context, status ApplicationStatus) ([]*Application, error) {
	filters := map[string]any{}
	if status != "" {
		filters["status"] = string(status)
	}

	docs, err := r.store.Query(ctx, CollectionApplications, filters, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list applications")
	}

	apps := make([]*Application, 0, len(docs))
	for _, doc := range docs {
		apps = append(apps, applicationFromDoc(doc))
	}
	return apps, nil
}

// UpdateDraft patches the applicant-editable fields of a draft.
func (r *ApplicationRepository) UpdateDraft(ctx context.Context, id string, fullName, email, motivation string) (*Application, error) {
	patch := docstore.Document{
		"full_name":  fullName,
		"email":      email,
		"motivation": motivation,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}

	doc, err := r.store.Update(ctx, CollectionApplications, id, patch)
	if stderrors.Is(err, docstore.ErrNotFound) {
		return nil, errors.NotFound("application", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to update application")
	}
	return applicationFromDoc(doc), nil
}

// UpdateStatus sets the lifecycle status outside the voting path (draft
// submission and review start).
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, status ApplicationStatus) (*Application, error) {
	patch := docstore.Document{
		"status":     string(status),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}

	doc, err := r.store.Update(ctx, CollectionApplications, id, patch)
	if stderrors.Is(err, docstore.ErrNotFound) {
		return nil, errors.NotFound("application", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to update application status")
	}
	return applicationFromDoc(doc), nil
}

// StartBoardReview flips an application into UNDER_REVIEW with its review
// policy fields in one write.
func (r *ApplicationRepository) StartBoardReview(ctx context.Context, id string, requiredApprovals int, startedAt time.Time) (*Application, error) {
	patch := docstore.Document{
		"status":                  string(ApplicationStatusUnderReview),
		"pending_board_review":    true,
		"required_approvals":      requiredApprovals,
		"board_review_started_at": startedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":              startedAt.UTC().Format(time.RFC3339Nano),
	}

	doc, err := r.store.Update(ctx, CollectionApplications, id, patch)
	if stderrors.Is(err, docstore.ErrNotFound) {
		return nil, errors.NotFound("application", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to start board review")
	}
	return applicationFromDoc(doc), nil
}

// UpdateReviewState writes every vote-derived field of the application in one
// conditional update keyed on the version the caller read. A lost race is
// reported as a retryable concurrent_modification error.
func (r *ApplicationRepository) UpdateReviewState(ctx context.Context, app *Application, expectedVersion int) error {
	now := time.Now().UTC()
	patch := docstore.Document{
		"status":               string(app.Status),
		"approval_count":       app.ApprovalCount,
		"rejection_count":      app.RejectionCount,
		"approver_ids":         app.ApproverIDs,
		"rejector_ids":         app.RejectorIDs,
		"board_votes":          app.BoardVotes,
		"pending_board_review": app.PendingBoardReview,
		"first_approval_at":    timeField(app.FirstApprovalAt),
		"fully_approved_at":    timeField(app.FullyApprovedAt),
		"version":              expectedVersion + 1,
		"updated_at":           now.Format(time.RFC3339Nano),
	}

	_, err := r.store.UpdateIf(ctx, CollectionApplications, app.ID, patch, map[string]any{
		"version": expectedVersion,
	})
	if stderrors.Is(err, docstore.ErrConditionFailed) {
		return errors.New(errors.ErrCodeConcurrentModification,
			"application was modified concurrently, retry the vote")
	}
	if stderrors.Is(err, docstore.ErrNotFound) {
		return errors.NotFound("application", app.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to persist review state")
	}
	app.Version = expectedVersion + 1
	app.UpdatedAt = now
	return nil
}

// Delete removes a draft application. The workflow never deletes applications
// once they enter review.
func (r *ApplicationRepository) Delete(ctx context.Context, id string) error {
	err := r.store.Delete(ctx, CollectionApplications, id)
	if stderrors.Is(err, docstore.ErrNotFound) {
		return errors.NotFound("application", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete application")
	}
	return nil
}
