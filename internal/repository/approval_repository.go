package repository

import (
	"context"
	"sort"
	"time"

	"github.com/memberhq/be-board-approvals/internal/docstore"
	"github.com/memberhq/be-board-approvals/internal/errors"
)

// ApprovalRepository manages the per-board-member vote slots. Slots are
// created in bulk at review start and acted on exactly once; they form the
// permanent audit trail and are never deleted.
type ApprovalRepository struct {
	store docstore.Store
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(store docstore.Store) *ApprovalRepository {
	return &ApprovalRepository{store: store}
}

// CreateBatch inserts one PENDING slot per board member. The store offers no
// multi-document transaction, so a mid-batch failure leaves earlier slots in
// place; callers surface the error and the review is not considered started.
func (r *ApprovalRepository) CreateBatch(ctx context.Context, applicationID string, boardMemberIDs []string) ([]*Approval, error) {
	now := time.Now().UTC()
	approvals := make([]*Approval, 0, len(boardMemberIDs))

	for _, memberID := range boardMemberIDs {
		doc := docstore.Document{
			"application_id": applicationID,
			"approver_id":    memberID,
			"status":         string(ApprovalStatusPending),
			"sequence":       0,
			"created_at":     now.Format(time.RFC3339Nano),
		}

		created, err := r.store.Create(ctx, CollectionApprovals, doc)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval slot")
		}
		approvals = append(approvals, approvalFromDoc(created))
	}
	return approvals, nil
}

// GetByMember returns the member's slot on an application, or nil when the
// member was never part of the review roster.
func (r *ApprovalRepository) GetByMember(ctx context.Context, applicationID, approverID string) (*Approval, error) {
	docs, err := r.store.Query(ctx, CollectionApprovals, map[string]any{
		"application_id": applicationID,
		"approver_id":    approverID,
	}, 1)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to look up approval slot")
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return approvalFromDoc(docs[0]), nil
}

// ListByApplication returns every slot on an application, cast votes first in
// sequence order, pending slots after.
func (r *ApprovalRepository) ListByApplication(ctx context.Context, applicationID string) ([]*Approval, error) {
	docs, err := r.store.Query(ctx, CollectionApprovals, map[string]any{
		"application_id": applicationID,
	}, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approvals")
	}

	approvals := make([]*Approval, 0, len(docs))
	for _, doc := range docs {
		approvals = append(approvals, approvalFromDoc(doc))
	}
	sort.Slice(approvals, func(i, j int) bool {
		a, b := approvals[i], approvals[j]
		if a.Cast() != b.Cast() {
			return a.Cast()
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.ApproverID < b.ApproverID
	})
	return approvals, nil
}

// ListByApprover returns every slot assigned to a board member across all
// applications.
func (r *ApprovalRepository) ListByApprover(ctx context.Context, approverID string) ([]*Approval, error) {
	docs, err := r.store.Query(ctx, CollectionApprovals, map[string]any{
		"approver_id": approverID,
	}, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approvals for member")
	}

	approvals := make([]*Approval, 0, len(docs))
	for _, doc := range docs {
		approvals = append(approvals, approvalFromDoc(doc))
	}
	return approvals, nil
}

// ListPendingByApprover returns the member's open slots only.
func (r *ApprovalRepository) ListPendingByApprover(ctx context.Context, approverID string) ([]*Approval, error) {
	docs, err := r.store.Query(ctx, CollectionApprovals, map[string]any{
		"approver_id": approverID,
		"status":      string(ApprovalStatusPending),
	}, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending approvals")
	}

	approvals := make([]*Approval, 0, len(docs))
	for _, doc := range docs {
		approvals = append(approvals, approvalFromDoc(doc))
	}
	return approvals, nil
}

// NextSequence returns max(sequence)+1 across all slots on an application,
// giving each cast vote a total order independent of wall-clock skew.
func (r *ApprovalRepository) NextSequence(ctx context.Context, applicationID string) (int, error) {
	docs, err := r.store.Query(ctx, CollectionApprovals, map[string]any{
		"application_id": applicationID,
	}, 0)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to compute vote sequence")
	}

	maxSeq := 0
	for _, doc := range docs {
		if seq := doc.Int("sequence"); seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq + 1, nil
}

// RecordVote stamps the outcome onto a slot: action, terminal status,
// sequence, notes and the cast timestamp, all in one write.
func (r *ApprovalRepository) RecordVote(ctx context.Context, approval *Approval) error {
	patch := docstore.Document{
		"status":       string(approval.Status),
		"action":       string(approval.Action),
		"sequence":     approval.Sequence,
		"notes":        approval.Notes,
		"vote_cast_at": timeField(approval.VoteCastAt),
	}

	if _, err := r.store.Update(ctx, CollectionApprovals, approval.ID, patch); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to record vote")
	}
	return nil
}
