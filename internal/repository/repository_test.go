package repository

import (
	"context"
	"testing"
	"time"

	"github.com/memberhq/be-board-approvals/internal/docstore"
	"github.com/memberhq/be-board-approvals/internal/errors"
)

func seedApplication(t *testing.T, repo *ApplicationRepository) *Application {
	t.Helper()
	app := &Application{
		ApplicantID: "applicant-1",
		FullName:    "Lena Schmidt",
		Email:       "lena@example.org",
		Motivation:  "Keen to volunteer at the annual meetup.",
		Status:      ApplicationStatusDraft,
	}
	if err := repo.Create(context.Background(), app); err != nil {
		t.Fatalf("create application: %v", err)
	}
	return app
}

func TestApplicationRoundTrip(t *testing.T) {
	repo := NewApplicationRepository(docstore.NewMemoryStore())
	app := seedApplication(t, repo)

	if app.ID == "" {
		t.Fatalf("expected generated id")
	}
	if app.Version != 1 {
		t.Fatalf("expected version 1, got %d", app.Version)
	}

	loaded, err := repo.GetByID(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.FullName != app.FullName || loaded.Email != app.Email || loaded.Motivation != app.Motivation {
		t.Fatalf("round trip lost applicant fields: %+v", loaded)
	}
	if loaded.Status != ApplicationStatusDraft {
		t.Fatalf("expected DRAFT, got %s", loaded.Status)
	}
	if loaded.ApprovalCount != 0 || loaded.RejectionCount != 0 {
		t.Fatalf("expected zeroed counters")
	}
	if len(loaded.ApproverIDs) != 0 || len(loaded.RejectorIDs) != 0 || len(loaded.BoardVotes) != 0 {
		t.Fatalf("expected empty id sets")
	}
	if loaded.CreatedAt.IsZero() {
		t.Fatalf("expected created_at set")
	}

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestStartBoardReview(t *testing.T) {
	repo := NewApplicationRepository(docstore.NewMemoryStore())
	app := seedApplication(t, repo)

	started := time.Now().UTC()
	reviewed, err := repo.StartBoardReview(context.Background(), app.ID, 2, started)
	if err != nil {
		t.Fatalf("start board review: %v", err)
	}
	if reviewed.Status != ApplicationStatusUnderReview {
		t.Fatalf("expected UNDER_REVIEW, got %s", reviewed.Status)
	}
	if !reviewed.PendingBoardReview {
		t.Fatalf("expected pending_board_review true")
	}
	if reviewed.RequiredApprovals != 2 {
		t.Fatalf("expected required_approvals 2, got %d", reviewed.RequiredApprovals)
	}
	if reviewed.BoardReviewStartedAt == nil || !reviewed.BoardReviewStartedAt.Equal(started) {
		t.Fatalf("expected board_review_started_at %v, got %v", started, reviewed.BoardReviewStartedAt)
	}
}

func TestUpdateReviewStateVersioning(t *testing.T) {
	repo := NewApplicationRepository(docstore.NewMemoryStore())
	app := seedApplication(t, repo)
	if _, err := repo.StartBoardReview(context.Background(), app.ID, 2, time.Now().UTC()); err != nil {
		t.Fatalf("start review: %v", err)
	}

	app, err := repo.GetByID(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	castAt := time.Now().UTC()
	app.ApproverIDs = append(app.ApproverIDs, "alice")
	app.BoardVotes = append(app.BoardVotes, "alice")
	app.ApprovalCount = 1
	app.FirstApprovalAt = &castAt

	if err := repo.UpdateReviewState(context.Background(), app, 1); err != nil {
		t.Fatalf("update review state: %v", err)
	}
	if app.Version != 2 {
		t.Fatalf("expected version bumped to 2, got %d", app.Version)
	}

	loaded, err := repo.GetByID(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.ApprovalCount != 1 || len(loaded.ApproverIDs) != 1 || loaded.ApproverIDs[0] != "alice" {
		t.Fatalf("review state not persisted: %+v", loaded)
	}
	if !loaded.HasVoted("alice") {
		t.Fatalf("expected alice in board_votes")
	}
	if loaded.FirstApprovalAt == nil {
		t.Fatalf("expected first_approval_at persisted")
	}
	if loaded.Version != 2 {
		t.Fatalf("expected stored version 2, got %d", loaded.Version)
	}

	// A stale expected version is a retryable conflict.
	err = repo.UpdateReviewState(context.Background(), loaded, 1)
	if !errors.Is(err, errors.ErrCodeConcurrentModification) {
		t.Fatalf("expected concurrent_modification for stale version, got %v", err)
	}
}

func TestApprovalSlotLifecycle(t *testing.T) {
	repo := NewApprovalRepository(docstore.NewMemoryStore())
	ctx := context.Background()

	slots, err := repo.CreateBatch(ctx, "app-1", []string{"alice", "bob", "carol"})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	for _, slot := range slots {
		if slot.Status != ApprovalStatusPending || slot.Cast() {
			t.Fatalf("expected fresh PENDING slot, got %+v", slot)
		}
		if slot.Sequence != 0 {
			t.Fatalf("expected sequence 0 before voting, got %d", slot.Sequence)
		}
	}

	slot, err := repo.GetByMember(ctx, "app-1", "bob")
	if err != nil {
		t.Fatalf("get by member: %v", err)
	}
	if slot == nil || slot.ApproverID != "bob" {
		t.Fatalf("expected bob's slot, got %+v", slot)
	}

	// A member outside the roster yields nil, not an error.
	slot, err = repo.GetByMember(ctx, "app-1", "mallory")
	if err != nil {
		t.Fatalf("get by member: %v", err)
	}
	if slot != nil {
		t.Fatalf("expected nil slot for non-roster member")
	}

	seq, err := repo.NextSequence(ctx, "app-1")
	if err != nil {
		t.Fatalf("next sequence: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected first sequence 1, got %d", seq)
	}

	castAt := time.Now().UTC()
	bob, _ := repo.GetByMember(ctx, "app-1", "bob")
	bob.Status = ApprovalStatusApproved
	bob.Action = VoteActionApprove
	bob.Sequence = seq
	bob.VoteCastAt = &castAt
	if err := repo.RecordVote(ctx, bob); err != nil {
		t.Fatalf("record vote: %v", err)
	}

	seq, err = repo.NextSequence(ctx, "app-1")
	if err != nil {
		t.Fatalf("next sequence: %v", err)
	}
	if seq != 2 {
		t.Fatalf("expected next sequence 2, got %d", seq)
	}

	pending, err := repo.ListPendingByApprover(ctx, "bob")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending slots for bob after voting")
	}
	pending, err = repo.ListPendingByApprover(ctx, "alice")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending slot for alice, got %d", len(pending))
	}
}

func TestListByApplicationOrder(t *testing.T) {
	repo := NewApprovalRepository(docstore.NewMemoryStore())
	ctx := context.Background()

	if _, err := repo.CreateBatch(ctx, "app-1", []string{"alice", "bob", "carol"}); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	// Carol votes first, then alice.
	for i, member := range []string{"carol", "alice"} {
		slot, err := repo.GetByMember(ctx, "app-1", member)
		if err != nil {
			t.Fatalf("get slot: %v", err)
		}
		castAt := time.Now().UTC()
		slot.Status = ApprovalStatusApproved
		slot.Action = VoteActionApprove
		slot.Sequence = i + 1
		slot.VoteCastAt = &castAt
		if err := repo.RecordVote(ctx, slot); err != nil {
			t.Fatalf("record vote: %v", err)
		}
	}

	slots, err := repo.ListByApplication(ctx, "app-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	// Cast votes come first in sequence order, the pending slot last.
	if slots[0].ApproverID != "carol" || slots[1].ApproverID != "alice" {
		t.Fatalf("expected carol then alice, got %s then %s", slots[0].ApproverID, slots[1].ApproverID)
	}
	if slots[2].ApproverID != "bob" || slots[2].Cast() {
		t.Fatalf("expected bob's pending slot last, got %+v", slots[2])
	}
}
