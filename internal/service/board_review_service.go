package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/memberhq/be-board-approvals/internal/errors"
	"github.com/memberhq/be-board-approvals/internal/repository"
)

// RequiredBoardApprovals is the approval quorum for membership applications.
// It is stamped onto each application when its review starts, so a future
// policy change never affects reviews already in flight.
const RequiredBoardApprovals = 2

// Notification event types published by the workflow.
const (
	EventApplicationSubmitted = "application_submitted"
	EventBoardReviewRequired  = "board_review_required"
	EventFirstApproval        = "first_approval"
	EventFullyApproved        = "fully_approved"
	EventApplicationRejected  = "application_rejected"
)

// Notifier emits workflow events to interested members. Implementations must
// never return an error into the workflow; delivery is best-effort.
type Notifier interface {
	PublishApplicationEvent(ctx context.Context, eventType string, app *repository.Application, recipients []string, payload map[string]any)
}

// BoardReviewService owns the board vote-casting state machine: roster
// creation at review start, vote deduplication, quorum and rejection
// thresholds, denormalized counter maintenance and the derived queries.
type BoardReviewService struct {
	applications *repository.ApplicationRepository
	approvals    *repository.ApprovalRepository
	notifier     Notifier
	log          zerolog.Logger
}

// NewBoardReviewService creates a new BoardReviewService.
func NewBoardReviewService(
	applications *repository.ApplicationRepository,
	approvals *repository.ApprovalRepository,
	notifier Notifier,
	log zerolog.Logger,
) *BoardReviewService {
	return &BoardReviewService{
		applications: applications,
		approvals:    approvals,
		notifier:     notifier,
		log:          log,
	}
}

// VoteResult summarizes a cast vote: the updated application and the acted
// approval slot.
type VoteResult struct {
	Application *repository.Application `json:"application"`
	Approval    *repository.Approval    `json:"approval"`
}

// BoardMemberStats counts a member's votes across all applications.
type BoardMemberStats struct {
	TotalVotesCast int `json:"total_votes_cast"`
	Approved       int `json:"approved"`
	Rejected       int `json:"rejected"`
	Pending        int `json:"pending"`
}

// ── Review start ──────────────────────────────────────────────────────────────

// SubmitForBoardReview moves a SUBMITTED application into UNDER_REVIEW and
// creates one PENDING approval slot per board member in the roster.
func (s *BoardReviewService) SubmitForBoardReview(ctx context.Context, applicationID string, boardMemberIDs []string) (*repository.Application, error) {
	app, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != repository.ApplicationStatusSubmitted {
		return nil, errors.New(errors.ErrCodeInvalidStatus,
			fmt.Sprintf("cannot start board review for application with status '%s'", app.Status))
	}

	roster := dedupe(boardMemberIDs)
	if len(roster) == 0 {
		return nil, errors.InvalidInput("board_member_ids", "review roster must not be empty")
	}

	if _, err := s.approvals.CreateBatch(ctx, applicationID, roster); err != nil {
		return nil, err
	}

	app, err = s.applications.StartBoardReview(ctx, applicationID, RequiredBoardApprovals, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.notifier.PublishApplicationEvent(ctx, EventBoardReviewRequired, app, roster, map[string]any{
		"required_approvals": app.RequiredApprovals,
	})

	s.log.Info().
		Str("application_id", app.ID).
		Int("roster_size", len(roster)).
		Int("required_approvals", app.RequiredApprovals).
		Msg("Board review started")

	return app, nil
}

// ── Vote casting ──────────────────────────────────────────────────────────────

// CastVote records one board member's vote and applies its consequences to
// the application in a single conditional write. The duplicate guard uses the
// denormalized board_votes set, never a scan over approval records.
//
// There is no transaction spanning the approval write and the application
// write. When the first succeeds and the second fails, a retry finds the slot
// already acted on while the member is still absent from board_votes; that
// state is unambiguous, so the engine resumes from the application update
// instead of failing the vote.
func (s *BoardReviewService) CastVote(ctx context.Context, applicationID, boardMemberID string, action repository.VoteAction, notes string) (*VoteResult, error) {
	app, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	readVersion := app.Version

	if app.Status != repository.ApplicationStatusUnderReview {
		return nil, errors.New(errors.ErrCodeInvalidStatus,
			fmt.Sprintf("cannot vote on application with status '%s'", app.Status))
	}
	if app.HasVoted(boardMemberID) {
		return nil, errors.New(errors.ErrCodeAlreadyVoted,
			"board member has already voted on this application")
	}

	switch action {
	case repository.VoteActionApprove:
	case repository.VoteActionReject:
		if notes == "" {
			return nil, errors.InvalidInput("notes", "a rejection requires notes explaining the decision")
		}
	default:
		return nil, errors.InvalidInput("action",
			fmt.Sprintf("unsupported vote action '%s'", action))
	}

	slot, err := s.approvals.GetByMember(ctx, applicationID, boardMemberID)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, errors.New(errors.ErrCodeNotFound,
			"no approval slot exists for this board member on this application")
	}

	if slot.Cast() {
		// The slot was acted on but the application never absorbed the vote:
		// a previous call died between the two writes. Resume with the
		// recorded action rather than rejecting the retry.
		s.log.Warn().
			Str("application_id", applicationID).
			Str("board_member_id", boardMemberID).
			Int("sequence", slot.Sequence).
			Msg("Resuming partially applied vote")
	} else {
		seq, err := s.approvals.NextSequence(ctx, applicationID)
		if err != nil {
			return nil, err
		}

		castAt := time.Now().UTC()
		slot.Action = action
		slot.Status = statusForAction(action)
		slot.Sequence = seq
		slot.Notes = notes
		slot.VoteCastAt = &castAt

		if err := s.approvals.RecordVote(ctx, slot); err != nil {
			return nil, err
		}
	}

	events := s.applyVote(app, slot)

	if err := s.applications.UpdateReviewState(ctx, app, readVersion); err != nil {
		return nil, err
	}

	for _, ev := range events {
		s.notifier.PublishApplicationEvent(ctx, ev.eventType, app, []string{app.ApplicantID}, ev.payload)
	}

	s.log.Info().
		Str("application_id", app.ID).
		Str("board_member_id", boardMemberID).
		Str("action", string(slot.Action)).
		Int("sequence", slot.Sequence).
		Int("approval_count", app.ApprovalCount).
		Str("status", string(app.Status)).
		Msg("Board vote cast")

	return &VoteResult{Application: app, Approval: slot}, nil
}

type reviewEvent struct {
	eventType string
	payload   map[string]any
}

// applyVote mutates the in-memory application with the consequences of one
// acted slot and returns the notifications owed once the write commits.
func (s *BoardReviewService) applyVote(app *repository.Application, slot *repository.Approval) []reviewEvent {
	app.BoardVotes = append(app.BoardVotes, slot.ApproverID)

	var events []reviewEvent
	switch slot.Action {
	case repository.VoteActionApprove:
		app.ApproverIDs = append(app.ApproverIDs, slot.ApproverID)
		app.ApprovalCount++

		if app.ApprovalCount == 1 {
			app.FirstApprovalAt = slot.VoteCastAt
			events = append(events, reviewEvent{
				eventType: EventFirstApproval,
				payload:   map[string]any{"approval_count": app.ApprovalCount},
			})
		}
		// >= rather than == so a mid-flight change to required_approvals can
		// never strand an application below a lowered quorum.
		if app.ApprovalCount >= app.RequiredApprovals {
			app.Status = repository.ApplicationStatusApproved
			app.PendingBoardReview = false
			app.FullyApprovedAt = slot.VoteCastAt
			events = append(events, reviewEvent{
				eventType: EventFullyApproved,
				payload:   map[string]any{"approval_count": app.ApprovalCount},
			})
		}

	case repository.VoteActionReject:
		app.RejectorIDs = append(app.RejectorIDs, slot.ApproverID)
		app.RejectionCount++
		// A single rejection is terminal; no quorum applies.
		app.Status = repository.ApplicationStatusRejected
		app.PendingBoardReview = false

		reason := slot.Notes
		if reason == "" {
			reason = "The board has declined this application."
		}
		events = append(events, reviewEvent{
			eventType: EventApplicationRejected,
			payload:   map[string]any{"reason": reason},
		})
	}
	return events
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetPendingApplications returns the applications still awaiting this board
// member's vote. An empty result is a normal outcome.
func (s *BoardReviewService) GetPendingApplications(ctx context.Context, boardMemberID string) ([]*repository.Application, error) {
	pending, err := s.approvals.ListPendingByApprover(ctx, boardMemberID)
	if err != nil {
		return nil, err
	}

	apps := make([]*repository.Application, 0, len(pending))
	for _, slot := range pending {
		app, err := s.applications.GetByID(ctx, slot.ApplicationID)
		if err != nil {
			if errors.Is(err, errors.ErrCodeNotFound) {
				s.log.Warn().
					Str("application_id", slot.ApplicationID).
					Str("approval_id", slot.ID).
					Msg("Pending approval slot references missing application")
				continue
			}
			return nil, err
		}
		// A slot can outlive the review when another member's vote was
		// terminal; only live reviews are actionable.
		if app.Status != repository.ApplicationStatusUnderReview {
			continue
		}
		apps = append(apps, app)
	}

	sort.Slice(apps, func(i, j int) bool {
		return apps[i].CreatedAt.Before(apps[j].CreatedAt)
	})
	return apps, nil
}

// GetVoteHistory returns the cast votes on an application in sequence order.
// The denormalized counters are recomputed from the records on the way out;
// a divergence means a past partial failure and is logged, not hidden.
func (s *BoardReviewService) GetVoteHistory(ctx context.Context, applicationID string) ([]*repository.Approval, error) {
	app, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	slots, err := s.approvals.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	history := make([]*repository.Approval, 0, len(slots))
	approved, rejected := 0, 0
	for _, slot := range slots {
		if !slot.Cast() {
			continue
		}
		history = append(history, slot)
		switch slot.Status {
		case repository.ApprovalStatusApproved:
			approved++
		case repository.ApprovalStatusRejected:
			rejected++
		}
	}

	if approved != app.ApprovalCount || rejected != app.RejectionCount {
		s.log.Warn().
			Str("application_id", app.ID).
			Int("recorded_approvals", app.ApprovalCount).
			Int("derived_approvals", approved).
			Int("recorded_rejections", app.RejectionCount).
			Int("derived_rejections", rejected).
			Msg("Application counters diverge from vote records")
	}

	return history, nil
}

// GetBoardMemberStats counts a member's votes across all applications. The
// counts come from the approval records themselves, not the denormalized
// application fields.
func (s *BoardReviewService) GetBoardMemberStats(ctx context.Context, boardMemberID string) (*BoardMemberStats, error) {
	slots, err := s.approvals.ListByApprover(ctx, boardMemberID)
	if err != nil {
		return nil, err
	}

	stats := &BoardMemberStats{}
	for _, slot := range slots {
		switch slot.Status {
		case repository.ApprovalStatusApproved:
			stats.Approved++
		case repository.ApprovalStatusRejected:
			stats.Rejected++
		case repository.ApprovalStatusPending:
			stats.Pending++
		}
	}
	stats.TotalVotesCast = stats.Approved + stats.Rejected
	return stats, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func statusForAction(action repository.VoteAction) repository.ApprovalStatus {
	if action == repository.VoteActionReject {
		return repository.ApprovalStatusRejected
	}
	return repository.ApprovalStatusApproved
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
