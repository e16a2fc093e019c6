package repository

import (
	"time"

	"github.com/memberhq/be-board-approvals/internal/docstore"
)

// Collection names in the document store.
const (
	CollectionApplications = "applications"
	CollectionApprovals    = "approvals"
	CollectionMembers      = "members"
)

// ── Domain types for the board approval workflow ─────────────────────────────

// ApplicationStatus is the review lifecycle state of a membership application.
type ApplicationStatus string

const (
	ApplicationStatusDraft       ApplicationStatus = "DRAFT"
	ApplicationStatusSubmitted   ApplicationStatus = "SUBMITTED"
	ApplicationStatusUnderReview ApplicationStatus = "UNDER_REVIEW"
	ApplicationStatusApproved    ApplicationStatus = "APPROVED"
	ApplicationStatusRejected    ApplicationStatus = "REJECTED"
)

// Terminal reports whether no further votes are legal in this status.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationStatusApproved || s == ApplicationStatusRejected
}

// VoteAction is the vote a board member casts on an application.
type VoteAction string

const (
	VoteActionApprove VoteAction = "APPROVE"
	VoteActionReject  VoteAction = "REJECT"
)

// ApprovalStatus is the state of one board member's vote slot.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// Application is one membership application and its denormalized review state.
// Counter fields mirror the id slices so duplicate detection and queries stay
// O(1); Version guards the read-modify-write cycle in vote casting.
type Application struct {
	ID                   string            `json:"id"`
	ApplicantID          string            `json:"applicant_id"`
	FullName             string            `json:"full_name"`
	Email                string            `json:"email"`
	Motivation           string            `json:"motivation"`
	Status               ApplicationStatus `json:"status"`
	RequiredApprovals    int               `json:"required_approvals"`
	ApprovalCount        int               `json:"approval_count"`
	RejectionCount       int               `json:"rejection_count"`
	ApproverIDs          []string          `json:"approver_ids"`
	RejectorIDs          []string          `json:"rejector_ids"`
	BoardVotes           []string          `json:"board_votes"`
	PendingBoardReview   bool              `json:"pending_board_review"`
	Version              int               `json:"version"`
	BoardReviewStartedAt *time.Time        `json:"board_review_started_at,omitempty"`
	FirstApprovalAt      *time.Time        `json:"first_approval_at,omitempty"`
	FullyApprovedAt      *time.Time        `json:"fully_approved_at,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// HasVoted reports whether the member already cast any vote on this
// application, using the denormalized board_votes set.
func (a *Application) HasVoted(memberID string) bool {
	for _, id := range a.BoardVotes {
		if id == memberID {
			return true
		}
	}
	return false
}

// Approval is one board member's vote slot on an application. Created PENDING
// at review start, acted on exactly once, never deleted.
type Approval struct {
	ID            string         `json:"id"`
	ApplicationID string         `json:"application_id"`
	ApproverID    string         `json:"approver_id"`
	Status        ApprovalStatus `json:"status"`
	Action        VoteAction     `json:"action,omitempty"`
	Sequence      int            `json:"sequence"`
	Notes         string         `json:"notes,omitempty"`
	VoteCastAt    *time.Time     `json:"vote_cast_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Cast reports whether this slot has been voted on.
func (a *Approval) Cast() bool {
	return a.Status != ApprovalStatusPending
}

// Member is a platform member record; Role gates what the API lets them do.
type Member struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"` // applicant | board_member | admin
}

// ── Document mapping ──────────────────────────────────────────────────────────

func applicationFromDoc(d docstore.Document) *Application {
	app := &Application{
		ID:                   d.String("id"),
		ApplicantID:          d.String("applicant_id"),
		FullName:             d.String("full_name"),
		Email:                d.String("email"),
		Motivation:           d.String("motivation"),
		Status:               ApplicationStatus(d.String("status")),
		RequiredApprovals:    d.Int("required_approvals"),
		ApprovalCount:        d.Int("approval_count"),
		RejectionCount:       d.Int("rejection_count"),
		ApproverIDs:          d.StringSlice("approver_ids"),
		RejectorIDs:          d.StringSlice("rejector_ids"),
		BoardVotes:           d.StringSlice("board_votes"),
		PendingBoardReview:   d.Bool("pending_board_review"),
		Version:              d.Int("version"),
		BoardReviewStartedAt: d.Time("board_review_started_at"),
		FirstApprovalAt:      d.Time("first_approval_at"),
		FullyApprovedAt:      d.Time("fully_approved_at"),
	}
	if t := d.Time("created_at"); t != nil {
		app.CreatedAt = *t
	}
	if t := d.Time("updated_at"); t != nil {
		app.UpdatedAt = *t
	}
	return app
}

func approvalFromDoc(d docstore.Document) *Approval {
	ap := &Approval{
		ID:            d.String("id"),
		ApplicationID: d.String("application_id"),
		ApproverID:    d.String("approver_id"),
		Status:        ApprovalStatus(d.String("status")),
		Action:        VoteAction(d.String("action")),
		Sequence:      d.Int("sequence"),
		Notes:         d.String("notes"),
		VoteCastAt:    d.Time("vote_cast_at"),
	}
	if t := d.Time("created_at"); t != nil {
		ap.CreatedAt = *t
	}
	return ap
}

func memberFromDoc(d docstore.Document) *Member {
	return &Member{
		ID:    d.String("id"),
		Email: d.String("email"),
		Name:  d.String("name"),
		Role:  d.String("role"),
	}
}

func timeField(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
