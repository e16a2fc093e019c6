package repository

import (
	"context"
	stderrors "errors"

	"github.com/memberhq/be-board-approvals/internal/docstore"
	"github.com/memberhq/be-board-approvals/internal/errors"
)

// MemberRepository resolves platform members, primarily to build the board
// roster when a review starts.
type MemberRepository struct {
	store docstore.Store
}

// NewMemberRepository creates a new MemberRepository.
func NewMemberRepository(store docstore.Store) *MemberRepository {
	return &MemberRepository{store: store}
}

// GetByID loads one member.
func (r *MemberRepository) GetByID(ctx context.Context, id string) (*Member, error) {
	doc, err := r.store.Get(ctx, CollectionMembers, id)
	if stderrors.Is(err, docstore.ErrNotFound) {
		return nil, errors.NotFound("member", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get member")
	}
	return memberFromDoc(doc), nil
}

// ListByRole returns all members holding the given role.
func (r *MemberRepository) ListByRole(ctx context.Context, role string) ([]*Member, error) {
	docs, err := r.store.Query(ctx, CollectionMembers, map[string]any{"role": role}, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list members by role")
	}

	members := make([]*Member, 0, len(docs))
	for _, doc := range docs {
		members = append(members, memberFromDoc(doc))
	}
	return members, nil
}

// Create inserts a member record and fills in its assigned id.
func (r *MemberRepository) Create(ctx context.Context, m *Member) error {
	doc := docstore.Document{
		"email": m.Email,
		"name":  m.Name,
		"role":  m.Role,
	}
	if m.ID != "" {
		doc["id"] = m.ID
	}

	created, err := r.store.Create(ctx, CollectionMembers, doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create member")
	}
	m.ID = created.String("id")
	return nil
}
