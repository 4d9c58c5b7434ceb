package group

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("group not found")
	ErrBlankName      = errors.New("group name can't be blank")
	ErrUnknownMember  = errors.New("member is not a known user")
	ErrMemberNotFound = errors.New("user is not a member of the group")
)

type Group struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	MemberIDs   []uuid.UUID `json:"memberIds"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type Input struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	MemberIDs   []uuid.UUID `json:"memberIds"`
}

// Repository stores groups and their ordered member lists. Membership
// operations are idempotent: adding a present member or removing an absent
// one only fails when the group itself is missing.
type Repository interface {
	Create(ctx context.Context, g Group) error
	GetByID(ctx context.Context, id uuid.UUID) (*Group, error)
	List(ctx context.Context) ([]Group, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddMember(ctx context.Context, groupID, userID uuid.UUID) error
	RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error
	// RemoveUser drops a user from every group it belongs to.
	RemoveUser(ctx context.Context, userID uuid.UUID) error
}
