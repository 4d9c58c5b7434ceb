package group

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/billbatista/acasinha-splits/ledger"
	"github.com/billbatista/acasinha-splits/user"
	"github.com/google/uuid"
)

// Directory manages groups on top of the user directory and answers the
// ledger's membership lookups.
type Directory struct {
	groups Repository
	users  user.Repository
}

func NewDirectory(groups Repository, users user.Repository) *Directory {
	return &Directory{groups: groups, users: users}
}

func (d *Directory) Create(ctx context.Context, in Input) (*Group, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrBlankName
	}

	memberIDs := dedupe(in.MemberIDs)
	if err := d.checkUsers(ctx, memberIDs); err != nil {
		return nil, err
	}

	g := Group{
		ID:          uuid.New(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		MemberIDs:   memberIDs,
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.groups.Create(ctx, g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (d *Directory) checkUsers(ctx context.Context, ids []uuid.UUID) error {
	found, err := d.users.GetMany(ctx, ids)
	if err != nil {
		return err
	}
	if len(found) == len(ids) {
		return nil
	}
	for _, id := range ids {
		if !slices.ContainsFunc(found, func(u user.User) bool { return u.ID == id }) {
			return fmt.Errorf("%w: %s", ErrUnknownMember, id)
		}
	}
	return nil
}

func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*Group, error) {
	return d.groups.GetByID(ctx, id)
}

func (d *Directory) List(ctx context.Context) ([]Group, error) {
	return d.groups.List(ctx)
}

func (d *Directory) Delete(ctx context.Context, id uuid.UUID) error {
	return d.groups.Delete(ctx, id)
}

// AddMember fails with user.ErrNotFound for an unknown user.
func (d *Directory) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	if _, err := d.groups.GetByID(ctx, groupID); err != nil {
		return err
	}
	if _, err := d.users.GetByID(ctx, userID); err != nil {
		return err
	}
	return d.groups.AddMember(ctx, groupID, userID)
}

func (d *Directory) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	g, err := d.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if !slices.Contains(g.MemberIDs, userID) {
		return ErrMemberNotFound
	}
	return d.groups.RemoveMember(ctx, groupID, userID)
}

// GroupsOf lists the ids of the groups userID belongs to.
func (d *Directory) GroupsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	groups, err := d.groups.List(ctx)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for _, g := range groups {
		if slices.Contains(g.MemberIDs, userID) {
			ids = append(ids, g.ID)
		}
	}
	return ids, nil
}

// RemoveUser drops the user from all groups. Called when a user is deleted.
func (d *Directory) RemoveUser(ctx context.Context, userID uuid.UUID) error {
	return d.groups.RemoveUser(ctx, userID)
}

// Members returns the group's current members in group order with their
// display names. Members whose user record is gone are left out.
func (d *Directory) Members(ctx context.Context, groupID uuid.UUID) ([]ledger.Member, error) {
	g, err := d.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ledger.ErrGroupNotFound
		}
		return nil, err
	}

	users, err := d.users.GetMany(ctx, g.MemberIDs)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}

	members := make([]ledger.Member, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		name, ok := names[id]
		if !ok {
			continue
		}
		members = append(members, ledger.Member{ID: id, Name: name})
	}
	return members, nil
}
