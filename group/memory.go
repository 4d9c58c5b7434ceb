package group

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu     sync.RWMutex
	groups []Group // creation order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(_ context.Context, g Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g.MemberIDs = dedupe(g.MemberIDs)
	r.groups = append(r.groups, g)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.index(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	g := clone(r.groups[i])
	return &g, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groups := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, clone(g))
	}
	return groups, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return ErrNotFound
	}
	r.groups = slices.Delete(r.groups, i, i+1)
	return nil
}

func (r *MemoryRepository) AddMember(_ context.Context, groupID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(groupID)
	if i < 0 {
		return ErrNotFound
	}
	if !slices.Contains(r.groups[i].MemberIDs, userID) {
		r.groups[i].MemberIDs = append(r.groups[i].MemberIDs, userID)
	}
	return nil
}

func (r *MemoryRepository) RemoveMember(_ context.Context, groupID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(groupID)
	if i < 0 {
		return ErrNotFound
	}
	r.groups[i].MemberIDs = slices.DeleteFunc(r.groups[i].MemberIDs, func(id uuid.UUID) bool { return id == userID })
	return nil
}

func (r *MemoryRepository) RemoveUser(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.groups {
		r.groups[i].MemberIDs = slices.DeleteFunc(r.groups[i].MemberIDs, func(id uuid.UUID) bool { return id == userID })
	}
	return nil
}

func (r *MemoryRepository) index(id uuid.UUID) int {
	return slices.IndexFunc(r.groups, func(g Group) bool { return g.ID == id })
}

func clone(g Group) Group {
	g.MemberIDs = slices.Clone(g.MemberIDs)
	if g.MemberIDs == nil {
		g.MemberIDs = []uuid.UUID{}
	}
	return g
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
