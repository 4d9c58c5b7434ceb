package group

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, g Group) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO groups (id, name, description, created_at) VALUES ($1, $2, $3, $4)`
	_, err = tx.ExecContext(ctx, query, g.ID, g.Name, sql.NullString{String: g.Description, Valid: g.Description != ""}, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting group: %w", err)
	}

	for _, userID := range g.MemberIDs {
		if err := addMember(ctx, tx, g.ID, userID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func addMember(ctx context.Context, db execer, groupID, userID uuid.UUID) error {
	query := `INSERT INTO group_members (group_id, user_id, joined_at)
              VALUES ($1, $2, clock_timestamp())
              ON CONFLICT (group_id, user_id) DO NOTHING`
	if _, err := db.ExecContext(ctx, query, groupID, userID); err != nil {
		return fmt.Errorf("inserting group member: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Group, error) {
	query := `SELECT id, name, COALESCE(description, ''), created_at FROM groups WHERE id = $1`

	var g Group
	err := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying group: %w", err)
	}

	members, err := r.members(ctx, `WHERE m.group_id = $1`, id)
	if err != nil {
		return nil, err
	}
	g.MemberIDs = members[id]
	if g.MemberIDs == nil {
		g.MemberIDs = []uuid.UUID{}
	}

	return &g, nil
}

func (r *repository) List(ctx context.Context) ([]Group, error) {
	query := `SELECT id, name, COALESCE(description, ''), created_at FROM groups ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}
	defer rows.Close()

	groups := make([]Group, 0)
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	members, err := r.members(ctx, ``)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		groups[i].MemberIDs = members[groups[i].ID]
		if groups[i].MemberIDs == nil {
			groups[i].MemberIDs = []uuid.UUID{}
		}
	}

	return groups, nil
}

func (r *repository) members(ctx context.Context, where string, args ...any) (map[uuid.UUID][]uuid.UUID, error) {
	query := `SELECT m.group_id, m.user_id FROM group_members m ` + where + ` ORDER BY m.group_id, m.joined_at, m.user_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying group members: %w", err)
	}
	defer rows.Close()

	members := make(map[uuid.UUID][]uuid.UUID)
	for rows.Next() {
		var groupID, userID uuid.UUID
		if err := rows.Scan(&groupID, &userID); err != nil {
			return nil, err
		}
		members[groupID] = append(members[groupID], userID)
	}

	return members, rows.Err()
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	// members go through ON DELETE CASCADE
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	if err := r.exists(ctx, groupID); err != nil {
		return err
	}
	return addMember(ctx, r.db, groupID, userID)
}

func (r *repository) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	if err := r.exists(ctx, groupID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("deleting group member: %w", err)
	}
	return nil
}

func (r *repository) RemoveUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM group_members WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting user memberships: %w", err)
	}
	return nil
}

func (r *repository) exists(ctx context.Context, id uuid.UUID) error {
	var found bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1)`, id).Scan(&found)
	if err != nil {
		return fmt.Errorf("querying group: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}
