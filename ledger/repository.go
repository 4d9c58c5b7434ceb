package ledger

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

// NewRepository returns a Postgres-backed Store.
func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

func (r *repository) SaveExpense(ctx context.Context, expense Expense) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO ledger_expenses (id, group_id, description, amount, paid_by, split_type, expense_date, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = tx.ExecContext(
		ctx,
		query,
		expense.ID,
		expense.GroupID,
		expense.Description,
		expense.Amount,
		expense.PaidBy,
		expense.SplitType,
		expense.Date,
		expense.CreatedAt,
		expense.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting expense: %w", err)
	}

	if err := insertShares(ctx, tx, expense); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *repository) ReplaceExpense(ctx context.Context, expense Expense) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `UPDATE ledger_expenses
              SET description = $3, amount = $4, paid_by = $5, split_type = $6, expense_date = $7, updated_at = $8
              WHERE id = $1 AND group_id = $2`
	res, err := tx.ExecContext(
		ctx,
		query,
		expense.ID,
		expense.GroupID,
		expense.Description,
		expense.Amount,
		expense.PaidBy,
		expense.SplitType,
		expense.Date,
		expense.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating expense: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrExpenseNotFound
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM ledger_expense_shares WHERE expense_id = $1`, expense.ID)
	if err != nil {
		return fmt.Errorf("clearing expense shares: %w", err)
	}

	if err := insertShares(ctx, tx, expense); err != nil {
		return err
	}

	return tx.Commit()
}

func insertShares(ctx context.Context, tx *sql.Tx, expense Expense) error {
	query := `INSERT INTO ledger_expense_shares (expense_id, position, user_id, value, owed) VALUES ($1, $2, $3, $4, $5)`
	for i, share := range expense.Shares {
		_, err := tx.ExecContext(ctx, query, expense.ID, i, share.UserID, share.Value, share.Owed)
		if err != nil {
			return fmt.Errorf("inserting expense share: %w", err)
		}
	}
	return nil
}

func (r *repository) GetExpense(ctx context.Context, id uuid.UUID) (*Expense, error) {
	query := `SELECT id, group_id, description, amount, paid_by, split_type, expense_date, created_at, updated_at
              FROM ledger_expenses WHERE id = $1`

	var expense Expense
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&expense.ID,
		&expense.GroupID,
		&expense.Description,
		&expense.Amount,
		&expense.PaidBy,
		&expense.SplitType,
		&expense.Date,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExpenseNotFound
		}
		return nil, fmt.Errorf("querying expense: %w", err)
	}

	shares, err := r.queryShares(ctx, `WHERE s.expense_id = $1`, id)
	if err != nil {
		return nil, err
	}
	expense.Shares = shares[id]

	return &expense, nil
}

func (r *repository) ListExpenses(ctx context.Context, groupID uuid.UUID) ([]Expense, error) {
	query := `SELECT id, group_id, description, amount, paid_by, split_type, expense_date, created_at, updated_at
              FROM ledger_expenses
              WHERE group_id = $1
              ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("querying expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]Expense, 0)
	for rows.Next() {
		var expense Expense
		err := rows.Scan(
			&expense.ID,
			&expense.GroupID,
			&expense.Description,
			&expense.Amount,
			&expense.PaidBy,
			&expense.SplitType,
			&expense.Date,
			&expense.CreatedAt,
			&expense.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	shares, err := r.queryShares(ctx, `INNER JOIN ledger_expenses e ON s.expense_id = e.id WHERE e.group_id = $1`, groupID)
	if err != nil {
		return nil, err
	}
	for i := range expenses {
		expenses[i].Shares = shares[expenses[i].ID]
	}

	return expenses, nil
}

func (r *repository) queryShares(ctx context.Context, where string, arg any) (map[uuid.UUID][]Share, error) {
	query := `SELECT s.expense_id, s.user_id, s.value, s.owed
              FROM ledger_expense_shares s ` + where + `
              ORDER BY s.expense_id, s.position`

	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying expense shares: %w", err)
	}
	defer rows.Close()

	shares := make(map[uuid.UUID][]Share)
	for rows.Next() {
		var expenseID uuid.UUID
		var share Share
		if err := rows.Scan(&expenseID, &share.UserID, &share.Value, &share.Owed); err != nil {
			return nil, err
		}
		shares[expenseID] = append(shares[expenseID], share)
	}

	return shares, rows.Err()
}

func (r *repository) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ledger_expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

func (r *repository) SaveSettlement(ctx context.Context, settlement Settlement) error {
	query := `INSERT INTO ledger_settlements (id, group_id, from_user, to_user, amount, settlement_date, note, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		settlement.ID,
		settlement.GroupID,
		settlement.FromUser,
		settlement.ToUser,
		settlement.Amount,
		settlement.Date,
		sql.NullString{String: settlement.Note, Valid: settlement.Note != ""},
		settlement.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting settlement: %w", err)
	}
	return nil
}

func (r *repository) GetSettlement(ctx context.Context, id uuid.UUID) (*Settlement, error) {
	query := `SELECT id, group_id, from_user, to_user, amount, settlement_date, note, created_at
              FROM ledger_settlements WHERE id = $1`

	settlement, err := scanSettlement(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettlementNotFound
		}
		return nil, fmt.Errorf("querying settlement: %w", err)
	}
	return &settlement, nil
}

func (r *repository) ListSettlements(ctx context.Context, groupID uuid.UUID) ([]Settlement, error) {
	query := `SELECT id, group_id, from_user, to_user, amount, settlement_date, note, created_at
              FROM ledger_settlements
              WHERE group_id = $1
              ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("querying settlements: %w", err)
	}
	defer rows.Close()

	settlements := make([]Settlement, 0)
	for rows.Next() {
		settlement, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, settlement)
	}

	return settlements, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row rowScanner) (Settlement, error) {
	var settlement Settlement
	var note sql.NullString
	err := row.Scan(
		&settlement.ID,
		&settlement.GroupID,
		&settlement.FromUser,
		&settlement.ToUser,
		&settlement.Amount,
		&settlement.Date,
		&note,
		&settlement.CreatedAt,
	)
	if err != nil {
		return Settlement{}, err
	}
	if note.Valid {
		settlement.Note = note.String
	}
	return settlement, nil
}

func (r *repository) DeleteSettlement(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ledger_settlements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting settlement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSettlementNotFound
	}
	return nil
}

func (r *repository) DeleteGroup(ctx context.Context, groupID uuid.UUID) (int, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	// shares go with their expense through ON DELETE CASCADE
	res, err := tx.ExecContext(ctx, `DELETE FROM ledger_expenses WHERE group_id = $1`, groupID)
	if err != nil {
		return 0, 0, fmt.Errorf("deleting group expenses: %w", err)
	}
	expenses, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM ledger_settlements WHERE group_id = $1`, groupID)
	if err != nil {
		return 0, 0, fmt.Errorf("deleting group settlements: %w", err)
	}
	settlements, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}

	return int(expenses), int(settlements), tx.Commit()
}
