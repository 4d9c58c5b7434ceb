package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Store keeps the expense and settlement history of every group. Lookups of
// a missing record return ErrExpenseNotFound or ErrSettlementNotFound.
type Store interface {
	SaveExpense(ctx context.Context, expense Expense) error
	GetExpense(ctx context.Context, id uuid.UUID) (*Expense, error)
	ListExpenses(ctx context.Context, groupID uuid.UUID) ([]Expense, error)
	ReplaceExpense(ctx context.Context, expense Expense) error
	DeleteExpense(ctx context.Context, id uuid.UUID) error

	SaveSettlement(ctx context.Context, settlement Settlement) error
	GetSettlement(ctx context.Context, id uuid.UUID) (*Settlement, error)
	ListSettlements(ctx context.Context, groupID uuid.UUID) ([]Settlement, error)
	DeleteSettlement(ctx context.Context, id uuid.UUID) error

	// DeleteGroup drops the whole history of a group and reports how many
	// records went away.
	DeleteGroup(ctx context.Context, groupID uuid.UUID) (expenses int, settlements int, err error)
}

// Directory supplies group membership. It returns ErrGroupNotFound for an
// unknown group.
type Directory interface {
	Members(ctx context.Context, groupID uuid.UUID) ([]Member, error)
}
