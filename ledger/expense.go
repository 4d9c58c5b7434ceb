package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewExpense validates in against the group's current members and returns a
// fully split expense with a fresh id.
func NewExpense(in ExpenseInput, members []Member) (Expense, error) {
	if in.GroupID == uuid.Nil {
		return Expense{}, ErrMissingGroup
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		return Expense{}, ErrEmptyDescription
	}

	if err := validateAmount(in.Amount); err != nil {
		return Expense{}, err
	}

	if in.PaidBy == uuid.Nil {
		return Expense{}, ErrMissingPayer
	}
	if !containsMember(members, in.PaidBy) {
		return Expense{}, fmt.Errorf("%w: %s", ErrPayerNotMember, in.PaidBy)
	}

	if !in.SplitType.Valid() {
		return Expense{}, ErrInvalidSplitType
	}

	shares, err := ComputeShares(in.Amount, in.SplitType, members, in.Shares)
	if err != nil {
		return Expense{}, err
	}

	date := in.Date
	if date.IsZero() {
		date = Today()
	}

	now := time.Now().UTC()

	return Expense{
		ID:          uuid.New(),
		GroupID:     in.GroupID,
		Description: description,
		Amount:      in.Amount,
		PaidBy:      in.PaidBy,
		Date:        date,
		SplitType:   in.SplitType,
		Shares:      shares,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func NewSettlement(in SettlementInput, members []Member) (Settlement, error) {
	if in.GroupID == uuid.Nil {
		return Settlement{}, ErrMissingGroup
	}

	if in.FromUser == uuid.Nil || in.ToUser == uuid.Nil {
		return Settlement{}, ErrMissingParty
	}
	if in.FromUser == in.ToUser {
		return Settlement{}, ErrSelfSettlement
	}

	if err := validateAmount(in.Amount); err != nil {
		return Settlement{}, err
	}

	for _, id := range []uuid.UUID{in.FromUser, in.ToUser} {
		if !containsMember(members, id) {
			return Settlement{}, fmt.Errorf("%w: %s", ErrPartyNotMember, id)
		}
	}

	date := in.Date
	if date.IsZero() {
		date = Today()
	}

	return Settlement{
		ID:        uuid.New(),
		GroupID:   in.GroupID,
		FromUser:  in.FromUser,
		ToUser:    in.ToUser,
		Amount:    in.Amount,
		Date:      date,
		Note:      strings.TrimSpace(in.Note),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !hasCents(amount) {
		return ErrAmountPrecision
	}
	if amount.GreaterThan(maxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

func containsMember(members []Member, id uuid.UUID) bool {
	for _, m := range members {
		if m.ID == id {
			return true
		}
	}
	return false
}
