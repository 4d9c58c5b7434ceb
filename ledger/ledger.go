package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SplitType string

const (
	SplitTypeEqual   SplitType = "EQUAL"
	SplitTypeExact   SplitType = "EXACT"
	SplitTypePercent SplitType = "PERCENT"
)

func (s SplitType) Valid() bool {
	switch s {
	case SplitTypeEqual, SplitTypeExact, SplitTypePercent:
		return true
	}
	return false
}

// Member is a group member as supplied by the directory.
type Member struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Share is one participant's part of an expense. Value is what the caller
// sent (an amount for EXACT, a percentage for PERCENT); Owed is the amount in
// currency units the participant owes for the expense.
type Share struct {
	UserID uuid.UUID       `json:"userId"`
	Value  decimal.Decimal `json:"value"`
	Owed   decimal.Decimal `json:"owed"`
}

type Expense struct {
	ID          uuid.UUID       `json:"id"`
	GroupID     uuid.UUID       `json:"groupId"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	PaidBy      uuid.UUID       `json:"paidByUserId"`
	Date        Date            `json:"date"`
	SplitType   SplitType       `json:"splitType"`
	Shares      []Share         `json:"shares"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type Settlement struct {
	ID        uuid.UUID       `json:"id"`
	GroupID   uuid.UUID       `json:"groupId"`
	FromUser  uuid.UUID       `json:"fromUserId"`
	ToUser    uuid.UUID       `json:"toUserId"`
	Amount    decimal.Decimal `json:"amount"`
	Date      Date            `json:"date"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// BalanceEntry is a member's net position in a group.
// Positive = the group owes the member, negative = the member owes the group.
// Calculated on-the-fly from the group's history, never stored.
type BalanceEntry struct {
	GroupID    uuid.UUID       `json:"groupId"`
	UserID     uuid.UUID       `json:"userId"`
	UserName   string          `json:"userName"`
	NetBalance decimal.Decimal `json:"netBalance"`
}

type SettlementSuggestion struct {
	FromUserID   uuid.UUID       `json:"fromUserId"`
	FromUserName string          `json:"fromUserName,omitempty"`
	ToUserID     uuid.UUID       `json:"toUserId"`
	ToUserName   string          `json:"toUserName,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
}

type SettlementPlan struct {
	GroupID          uuid.UUID              `json:"groupId"`
	Suggestions      []SettlementSuggestion `json:"suggestions"`
	TransactionCount int                    `json:"transactionCount"`
}

// ExpenseInput carries the caller-supplied fields of an expense for create
// and full-replace update.
type ExpenseInput struct {
	GroupID     uuid.UUID       `json:"groupId"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	PaidBy      uuid.UUID       `json:"paidByUserId"`
	Date        Date            `json:"date"`
	SplitType   SplitType       `json:"splitType"`
	Shares      []ShareInput    `json:"shares"`
}

type ShareInput struct {
	UserID uuid.UUID       `json:"userId"`
	Value  decimal.Decimal `json:"value"`
}

type SettlementInput struct {
	GroupID  uuid.UUID       `json:"groupId"`
	FromUser uuid.UUID       `json:"fromUserId"`
	ToUser   uuid.UUID       `json:"toUserId"`
	Amount   decimal.Decimal `json:"amount"`
	Date     Date            `json:"date"`
	Note     string          `json:"note"`
}

// Category roots. Every error returned by this package for bad input or a
// missing resource wraps exactly one of them.
var (
	ErrValidation = errors.New("ledger: validation failed")
	ErrNotFound   = errors.New("ledger: not found")
)

var (
	ErrGroupNotFound      = wrap(ErrNotFound, "group not found")
	ErrExpenseNotFound    = wrap(ErrNotFound, "expense not found")
	ErrSettlementNotFound = wrap(ErrNotFound, "settlement not found")

	ErrUnknownGroup       = wrap(ErrValidation, "group does not exist")
	ErrMissingGroup       = wrap(ErrValidation, "group is required")
	ErrEmptyDescription   = wrap(ErrValidation, "description can't be empty")
	ErrInvalidAmount      = wrap(ErrValidation, "amount must be positive")
	ErrAmountPrecision    = wrap(ErrValidation, "amount can't have more than 2 decimal places")
	ErrAmountTooLarge     = wrap(ErrValidation, "amount can't exceed 999999999999.99")
	ErrMissingPayer       = wrap(ErrValidation, "paid by user is required")
	ErrPayerNotMember     = wrap(ErrValidation, "payer is not a member of the group")
	ErrInvalidSplitType   = wrap(ErrValidation, "split type must be one of EQUAL, EXACT, PERCENT")
	ErrNoParticipants     = wrap(ErrValidation, "no members to split expense")
	ErrSharesRequired     = wrap(ErrValidation, "shares are required for this split type")
	ErrShareNotMember     = wrap(ErrValidation, "share holder is not a member of the group")
	ErrDuplicateShare     = wrap(ErrValidation, "share holder listed more than once")
	ErrNegativeShare      = wrap(ErrValidation, "share value can't be negative")
	ErrPercentOutOfRange  = wrap(ErrValidation, "percentage must be between 0 and 100")
	ErrExactSumMismatch   = wrap(ErrValidation, "exact shares must sum to the expense amount")
	ErrPercentSumMismatch = wrap(ErrValidation, "percentages must sum to 100")
	ErrGroupChange        = wrap(ErrValidation, "expense can't be moved to another group")
	ErrMissingParty       = wrap(ErrValidation, "from and to users are required")
	ErrSelfSettlement     = wrap(ErrValidation, "from and to users must differ")
	ErrPartyNotMember     = wrap(ErrValidation, "settlement party is not a member of the group")
	ErrOutstandingBalance = wrap(ErrValidation, "member still has a non-zero balance in the group")
)

func wrap(root error, msg string) error {
	return fmt.Errorf("%w: %s", root, msg)
}
