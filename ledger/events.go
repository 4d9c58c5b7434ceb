package ledger

import (
	"github.com/billbatista/acasinha-splits/eventlogger"
	"github.com/google/uuid"
)

const (
	EventExpenseCreated    = "expense.created"
	EventExpenseUpdated    = "expense.updated"
	EventExpenseDeleted    = "expense.deleted"
	EventSettlementCreated = "settlement.created"
	EventSettlementDeleted = "settlement.deleted"
	EventGroupPurged       = "group.purged"
)

// EventSink receives ledger events. *eventlogger.Worker satisfies it.
type EventSink interface {
	Log(event eventlogger.Event)
}

type ExpenseEvent struct {
	ExpenseID   string  `json:"expense_id"`
	GroupID     string  `json:"group_id"`
	PaidBy      string  `json:"paid_by"`
	Amount      string  `json:"amount"`
	Description string  `json:"description,omitempty"`
	SplitType   string  `json:"split_type,omitempty"`
	Splits      []Split `json:"splits,omitempty"`
}

type Split struct {
	UserID string `json:"user_id"`
	Owed   string `json:"owed"`
}

type SettlementEvent struct {
	SettlementID string `json:"settlement_id"`
	GroupID      string `json:"group_id"`
	FromUserID   string `json:"from_user_id"`
	ToUserID     string `json:"to_user_id"`
	Amount       string `json:"amount"`
}

type GroupPurgedEvent struct {
	GroupID     string `json:"group_id"`
	Expenses    int    `json:"expenses"`
	Settlements int    `json:"settlements"`
}

func newExpenseEvent(eventType string, e Expense) eventlogger.Event {
	splits := make([]Split, 0, len(e.Shares))
	for _, s := range e.Shares {
		splits = append(splits, Split{UserID: s.UserID.String(), Owed: s.Owed.StringFixed(2)})
	}
	return eventlogger.NewEvent(
		eventlogger.WithType(eventType),
		eventlogger.WithData(ExpenseEvent{
			ExpenseID:   e.ID.String(),
			GroupID:     e.GroupID.String(),
			PaidBy:      e.PaidBy.String(),
			Amount:      e.Amount.StringFixed(2),
			Description: e.Description,
			SplitType:   string(e.SplitType),
			Splits:      splits,
		}),
		eventlogger.WithMetadata(map[string]string{"group_id": e.GroupID.String()}),
	)
}

func newSettlementEvent(eventType string, s Settlement) eventlogger.Event {
	return eventlogger.NewEvent(
		eventlogger.WithType(eventType),
		eventlogger.WithData(SettlementEvent{
			SettlementID: s.ID.String(),
			GroupID:      s.GroupID.String(),
			FromUserID:   s.FromUser.String(),
			ToUserID:     s.ToUser.String(),
			Amount:       s.Amount.StringFixed(2),
		}),
		eventlogger.WithMetadata(map[string]string{"group_id": s.GroupID.String()}),
	)
}

func newGroupPurgedEvent(groupID uuid.UUID, expenses, settlements int) eventlogger.Event {
	return eventlogger.NewEvent(
		eventlogger.WithType(EventGroupPurged),
		eventlogger.WithData(GroupPurgedEvent{
			GroupID:     groupID.String(),
			Expenses:    expenses,
			Settlements: settlements,
		}),
		eventlogger.WithMetadata(map[string]string{"group_id": groupID.String()}),
	)
}
