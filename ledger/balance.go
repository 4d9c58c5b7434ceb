package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CalculateBalances computes the net balance of every member from the
// group's expenses and settlements. The result has one entry per member, in
// member order, zero balances included. Traversal order of the history does
// not matter.
func CalculateBalances(groupID uuid.UUID, members []Member, expenses []Expense, settlements []Settlement) []BalanceEntry {
	balances := make(map[uuid.UUID]decimal.Decimal, len(members))

	// Initialize all members with 0 balance
	for _, m := range members {
		balances[m.ID] = decimal.Zero
	}

	for _, expense := range expenses {
		// Credit the payer with the full amount
		balances[expense.PaidBy] = balances[expense.PaidBy].Add(expense.Amount)

		// Debit each share holder for their share
		for _, share := range expense.Shares {
			balances[share.UserID] = balances[share.UserID].Sub(share.Owed)
		}
	}

	// A settlement shrinks the payer's debt and the receiver's credit.
	for _, s := range settlements {
		balances[s.FromUser] = balances[s.FromUser].Add(s.Amount)
		balances[s.ToUser] = balances[s.ToUser].Sub(s.Amount)
	}

	entries := make([]BalanceEntry, 0, len(members))
	for _, m := range members {
		net := balances[m.ID].Round(2)
		if isNegligible(net) {
			net = decimal.Zero
		}
		entries = append(entries, BalanceEntry{
			GroupID:    groupID,
			UserID:     m.ID,
			UserName:   m.Name,
			NetBalance: net,
		})
	}
	return entries
}
