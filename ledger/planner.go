package ledger

import (
	"bytes"
	"container/heap"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanSettlement proposes transfers that bring every balance to zero.
//
// The largest remaining creditor is repeatedly matched with the largest
// remaining debtor (ties broken by ascending member id) and the smaller of the
// two magnitudes is transferred. Every round retires at least one party, so a
// group with n non-zero balances yields at most n-1 suggestions, and with the
// two parties kept in heaps the whole plan costs O(n log n). The result is a
// deterministic approximation: it is not guaranteed to be the fewest possible
// transfers for every balance topology.
func PlanSettlement(groupID uuid.UUID, balances []BalanceEntry) SettlementPlan {
	creditors := &partyHeap{}
	debtors := &partyHeap{}
	for _, b := range balances {
		if isNegligible(b.NetBalance) {
			continue
		}
		p := &party{id: b.UserID, name: b.UserName, remaining: b.NetBalance.Abs()}
		if b.NetBalance.IsPositive() {
			*creditors = append(*creditors, p)
		} else {
			*debtors = append(*debtors, p)
		}
	}
	heap.Init(creditors)
	heap.Init(debtors)

	suggestions := make([]SettlementSuggestion, 0)
	for creditors.Len() > 0 && debtors.Len() > 0 {
		creditor := (*creditors)[0]
		debtor := (*debtors)[0]

		amount := decimal.Min(creditor.remaining, debtor.remaining)
		suggestions = append(suggestions, SettlementSuggestion{
			FromUserID:   debtor.id,
			FromUserName: debtor.name,
			ToUserID:     creditor.id,
			ToUserName:   creditor.name,
			Amount:       amount,
		})

		creditor.remaining = creditor.remaining.Sub(amount)
		debtor.remaining = debtor.remaining.Sub(amount)
		settle(creditors, creditor)
		settle(debtors, debtor)
	}

	return SettlementPlan{
		GroupID:          groupID,
		Suggestions:      suggestions,
		TransactionCount: len(suggestions),
	}
}

// settle drops the top party once nothing is left, otherwise restores the
// heap order after its remaining magnitude shrank.
func settle(h *partyHeap, top *party) {
	if isNegligible(top.remaining) {
		heap.Pop(h)
		return
	}
	heap.Fix(h, 0)
}

type party struct {
	id        uuid.UUID
	name      string
	remaining decimal.Decimal
}

// partyHeap is a max-heap on remaining magnitude, then min on id.
type partyHeap []*party

func (h partyHeap) Len() int { return len(h) }

func (h partyHeap) Less(i, j int) bool {
	if c := h[i].remaining.Cmp(h[j].remaining); c != 0 {
		return c > 0
	}
	return bytes.Compare(h[i].id[:], h[j].id[:]) < 0
}

func (h partyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *partyHeap) Push(x any) { *h = append(*h, x.(*party)) }

func (h *partyHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return p
}
