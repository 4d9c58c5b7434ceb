package ledger

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustExpense(t *testing.T, groupID uuid.UUID, members []Member, in ExpenseInput) Expense {
	t.Helper()
	in.GroupID = groupID
	if in.Description == "" {
		in.Description = "dinner"
	}
	e, err := NewExpense(in, members)
	require.NoError(t, err)
	return e
}

func mustSettlement(t *testing.T, groupID uuid.UUID, members []Member, from, to uuid.UUID, amount string) Settlement {
	t.Helper()
	s, err := NewSettlement(SettlementInput{GroupID: groupID, FromUser: from, ToUser: to, Amount: dec(amount)}, members)
	require.NoError(t, err)
	return s
}

func netOf(entries []BalanceEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.NetBalance.StringFixed(2))
	}
	return out
}

func TestCalculateBalancesEqualSplit(t *testing.T) {
	groupID := uuid.New()
	members := newMembers("ana", "bruno")
	expense := mustExpense(t, groupID, members, ExpenseInput{
		Amount:    dec("150.00"),
		PaidBy:    members[0].ID,
		SplitType: SplitTypeEqual,
	})

	entries := CalculateBalances(groupID, members, []Expense{expense}, nil)

	require.Len(t, entries, 2)
	assert.Equal(t, []string{"75.00", "-75.00"}, netOf(entries))
	for i, e := range entries {
		assert.Equal(t, groupID, e.GroupID)
		assert.Equal(t, members[i].ID, e.UserID)
		assert.Equal(t, members[i].Name, e.UserName)
	}
}

func TestCalculateBalancesSingleMemberPaysOwnExpense(t *testing.T) {
	groupID := uuid.New()
	members := newMembers("ana")
	expense := mustExpense(t, groupID, members, ExpenseInput{
		Amount:    dec("50.00"),
		PaidBy:    members[0].ID,
		SplitType: SplitTypeEqual,
	})

	entries := CalculateBalances(groupID, members, []Expense{expense}, nil)

	require.Len(t, entries, 1)
	assert.True(t, entries[0].NetBalance.IsZero())
}

func TestCalculateBalancesSettlementPaysDownDebt(t *testing.T) {
	groupID := uuid.New()
	members := newMembers("ana", "bruno", "carla")
	a, b, c := members[0].ID, members[1].ID, members[2].ID

	expenses := []Expense{
		mustExpense(t, groupID, members, ExpenseInput{Amount: dec("90.00"), PaidBy: a, SplitType: SplitTypeEqual}),
		mustExpense(t, groupID, members, ExpenseInput{
			Amount:    dec("40.00"),
			PaidBy:    b,
			SplitType: SplitTypeExact,
			Shares:    []ShareInput{{UserID: a, Value: dec("10")}, {UserID: c, Value: dec("30")}},
		}),
	}
	settlements := []Settlement{mustSettlement(t, groupID, members, c, a, "20.00")}

	entries := CalculateBalances(groupID, members, expenses, settlements)

	// a: +90 -30 -10 -20 = 30, b: -30 +40 = 10, c: -30 -30 +20 = -40
	assert.Equal(t, []string{"30.00", "10.00", "-40.00"}, netOf(entries))
}

func TestCalculateBalancesIncludesIdleMembers(t *testing.T) {
	groupID := uuid.New()
	members := newMembers("ana", "bruno", "carla")
	expense := mustExpense(t, groupID, members, ExpenseInput{
		Amount:    dec("20.00"),
		PaidBy:    members[0].ID,
		SplitType: SplitTypeEqual,
		Shares:    []ShareInput{{UserID: members[0].ID}, {UserID: members[1].ID}},
	})

	entries := CalculateBalances(groupID, members, []Expense{expense}, nil)

	assert.Equal(t, []string{"10.00", "-10.00", "0.00"}, netOf(entries))
}

func TestCalculateBalancesNoHistory(t *testing.T) {
	groupID := uuid.New()
	members := newMembers("ana", "bruno")

	entries := CalculateBalances(groupID, members, nil, nil)

	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, e.NetBalance.IsZero())
	}
}

func randomHistory(t *testing.T, rng *rand.Rand, groupID uuid.UUID, members []Member, n int) ([]Expense, []Settlement) {
	t.Helper()

	splitTypes := []SplitType{SplitTypeEqual, SplitTypeExact, SplitTypePercent}
	expenses := make([]Expense, 0, n)
	settlements := make([]Settlement, 0, n/3)

	for i := 0; i < n; i++ {
		payer := members[rng.IntN(len(members))].ID
		amount := cents(1 + rng.Int64N(100_000))
		in := ExpenseInput{Amount: amount, PaidBy: payer, SplitType: splitTypes[rng.IntN(len(splitTypes))]}

		switch in.SplitType {
		case SplitTypeExact:
			left := amount
			for j, m := range members {
				v := left
				if j < len(members)-1 {
					v = cents(rng.Int64N(left.Shift(2).IntPart() + 1))
				}
				in.Shares = append(in.Shares, ShareInput{UserID: m.ID, Value: v})
				left = left.Sub(v)
			}
		case SplitTypePercent:
			left := decimal.NewFromInt(100)
			for j, m := range members {
				v := left
				if j < len(members)-1 {
					v = decimal.New(rng.Int64N(left.Shift(2).IntPart()+1), -2)
				}
				in.Shares = append(in.Shares, ShareInput{UserID: m.ID, Value: v})
				left = left.Sub(v)
			}
		}
		expenses = append(expenses, mustExpense(t, groupID, members, in))

		if i%3 == 0 {
			from := rng.IntN(len(members))
			to := (from + 1 + rng.IntN(len(members)-1)) % len(members)
			settlements = append(settlements, mustSettlement(t, groupID, members, members[from].ID, members[to].ID, cents(1+rng.Int64N(50_000)).String()))
		}
	}
	return expenses, settlements
}

func TestCalculateBalancesConservesMoney(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	groupID := uuid.New()

	for round := 0; round < 50; round++ {
		members := make([]Member, 2+rng.IntN(8))
		for i := range members {
			members[i] = Member{ID: uuid.New()}
		}
		expenses, settlements := randomHistory(t, rng, groupID, members, 20)

		entries := CalculateBalances(groupID, members, expenses, settlements)

		total := decimal.Zero
		for _, e := range entries {
			total = total.Add(e.NetBalance)
		}
		require.True(t, total.IsZero(), "round %d: balances sum to %s", round, total)
	}
}

func TestCalculateBalancesIsOrderIndependentAndRepeatable(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	groupID := uuid.New()
	members := newMembers("ana", "bruno", "carla", "davi")
	expenses, settlements := randomHistory(t, rng, groupID, members, 30)

	first := CalculateBalances(groupID, members, expenses, settlements)
	again := CalculateBalances(groupID, members, expenses, settlements)
	assert.Equal(t, first, again)

	reversedExpenses := slices.Clone(expenses)
	slices.Reverse(reversedExpenses)
	reversedSettlements := slices.Clone(settlements)
	slices.Reverse(reversedSettlements)

	reversed := CalculateBalances(groupID, members, reversedExpenses, reversedSettlements)
	assert.Equal(t, netOf(first), netOf(reversed))
}
