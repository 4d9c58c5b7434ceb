package ledger

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// sumEpsilon is the tolerance for EXACT and PERCENT share sums.
	sumEpsilon = decimal.New(1, -2)
	// zeroEpsilon is the magnitude below which a balance is treated as zero.
	zeroEpsilon = decimal.New(5, -3)
	hundred     = decimal.NewFromInt(100)
	// maxAmount is the largest amount the NUMERIC(14, 2) columns hold.
	maxAmount = decimal.New(99_999_999_999_999, -2)
)

func hasCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

func isNegligible(d decimal.Decimal) bool {
	return d.Abs().LessThan(zeroEpsilon)
}

func cents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// ComputeShares splits amount across the participants of an expense. members
// are the group's current members in group order; provided holds the caller's
// shares (required for EXACT and PERCENT, optional participant restriction
// for EQUAL). The owed amounts of the result always sum exactly to amount.
func ComputeShares(amount decimal.Decimal, splitType SplitType, members []Member, provided []ShareInput) ([]Share, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	if err := validateShareHolders(members, provided); err != nil {
		return nil, err
	}

	switch splitType {
	case SplitTypeEqual:
		participants := make([]uuid.UUID, 0, len(members))
		if len(provided) > 0 {
			for _, p := range provided {
				participants = append(participants, p.UserID)
			}
		} else {
			for _, m := range members {
				participants = append(participants, m.ID)
			}
		}
		return splitEqually(amount, participants)

	case SplitTypeExact:
		if len(provided) == 0 {
			return nil, ErrSharesRequired
		}
		return splitExactly(amount, provided)

	case SplitTypePercent:
		if len(provided) == 0 {
			return nil, ErrSharesRequired
		}
		return splitByPercent(amount, provided)

	default:
		return nil, ErrInvalidSplitType
	}
}

func validateShareHolders(members []Member, provided []ShareInput) error {
	isMember := make(map[uuid.UUID]bool, len(members))
	for _, m := range members {
		isMember[m.ID] = true
	}

	seen := make(map[uuid.UUID]bool, len(provided))
	for _, p := range provided {
		if !isMember[p.UserID] {
			return fmt.Errorf("%w: %s", ErrShareNotMember, p.UserID)
		}
		if seen[p.UserID] {
			return fmt.Errorf("%w: %s", ErrDuplicateShare, p.UserID)
		}
		seen[p.UserID] = true
	}
	return nil
}

func splitEqually(amount decimal.Decimal, participants []uuid.UUID) ([]Share, error) {
	n := int64(len(participants))
	if n == 0 {
		return nil, ErrNoParticipants
	}

	total := amount.Shift(2).IntPart()
	base := total / n
	remainder := total % n

	shares := make([]Share, 0, n)
	for i, userID := range participants {
		c := base
		// Distribute remainder to first few participants
		if int64(i) < remainder {
			c++
		}
		owed := cents(c)
		shares = append(shares, Share{UserID: userID, Value: owed, Owed: owed})
	}
	return shares, nil
}

func splitExactly(amount decimal.Decimal, provided []ShareInput) ([]Share, error) {
	sum := decimal.Zero
	shares := make([]Share, 0, len(provided))
	for _, p := range provided {
		if p.Value.IsNegative() {
			return nil, fmt.Errorf("%w: %s", ErrNegativeShare, p.UserID)
		}
		if !hasCents(p.Value) {
			return nil, fmt.Errorf("%w: share of %s", ErrAmountPrecision, p.UserID)
		}
		sum = sum.Add(p.Value)
		shares = append(shares, Share{UserID: p.UserID, Value: p.Value, Owed: p.Value})
	}

	if sum.Sub(amount).Abs().GreaterThan(sumEpsilon) {
		return nil, fmt.Errorf("%w: shares sum to %s, expected %s", ErrExactSumMismatch, sum.StringFixed(2), amount.StringFixed(2))
	}

	absorbResidual(shares, amount)
	return shares, nil
}

func splitByPercent(amount decimal.Decimal, provided []ShareInput) ([]Share, error) {
	sum := decimal.Zero
	for _, p := range provided {
		if p.Value.IsNegative() || p.Value.GreaterThan(hundred) {
			return nil, fmt.Errorf("%w: %s has %s", ErrPercentOutOfRange, p.UserID, p.Value)
		}
		sum = sum.Add(p.Value)
	}

	if sum.Sub(hundred).Abs().GreaterThan(sumEpsilon) {
		return nil, fmt.Errorf("%w: percentages sum to %s", ErrPercentSumMismatch, sum)
	}

	return apportion(amount, provided, sum), nil
}

// apportion hands out amount in whole cents proportionally to the share
// values (largest remainder method). Every participant gets the floor of its
// exact part; the cents left over go one each to the largest remainders,
// first in input order on ties. No owed amount is negative and a zero value
// owes nothing.
func apportion(amount decimal.Decimal, provided []ShareInput, total decimal.Decimal) []Share {
	pool := amount.Shift(2)

	shares := make([]Share, len(provided))
	remainders := make([]decimal.Decimal, len(provided))
	allotted := decimal.Zero
	for i, p := range provided {
		q, r := pool.Mul(p.Value).QuoRem(total, 0)
		shares[i] = Share{UserID: p.UserID, Value: p.Value, Owed: q}
		remainders[i] = r
		allotted = allotted.Add(q)
	}

	order := make([]int, len(provided))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return remainders[b].Cmp(remainders[a])
	})

	left := pool.Sub(allotted).IntPart()
	for k := int64(0); k < left; k++ {
		i := order[k]
		shares[i].Owed = shares[i].Owed.Add(decimal.NewFromInt(1))
	}

	for i := range shares {
		shares[i].Owed = shares[i].Owed.Shift(-2)
	}
	return shares
}

// absorbResidual adds whatever the owed amounts are short of (or over) amount
// to the largest share, the first one on ties. EXACT values are whole cents
// within one cent of amount, so the largest share always covers a cent taken
// off it.
func absorbResidual(shares []Share, amount decimal.Decimal) {
	if len(shares) == 0 {
		return
	}

	sum := decimal.Zero
	largest := 0
	for i, s := range shares {
		sum = sum.Add(s.Owed)
		if s.Owed.GreaterThan(shares[largest].Owed) {
			largest = i
		}
	}

	residual := amount.Sub(sum)
	if !residual.IsZero() {
		shares[largest].Owed = shares[largest].Owed.Add(residual)
	}
}
