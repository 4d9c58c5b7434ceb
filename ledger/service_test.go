package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billbatista/acasinha-splits/eventlogger"
)

type stubDirectory struct {
	mu     sync.Mutex
	groups map[uuid.UUID][]Member
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{groups: make(map[uuid.UUID][]Member)}
}

func (d *stubDirectory) set(groupID uuid.UUID, members []Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[groupID] = slices.Clone(members)
}

func (d *stubDirectory) remove(groupID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.groups, groupID)
}

func (d *stubDirectory) Members(_ context.Context, groupID uuid.UUID) ([]Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.groups[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return slices.Clone(members), nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []eventlogger.Event
}

func (s *recordingSink) Log(event eventlogger.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	service   *Service
	store     *MemoryStore
	directory *stubDirectory
	events    *recordingSink
	groupID   uuid.UUID
	members   []Member
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:     NewMemoryStore(),
		directory: newStubDirectory(),
		events:    &recordingSink{},
		groupID:   uuid.New(),
		members:   newMembers("ana", "bruno"),
	}
	f.directory.set(f.groupID, f.members)
	opts = append([]Option{WithEventSink(f.events)}, opts...)
	f.service = NewService(f.directory, f.store, opts...)
	return f
}

func (f *fixture) equalExpense(amount string, payer int) ExpenseInput {
	return ExpenseInput{
		GroupID:     f.groupID,
		Description: "groceries",
		Amount:      dec(amount),
		PaidBy:      f.members[payer].ID,
		SplitType:   SplitTypeEqual,
	}
}

func TestServiceScenarioEqualSplitAndSettle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.members[0].ID, f.members[1].ID

	expense, err := f.service.CreateExpense(ctx, f.equalExpense("150.00", 0))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, expense.ID)
	assert.Equal(t, Today(), expense.Date)

	balances, err := f.service.Balances(ctx, f.groupID)
	require.NoError(t, err)
	assert.Equal(t, []string{"75.00", "-75.00"}, netOf(balances))

	plan, err := f.service.SettlementPlan(ctx, f.groupID)
	require.NoError(t, err)
	require.Equal(t, 1, plan.TransactionCount)
	assert.Equal(t, b, plan.Suggestions[0].FromUserID)
	assert.Equal(t, a, plan.Suggestions[0].ToUserID)
	assert.Equal(t, "75.00", plan.Suggestions[0].Amount.StringFixed(2))

	_, err = f.service.CreateSettlement(ctx, SettlementInput{GroupID: f.groupID, FromUser: b, ToUser: a, Amount: dec("75.00"), Note: " paid back "})
	require.NoError(t, err)

	plan, err = f.service.SettlementPlan(ctx, f.groupID)
	require.NoError(t, err)
	assert.Empty(t, plan.Suggestions)
	assert.Equal(t, 0, plan.TransactionCount)

	assert.Equal(t, []string{EventExpenseCreated, EventSettlementCreated}, f.events.types())
}

func TestServiceRejectedExpenseIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.members[0].ID, f.members[1].ID

	_, err := f.service.CreateExpense(ctx, ExpenseInput{
		GroupID:     f.groupID,
		Description: "rent",
		Amount:      dec("100.00"),
		PaidBy:      a,
		SplitType:   SplitTypeExact,
		Shares:      []ShareInput{{UserID: a, Value: dec("60")}, {UserID: b, Value: dec("30")}},
	})
	assert.ErrorIs(t, err, ErrExactSumMismatch)

	expenses, err := f.service.ListExpenses(ctx, f.groupID)
	require.NoError(t, err)
	assert.Empty(t, expenses)
	assert.Empty(t, f.events.types())
}

func TestServiceCreateExpenseValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stranger := uuid.New()

	tests := []struct {
		name   string
		modify func(*ExpenseInput)
		want   error
	}{
		{"missing group", func(in *ExpenseInput) { in.GroupID = uuid.Nil }, ErrMissingGroup},
		{"unknown group", func(in *ExpenseInput) { in.GroupID = uuid.New() }, ErrUnknownGroup},
		{"blank description", func(in *ExpenseInput) { in.Description = "  " }, ErrEmptyDescription},
		{"negative amount", func(in *ExpenseInput) { in.Amount = dec("-50.00") }, ErrInvalidAmount},
		{"missing amount", func(in *ExpenseInput) { in.Amount = decimal.Decimal{} }, ErrInvalidAmount},
		{"missing payer", func(in *ExpenseInput) { in.PaidBy = uuid.Nil }, ErrMissingPayer},
		{"payer outside group", func(in *ExpenseInput) { in.PaidBy = stranger }, ErrPayerNotMember},
		{"missing split type", func(in *ExpenseInput) { in.SplitType = "" }, ErrInvalidSplitType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.equalExpense("30.00", 0)
			tt.modify(&in)

			_, err := f.service.CreateExpense(ctx, in)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrValidation)
			assert.NotErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestServiceUpdateExpense(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.service.CreateExpense(ctx, f.equalExpense("150.00", 0))
	require.NoError(t, err)

	in := f.equalExpense("40.00", 1)
	in.GroupID = uuid.Nil
	in.Date = NewDate(created.CreatedAt.AddDate(0, 0, -3))
	updated, err := f.service.UpdateExpense(ctx, created.ID, in)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.GroupID, updated.GroupID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, in.Date, updated.Date)

	balances, err := f.service.Balances(ctx, f.groupID)
	require.NoError(t, err)
	assert.Equal(t, []string{"-20.00", "20.00"}, netOf(balances))

	_, err = f.service.UpdateExpense(ctx, uuid.New(), in)
	assert.ErrorIs(t, err, ErrExpenseNotFound)

	moved := f.equalExpense("40.00", 1)
	moved.GroupID = uuid.New()
	_, err = f.service.UpdateExpense(ctx, created.ID, moved)
	assert.ErrorIs(t, err, ErrGroupChange)

	invalid := f.equalExpense("0", 1)
	_, err = f.service.UpdateExpense(ctx, created.ID, invalid)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	got, err := f.service.GetExpense(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "40.00", got.Amount.StringFixed(2))

	assert.Equal(t, []string{EventExpenseCreated, EventExpenseUpdated}, f.events.types())
}

func TestServiceDeleteExpense(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.service.CreateExpense(ctx, f.equalExpense("10.00", 0))
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteExpense(ctx, created.ID))
	assert.ErrorIs(t, f.service.DeleteExpense(ctx, created.ID), ErrExpenseNotFound)

	_, err = f.service.GetExpense(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	balances, err := f.service.Balances(ctx, f.groupID)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.00", "0.00"}, netOf(balances))
}

func TestServiceSettlementValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.members[0].ID, f.members[1].ID

	tests := []struct {
		name string
		in   SettlementInput
		want error
	}{
		{"unknown group", SettlementInput{GroupID: uuid.New(), FromUser: a, ToUser: b, Amount: dec("50")}, ErrUnknownGroup},
		{"self settlement", SettlementInput{GroupID: f.groupID, FromUser: a, ToUser: a, Amount: dec("50")}, ErrSelfSettlement},
		{"negative amount", SettlementInput{GroupID: f.groupID, FromUser: a, ToUser: b, Amount: dec("-10")}, ErrInvalidAmount},
		{"zero amount", SettlementInput{GroupID: f.groupID, FromUser: a, ToUser: b}, ErrInvalidAmount},
		{"amount too large", SettlementInput{GroupID: f.groupID, FromUser: a, ToUser: b, Amount: dec("1000000000000")}, ErrAmountTooLarge},
		{"missing party", SettlementInput{GroupID: f.groupID, FromUser: a, Amount: dec("10")}, ErrMissingParty},
		{"party outside group", SettlementInput{GroupID: f.groupID, FromUser: a, ToUser: uuid.New(), Amount: dec("10")}, ErrPartyNotMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.CreateSettlement(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	settlements, err := f.service.ListSettlements(ctx, f.groupID)
	require.NoError(t, err)
	assert.Empty(t, settlements)
}

func TestServiceDeleteSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.members[0].ID, f.members[1].ID

	created, err := f.service.CreateSettlement(ctx, SettlementInput{GroupID: f.groupID, FromUser: b, ToUser: a, Amount: dec("12.50")})
	require.NoError(t, err)

	got, err := f.service.GetSettlement(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	require.NoError(t, f.service.DeleteSettlement(ctx, created.ID))
	assert.ErrorIs(t, f.service.DeleteSettlement(ctx, created.ID), ErrSettlementNotFound)
	assert.Equal(t, []string{EventSettlementCreated, EventSettlementDeleted}, f.events.types())
}

func TestServiceReadsOfUnknownGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	unknown := uuid.New()

	_, err := f.service.Balances(ctx, unknown)
	assert.ErrorIs(t, err, ErrGroupNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.service.SettlementPlan(ctx, unknown)
	assert.ErrorIs(t, err, ErrNotFound)

	expenses, err := f.service.ListExpenses(ctx, unknown)
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

func TestServicePurgeGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.CreateExpense(ctx, f.equalExpense("10.00", 0))
	require.NoError(t, err)
	_, err = f.service.CreateExpense(ctx, f.equalExpense("20.00", 1))
	require.NoError(t, err)

	removed := false
	require.NoError(t, f.service.PurgeGroup(ctx, f.groupID, func(context.Context) error {
		// the ledger is already empty when the group goes away
		expenses, err := f.store.ListExpenses(ctx, f.groupID)
		require.NoError(t, err)
		assert.Empty(t, expenses)

		f.directory.remove(f.groupID)
		removed = true
		return nil
	}))
	assert.True(t, removed)

	expenses, err := f.service.ListExpenses(ctx, f.groupID)
	require.NoError(t, err)
	assert.Empty(t, expenses)

	f.events.mu.Lock()
	last := f.events.events[len(f.events.events)-1]
	f.events.mu.Unlock()
	assert.Equal(t, EventGroupPurged, last.Type)
	assert.Equal(t, GroupPurgedEvent{GroupID: f.groupID.String(), Expenses: 2, Settlements: 0}, last.Data)
}

func TestServicePurgeUnknownGroup(t *testing.T) {
	f := newFixture(t)

	err := f.service.PurgeGroup(context.Background(), uuid.New(), func(context.Context) error {
		t.Fatal("remove called for an unknown group")
		return nil
	})
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestServicePurgeGroupRemoveFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.CreateExpense(ctx, f.equalExpense("10.00", 0))
	require.NoError(t, err)

	boom := errors.New("directory down")
	err = f.service.PurgeGroup(ctx, f.groupID, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	// the group survives with an empty ledger and can be deleted again
	balances, err := f.service.Balances(ctx, f.groupID)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.00", "0.00"}, netOf(balances))
	require.NoError(t, f.service.PurgeGroup(ctx, f.groupID, func(context.Context) error { return nil }))
}

func TestServiceReleaseMemberWithBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.members[0].ID, f.members[1].ID

	_, err := f.service.CreateExpense(ctx, f.equalExpense("100.00", 0))
	require.NoError(t, err)

	release := func(userID uuid.UUID) error {
		return f.service.ReleaseMember(ctx, userID, []uuid.UUID{f.groupID}, func(context.Context) error {
			var kept []Member
			for _, m := range f.members {
				if m.ID != userID {
					kept = append(kept, m)
				}
			}
			f.directory.set(f.groupID, kept)
			return nil
		})
	}

	err = release(b)
	assert.ErrorIs(t, err, ErrOutstandingBalance)
	assert.ErrorIs(t, err, ErrValidation)
	err = release(a)
	assert.ErrorIs(t, err, ErrOutstandingBalance)

	// nothing was dropped, so the books still balance
	balances, err := f.service.Balances(ctx, f.groupID)
	require.NoError(t, err)
	assert.Equal(t, []string{"50.00", "-50.00"}, netOf(balances))

	_, err = f.service.CreateSettlement(ctx, SettlementInput{GroupID: f.groupID, FromUser: b, ToUser: a, Amount: dec("50.00")})
	require.NoError(t, err)

	require.NoError(t, release(b))
	balances, err = f.service.Balances(ctx, f.groupID)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, a, balances[0].UserID)
	assert.True(t, balances[0].NetBalance.IsZero())
}

func TestServiceReleaseMemberChecksEveryGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.members[0].ID, f.members[1].ID

	settled := uuid.New()
	f.directory.set(settled, f.members)

	_, err := f.service.CreateExpense(ctx, f.equalExpense("30.00", 0))
	require.NoError(t, err)

	called := false
	err = f.service.ReleaseMember(ctx, b, []uuid.UUID{settled, f.groupID, settled}, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOutstandingBalance)
	assert.False(t, called)

	require.NoError(t, f.service.ReleaseMember(ctx, b, []uuid.UUID{settled}, func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)

	// a user in no group is released straight away
	require.NoError(t, f.service.ReleaseMember(ctx, a, nil, func(context.Context) error { return nil }))

	err = f.service.ReleaseMember(ctx, a, []uuid.UUID{uuid.New()}, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestServiceConcurrentWritesOnOneGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.members = newMembers("ana", "bruno", "carla")
	f.directory.set(f.groupID, f.members)

	const writers = 30
	var wg sync.WaitGroup
	errs := make(chan error, writers*2)
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.CreateExpense(ctx, f.equalExpense("10.00", i%3))
			errs <- err
		}(i)
		go func() {
			defer wg.Done()
			_, err := f.service.Balances(ctx, f.groupID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	expenses, err := f.service.ListExpenses(ctx, f.groupID)
	require.NoError(t, err)
	assert.Len(t, expenses, writers)

	balances, err := f.service.Balances(ctx, f.groupID)
	require.NoError(t, err)
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.NetBalance)
	}
	assert.True(t, total.IsZero())
}

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestServiceBalanceCache(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedisClient(t)
	cache := NewRedisBalanceCache(client, 0)
	f := newFixture(t, WithBalanceCache(cache))

	_, err := f.service.CreateExpense(ctx, f.equalExpense("150.00", 0))
	require.NoError(t, err)

	balances, err := f.service.Balances(ctx, f.groupID)
	require.NoError(t, err)
	assert.Equal(t, []string{"75.00", "-75.00"}, netOf(balances))

	version, err := cache.Version(ctx, f.groupID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	require.True(t, mr.Exists(balancesKey(f.groupID, version)))

	// a planted entry for the current version is served as is
	planted := slices.Clone(balances)
	planted[0].NetBalance = dec("1.00")
	planted[1].NetBalance = dec("-1.00")
	raw, err := json.Marshal(planted)
	require.NoError(t, err)
	require.NoError(t, mr.Set(balancesKey(f.groupID, version), string(raw)))

	balances, err = f.service.Balances(ctx, f.groupID)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.00", "-1.00"}, netOf(balances))

	// any write moves the version on
	_, err = f.service.CreateExpense(ctx, f.equalExpense("50.00", 1))
	require.NoError(t, err)

	balances, err = f.service.Balances(ctx, f.groupID)
	require.NoError(t, err)
	assert.Equal(t, []string{"50.00", "-50.00"}, netOf(balances))

	// renaming a member invalidates the cached entry too
	renamed := slices.Clone(f.members)
	renamed[1].Name = "bruna"
	f.directory.set(f.groupID, renamed)

	balances, err = f.service.Balances(ctx, f.groupID)
	require.NoError(t, err)
	assert.Equal(t, "bruna", balances[1].UserName)
}

func TestServiceWorksWhenCacheIsDown(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedisClient(t)
	f := newFixture(t, WithBalanceCache(NewRedisBalanceCache(client, 0)))

	_, err := f.service.CreateExpense(ctx, f.equalExpense("150.00", 0))
	require.NoError(t, err)

	mr.Close()

	balances, err := f.service.Balances(ctx, f.groupID)
	require.NoError(t, err)
	assert.Equal(t, []string{"75.00", "-75.00"}, netOf(balances))

	// without a version bump a write could leave stale balances behind, so it fails
	_, err = f.service.CreateExpense(ctx, f.equalExpense("10.00", 0))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)

	expenses, err := f.service.ListExpenses(ctx, f.groupID)
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
}
