package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/billbatista/acasinha-splits/eventlogger"
	"github.com/billbatista/acasinha-splits/metrics"
	"github.com/google/uuid"
)

// Service records expenses and settlements and answers balance and
// settlement plan queries. Every write to a group and every balance or plan
// read of it runs inside that group's lock scope, so a full-history fold never
// observes a half-applied write.
type Service struct {
	directory Directory
	store     Store
	locker    GroupLocker
	cache     BalanceCache
	events    EventSink
}

type Option func(*Service)

func WithLocker(locker GroupLocker) Option {
	return func(s *Service) {
		s.locker = locker
	}
}

func WithBalanceCache(cache BalanceCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithEventSink(events EventSink) Option {
	return func(s *Service) {
		s.events = events
	}
}

func NewService(directory Directory, store Store, opts ...Option) *Service {
	s := &Service{
		directory: directory,
		store:     store,
		locker:    NewLocalLocker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateExpense(ctx context.Context, in ExpenseInput) (*Expense, error) {
	start := time.Now()
	expense, err := s.createExpense(ctx, in)
	metrics.ObserveWrite("expense.create", resultOf(err), time.Since(start))
	return expense, err
}

func (s *Service) createExpense(ctx context.Context, in ExpenseInput) (*Expense, error) {
	if in.GroupID == uuid.Nil {
		return nil, ErrMissingGroup
	}

	unlock, err := s.locker.Lock(ctx, in.GroupID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	members, err := s.writeMembers(ctx, in.GroupID)
	if err != nil {
		return nil, err
	}

	expense, err := NewExpense(in, members)
	if err != nil {
		slog.Warn("expense rejected", "group_id", in.GroupID, "error", err)
		return nil, err
	}

	if err := s.bump(ctx, in.GroupID); err != nil {
		return nil, err
	}
	if err := s.store.SaveExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}

	s.emit(newExpenseEvent(EventExpenseCreated, expense))
	slog.Info("expense created", "expense_id", expense.ID, "group_id", expense.GroupID, "amount", expense.Amount.StringFixed(2), "split_type", expense.SplitType)

	return &expense, nil
}

// UpdateExpense replaces an expense, validating in from scratch as if it were
// new. The expense keeps its id, group and creation time.
func (s *Service) UpdateExpense(ctx context.Context, id uuid.UUID, in ExpenseInput) (*Expense, error) {
	start := time.Now()
	expense, err := s.updateExpense(ctx, id, in)
	metrics.ObserveWrite("expense.update", resultOf(err), time.Since(start))
	return expense, err
}

func (s *Service) updateExpense(ctx context.Context, id uuid.UUID, in ExpenseInput) (*Expense, error) {
	current, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}

	groupID := current.GroupID
	if in.GroupID != uuid.Nil && in.GroupID != groupID {
		return nil, ErrGroupChange
	}
	in.GroupID = groupID

	unlock, err := s.locker.Lock(ctx, groupID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// it may have been deleted while we waited for the lock
	current, err = s.store.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}

	members, err := s.writeMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	replacement, err := NewExpense(in, members)
	if err != nil {
		slog.Warn("expense update rejected", "expense_id", id, "group_id", groupID, "error", err)
		return nil, err
	}
	replacement.ID = current.ID
	replacement.CreatedAt = current.CreatedAt

	if err := s.bump(ctx, groupID); err != nil {
		return nil, err
	}
	if err := s.store.ReplaceExpense(ctx, replacement); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("replacing expense: %w", err)
	}

	s.emit(newExpenseEvent(EventExpenseUpdated, replacement))
	slog.Info("expense updated", "expense_id", id, "group_id", groupID, "amount", replacement.Amount.StringFixed(2))

	return &replacement, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := s.deleteExpense(ctx, id)
	metrics.ObserveWrite("expense.delete", resultOf(err), time.Since(start))
	return err
}

func (s *Service) deleteExpense(ctx context.Context, id uuid.UUID) error {
	expense, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, expense.GroupID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.bump(ctx, expense.GroupID); err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("deleting expense: %w", err)
	}

	s.emit(newExpenseEvent(EventExpenseDeleted, *expense))
	slog.Info("expense deleted", "expense_id", id, "group_id", expense.GroupID)

	return nil
}

func (s *Service) GetExpense(ctx context.Context, id uuid.UUID) (*Expense, error) {
	return s.store.GetExpense(ctx, id)
}

// ListExpenses returns the group's expenses, empty for an unknown group.
func (s *Service) ListExpenses(ctx context.Context, groupID uuid.UUID) ([]Expense, error) {
	return s.store.ListExpenses(ctx, groupID)
}

func (s *Service) CreateSettlement(ctx context.Context, in SettlementInput) (*Settlement, error) {
	start := time.Now()
	settlement, err := s.createSettlement(ctx, in)
	metrics.ObserveWrite("settlement.create", resultOf(err), time.Since(start))
	return settlement, err
}

func (s *Service) createSettlement(ctx context.Context, in SettlementInput) (*Settlement, error) {
	if in.GroupID == uuid.Nil {
		return nil, ErrMissingGroup
	}

	unlock, err := s.locker.Lock(ctx, in.GroupID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	members, err := s.writeMembers(ctx, in.GroupID)
	if err != nil {
		return nil, err
	}

	settlement, err := NewSettlement(in, members)
	if err != nil {
		slog.Warn("settlement rejected", "group_id", in.GroupID, "error", err)
		return nil, err
	}

	if err := s.bump(ctx, in.GroupID); err != nil {
		return nil, err
	}
	if err := s.store.SaveSettlement(ctx, settlement); err != nil {
		return nil, fmt.Errorf("saving settlement: %w", err)
	}

	s.emit(newSettlementEvent(EventSettlementCreated, settlement))
	slog.Info("settlement created", "settlement_id", settlement.ID, "group_id", settlement.GroupID, "amount", settlement.Amount.StringFixed(2))

	return &settlement, nil
}

func (s *Service) DeleteSettlement(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := s.deleteSettlement(ctx, id)
	metrics.ObserveWrite("settlement.delete", resultOf(err), time.Since(start))
	return err
}

func (s *Service) deleteSettlement(ctx context.Context, id uuid.UUID) error {
	settlement, err := s.store.GetSettlement(ctx, id)
	if err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, settlement.GroupID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.bump(ctx, settlement.GroupID); err != nil {
		return err
	}
	if err := s.store.DeleteSettlement(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("deleting settlement: %w", err)
	}

	s.emit(newSettlementEvent(EventSettlementDeleted, *settlement))
	slog.Info("settlement deleted", "settlement_id", id, "group_id", settlement.GroupID)

	return nil
}

func (s *Service) GetSettlement(ctx context.Context, id uuid.UUID) (*Settlement, error) {
	return s.store.GetSettlement(ctx, id)
}

// ListSettlements returns the group's settlements, empty for an unknown group.
func (s *Service) ListSettlements(ctx context.Context, groupID uuid.UUID) ([]Settlement, error) {
	return s.store.ListSettlements(ctx, groupID)
}

// Balances returns one entry per current member of the group.
func (s *Service) Balances(ctx context.Context, groupID uuid.UUID) ([]BalanceEntry, error) {
	start := time.Now()

	unlock, err := s.locker.Lock(ctx, groupID)
	if err != nil {
		metrics.ObserveBalances(metrics.ResultError, time.Since(start))
		return nil, err
	}
	defer unlock()

	entries, err := s.balances(ctx, groupID)
	metrics.ObserveBalances(resultOf(err), time.Since(start))
	return entries, err
}

func (s *Service) SettlementPlan(ctx context.Context, groupID uuid.UUID) (*SettlementPlan, error) {
	unlock, err := s.locker.Lock(ctx, groupID)
	if err != nil {
		metrics.ObservePlan(metrics.ResultError, 0)
		return nil, err
	}
	defer unlock()

	entries, err := s.balances(ctx, groupID)
	if err != nil {
		metrics.ObservePlan(resultOf(err), 0)
		return nil, err
	}

	plan := PlanSettlement(groupID, entries)
	metrics.ObservePlan(metrics.ResultSuccess, plan.TransactionCount)

	return &plan, nil
}

// PurgeGroup deletes a group together with its ledger. Under the group's
// lock it checks the group still exists, drops the ledger and then calls
// remove to delete the group from the directory. A failed purge leaves both
// untouched; a failed remove leaves an empty group that can be deleted again.
func (s *Service) PurgeGroup(ctx context.Context, groupID uuid.UUID, remove func(ctx context.Context) error) error {
	unlock, err := s.locker.Lock(ctx, groupID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.directory.Members(ctx, groupID); err != nil {
		return err
	}

	if err := s.bump(ctx, groupID); err != nil {
		return err
	}
	expenses, settlements, err := s.store.DeleteGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("purging group ledger: %w", err)
	}

	s.emit(newGroupPurgedEvent(groupID, expenses, settlements))
	slog.Info("group ledger purged", "group_id", groupID, "expenses", expenses, "settlements", settlements)

	if err := remove(ctx); err != nil {
		slog.Error("group ledger purged but group not deleted", "group_id", groupID, "error", err)
		return err
	}
	return nil
}

// ReleaseMember calls remove to take userID out of groupIDs, but only while
// the user's balance is zero in every one of them. The groups stay locked
// until remove returns, so no write can reopen a balance in between. Dropping
// a member who still owes or is owed would take that amount out of the
// group's books.
func (s *Service) ReleaseMember(ctx context.Context, userID uuid.UUID, groupIDs []uuid.UUID, remove func(ctx context.Context) error) error {
	// a fixed lock order keeps two releases over the same groups from deadlocking
	groupIDs = slices.Clone(groupIDs)
	slices.SortFunc(groupIDs, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	groupIDs = slices.Compact(groupIDs)

	for _, groupID := range groupIDs {
		unlock, err := s.locker.Lock(ctx, groupID)
		if err != nil {
			return err
		}
		defer unlock()
	}

	for _, groupID := range groupIDs {
		entries, err := s.balances(ctx, groupID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.UserID == userID && !e.NetBalance.IsZero() {
				slog.Warn("member release rejected", "group_id", groupID, "user_id", userID, "net_balance", e.NetBalance.StringFixed(2))
				return fmt.Errorf("%w: %s is at %s", ErrOutstandingBalance, userID, e.NetBalance.StringFixed(2))
			}
		}
	}

	for _, groupID := range groupIDs {
		if err := s.bump(ctx, groupID); err != nil {
			return err
		}
	}
	return remove(ctx)
}

// balances must be called with the group lock held.
func (s *Service) balances(ctx context.Context, groupID uuid.UUID) ([]BalanceEntry, error) {
	members, err := s.directory.Members(ctx, groupID)
	if err != nil {
		return nil, err
	}

	version, cacheable := int64(0), false
	if s.cache != nil {
		version, err = s.cache.Version(ctx, groupID)
		if err != nil {
			slog.Warn("balance cache unavailable", "group_id", groupID, "error", err)
			metrics.IncCache(metrics.CacheError)
		} else {
			cacheable = true
			entries, ok, err := s.cache.Get(ctx, groupID, version)
			switch {
			case err != nil:
				slog.Warn("balance cache read failed", "group_id", groupID, "error", err)
				metrics.IncCache(metrics.CacheError)
			case ok && sameMembers(entries, members):
				metrics.IncCache(metrics.CacheHit)
				return entries, nil
			default:
				metrics.IncCache(metrics.CacheMiss)
			}
		}
	}

	expenses, err := s.store.ListExpenses(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	settlements, err := s.store.ListSettlements(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("listing settlements: %w", err)
	}

	entries := CalculateBalances(groupID, members, expenses, settlements)

	if cacheable {
		if err := s.cache.Set(ctx, groupID, version, entries); err != nil {
			slog.Warn("balance cache write failed", "group_id", groupID, "error", err)
			metrics.IncCache(metrics.CacheError)
		}
	}

	return entries, nil
}

// writeMembers resolves membership for a write. An unknown group is a client
// input error there, not a missing resource.
func (s *Service) writeMembers(ctx context.Context, groupID uuid.UUID) ([]Member, error) {
	members, err := s.directory.Members(ctx, groupID)
	if errors.Is(err, ErrGroupNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
	}
	return members, err
}

// bump invalidates cached balances of the group. It runs before the store
// write so that a failed bump leaves the ledger untouched.
func (s *Service) bump(ctx context.Context, groupID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Bump(ctx, groupID)
}

func (s *Service) emit(event eventlogger.Event) {
	if s.events != nil {
		s.events.Log(event)
	}
}

// sameMembers reports whether cached entries were computed for exactly the
// current membership, names included.
func sameMembers(entries []BalanceEntry, members []Member) bool {
	if len(entries) != len(members) {
		return false
	}
	for i, m := range members {
		if entries[i].UserID != m.ID || entries[i].UserName != m.Name {
			return false
		}
	}
	return true
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, ErrValidation):
		return metrics.ResultInvalid
	case errors.Is(err, ErrNotFound):
		return metrics.ResultNotFound
	default:
		return metrics.ResultError
	}
}
