package ledger

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and database-less runs.
type MemoryStore struct {
	mu sync.RWMutex

	expenses        map[uuid.UUID][]Expense // by group, insertion order
	expenseGroup    map[uuid.UUID]uuid.UUID
	settlements     map[uuid.UUID][]Settlement
	settlementGroup map[uuid.UUID]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		expenses:        make(map[uuid.UUID][]Expense),
		expenseGroup:    make(map[uuid.UUID]uuid.UUID),
		settlements:     make(map[uuid.UUID][]Settlement),
		settlementGroup: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *MemoryStore) SaveExpense(_ context.Context, expense Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expenses[expense.GroupID] = append(s.expenses[expense.GroupID], cloneExpense(expense))
	s.expenseGroup[expense.ID] = expense.GroupID
	return nil
}

func (s *MemoryStore) GetExpense(_ context.Context, id uuid.UUID) (*Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, groupID, ok := s.findExpense(id)
	if !ok {
		return nil, ErrExpenseNotFound
	}
	e := cloneExpense(s.expenses[groupID][i])
	return &e, nil
}

func (s *MemoryStore) ListExpenses(_ context.Context, groupID uuid.UUID) ([]Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Expense, 0, len(s.expenses[groupID]))
	for _, e := range s.expenses[groupID] {
		out = append(out, cloneExpense(e))
	}
	return out, nil
}

func (s *MemoryStore) ReplaceExpense(_ context.Context, expense Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, groupID, ok := s.findExpense(expense.ID)
	if !ok || groupID != expense.GroupID {
		return ErrExpenseNotFound
	}
	s.expenses[groupID][i] = cloneExpense(expense)
	return nil
}

func (s *MemoryStore) DeleteExpense(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, groupID, ok := s.findExpense(id)
	if !ok {
		return ErrExpenseNotFound
	}
	s.expenses[groupID] = slices.Delete(s.expenses[groupID], i, i+1)
	delete(s.expenseGroup, id)
	return nil
}

func (s *MemoryStore) SaveSettlement(_ context.Context, settlement Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settlements[settlement.GroupID] = append(s.settlements[settlement.GroupID], settlement)
	s.settlementGroup[settlement.ID] = settlement.GroupID
	return nil
}

func (s *MemoryStore) GetSettlement(_ context.Context, id uuid.UUID) (*Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, groupID, ok := s.findSettlement(id)
	if !ok {
		return nil, ErrSettlementNotFound
	}
	st := s.settlements[groupID][i]
	return &st, nil
}

func (s *MemoryStore) ListSettlements(_ context.Context, groupID uuid.UUID) ([]Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append(make([]Settlement, 0, len(s.settlements[groupID])), s.settlements[groupID]...), nil
}

func (s *MemoryStore) DeleteSettlement(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, groupID, ok := s.findSettlement(id)
	if !ok {
		return ErrSettlementNotFound
	}
	s.settlements[groupID] = slices.Delete(s.settlements[groupID], i, i+1)
	delete(s.settlementGroup, id)
	return nil
}

func (s *MemoryStore) DeleteGroup(_ context.Context, groupID uuid.UUID) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses := s.expenses[groupID]
	for _, e := range expenses {
		delete(s.expenseGroup, e.ID)
	}
	settlements := s.settlements[groupID]
	for _, st := range settlements {
		delete(s.settlementGroup, st.ID)
	}
	delete(s.expenses, groupID)
	delete(s.settlements, groupID)
	return len(expenses), len(settlements), nil
}

func (s *MemoryStore) findExpense(id uuid.UUID) (int, uuid.UUID, bool) {
	groupID, ok := s.expenseGroup[id]
	if !ok {
		return 0, uuid.Nil, false
	}
	i := slices.IndexFunc(s.expenses[groupID], func(e Expense) bool { return e.ID == id })
	return i, groupID, i >= 0
}

func (s *MemoryStore) findSettlement(id uuid.UUID) (int, uuid.UUID, bool) {
	groupID, ok := s.settlementGroup[id]
	if !ok {
		return 0, uuid.Nil, false
	}
	i := slices.IndexFunc(s.settlements[groupID], func(st Settlement) bool { return st.ID == id })
	return i, groupID, i >= 0
}

func cloneExpense(e Expense) Expense {
	e.Shares = slices.Clone(e.Shares)
	return e
}
