package server

import (
	"net/http"

	"github.com/billbatista/acasinha-splits/ledger"
)

func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	var in ledger.ExpenseInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	expense, err := s.ledger.CreateExpense(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request) {
	groupID := pathID(r, "groupID")

	expenses, err := s.ledger.ListExpenses(r.Context(), groupID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) getExpense(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")

	expense, err := s.ledger.GetExpense(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) updateExpense(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")

	var in ledger.ExpenseInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	expense, err := s.ledger.UpdateExpense(r.Context(), id, in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")

	if err := s.ledger.DeleteExpense(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createSettlement(w http.ResponseWriter, r *http.Request) {
	var in ledger.SettlementInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settlement, err := s.ledger.CreateSettlement(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, settlement)
}

func (s *Server) listSettlements(w http.ResponseWriter, r *http.Request) {
	groupID := pathID(r, "groupID")

	settlements, err := s.ledger.ListSettlements(r.Context(), groupID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlements)
}

func (s *Server) getSettlement(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")

	settlement, err := s.ledger.GetSettlement(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}

func (s *Server) deleteSettlement(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")

	if err := s.ledger.DeleteSettlement(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) balances(w http.ResponseWriter, r *http.Request) {
	groupID := pathID(r, "groupID")

	entries, err := s.ledger.Balances(r.Context(), groupID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) settlementPlan(w http.ResponseWriter, r *http.Request) {
	groupID := pathID(r, "groupID")

	plan, err := s.ledger.SettlementPlan(r.Context(), groupID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}
