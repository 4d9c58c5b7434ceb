package server

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/billbatista/acasinha-splits/eventlogger"
	"github.com/billbatista/acasinha-splits/group"
	"github.com/billbatista/acasinha-splits/ledger"
	"github.com/billbatista/acasinha-splits/middleware"
	"github.com/billbatista/acasinha-splits/user"
)

type Server struct {
	ledger  *ledger.Service
	users   user.Repository
	groups  *group.Directory
	journal eventlogger.Journal
	events  ledger.EventSink
}

// New builds the HTTP surface. journal and events may be nil: the events
// listing then answers empty and directory changes are not journaled.
func New(ledgerService *ledger.Service, users user.Repository, groups *group.Directory, journal eventlogger.Journal, events ledger.EventSink) *Server {
	return &Server{
		ledger:  ledgerService,
		users:   users,
		groups:  groups,
		journal: journal,
		events:  events,
	}
}

func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Metrics)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/events", s.listEvents)

	router.Route("/users", func(r chi.Router) {
		r.Post("/", s.createUser)
		r.Get("/", s.listUsers)
		r.Get("/{id}", s.getUser)
		r.Put("/{id}", s.updateUser)
		r.Delete("/{id}", s.deleteUser)
	})

	router.Route("/groups", func(r chi.Router) {
		r.Post("/", s.createGroup)
		r.Get("/", s.listGroups)
		r.Get("/{id}", s.getGroup)
		r.Delete("/{id}", s.deleteGroup)
		r.Post("/{id}/members/{userID}", s.addMember)
		r.Delete("/{id}/members/{userID}", s.removeMember)
	})

	router.Route("/expenses", func(r chi.Router) {
		r.Post("/", s.createExpense)
		r.Get("/group/{groupID}", s.listExpenses)
		r.Get("/{id}", s.getExpense)
		r.Put("/{id}", s.updateExpense)
		r.Delete("/{id}", s.deleteExpense)
	})

	router.Route("/settlements", func(r chi.Router) {
		r.Post("/", s.createSettlement)
		r.Get("/group/{groupID}", s.listSettlements)
		r.Get("/{id}", s.getSettlement)
		r.Delete("/{id}", s.deleteSettlement)
	})

	router.Route("/reports/groups/{groupID}", func(r chi.Router) {
		r.Get("/balances", s.balances)
		r.Get("/settlement-plan", s.settlementPlan)
	})

	return router
}

func (s *Server) emit(event eventlogger.Event) {
	if s.events != nil {
		s.events.Log(event)
	}
}
