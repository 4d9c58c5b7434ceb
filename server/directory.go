package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/billbatista/acasinha-splits/eventlogger"
	"github.com/billbatista/acasinha-splits/group"
	"github.com/billbatista/acasinha-splits/user"
)

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in user.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.users.Create(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}

	s.emit(eventlogger.NewEvent(
		eventlogger.WithType("user.created"),
		eventlogger.WithData(map[string]string{
			"user_id": created.ID.String(),
			"email":   created.Email,
		}),
	))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")

	u, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")

	var in user.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.users.Update(r.Context(), id, in)
	if err != nil {
		handleError(w, r, err)
		return
	}

	s.emit(eventlogger.NewEvent(
		eventlogger.WithType("user.updated"),
		eventlogger.WithData(map[string]string{
			"user_id": updated.ID.String(),
			"name":    updated.Name,
		}),
	))
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")

	groupIDs, err := s.groups.GroupsOf(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}

	err = s.ledger.ReleaseMember(r.Context(), id, groupIDs, func(ctx context.Context) error {
		if err := s.users.Delete(ctx, id); err != nil {
			return err
		}
		if err := s.groups.RemoveUser(ctx, id); err != nil {
			slog.Error("failed to remove deleted user from groups", "user_id", id, "error", err)
		}
		return nil
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	s.emit(eventlogger.NewEvent(
		eventlogger.WithType("user.deleted"),
		eventlogger.WithData(map[string]string{"user_id": id.String()}),
	))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	var in group.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.groups.Create(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}

	s.emit(eventlogger.NewEvent(
		eventlogger.WithType("group.created"),
		eventlogger.WithData(map[string]any{
			"group_id": created.ID.String(),
			"name":     created.Name,
			"members":  len(created.MemberIDs),
		}),
		eventlogger.WithMetadata(map[string]string{"group_id": created.ID.String()}),
	))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.List(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")

	g, err := s.groups.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")

	err := s.ledger.PurgeGroup(r.Context(), id, func(ctx context.Context) error {
		return s.groups.Delete(ctx, id)
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	s.emit(eventlogger.NewEvent(
		eventlogger.WithType("group.deleted"),
		eventlogger.WithData(map[string]string{"group_id": id.String()}),
		eventlogger.WithMetadata(map[string]string{"group_id": id.String()}),
	))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	s.changeMember(w, r, "group.member_added", "Member added successfully", s.groups.AddMember)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	s.changeMember(w, r, "group.member_removed", "Member removed successfully", func(ctx context.Context, groupID, userID uuid.UUID) error {
		return s.ledger.ReleaseMember(ctx, userID, []uuid.UUID{groupID}, func(ctx context.Context) error {
			return s.groups.RemoveMember(ctx, groupID, userID)
		})
	})
}

func (s *Server) changeMember(w http.ResponseWriter, r *http.Request, eventType, message string, change func(ctx context.Context, groupID, userID uuid.UUID) error) {
	groupID := pathID(r, "id")
	userID := pathID(r, "userID")

	if err := change(r.Context(), groupID, userID); err != nil {
		handleError(w, r, err)
		return
	}

	s.emit(eventlogger.NewEvent(
		eventlogger.WithType(eventType),
		eventlogger.WithData(map[string]string{
			"group_id": groupID.String(),
			"user_id":  userID.String(),
		}),
		eventlogger.WithMetadata(map[string]string{"group_id": groupID.String()}),
	))
	writeJSON(w, http.StatusOK, messageResponse{Message: message})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusOK, []eventlogger.Event{})
		return
	}

	query := r.URL.Query()
	filter := eventlogger.Filter{
		Type:    query.Get("type"),
		GroupID: query.Get("groupId"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	events, err := s.journal.List(r.Context(), filter)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
