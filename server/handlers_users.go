package server

import (
	"net/http"

	"github.com/teranos/DMS/auth"
	"github.com/teranos/DMS/logger"
)

// HandleListUsers lists accounts with skip/limit pagination
func (s *Server) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := pagination(w, r)
	if !ok {
		return
	}
	users, err := s.users.Store().ListUsers(r.Context(), skip, limit)
	if err != nil {
		writeServiceError(w, logger.FromContext(r.Context(), s.logger), err, "Failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := s.users.Store().GetUserByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, logger.FromContext(r.Context(), s.logger), err, "Failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateUser applies a partial update
func (s *Server) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var update auth.UserUpdate
	if err := readJSON(w, r, &update); err != nil {
		return
	}

	user, err := s.users.UpdateUser(r.Context(), id, update)
	if err != nil {
		writeServiceError(w, logger.FromContext(r.Context(), s.logger), err, "Failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.users.Store().DeleteUser(r.Context(), id); err != nil {
		writeServiceError(w, logger.FromContext(r.Context(), s.logger), err, "Failed to delete user")
		return
	}
	logger.FromContext(r.Context(), s.logger).Infow("User deleted",
		logger.FieldUserID, id,
		"by", auth.UserFromContext(r.Context()).ID)
	writeMessage(w, "User deleted successfully")
}
