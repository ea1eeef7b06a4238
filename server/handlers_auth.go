package server

import (
	"net/http"

	"github.com/teranos/DMS/auth"
	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/logger"
)

// HandleRegister creates a self-registered account
func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.UserCreate
	if err := readJSON(w, r, &in); err != nil {
		return
	}

	user, err := s.users.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, logger.FromContext(r.Context(), s.logger), err, "Failed to register user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleToken exchanges form credentials (username = email) for a bearer token
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	email := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	token, err := s.users.Login(r.Context(), email, password)
	if err != nil {
		// An inactive account is a bad request, not a permission failure
		if errors.Is(err, errors.ErrForbidden) {
			writeError(w, http.StatusBadRequest, errors.Message(err))
			return
		}
		writeServiceError(w, logger.FromContext(r.Context(), s.logger), err, "Failed to log in")
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// HandleMe returns the authenticated user
func (s *Server) HandleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auth.UserFromContext(r.Context()))
}
