package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"directory_go/internal/service"
)

// @Summary      List contacts
// @Description  List active users the caller can start a direct room with
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   domain.User
// @Failure      401  {object}  map[string]string
// @Router       /users [get]
func handleListContacts(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := userSvc.ListContacts(r.Context(), CurrentUser(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

// @Summary      Get user
// @Description  Get a user's public profile by username
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  domain.User
// @Failure      404  {object}  map[string]string
// @Router       /users/{username} [get]
func handleGetUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := chi.URLParam(r, "username")
		user, err := userSvc.GetByUsername(r.Context(), username)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
