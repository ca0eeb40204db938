package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"vidsafe/users"
)

// AuthMiddleware loads the session's user into the request context, or
// rejects the request with 401.
func (a *API) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := store.Get(c.Request(), "session")
		if err != nil {
			log.Warnf("unable to decode session: %v", err)
			return message(c, http.StatusUnauthorized, "Authentication required")
		}
		userID, ok := session.Values["user_id"].(uint)
		if !ok {
			return message(c, http.StatusUnauthorized, "Authentication required")
		}

		user, err := users.FindByID(a.DB, userID)
		if errors.Is(err, users.ErrUnknownUser) {
			return message(c, http.StatusUnauthorized, "User not found")
		} else if err != nil {
			log.Errorln(err)
			return message(c, http.StatusInternalServerError, "Server error")
		}
		c.Set("user", user)
		return next(c)
	}
}

// RequireEditor rejects users who may not modify videos.
func RequireEditor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := GetUser(c)
		if err != nil {
			return message(c, http.StatusUnauthorized, "Authentication required")
		}
		if !user.Role.CanEdit() {
			return message(c, http.StatusForbidden, "Access denied. Insufficient permissions.")
		}
		return next(c)
	}
}

func message(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"message": msg})
}
