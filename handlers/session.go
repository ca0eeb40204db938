package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"vidsafe/users"
)

// GetUser returns the user loaded by AuthMiddleware.
func GetUser(c echo.Context) (*users.User, error) {
	user, ok := c.Get("user").(*users.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("no user in request context")
	}
	return user, nil
}

type credentials struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

func (a *API) LoginPost(c echo.Context) error {
	var creds credentials
	if err := c.Bind(&creds); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request")
	}

	user, err := users.Authenticate(a.DB, creds.Username, creds.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		return message(c, http.StatusUnauthorized, "Invalid credentials")
	} else if err != nil {
		log.Errorln(err)
		return message(c, http.StatusInternalServerError, "Server error")
	}

	session, err := store.Get(c.Request(), "session")
	if err != nil {
		// a stale cookie from a rotated key; start a fresh session
		log.Debugf("replacing undecodable session: %v", err)
	}
	session.Values["user_id"] = user.ID
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		log.Errorln(err)
		return message(c, http.StatusInternalServerError, "Unable to save session")
	}

	log.Infof("user %s logged in", user.Username)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Login successful",
		"user":    user,
	})
}

func (a *API) LogoutPost(c echo.Context) error {
	session, _ := store.Get(c.Request(), "session")
	delete(session.Values, "user_id")
	session.Options.MaxAge = -1
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		log.Errorln(err)
	}
	return message(c, http.StatusOK, "Logged out")
}

func (a *API) Me(c echo.Context) error {
	user, err := GetUser(c)
	if err != nil {
		return message(c, http.StatusUnauthorized, "Authentication required")
	}
	return c.JSON(http.StatusOK, echo.Map{"user": user})
}
