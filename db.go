package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"minitwit/internal/config"
	"minitwit/internal/storage"
)

var db storage.Store

func initDB(ctx context.Context, c config.Config) error {
	s, err := storage.Open(ctx, c)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"driver":   c.Driver,
		"database": c.Database,
	}).Info("Database connection successful")
	db = s
	return nil
}

// lookupUser resolves the {username} path variable. It writes the error
// response itself and returns nil when the user is unknown or the lookup failed.
func lookupUser(w http.ResponseWriter, r *http.Request, username string) *storage.User {
	u, err := db.UserByName(r.Context(), username)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return nil
	}
	if err != nil {
		serverError(w, r, err)
		return nil
	}
	return u
}
