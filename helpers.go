package main

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"minitwit/internal/storage"
)

const sessionName = "session"

// --- Session helpers ---

func newStore(secret string) *sessions.CookieStore {
	s := sessions.NewCookieStore([]byte(secret))
	s.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   3600 * 16,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return s
}

func getSession(r *http.Request) *sessions.Session {
	// Undecodable cookies still yield a fresh session.
	session, _ := store.Get(r, sessionName)
	return session
}

func getCurrentUser(r *http.Request) *storage.User {
	userID, ok := getSession(r).Values["user_id"].(int64)
	if !ok {
		return nil
	}
	u, err := db.UserByID(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.WithError(err).WithField("user_id", userID).Error("Failed to load session user")
		}
		return nil
	}
	return u
}

func addFlash(w http.ResponseWriter, r *http.Request, message string) {
	session := getSession(r)
	session.AddFlash(message)
	saveSession(w, r, session)
}

func getFlashes(w http.ResponseWriter, r *http.Request) []interface{} {
	session := getSession(r)
	flashes := session.Flashes()
	if len(flashes) > 0 {
		saveSession(w, r, session)
	}
	return flashes
}

func saveSession(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
	if err := session.Save(r, w); err != nil {
		logger.WithError(err).Error("Failed to save session")
	}
}

// --- Password helpers ---

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

func checkPassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// --- Template helpers ---

const defaultGravatarSize = 80

// gravatarURL returns the identicon-backed avatar URL for email.
func gravatarURL(email string, size int) string {
	if size <= 0 {
		size = defaultGravatarSize
	}
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?d=identicon&s=%d", hex.EncodeToString(sum[:]), size)
}

func formatDatetime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02 @ 15:04")
}

func humanizeTime(ts int64) string {
	return humanize.Time(time.Unix(ts, 0))
}

var templateFuncs = template.FuncMap{
	"gravatar":       gravatarURL,
	"datetimeformat": formatDatetime,
	"humanize":       humanizeTime,
}

func renderTemplate(w http.ResponseWriter, r *http.Request, templateFile string, data map[string]interface{}) {
	tmpl, err := template.New("layout.html").
		Funcs(templateFuncs).
		ParseFiles(filepath.Join(cfg.TemplateDir, "layout.html"), filepath.Join(cfg.TemplateDir, templateFile))
	if err != nil {
		serverError(w, r, fmt.Errorf("failed to parse %s: %w", templateFile, err))
		return
	}

	if _, ok := data["CurrentUser"]; !ok {
		data["CurrentUser"] = getCurrentUser(r)
	}
	if _, ok := data["Flashes"]; !ok {
		data["Flashes"] = getFlashes(w, r)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "layout.html", data); err != nil {
		logger.WithError(err).WithField("template", templateFile).Error("Failed to render template")
	}
}

// --- Error helpers ---

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).WithError(err).Error("Request failed")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
