package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"minitwit/internal/storage"
)

// GET / — personal timeline (redirect to /public if not logged in)
func timelineHandler(w http.ResponseWriter, r *http.Request) {
	user := getCurrentUser(r)
	if user == nil {
		http.Redirect(w, r, "/public", http.StatusFound)
		return
	}

	messages, err := db.HomeTimeline(r.Context(), user.UserID, cfg.PerPage)
	if err != nil {
		serverError(w, r, err)
		return
	}

	renderTemplate(w, r, "timeline.html", map[string]interface{}{
		"Messages":    messages,
		"CurrentUser": user,
		"IsTimeline":  true,
	})
}

// GET /public — public timeline
func publicTimelineHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := db.PublicTimeline(r.Context(), cfg.PerPage)
	if err != nil {
		serverError(w, r, err)
		return
	}

	renderTemplate(w, r, "timeline.html", map[string]interface{}{
		"Messages": messages,
		"IsPublic": true,
	})
}

// GET /{username} — user timeline
func userTimelineHandler(w http.ResponseWriter, r *http.Request) {
	profileUser := lookupUser(w, r, mux.Vars(r)["username"])
	if profileUser == nil {
		return
	}

	followed := false
	currentUser := getCurrentUser(r)
	if currentUser != nil {
		var err error
		followed, err = db.IsFollowing(r.Context(), currentUser.UserID, profileUser.UserID)
		if err != nil {
			serverError(w, r, err)
			return
		}
	}

	messages, err := db.UserTimeline(r.Context(), profileUser.UserID, cfg.PerPage)
	if err != nil {
		serverError(w, r, err)
		return
	}

	renderTemplate(w, r, "timeline.html", map[string]interface{}{
		"Messages":    messages,
		"CurrentUser": currentUser,
		"IsUser":      true,
		"ProfileUser": profileUser,
		"Followed":    followed,
	})
}

// GET /{username}/follow
func followHandler(w http.ResponseWriter, r *http.Request) {
	user := getCurrentUser(r)
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	username := mux.Vars(r)["username"]
	whom := lookupUser(w, r, username)
	if whom == nil {
		return
	}

	if err := db.Follow(r.Context(), user.UserID, whom.UserID); err != nil {
		serverError(w, r, err)
		return
	}
	followsTotal.WithLabelValues("web").Inc()
	logger.WithFields(logrus.Fields{"who": user.Username, "whom": username}).Info("User followed")

	addFlash(w, r, fmt.Sprintf("You are now following \"%s\"", username))
	http.Redirect(w, r, "/"+username, http.StatusFound)
}

// GET /{username}/unfollow
func unfollowHandler(w http.ResponseWriter, r *http.Request) {
	user := getCurrentUser(r)
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	username := mux.Vars(r)["username"]
	whom := lookupUser(w, r, username)
	if whom == nil {
		return
	}

	if err := db.Unfollow(r.Context(), user.UserID, whom.UserID); err != nil {
		serverError(w, r, err)
		return
	}
	unfollowsTotal.WithLabelValues("web").Inc()
	logger.WithFields(logrus.Fields{"who": user.Username, "whom": username}).Info("User unfollowed")

	addFlash(w, r, fmt.Sprintf("You are no longer following \"%s\"", username))
	http.Redirect(w, r, "/"+username, http.StatusFound)
}

// POST /add_message
func addMessageHandler(w http.ResponseWriter, r *http.Request) {
	user := getCurrentUser(r)
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	text := r.FormValue("text")
	if text != "" {
		if _, err := db.AddMessage(r.Context(), user.UserID, text, time.Now().Unix()); err != nil {
			serverError(w, r, err)
			return
		}
		messagesTotal.WithLabelValues("web").Inc()
		addFlash(w, r, "Your message was recorded")
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// GET + POST /login
func loginHandler(w http.ResponseWriter, r *http.Request) {
	if getCurrentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	errorMsg := ""
	if r.Method == http.MethodPost {
		username := r.FormValue("username")
		password := r.FormValue("password")

		u, err := db.UserByName(r.Context(), username)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			errorMsg = "Invalid username"
		case err != nil:
			serverError(w, r, err)
			return
		case !checkPassword(u.PwHash, password):
			errorMsg = "Invalid password"
		default:
			session := getSession(r)
			session.Values["user_id"] = u.UserID
			session.AddFlash("You were logged in")
			saveSession(w, r, session)
			loginsTotal.Inc()
			logger.WithField("username", username).Info("User logged in")
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		logger.WithField("username", username).Warn(errorMsg)
	}

	renderTemplate(w, r, "login.html", map[string]interface{}{
		"Error":    errorMsg,
		"Username": r.FormValue("username"),
	})
}

// GET + POST /register
func registerHandler(w http.ResponseWriter, r *http.Request) {
	if getCurrentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	errorMsg := ""
	if r.Method == http.MethodPost {
		username := r.FormValue("username")
		email := r.FormValue("email")
		password := r.FormValue("password")

		var err error
		errorMsg, err = registerUser(r.Context(), username, email, password, r.FormValue("password2"))
		if err != nil {
			serverError(w, r, err)
			return
		}
		if errorMsg == "" {
			registrationsTotal.WithLabelValues("web").Inc()
			addFlash(w, r, "You were successfully registered and can login now")
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
	}

	renderTemplate(w, r, "register.html", map[string]interface{}{
		"Error":    errorMsg,
		"Username": r.FormValue("username"),
		"Email":    r.FormValue("email"),
	})
}

// GET /logout
func logoutHandler(w http.ResponseWriter, r *http.Request) {
	session := getSession(r)
	delete(session.Values, "user_id")
	session.AddFlash("You were logged out")
	saveSession(w, r, session)
	http.Redirect(w, r, "/public", http.StatusFound)
}

// registerUser validates a registration and stores the user. A non-empty
// message reports a validation failure; err reports a storage failure.
func registerUser(ctx context.Context, username, email, password, password2 string) (string, error) {
	switch {
	case username == "":
		return "You have to enter a username", nil
	case email == "" || !strings.Contains(email, "@"):
		return "You have to enter a valid email address", nil
	case password == "":
		return "You have to enter a password", nil
	case password != password2:
		return "The two passwords do not match", nil
	}

	_, err := db.UserID(ctx, username)
	if err == nil {
		return "The username is already taken", nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return "", err
	}
	_, err = db.CreateUser(ctx, username, email, hash)
	if errors.Is(err, storage.ErrUserExists) {
		return "The username is already taken", nil
	}
	if err != nil {
		return "", err
	}
	logger.WithFields(logrus.Fields{"username": username, "email": email}).Info("User registered")
	return "", nil
}
