package main

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"minitwit/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultNumber = 100

// latestTracker remembers the most recent "latest" id sent by the simulator,
// optionally mirrored to a file so it survives restarts.
type latestTracker struct {
	mu    sync.Mutex
	value int
	path  string
}

func newLatestTracker(path string) *latestTracker {
	l := &latestTracker{value: -1, path: path}
	if path == "" {
		return l
	}
	if content, err := os.ReadFile(path); err == nil {
		if id, err := strconv.Atoi(strings.TrimSpace(string(content))); err == nil {
			l.value = id
		}
	}
	return l
}

// Update records the latest query parameter of r, if it carries a valid one.
func (l *latestTracker) Update(r *http.Request) {
	id, err := strconv.Atoi(r.URL.Query().Get("latest"))
	if err != nil || id == -1 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = id
	if l.path != "" {
		if err := os.WriteFile(l.path, []byte(strconv.Itoa(id)), 0644); err != nil {
			logger.WithError(err).WithField("path", l.path).Error("Failed to persist latest id")
		}
	}
}

func (l *latestTracker) Get() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

var latest = newLatestTracker("")

func registerAPIRoutes(r *mux.Router) {
	r.Use(updateLatest)
	r.HandleFunc("/latest", getLatestHandler).Methods("GET")
	r.HandleFunc("/register", apiRegisterHandler).Methods("POST")
	r.HandleFunc("/msgs", requireSimulator(apiMessagesHandler)).Methods("GET")
	r.HandleFunc("/msgs/{username}", requireSimulator(apiUserMessagesHandler)).Methods("GET")
	r.HandleFunc("/msgs/{username}", requireSimulator(apiPostMessageHandler)).Methods("POST")
	r.HandleFunc("/fllws/{username}", requireSimulator(apiFollowingHandler)).Methods("GET")
	r.HandleFunc("/fllws/{username}", requireSimulator(apiFollowHandler)).Methods("POST")
}

func updateLatest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		latest.Update(r)
		next.ServeHTTP(w, r)
	})
}

func requireSimulator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(cfg.SimulatorAuth)) != 1 {
			logger.WithFields(logrus.Fields{
				"path":      r.URL.Path,
				"remote_ip": r.RemoteAddr,
			}).Warn("Rejected request without simulator credentials")
			writeJSON(w, http.StatusForbidden, apiStatus{
				Status:   http.StatusForbidden,
				ErrorMsg: "You are not authorized to use this resource!",
			})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}

func writeAPIError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiStatus{Status: status, ErrorMsg: msg})
}

// getNumber reads the "no" query parameter.
func getNumber(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("no"))
	if err != nil || n < 0 {
		return defaultNumber
	}
	return n
}

// apiUser resolves the {username} path variable, answering 404 itself.
func apiUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	username := mux.Vars(r)["username"]
	id, err := db.UserID(r.Context(), username)
	if errors.Is(err, storage.ErrNotFound) {
		logger.WithField("username", username).Warn("User not found")
		writeAPIError(w, http.StatusNotFound, "Cannot find user")
		return 0, false
	}
	if err != nil {
		logger.WithError(err).WithField("username", username).Error("Failed to look up user")
		writeAPIError(w, http.StatusInternalServerError, "Query execution failed")
		return 0, false
	}
	return id, true
}

func toAPIMessages(messages []storage.Message) []apiMessage {
	out := make([]apiMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, apiMessage{
			Content: m.Text,
			PubDate: formatDatetime(m.PubDate),
			User:    m.Username,
		})
	}
	return out
}

// GET /api/latest
func getLatestHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"latest": latest.Get()})
}

// POST /api/register
func apiRegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	errorMsg, err := registerUser(r.Context(), req.Username, req.Email, req.Pwd, req.Pwd)
	if err != nil {
		logger.WithError(err).Error("Failed to register user")
		writeAPIError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}
	if errorMsg != "" {
		logger.WithField("username", req.Username).Warn(errorMsg)
		writeAPIError(w, http.StatusBadRequest, errorMsg)
		return
	}
	registrationsTotal.WithLabelValues("api").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/msgs
func apiMessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := db.PublicTimeline(r.Context(), getNumber(r))
	if err != nil {
		logger.WithError(err).Error("Failed to fetch messages")
		writeAPIError(w, http.StatusInternalServerError, "Query execution failed")
		return
	}
	writeJSON(w, http.StatusOK, toAPIMessages(messages))
}

// GET /api/msgs/{username}
func apiUserMessagesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := apiUser(w, r)
	if !ok {
		return
	}
	messages, err := db.UserTimeline(r.Context(), userID, getNumber(r))
	if err != nil {
		logger.WithError(err).Error("Failed to fetch user messages")
		writeAPIError(w, http.StatusInternalServerError, "Query execution failed")
		return
	}
	writeJSON(w, http.StatusOK, toAPIMessages(messages))
}

// POST /api/msgs/{username}
func apiPostMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := apiUser(w, r)
	if !ok {
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		writeAPIError(w, http.StatusBadRequest, "Invalid or missing content")
		return
	}

	if _, err := db.AddMessage(r.Context(), userID, req.Content, time.Now().Unix()); err != nil {
		logger.WithError(err).Error("Failed to insert message into database")
		writeAPIError(w, http.StatusInternalServerError, "Failed to store message")
		return
	}
	messagesTotal.WithLabelValues("api").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/fllws/{username}
func apiFollowingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := apiUser(w, r)
	if !ok {
		return
	}
	follows, err := db.Following(r.Context(), userID, getNumber(r))
	if err != nil {
		logger.WithError(err).WithField("user_id", userID).Error("Failed to fetch followers")
		writeAPIError(w, http.StatusInternalServerError, "Query execution failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"follows": follows})
}

// POST /api/fllws/{username}
func apiFollowHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := apiUser(w, r)
	if !ok {
		return
	}

	var req followRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	target, follow := req.Follow, true
	if target == "" {
		target, follow = req.Unfollow, false
	}
	if target == "" {
		writeAPIError(w, http.StatusBadRequest, "Expected follow or unfollow")
		return
	}

	targetID, err := db.UserID(r.Context(), target)
	if errors.Is(err, storage.ErrNotFound) {
		writeAPIError(w, http.StatusNotFound, "The user you are trying to follow cannot be found")
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to look up follow target")
		writeAPIError(w, http.StatusInternalServerError, "Query execution failed")
		return
	}

	if follow {
		err = db.Follow(r.Context(), userID, targetID)
	} else {
		err = db.Unfollow(r.Context(), userID, targetID)
	}
	if err != nil {
		logger.WithError(err).Error("Failed to update follow relationship")
		writeAPIError(w, http.StatusInternalServerError, "Failed to update follower")
		return
	}

	if follow {
		followsTotal.WithLabelValues("api").Inc()
	} else {
		unfollowsTotal.WithLabelValues("api").Inc()
	}
	w.WriteHeader(http.StatusNoContent)
}
