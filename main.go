package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"minitwit/internal/config"
	"minitwit/internal/logging"
)

var (
	cfg    = config.Default()
	logger = logrus.New()
	store  *sessions.CookieStore
)

func setupRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument)
	// Router middleware skips requests that match no route.
	r.NotFoundHandler = instrument(http.NotFoundHandler())
	r.MethodNotAllowedHandler = instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
	registerAPIRoutes(r.PathPrefix("/api").Subrouter())

	r.HandleFunc("/", timelineHandler).Methods("GET")
	r.HandleFunc("/public", publicTimelineHandler).Methods("GET")
	r.HandleFunc("/add_message", addMessageHandler).Methods("POST")
	r.HandleFunc("/login", loginHandler).Methods("GET", "POST")
	r.HandleFunc("/register", registerHandler).Methods("GET", "POST")
	r.HandleFunc("/logout", logoutHandler).Methods("GET")
	r.HandleFunc("/{username}", userTimelineHandler).Methods("GET")
	r.HandleFunc("/{username}/follow", followHandler).Methods("GET")
	r.HandleFunc("/{username}/unfollow", unfollowHandler).Methods("GET")
	return r
}

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	logger = logging.New(cfg.Debug)

	if cfg.LogstashAddr != "" {
		conn, err := logging.AttachLogstash(logger, cfg.LogstashAddr, "minitwit")
		if err != nil {
			logger.WithError(err).Warn("Logstash unavailable, logging to stdout only")
		} else {
			defer conn.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initDB(ctx, cfg); err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	go watchCPULoad(ctx, cpuSampleInterval)

	store = newStore(cfg.SecretKey)
	latest = newLatestTracker(cfg.LatestFile)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      setupRouter(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Graceful shutdown failed")
		}
	}()

	logger.WithField("addr", cfg.Addr).Info("Server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("Server stopped")
	}
	logger.Info("Server stopped")
}
