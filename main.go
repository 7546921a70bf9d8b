package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/csrf"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"safehaven/auth"
	"safehaven/config"
	"safehaven/handlers"
	"safehaven/i18n"
	"safehaven/store"
)

func main() {
	// A missing .env is fine; the config file carries the defaults
	_ = godotenv.Load()

	log := zap.Must(zap.NewProduction())
	defer log.Sync()

	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatal("loading config", zap.Error(err))
	}

	if err := i18n.LoadTranslations("i18n"); err != nil {
		log.Fatal("loading translations", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	st, err := store.Open(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal("opening store", zap.Error(err), zap.String("backend", cfg.StoreBackend))
	}
	defer st.Close(context.Background())

	secure := cfg.ListenPort != 8080 // default to true unless dev port
	sessions := auth.NewManager(cfg.SessionKey, secure)

	app := handlers.New(st, sessions, log, cfg)

	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	app.RegisterHandlers(mux)

	// CSRF protection on every form post
	csrfMiddleware := csrf.Protect(
		[]byte(cfg.SessionKey),
		csrf.Secure(secure),
		csrf.Path("/"),
	)

	addr := fmt.Sprintf("%s:%d", cfg.ListenIP, cfg.ListenPort)
	log.Info("server starting",
		zap.String("addr", addr),
		zap.String("app", cfg.AppName),
		zap.String("backend", cfg.StoreBackend),
	)

	if err := http.ListenAndServe(addr, handlers.SecurityHeadersMiddleware(csrfMiddleware(mux))); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}
