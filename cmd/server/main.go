package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"budget-tracker/internal/config"
	"budget-tracker/internal/handlers"
	"budget-tracker/internal/logger"
	"budget-tracker/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()
	logger.Init()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	defer db.Close()

	// One-time cleanup at startup; there is no background loop.
	if err := db.CleanExpiredSessions(); err != nil {
		log.Warn().Err(err).Msg("failed to clean expired sessions")
	}

	h := handlers.NewHandlers(db, cfg.TemplateDir, cfg.SecureCookie)
	router := setupRouter(h, cfg.StaticDir)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16, // 64KB
	}

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		cancel()
	}()

	log.Info().Str("port", cfg.Port).Str("db", cfg.DBPath).Msg("starting budget-tracker server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}

	<-ctx.Done()
	log.Info().Msg("server stopped gracefully")
}

func setupRouter(h *handlers.Handlers, staticDir string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public pages
	r.Get("/", h.Home)
	r.Get("/register", h.RegisterForm)
	r.Post("/register", h.Register)
	r.Get("/login", h.LoginForm)
	r.Post("/login", h.Login)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	// Authenticated pages
	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/logout", h.Logout)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/add_transaction", h.AddTransactionForm)
		r.Post("/add_transaction", h.AddTransaction)
		r.Get("/edit_transaction/{id}", h.EditTransactionForm)
		r.Post("/edit_transaction/{id}", h.EditTransaction)
		r.Post("/delete_transaction/{id}", h.DeleteTransaction)
		r.Get("/manage_categories", h.ManageCategories)
		r.Post("/manage_categories", h.CreateCategory)
		r.Post("/delete_category/{id}", h.DeleteCategory)
		r.Get("/reports", h.Reports)
		r.Post("/reports", h.Reports)
	})

	return r
}
