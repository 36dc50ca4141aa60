package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"directory_go/internal/config"
	"directory_go/internal/domain"
	"directory_go/internal/httpserver"
	"directory_go/internal/security"
	"directory_go/internal/store/firestore"
	"directory_go/internal/store/memory"
	"directory_go/internal/store/sqlite"
	"directory_go/internal/ws"
)

// @title           Directory Chat API
// @version         1.0
// @description     Chat backend for the student business directory.

// @host            localhost:8000
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, users, cleanup, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer cleanup()

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)

	if err := seedAdmin(cfg, users, passwordHasher); err != nil {
		log.Fatalf("failed to seed admin user: %v", err)
	}

	registry := ws.NewRegistry()

	router := httpserver.NewRouter(cfg, store, users, registry, tokenSvc, passwordHasher)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting %s on %s (store driver: %s)\n", cfg.AppName, cfg.HTTPAddr(), cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server...")
	registry.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// openStore builds the record store and user repository for the configured
// driver. The returned cleanup closes the underlying connection.
func openStore(cfg *config.Config) (domain.RecordStore, domain.UserRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memory.NewStore(), memory.NewUserRepo(), func() {}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return sqlite.NewStore(db), sqlite.NewUserRepo(db), func() { db.Close() }, nil

	case config.DriverFirestore:
		client, err := firestore.Open(context.Background(), cfg.FirestoreProjectID, cfg.FirebaseCredentials)
		if err != nil {
			return nil, nil, nil, err
		}
		return firestore.NewStore(client), firestore.NewUserRepo(client), func() { client.Close() }, nil

	default:
		return nil, nil, nil, errors.New("unknown store driver " + cfg.StoreDriver)
	}
}

// seedAdmin creates the configured admin account on first start. An existing
// account is left untouched.
func seedAdmin(cfg *config.Config, users domain.UserRepository, hasher *security.PasswordHasher) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}

	hashed, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return err
	}

	err = users.Create(context.Background(), &domain.User{
		Username:       cfg.AdminUsername,
		DisplayName:    cfg.AdminUsername,
		Role:           domain.RoleAdmin,
		HashedPassword: hashed,
		IsActive:       true,
	})
	if errors.Is(err, domain.ErrConflict) {
		return nil
	}
	return err
}
