package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lumanagi/lumanagi-auth/internal/api"
	"github.com/lumanagi/lumanagi-auth/internal/api/middleware"
	"github.com/lumanagi/lumanagi-auth/internal/config"
	"github.com/lumanagi/lumanagi-auth/internal/repository/postgres"
	redisrepo "github.com/lumanagi/lumanagi-auth/internal/repository/redis"
	"github.com/lumanagi/lumanagi-auth/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize database
	db, err := postgres.NewConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Initialize repositories
	repos := postgres.NewRepositories(db)

	// Optional Redis: token registry backend and login rate limiting
	var loginLimiter *middleware.RateLimiter
	if cfg.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}

		if cfg.RegistryBackend == "redis" {
			repos.Registry = redisrepo.NewTokenRegistry(redisClient)
		}
		loginLimiter = middleware.NewRateLimiter(redisClient, cfg.LoginRateLimit, cfg.LoginRateWindow)
	}

	// Seed bootstrap accounts
	if cfg.UserSeedFile != "" {
		if err := service.SeedUsers(context.Background(), repos.User, cfg.UserSeedFile); err != nil {
			log.Fatalf("failed to seed users: %v", err)
		}
	}

	// Google federated login is optional; without a client ID the
	// /google endpoint rejects every token.
	var verifier service.IdentityVerifier
	if cfg.GoogleClientID != "" {
		verifier = service.NewGoogleVerifier(cfg)
	}

	// Initialize services
	services := service.NewServices(repos, verifier, cfg)

	// Initialize router
	router := api.NewRouter(services, loginLimiter)

	// Create server
	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
