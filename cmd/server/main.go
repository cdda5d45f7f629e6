package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/tradeguard-api/internal/auth"
	"github.com/ksred/tradeguard-api/internal/checklist"
	"github.com/ksred/tradeguard-api/internal/clock"
	"github.com/ksred/tradeguard-api/internal/database"
	"github.com/ksred/tradeguard-api/internal/journal"
	"github.com/ksred/tradeguard-api/internal/risk"
	"github.com/ksred/tradeguard-api/internal/strategy"
	"github.com/ksred/tradeguard-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Pick up a local .env if present
	_ = godotenv.Load()

	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the discipline enforcement API server with
// graceful shutdown support
func main() {
	// Initialize database
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "tradeguard.db"
	}
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "tradeguard-secret-key"
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	riskService := risk.NewService(db, clock.System(), cooldownFromEnv())
	riskHandlers := risk.NewGinHandlers(riskService)

	strategyService := strategy.NewService(db)
	strategyHandlers := strategy.NewGinHandlers(strategyService)

	gate := checklist.NewManager(strategyService, riskService)
	checklistHandlers := checklist.NewGinHandlers(gate)

	journalService := journal.NewService(db, riskService, gate, clock.System())
	journalHandlers := journal.NewGinHandlers(journalService)

	// Create and start the unlock/reset sweep processor
	riskProcessor := risk.NewProcessor(riskService, sweepIntervalFromEnv())
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go riskProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, jwtSecret, authHandlers, riskHandlers, strategyHandlers, checklistHandlers, journalHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// cooldownFromEnv returns the lock cooldown, overridable via RISK_COOLDOWN_HOURS
func cooldownFromEnv() time.Duration {
	if v := os.Getenv("RISK_COOLDOWN_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			return time.Duration(hours) * time.Hour
		}
		zlog.Warn().Str("value", v).Msg("ignoring invalid RISK_COOLDOWN_HOURS")
	}
	return risk.DefaultCooldown
}

// sweepIntervalFromEnv returns the sweep interval, overridable via
// RISK_SWEEP_INTERVAL_MINUTES
func sweepIntervalFromEnv() time.Duration {
	if v := os.Getenv("RISK_SWEEP_INTERVAL_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
		zlog.Warn().Str("value", v).Msg("ignoring invalid RISK_SWEEP_INTERVAL_MINUTES")
	}
	return 5 * time.Minute
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - All other routes: Protected by JWT authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	riskHandlers *risk.GinHandlers,
	strategyHandlers *strategy.GinHandlers,
	checklistHandlers *checklist.GinHandlers,
	journalHandlers *journal.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Risk profile routes
		riskGroup := v1.Group("/risk")
		riskGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			riskGroup.GET("/profile", riskHandlers.GetProfileHandler())
			riskGroup.PATCH("/profile/limits", riskHandlers.UpdateLimitsHandler())
		}

		// Strategy catalog routes
		strategies := v1.Group("/strategies")
		strategies.Use(middleware.JWTAuth(jwtSecret))
		{
			strategies.POST("", strategyHandlers.CreateStrategyHandler())
			strategies.GET("", strategyHandlers.ListStrategiesHandler())
			strategies.GET("/:strategy_id", strategyHandlers.GetStrategyHandler())
		}

		// Checklist gate routes
		sessions := v1.Group("/checklist/sessions")
		sessions.Use(middleware.JWTAuth(jwtSecret))
		{
			sessions.POST("", checklistHandlers.SelectStrategyHandler())
			sessions.POST("/:session_id/items/:index/toggle", checklistHandlers.ToggleItemHandler())
			sessions.POST("/:session_id/authorize", checklistHandlers.AuthorizeOpenHandler())
		}

		// Trade ledger routes
		trades := v1.Group("/trades")
		trades.Use(middleware.JWTAuth(jwtSecret))
		{
			trades.POST("", journalHandlers.OpenTradeHandler())
			trades.GET("", journalHandlers.ListTradesHandler())
			trades.GET("/stats", journalHandlers.StatsHandler())
			trades.GET("/:trade_id", journalHandlers.GetTradeHandler())
			trades.POST("/:trade_id/close", journalHandlers.CloseTradeHandler())
		}
	}
}
