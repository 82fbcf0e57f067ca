package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/innerchild2401/qr-menu-sub004/config"
	"github.com/innerchild2401/qr-menu-sub004/database"
	"github.com/innerchild2401/qr-menu-sub004/kds"
	"github.com/innerchild2401/qr-menu-sub004/router"
	"github.com/innerchild2401/qr-menu-sub004/services"
	"github.com/innerchild2401/qr-menu-sub004/utils"
)

func main() {
	utils.InitLogger()

	app := &cli.App{
		Name:   "table-orders",
		Usage:  "shared QR table ordering service",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the staff websocket feed",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create or update the database schema and exit",
				Action: migrate,
			},
			{
				Name:  "token",
				Usage: "issue a staff token signed with JWT_SECRET",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "staff-id", Required: true},
					&cli.StringFlag{Name: "role", Value: "staff"},
					&cli.DurationFlag{Name: "ttl", Value: 12 * time.Hour},
				},
				Action: issueToken,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		utils.ErrorLogger.Fatal(err)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	utils.SetLogLevel(cfg.LogLevel)
	utils.SetJWTSecret(cfg.JWTSecret)
	return cfg, nil
}

func migrate(*cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := config.InitDB(cfg)
	if err != nil {
		return err
	}
	return database.Migrate(db)
}

func issueToken(c *cli.Context) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	token, err := utils.GenerateToken(c.Uint("staff-id"), c.String("role"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}

func buildServices(db *gorm.DB, cfg config.Config, hub *kds.Hub) router.Dependencies {
	opts := services.Options{
		ServiceChargePercent: decimal.NewFromFloat(cfg.ServiceChargePercent),
		Retry: services.RetryPolicy{
			MaxAttempts: cfg.MergeMaxAttempts,
			Timeout:     cfg.MergeTimeout,
		},
		Notifier:   hub,
		Restaurant: services.StaticRestaurant(cfg.RestaurantName),
	}
	store := services.NewOrderStore(db)
	tables := services.NewTableRegistry(db, opts)
	return router.Dependencies{
		Tables:         tables,
		Carts:          services.NewCartMergeEngine(db, store, tables, opts),
		Lifecycle:      services.NewOrderLifecycle(db, store, tables, opts),
		Hub:            hub,
		AllowedOrigin:  cfg.AllowedOrigin,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}
}

func serve(*cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		utils.InfoLogger.Warn("JWT_SECRET is empty, staff routes will reject every request")
	}
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := kds.NewHub()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		relay := kds.NewRedisRelay(client, cfg.RedisChannel, hub)
		hub.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx); err != nil {
				utils.ErrorLogger.Errorf("Redis relay stopped: %v", err)
			}
		}()
	}

	r := router.SetupRouter(buildServices(db, cfg, hub))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	utils.InfoLogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	return nil
}
