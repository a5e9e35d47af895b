package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lakestack/hometrace/internal/appointments"
	"github.com/lakestack/hometrace/internal/auth"
	"github.com/lakestack/hometrace/internal/config"
	"github.com/lakestack/hometrace/internal/database"
	"github.com/lakestack/hometrace/internal/handlers"
	"github.com/lakestack/hometrace/internal/jobs"
	"github.com/lakestack/hometrace/internal/logger"
	"github.com/lakestack/hometrace/internal/notify"
	"github.com/lakestack/hometrace/internal/repository"
	"github.com/lakestack/hometrace/internal/sessionstore"
	"go.uber.org/zap"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hometrace: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	loc := cfg.Location()

	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if cfg.SMTP.Host != "" {
		notifier = notify.NewMailer(cfg.SMTP, loc, log)
	}

	users := repository.NewUserRepository(db.Pool)
	properties := repository.NewPropertyRepository(db.Pool)
	svc := appointments.NewService(appointments.Params{
		Appointments: repository.NewAppointmentRepository(db.Pool),
		Properties:   properties,
		Users:        users,
		Notifier:     notifier,
		Location:     loc,
		PublicURL:    cfg.PublicURL,
		Log:          log,
	})

	scheduler := jobs.New(loc, log)

	var store sessionstore.Store
	if cfg.Redis.URL != "" {
		rdb, err := sessionstore.NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		store = rdb
		log.Info("calendar sessions stored in redis")
	} else {
		mem := sessionstore.NewMemory()
		store = mem
		err := scheduler.Add("session_sweep", "*/15 * * * *", func(context.Context) error {
			if n := mem.Sweep(); n > 0 {
				log.Debug("expired calendar sessions swept", zap.Int("count", n))
			}
			return nil
		}, time.Minute)
		if err != nil {
			return err
		}
	}

	if cfg.CleanupCron != "" {
		if err := scheduler.Add("legacy_cleanup", cfg.CleanupCron, jobs.CleanupJob(svc), 5*time.Minute); err != nil {
			return err
		}
	}
	scheduler.Start()

	sessions := handlers.NewCalendarSessions(handlers.CalendarSessionsConfig{
		Service:   svc,
		Store:     store,
		WeekStart: cfg.Weekday(),
		TTL:       cfg.SessionTTL,
		Log:       log,
	})

	if cfg.Log.Format != "console" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logger.GinMiddleware(log), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if err := db.Health(c.Request.Context()); err != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":   status,
			"version":  Version,
			"database": db.PoolStats(),
		})
	})

	r.GET("/api/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version": Version,
			"service": "hometrace",
		})
	})

	handlers.Register(r, handlers.Deps{
		Appointments: svc,
		Users:        users,
		Properties:   properties,
		JWT:          auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL),
		Sessions:     sessions,
		PublicURL:    cfg.PublicURL,
	})

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", cfg.Listen), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	sessions.Close(shutdownCtx)
	scheduler.Stop(shutdownCtx)

	log.Info("server exited")
	return nil
}
