// Package server initializes and runs the sync server: configuration,
// logging, database and migrations, services, and the HTTP API with
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plateful/plateful/internal/logging"
	"github.com/plateful/plateful/internal/server/config"
	"github.com/plateful/plateful/internal/server/httpapi"
	"github.com/plateful/plateful/internal/server/services"
	"github.com/plateful/plateful/internal/server/shared/db"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config        *config.Config
	logger        logging.Logger
	repos         db.RepositoryManager
	userService   *services.UserService
	recordService *services.RecordService
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, parseLevel(cfg.LogLevel))

	repos, err := db.NewPostgresRepositoryManager(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	us := services.NewUserService(repos.Users(), cfg.JWTSecret, cfg.TokenValidity)
	rs := services.NewRecordService(repos.Records(), logger, cfg.PageSizeLimit)

	return &App{
		config:        cfg,
		logger:        logger,
		repos:         repos,
		userService:   us,
		recordService: rs,
	}, nil
}

func parseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting server", "address", app.config.Address)

	app.initSignalHandler(cancelFunc)

	router := httpapi.NewRouter(
		httpapi.NewRecordHandler(app.recordService),
		httpapi.NewAuthHandler(app.userService),
		app.userService,
		app.logger,
	)

	srv := &http.Server{
		Addr:    app.config.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return app.repos.Close()
}
