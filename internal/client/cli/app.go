package cli

import (
	"bufio"
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"

	"github.com/plateful/plateful/internal/client/app"
	"github.com/plateful/plateful/internal/client/config"
	"github.com/plateful/plateful/internal/client/remote"
	"github.com/plateful/plateful/internal/client/store"
	syncengine "github.com/plateful/plateful/internal/client/sync"
	"github.com/plateful/plateful/internal/logging"
	"github.com/plateful/plateful/internal/model"
)

// tokenHolder shares the session token between the REPL goroutine and the
// background sync goroutine.
type tokenHolder struct {
	mu    sync.RWMutex
	token string
}

func (h *tokenHolder) set(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = token
}

func (h *tokenHolder) get() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

type App struct {
	config   *config.Config
	app      *app.App
	remote   *remote.Client
	db       *sql.DB
	token    *tokenHolder
	userName string
	reader   *bufio.Reader
}

func NewApp(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	st, db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	logger := logging.NewJSON(os.Stderr, slog.LevelWarn)

	token := &tokenHolder{}
	rc := remote.New(cfg.ServerURL, func(ctx context.Context) (string, error) {
		return token.get(), nil
	})

	engine := syncengine.New(st, rc, logger, syncengine.Config{
		PushConcurrency: cfg.PushConcurrency,
		PageSize:        cfg.PageSize,
		BackoffBase:     cfg.RetryBase,
		BackoffCap:      cfg.RetryCap,
		MaxAttempts:     cfg.MaxAttempts,
	})

	a := &App{
		config: cfg,
		app:    app.New(st, engine, logger),
		remote: rc,
		db:     db,
		token:  token,
		reader: bufio.NewReader(os.Stdin),
	}

	a.app.OnConflict(func(col model.Collection, id string, local, remoteSnapshot *model.Record) {
		printlnFn("Conflict detected:", string(col), id, "(use 'conflicts' and 'resolve')")
	})

	return a, nil
}

func (a *App) Run(ctx context.Context) {
	defer a.db.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.app.AutoSync(ctx, a.config.SyncInterval)

	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.token.get() != ""
}
