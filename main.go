package main

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/billbatista/acasinha-splits/config"
	"github.com/billbatista/acasinha-splits/eventlogger"
	"github.com/billbatista/acasinha-splits/group"
	"github.com/billbatista/acasinha-splits/ledger"
	"github.com/billbatista/acasinha-splits/metrics"
	"github.com/billbatista/acasinha-splits/server"
	"github.com/billbatista/acasinha-splits/user"
)

//go:embed schema.sql
var schema string

type stores struct {
	ledger  ledger.Store
	users   user.Repository
	groups  group.Repository
	journal eventlogger.Journal
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		printErrorAndExit("loading config", err)
	}

	slog.SetDefault(newLogger(cfg))
	decimal.MarshalJSONWithoutQuotes = true
	metrics.Init()

	var db *sql.DB
	st := stores{
		ledger:  ledger.NewMemoryStore(),
		users:   user.NewMemoryRepository(),
		groups:  group.NewMemoryRepository(),
		journal: eventlogger.NewMemoryJournal(),
	}
	if cfg.DatabaseURL != "" {
		db, err = openDB(cfg)
		if err != nil {
			printErrorAndExit("database connection", err)
		}
		st = stores{
			ledger:  ledger.NewRepository(db),
			users:   user.NewRepository(db),
			groups:  group.NewRepository(db),
			journal: eventlogger.NewSQLJournal(db),
		}
	} else {
		slog.Warn("DATABASE_URL not set, keeping everything in memory")
	}

	worker := eventlogger.NewWorker(st.journal, cfg.EventBuffer)
	worker.Start()

	groups := group.NewDirectory(st.groups, st.users)
	opts := []ledger.Option{ledger.WithEventSink(worker)}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			printErrorAndExit("pinging redis", err)
		}
		opts = append(opts,
			ledger.WithLocker(ledger.NewRedisLocker(rdb, cfg.LockExpiry)),
			ledger.WithBalanceCache(ledger.NewRedisBalanceCache(rdb, cfg.BalanceCacheTTL)),
		)
	}

	ledgerService := ledger.NewService(groups, st.ledger, opts...)
	srv := server.New(ledgerService, st.users, groups, st.journal, worker)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Routes(),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			printErrorAndExit("http server", err)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	if err := worker.Shutdown(ctx); err != nil {
		slog.Error("event worker did not drain in time", "error", err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			slog.Error("closing redis", "error", err)
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			slog.Error("closing database", "error", err)
		}
	}

	slog.Info("server exited")
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.DBMigrate {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, err
		}
		slog.Info("database schema applied")
	}
	return db, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printErrorAndExit(msg string, e error) {
	slog.Error(msg, "error", e)
	os.Exit(1)
}
