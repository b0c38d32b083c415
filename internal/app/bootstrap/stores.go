package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/audit"
	appconfig "github.com/wolfman30/medassist/internal/config"
	"github.com/wolfman30/medassist/pkg/logging"
)

// Storage is the persistence picked at startup.
type Storage struct {
	Appointments appointments.Store
	// Backend is "postgres", "sqlite" or "memory".
	Backend string
	Audit   audit.Recorder
	// AuditBackend is "postgres" or "log".
	AuditBackend string
	Ping         func(ctx context.Context) error

	closers []func() error
}

// Close releases every connection opened by BuildStorage.
func (s *Storage) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// BuildStorage opens the schedule store in order of preference: Postgres when
// DATABASE_URL is set, SQLite when SQLITE_PATH is set, otherwise in memory.
// The default roster is seeded into an empty store.
func BuildStorage(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	st := &Storage{}

	switch {
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		st.closers = append(st.closers, func() error { pool.Close(); return nil })
		st.Appointments = appointments.NewPostgresStore(pool)
		st.Backend = "postgres"
		st.Ping = pool.Ping

		sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("bootstrap: open audit db: %w", err)
		}
		st.closers = append(st.closers, sqlDB.Close)
		st.Audit = audit.NewSQLRecorder(sqlDB)
		st.AuditBackend = "postgres"
	case strings.TrimSpace(cfg.SQLitePath) != "":
		store, err := appointments.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		st.closers = append(st.closers, store.Close)
		st.Appointments = store
		st.Backend = "sqlite"
	default:
		st.Appointments = appointments.NewMemoryStore()
		st.Backend = "memory"
	}

	if st.Audit == nil {
		st.Audit = audit.NewLogRecorder(logger)
		st.AuditBackend = "log"
	}
	if st.Ping == nil {
		store := st.Appointments
		st.Ping = func(ctx context.Context) error {
			_, err := store.ListDoctors(ctx)
			return err
		}
	}

	seeded, err := appointments.SeedDoctors(ctx, st.Appointments)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("bootstrap: seed doctors: %w", err)
	}
	logger.Info("schedule store ready", "backend", st.Backend, "audit", st.AuditBackend, "seeded_doctors", seeded)
	return st, nil
}
