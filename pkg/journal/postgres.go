package journal

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var errPGNotConnected = errors.New("postgres journal not connected")

type PGConfig struct {
	ConnString string `mapstructure:"connString"`
	Schema     string `mapstructure:"schema"`
	Table      string `mapstructure:"table"`
}

// PostgresSink inserts entries into a table it creates on open.
type PostgresSink struct {
	pool  *pgxpool.Pool
	table string
}

func (s *PostgresSink) Open(ctx context.Context, cfg Config, logger *zap.Logger) error {
	pc := cfg.Postgres
	if pc.ConnString == "" {
		return errors.New("journal.postgres.connString is required")
	}
	s.table = pgx.Identifier{cmp.Or(pc.Schema, "public"), cmp.Or(pc.Table, "pumpdemo_journal")}.Sanitize()

	var err error
	if s.pool, err = pgxpool.New(ctx, pc.ConnString); err != nil {
		return err
	}
	if err = s.pool.Ping(ctx); err != nil {
		s.pool.Close()
		return fmt.Errorf("error connecting to database: %w", err)
	}
	if _, err = s.pool.Exec(ctx, createTableSQL(s.table)); err != nil {
		s.pool.Close()
		return fmt.Errorf("create journal table: %w", err)
	}
	logger.Info("journal table ready", zap.String("table", s.table))
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, e Entry) error {
	if s.pool == nil {
		return errPGNotConnected
	}
	_, err := s.pool.Exec(ctx, insertSQL(s.table),
		e.At, e.Role, e.SessionID, e.StationID, e.Kind, e.Topic, string(e.Payload))
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	at TIMESTAMPTZ NOT NULL,
	role TEXT NOT NULL,
	session_id TEXT NOT NULL,
	station_id TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	topic TEXT NOT NULL,
	payload JSONB NOT NULL
)`, table)
}

func insertSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (at, role, session_id, station_id, kind, topic, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`, table)
}

func init() {
	RegisterSink(SinkPostgres, func() Sink { return &PostgresSink{} })
}
