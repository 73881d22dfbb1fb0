package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/BTreeMap/ReliefPipe/internal/models"
)

// Database connection pool configuration constants
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	store, err := newPostgresStoreFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// newPostgresStoreFromDB applies migrations on an open connection.
func newPostgresStoreFromDB(db *sql.DB) (*PostgresStore, error) {
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddTurn(t models.TurnRecord) error {
	_, err := s.db.Exec(`INSERT INTO turns (id, input_type, phone_number, text, intent, response_text, audio_bytes, sms_sent, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.InputType, nilIfEmpty(t.PhoneNumber), t.Text, t.Intent, t.ResponseText, t.AudioBytes, t.SMSSent, t.Time)
	if err != nil {
		slog.Error("PostgresStore AddTurn failed", "error", err, "turnID", t.ID)
		return fmt.Errorf("failed to insert turn %s: %w", t.ID, err)
	}
	slog.Debug("PostgresStore AddTurn succeeded", "turnID", t.ID, "intent", t.Intent)
	return nil
}

func (s *PostgresStore) GetTurns(limit int) ([]models.TurnRecord, error) {
	query := `SELECT id, input_type, phone_number, text, intent, response_text, audio_bytes, sms_sent, time
		FROM turns ORDER BY seq DESC`
	var (
		rows *sql.Rows
		err  error
	)
	if n := turnLimit(limit); n > 0 {
		rows, err = s.db.Query(query+` LIMIT $1`, n)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		slog.Error("PostgresStore GetTurns query failed", "error", err)
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *PostgresStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, status, time) VALUES ($1, $2, $3)`, r.To, r.Status, r.Time)
	if err != nil {
		slog.Error("PostgresStore AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	slog.Debug("PostgresStore AddReceipt succeeded", "to", r.To, "status", r.Status)
	return nil
}

func (s *PostgresStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, status, time FROM receipts ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()
	return scanReceipts(rows)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
