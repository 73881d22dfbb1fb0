// Package store provides storage backends for ReliefPipe.
//
// The store keeps an audit log of completed conversation turns and the SMS
// delivery receipts they produced. Backends are in-memory, SQLite and
// PostgreSQL; all are safe for concurrent use.
package store

import (
	"strings"
	"sync"

	"github.com/BTreeMap/ReliefPipe/internal/models"
)

// Store is the turn log.
type Store interface {
	AddTurn(t models.TurnRecord) error
	// GetTurns returns up to limit turns, newest first. limit <= 0 returns all.
	GetTurns(limit int) ([]models.TurnRecord, error)
	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns the database/sql driver name for dsn: "postgres" for
// PostgreSQL URLs or key/value connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return "postgres"
	default:
		return "sqlite3"
	}
}

// InMemoryStore keeps turns and receipts in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	turns    []models.TurnRecord
	receipts []models.Receipt
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AddTurn(t models.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	return nil
}

func (s *InMemoryStore) GetTurns(limit int) ([]models.TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.turns)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.TurnRecord, 0, n)
	for i := len(s.turns) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.turns[i])
	}
	return out, nil
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
