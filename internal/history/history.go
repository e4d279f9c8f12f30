package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-qa/internal/config"
)

// Entry is one answered question
type Entry struct {
	bun.BaseModel `bun:"table:qa_log,alias:q" json:"-"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	SessionID     string    `bun:"session_id,notnull" json:"session_id"`
	Document      string    `bun:"document,notnull" json:"document"`
	Question      string    `bun:"question,notnull" json:"question"`
	Answer        string    `bun:"answer,notnull" json:"answer"`
	TopContext    string    `bun:"top_context" json:"top_context"`
	NoContext     bool      `bun:"no_context,notnull" json:"no_context"`
	ElapsedMS     int64     `bun:"elapsed_ms,notnull" json:"elapsed_ms"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Recorder receives every answered question
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
}

// Nop discards entries
type Nop struct{}

func (Nop) Record(context.Context, *Entry) error { return nil }

// Store writes entries to Postgres
type Store struct {
	db *bun.DB
}

// ConnectDB opens a *sql.DB for the configured driver. No connection is made
// until the first query.
func ConnectDB(dbConfig *config.DatabaseConfig) (*sql.DB, error) {
	switch dbConfig.Driver {
	case config.DriverPostgres:
		return sql.Open("postgres", dbConfig.DSN)
	case config.DriverPgdriver, "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dbConfig.DSN))), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", dbConfig.Driver)
	}
}

func NewStore(sqldb *sql.DB, debug bool) *Store {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return &Store{db: db}
}

// Open connects and creates the qa_log table if needed
func Open(ctx context.Context, dbConfig *config.DatabaseConfig) (*Store, error) {
	sqldb, err := ConnectDB(dbConfig)
	if err != nil {
		return nil, err
	}
	s := NewStore(sqldb, dbConfig.Debug)
	if err := s.Init(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("init history table: %w", err)
	}
	log.Info().Str("driver", dbConfig.Driver).Msg("Question history enabled")
	return s, nil
}

func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*Entry)(nil)).IfNotExists().Exec(ctx)
	return err
}

func (s *Store) Record(ctx context.Context, entry *Entry) error {
	_, err := s.insertQuery(entry).Exec(ctx)
	return err
}

func (s *Store) insertQuery(entry *Entry) *bun.InsertQuery {
	return s.db.NewInsert().Model(entry).ExcludeColumn("id", "created_at")
}

// Recent returns the latest entries of a session, newest first
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.recentQuery(&entries, sessionID, limit).Scan(ctx)
	return entries, err
}

func (s *Store) recentQuery(dest *[]Entry, sessionID string, limit int) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(dest).
		Where("session_id = ?", sessionID).
		OrderExpr("created_at DESC").
		Limit(limit)
}

func (s *Store) Close() error {
	return s.db.Close()
}
