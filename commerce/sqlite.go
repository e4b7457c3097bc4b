package commerce

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codewandler/orderrt-go/store"
)

// SQLiteCarts stores carts in a SQLite database, one row per session.
type SQLiteCarts struct {
	db    *sql.DB
	clock func() time.Time
}

// OpenSQLiteCarts opens or creates the database at path. ":memory:" opens a
// private in-memory database.
func OpenSQLiteCarts(ctx context.Context, path string) (*SQLiteCarts, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// an in-memory database exists per connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteCarts{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteCarts) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS carts (
    session_id TEXT PRIMARY KEY,
    items TEXT NOT NULL,
    customer TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *SQLiteCarts) Get(ctx context.Context, sessionID string) (Cart, bool, error) {
	var items, customer string
	err := s.db.QueryRowContext(ctx,
		`SELECT items, customer FROM carts WHERE session_id = ?`, sessionID).Scan(&items, &customer)
	if errors.Is(err, sql.ErrNoRows) {
		return Cart{}, false, nil
	}
	if err != nil {
		return Cart{}, false, fmt.Errorf("query cart: %w", err)
	}

	var c Cart
	if err := json.Unmarshal([]byte(items), &c.Items); err != nil {
		return Cart{}, false, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal([]byte(customer), &c.Customer); err != nil {
		return Cart{}, false, fmt.Errorf("decode customer: %w", err)
	}
	return c, true, nil
}

func (s *SQLiteCarts) Put(ctx context.Context, sessionID string, cart Cart) error {
	if cart.Items == nil {
		cart.Items = []store.CartItem{}
	}
	items, err := json.Marshal(cart.Items)
	if err != nil {
		return err
	}
	customer, err := json.Marshal(cart.Customer)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO carts(session_id, items, customer, updated_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET items=excluded.items, customer=excluded.customer, updated_at=excluded.updated_at`,
		sessionID, string(items), string(customer), s.clock().UTC())
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}
	return nil
}

func (s *SQLiteCarts) Close() error {
	return s.db.Close()
}
