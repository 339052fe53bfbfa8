// Package sqlbackend implements microcache.Backend on top of an embedded
// SQLite database, preferably opened on a RAM-backed filesystem path. A
// gofrs/flock advisory lock guards schema initialization so that multiple
// processes racing to open the same cache file don't run CREATE TABLE
// concurrently.
package sqlbackend

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	key TEXT PRIMARY KEY,
	payload BLOB NOT NULL
);
`

const busyTimeout = 5 * time.Second

// Backend stores entries in a single "cache" table, as documented for the
// embedded SQL microcache backend.
type Backend struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path, applies
// the write-ahead-log / relaxed-durability pragmas, and initializes the
// schema under a cross-process file lock.
func Open(path string) (*Backend, error) {
	lock := flock.New(path + ".initlock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquiring schema init lock: %w", err)
	}
	defer lock.Unlock()

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_temp_store=MEMORY&_busy_timeout=%d", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}

	// SQLite serializes writers regardless of driver-level pool size; one
	// connection avoids "database is locked" errors surfacing as spurious
	// backend failures.
	db.SetMaxOpenConns(1)

	return &Backend{db: db}, nil
}

func (b *Backend) Kind() string { return "sqlbackend" }

func (b *Backend) Close() error { return b.db.Close() }

func (b *Backend) Get(key string) ([]byte, bool, error) {
	var payload []byte
	err := b.db.QueryRow(`SELECT payload FROM cache WHERE key = ?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (b *Backend) Set(key string, val []byte) error {
	_, err := b.db.Exec(`INSERT INTO cache(key, payload) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload`, key, val)
	return err
}

func (b *Backend) SetNX(key string, val []byte) (bool, error) {
	res, err := b.db.Exec(`INSERT INTO cache(key, payload) VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING`, key, val)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *Backend) Delete(key string) (bool, error) {
	res, err := b.db.Exec(`DELETE FROM cache WHERE key = ?`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *Backend) Keys() ([]string, error) {
	rows, err := b.db.Query(`SELECT key FROM cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (b *Backend) Size() (int, error) {
	var n int
	err := b.db.QueryRow(`SELECT COUNT(*) FROM cache`).Scan(&n)
	return n, err
}
