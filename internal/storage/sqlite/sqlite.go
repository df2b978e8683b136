package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pv/curvesync-go/internal/storage"
)

// Pragmas — настройки SQLite, применяемые при открытии.
type Pragmas struct {
	CacheMB    int
	WAL        bool
	SyncOff    bool
	TempMemory bool
}

type Config struct {
	Source  string
	Pragmas Pragmas
}

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("sqlite: database path is empty")
	}
	db, err := sql.Open("sqlite", cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := applyPragmas(ctx, db, cfg.Pragmas); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// DB возвращает подключение (для генераторов тестовых данных).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Curves(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT curve FROM curve_history ORDER BY curve`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: curves query: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: curves scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) Load(ctx context.Context, name string, from, to time.Time) ([]storage.Point, error) {
	query := `SELECT ts_usec, value FROM curve_history WHERE curve = ?`
	args := []any{name}
	if !from.IsZero() {
		query += ` AND ts_usec >= ?`
		args = append(args, from.UnixMicro())
	}
	if !to.IsZero() {
		query += ` AND ts_usec <= ?`
		args = append(args, to.UnixMicro())
	}
	query += ` ORDER BY ts_usec`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load query: %w", err)
	}
	defer rows.Close()

	var points []storage.Point
	for rows.Next() {
		var usec int64
		var value float64
		if err := rows.Scan(&usec, &value); err != nil {
			return nil, fmt.Errorf("sqlite: load scan: %w", err)
		}
		points = append(points, storage.Point{
			Timestamp: time.UnixMicro(usec).UTC(),
			Value:     value,
		})
	}
	return points, rows.Err()
}

func (s *Store) Range(ctx context.Context, names []string) (time.Time, time.Time, error) {
	if len(names) == 0 {
		return time.Time{}, time.Time{}, nil
	}
	placeholders := strings.Repeat("?,", len(names))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}

	query := fmt.Sprintf(`SELECT MIN(ts_usec), MAX(ts_usec) FROM curve_history WHERE curve IN (%s)`, placeholders)
	var minUsec, maxUsec sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&minUsec, &maxUsec); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("sqlite: range scan: %w", err)
	}
	if !minUsec.Valid || !maxUsec.Valid {
		return time.Time{}, time.Time{}, nil
	}
	return time.UnixMicro(minUsec.Int64).UTC(), time.UnixMicro(maxUsec.Int64).UTC(), nil
}

// EnsureSchema создаёт таблицу истории, если её нет.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS curve_history (
	curve   TEXT NOT NULL,
	ts_usec INTEGER NOT NULL,
	value   REAL NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("sqlite: create schema: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_curve_history ON curve_history(curve, ts_usec)`)
	if err != nil {
		return fmt.Errorf("sqlite: create index: %w", err)
	}
	return nil
}

func applyPragmas(ctx context.Context, db *sql.DB, p Pragmas) error {
	statements := []string{}
	if p.CacheMB > 0 {
		// Отрицательное значение — размер в KiB.
		statements = append(statements, fmt.Sprintf("PRAGMA cache_size = -%d", p.CacheMB*1024))
	}
	if p.WAL {
		statements = append(statements, "PRAGMA journal_mode = WAL")
	}
	if p.SyncOff {
		statements = append(statements, "PRAGMA synchronous = OFF")
	}
	if p.TempMemory {
		statements = append(statements, "PRAGMA temp_store = MEMORY")
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: %s: %w", stmt, err)
		}
	}
	return nil
}

func IsSource(src string) bool {
	if src == "" {
		return false
	}
	lower := strings.ToLower(src)
	switch {
	case strings.HasPrefix(lower, "sqlite://"),
		strings.HasPrefix(lower, "file:"),
		strings.HasSuffix(lower, ".db"),
		src == ":memory:":
		return true
	default:
		return false
	}
}

func NormalizeSource(src string) string {
	if strings.HasPrefix(src, "sqlite://") {
		return strings.TrimPrefix(src, "sqlite://")
	}
	return src
}
