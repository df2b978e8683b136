package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pv/curvesync-go/internal/storage"
)

type Config struct {
	ConnString string
	MaxConns   int32
	Table      string
}

type Store struct {
	pool  *pgxpool.Pool
	table string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("postgres: connection string is empty")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "curve_history"
	}
	return &Store{pool: pool, table: table}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Curves(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT curve FROM %s ORDER BY curve`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: curves query: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres: curves scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) Load(ctx context.Context, name string, from, to time.Time) ([]storage.Point, error) {
	query := fmt.Sprintf(`SELECT ts, value FROM %s WHERE curve = $1`, s.table)
	args := []any{name}
	argPos := 2
	if !from.IsZero() {
		query += fmt.Sprintf(` AND ts >= $%d`, argPos)
		args = append(args, from)
		argPos++
	}
	if !to.IsZero() {
		query += fmt.Sprintf(` AND ts <= $%d`, argPos)
		args = append(args, to)
	}
	query += ` ORDER BY ts`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: load query: %w", err)
	}
	defer rows.Close()

	var points []storage.Point
	for rows.Next() {
		var ts time.Time
		var value float64
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("postgres: load scan: %w", err)
		}
		points = append(points, storage.Point{Timestamp: ts.UTC(), Value: value})
	}
	return points, rows.Err()
}

func (s *Store) Range(ctx context.Context, names []string) (time.Time, time.Time, error) {
	if len(names) == 0 {
		return time.Time{}, time.Time{}, nil
	}
	query := fmt.Sprintf(`SELECT MIN(ts), MAX(ts) FROM %s WHERE curve = ANY($1)`, s.table)
	var min, max *time.Time
	if err := s.pool.QueryRow(ctx, query, names).Scan(&min, &max); err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, time.Time{}, nil
		}
		return time.Time{}, time.Time{}, fmt.Errorf("postgres: range scan: %w", err)
	}
	if min == nil || max == nil {
		return time.Time{}, time.Time{}, nil
	}
	return min.UTC(), max.UTC(), nil
}

// EnsureSchema создаёт таблицу истории, если её нет (для генераторов данных).
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	curve TEXT NOT NULL,
	ts    TIMESTAMPTZ NOT NULL,
	value DOUBLE PRECISION NOT NULL
)`, s.table))
	if err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s ON %s(curve, ts)`, s.table, s.table))
	if err != nil {
		return fmt.Errorf("postgres: create index: %w", err)
	}
	return nil
}

// Insert добавляет точку истории (для генераторов данных).
func (s *Store) Insert(ctx context.Context, curve string, ts time.Time, value float64) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s(curve, ts, value) VALUES ($1, $2, $3)`, s.table),
		curve, ts, value)
	if err != nil {
		return fmt.Errorf("postgres: insert: %w", err)
	}
	return nil
}

func IsPostgresURL(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}
