package clickhouse

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/pv/curvesync-go/internal/storage"
)

type Config struct {
	DSN   string
	Table string
}

type Store struct {
	conn  ch.Conn
	table string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("clickhouse: DSN is empty")
	}
	parsed, err := url.Parse(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: parse DSN: %w", err)
	}
	host := parsed.Host
	if host == "" {
		host = "localhost:9000"
	}
	if !strings.Contains(host, ":") {
		host = net.JoinHostPort(host, "9000")
	}
	database := strings.TrimPrefix(parsed.Path, "/")
	if database == "" {
		database = "default"
	}
	username := parsed.User.Username()
	password, _ := parsed.User.Password()

	conn, err := ch.Open(&ch.Options{
		Addr: []string{host},
		Auth: ch.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse: ping: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "curve_history"
	}
	if !strings.Contains(table, ".") {
		table = fmt.Sprintf("%s.%s", database, table)
	}
	return &Store{conn: conn, table: table}, nil
}

func (s *Store) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Store) Curves(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT curve FROM %s ORDER BY curve`, s.table)
	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: curves query: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("clickhouse: curves scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) Load(ctx context.Context, name string, from, to time.Time) ([]storage.Point, error) {
	var conditions []string
	args := []any{ch.Named("curve", name)}
	conditions = append(conditions, "curve = {curve:String}")
	if !from.IsZero() {
		conditions = append(conditions, "ts >= {from:DateTime64(6)}")
		args = append(args, ch.Named("from", from))
	}
	if !to.IsZero() {
		conditions = append(conditions, "ts <= {to:DateTime64(6)}")
		args = append(args, ch.Named("to", to))
	}
	query := fmt.Sprintf(`SELECT ts, value FROM %s WHERE %s ORDER BY ts`,
		s.table, strings.Join(conditions, " AND "))

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: load query: %w", err)
	}
	defer rows.Close()

	var points []storage.Point
	for rows.Next() {
		var ts time.Time
		var value float64
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("clickhouse: load scan: %w", err)
		}
		points = append(points, storage.Point{Timestamp: ts.UTC(), Value: value})
	}
	return points, rows.Err()
}

func (s *Store) Range(ctx context.Context, names []string) (time.Time, time.Time, error) {
	if len(names) == 0 {
		return time.Time{}, time.Time{}, nil
	}
	query := fmt.Sprintf(`SELECT MIN(ts), MAX(ts), COUNT() FROM %s WHERE curve IN {names:Array(String)}`, s.table)
	row := s.conn.QueryRow(ctx, query, ch.Named("names", names))

	var min, max time.Time
	var count uint64
	if err := row.Scan(&min, &max, &count); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("clickhouse: range scan: %w", err)
	}
	if count == 0 {
		return time.Time{}, time.Time{}, nil
	}
	return min.UTC(), max.UTC(), nil
}

func IsSource(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "clickhouse://") || strings.HasPrefix(lower, "ch://")
}
