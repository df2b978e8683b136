package memstore

import (
	"context"
	"math"
	"time"

	"github.com/pv/curvesync-go/internal/storage"
)

// ExampleStore генерирует детерминированную историю для заданных кривых.
// Используется для демонстраций и как запасной источник без БД.
type ExampleStore struct {
	curves []string
	from   time.Time
	to     time.Time
	step   time.Duration
}

func NewExampleStore(curves []string, from, to time.Time, step time.Duration) *ExampleStore {
	if from.IsZero() {
		from = time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	}
	if to.IsZero() || !to.After(from) {
		to = from.Add(30 * time.Minute)
	}
	if step <= 0 {
		step = time.Second
	}
	if len(curves) == 0 {
		curves = []string{"demo/position"}
	}
	return &ExampleStore{
		curves: append([]string(nil), curves...),
		from:   from,
		to:     to,
		step:   step,
	}
}

func (s *ExampleStore) Curves(ctx context.Context) ([]string, error) {
	return append([]string(nil), s.curves...), ctx.Err()
}

func (s *ExampleStore) Load(ctx context.Context, name string, from, to time.Time) ([]storage.Point, error) {
	known := false
	idx := 0
	for i, c := range s.curves {
		if c == name {
			known = true
			idx = i
			break
		}
	}
	if !known {
		return nil, nil
	}
	if from.IsZero() || from.Before(s.from) {
		from = s.from
	}
	if to.IsZero() || to.After(s.to) {
		to = s.to
	}

	var points []storage.Point
	phase := float64(idx)
	for ts := from; !ts.After(to); ts = ts.Add(s.step) {
		elapsed := ts.Sub(s.from).Seconds()
		points = append(points, storage.Point{
			Timestamp: ts,
			Value:     elapsed + 10*math.Sin(elapsed/10+phase),
		})
		if ctx.Err() != nil {
			return points, ctx.Err()
		}
	}
	return points, nil
}

func (s *ExampleStore) Range(ctx context.Context, names []string) (time.Time, time.Time, error) {
	return s.from, s.to, ctx.Err()
}
