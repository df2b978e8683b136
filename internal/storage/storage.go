package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pv/curvesync-go/internal/series"
)

// Point — одна точка истории кривой.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Storage — интерфейс для чтения истории кривых из конкретного хранилища
// (Postgres, SQLite, ClickHouse, InfluxDB...).
type Storage interface {
	// Curves возвращает список имён кривых, доступных в хранилище.
	Curves(ctx context.Context) ([]string, error)
	// Load возвращает точки кривой в диапазоне [from, to], упорядоченные по времени.
	Load(ctx context.Context, name string, from, to time.Time) ([]Point, error)
	// Range возвращает минимальный и максимальный timestamp для выбранных кривых.
	Range(ctx context.Context, names []string) (time.Time, time.Time, error)
}

// LoadInto загружает перечисленные кривые в репозиторий.
// Время точки переводится в секунды Unix (float64) — ось X кривой.
// Возвращает количество загруженных точек.
func LoadInto(ctx context.Context, store Storage, repo *series.Repository, names []string, from, to time.Time) (int, error) {
	total := 0
	for _, name := range names {
		points, err := store.Load(ctx, name, from, to)
		if err != nil {
			return total, fmt.Errorf("storage: load %s: %w", name, err)
		}
		samples := make([]series.Sample, 0, len(points))
		for _, p := range points {
			samples = append(samples, series.Sample{
				X: float64(p.Timestamp.UnixNano()) / float64(time.Second),
				Y: p.Value,
			})
		}
		repo.Upsert(series.FromSamples(name, samples))
		total += len(samples)
	}
	return total, nil
}
