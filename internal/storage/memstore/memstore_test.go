package memstore

import (
	"context"
	"testing"
	"time"
)

func TestExampleStoreDeterministic(t *testing.T) {
	ctx := context.Background()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := NewExampleStore([]string{"a", "b"}, from, from.Add(10*time.Second), time.Second)

	curves, err := store.Curves(ctx)
	if err != nil {
		t.Fatalf("Curves: %v", err)
	}
	if len(curves) != 2 {
		t.Fatalf("Curves = %v", curves)
	}

	p1, err := store.Load(ctx, "a", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p2, _ := store.Load(ctx, "a", time.Time{}, time.Time{})
	if len(p1) != 11 {
		t.Fatalf("expected 11 points, got %d", len(p1))
	}
	for i := range p1 {
		if p1[i] != p2[i] {
			t.Fatalf("generation is not deterministic at %d: %+v vs %+v", i, p1[i], p2[i])
		}
	}

	unknown, err := store.Load(ctx, "missing", time.Time{}, time.Time{})
	if err != nil || unknown != nil {
		t.Fatalf("unknown curve must yield no points: %v %v", unknown, err)
	}

	min, max, err := store.Range(ctx, curves)
	if err != nil || !min.Equal(from) || !max.Equal(from.Add(10*time.Second)) {
		t.Fatalf("Range = %v %v %v", min, max, err)
	}
}

func TestExampleStoreDefaults(t *testing.T) {
	store := NewExampleStore(nil, time.Time{}, time.Time{}, 0)
	curves, _ := store.Curves(context.Background())
	if len(curves) != 1 || curves[0] != "demo/position" {
		t.Fatalf("default curves = %v", curves)
	}
	min, max, _ := store.Range(context.Background(), curves)
	if !max.After(min) {
		t.Fatalf("invalid default range: %v %v", min, max)
	}
}
