package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/pv/curvesync-go/internal/storage/sqlite"
	"github.com/pv/curvesync-go/pkg/config"
)

type options struct {
	dbPath     string
	configPath string
	selector   string
	curves     string
	points     int
	step       time.Duration
	startTS    string
	fps        float64
	reset      bool
	random     float64
}

func main() {
	opts := parseFlags()
	rand.Seed(time.Now().UnixNano())

	names, err := loadCurveNames(opts)
	if err != nil {
		log.Fatalf("load curves: %v", err)
	}
	if len(names) == 0 {
		log.Fatal("no curves to generate")
	}

	start, err := time.Parse(time.RFC3339, opts.startTS)
	if err != nil {
		log.Fatalf("invalid --start: %v", err)
	}

	ctx := context.Background()
	store, err := sqlite.New(ctx, sqlite.Config{
		Source:  sqlite.NormalizeSource(opts.dbPath),
		Pragmas: sqlite.Pragmas{WAL: true, SyncOff: true, TempMemory: true},
	})
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	db := store.DB()
	if opts.reset {
		if _, err := db.Exec(`DELETE FROM curve_history`); err != nil {
			log.Fatalf("clear table: %v", err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		log.Fatalf("begin tx: %v", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO curve_history(curve, ts_usec, value) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		log.Fatalf("prepare insert: %v", err)
	}

	total := len(names) * opts.points
	var inserted int
	for idx, name := range names {
		ts := start
		for i := 0; i < opts.points; i++ {
			if _, err := stmt.Exec(name, ts.UnixMicro(), valueFor(idx, i, opts)); err != nil {
				stmt.Close()
				tx.Rollback()
				log.Fatalf("insert curve %s: %v", name, err)
			}
			ts = ts.Add(opts.step)
			inserted++
			if inserted%10000 == 0 {
				log.Printf("inserted %d/%d rows", inserted, total)
			}
		}
	}

	stmt.Close()
	if err := tx.Commit(); err != nil {
		log.Fatalf("commit tx: %v", err)
	}
	log.Printf("done: inserted %d rows for %d curve(s) into %s", inserted, len(names), opts.dbPath)
}

func parseFlags() options {
	var opt options
	flag.StringVar(&opt.dbPath, "db", "curve-history.db", "path to sqlite database file")
	flag.StringVar(&opt.configPath, "confile", "", "optional curve catalog (XML/JSON) to derive names from")
	flag.StringVar(&opt.selector, "selector", "ALL", "curve selector/pattern (used with --confile)")
	flag.StringVar(&opt.curves, "curves", "frame_id", "comma-separated curve names if catalog is not provided")
	flag.IntVar(&opt.points, "points", 1000, "records per curve")
	flag.DurationVar(&opt.step, "step", time.Second, "time delta between records")
	flag.StringVar(&opt.startTS, "start", "2026-06-01T00:00:00Z", "start timestamp (RFC3339)")
	flag.Float64Var(&opt.fps, "fps", 25, "frames per second for generated frame numbers")
	flag.BoolVar(&opt.reset, "reset", true, "clear existing data in curve_history")
	flag.Float64Var(&opt.random, "random", 0, "if >0, add random variation (-range..+range) to values")
	flag.Parse()
	return opt
}

func loadCurveNames(opt options) ([]string, error) {
	if opt.configPath != "" {
		cfg, err := config.Load(opt.configPath)
		if err != nil {
			return nil, err
		}
		return cfg.Resolve(opt.selector)
	}
	var names []string
	for _, part := range strings.Split(opt.curves, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("--curves must not be empty when catalog is not provided")
	}
	return names, nil
}

// valueFor генерирует правдоподобную позицию: номер кадра растёт со временем,
// плюс лёгкая синусоида, чтобы интерполяции было что сглаживать.
func valueFor(curveIdx, pointIdx int, opt options) float64 {
	elapsed := float64(pointIdx) * opt.step.Seconds()
	base := elapsed*opt.fps + 5*math.Sin(elapsed/10+float64(curveIdx))
	if opt.random <= 0 {
		return base
	}
	return base + rand.Float64()*2*opt.random - opt.random
}
