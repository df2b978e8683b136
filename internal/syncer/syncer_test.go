package syncer

import (
	"context"
	"strings"
	"testing"

	"github.com/pv/curvesync-go/internal/series"
)

type fakeDriver struct {
	paused     bool
	pauseCalls []bool
	seeks      []float64
	failPause  bool
}

func (d *fakeDriver) IsPaused() bool { return d.paused }

func (d *fakeDriver) Pause(_ context.Context, paused bool) error {
	if d.failPause {
		return context.DeadlineExceeded
	}
	d.pauseCalls = append(d.pauseCalls, paused)
	d.paused = paused
	return nil
}

func (d *fakeDriver) Seek(_ context.Context, value float64) error {
	d.seeks = append(d.seeks, value)
	return nil
}

func newTestRepo() *series.Repository {
	repo := series.NewRepository()
	repo.Upsert(series.FromSamples("frame_id", []series.Sample{
		{X: 0.0, Y: 10.0},
		{X: 1.0, Y: 20.0},
	}))
	repo.Upsert(series.New("empty"))
	return repo
}

func TestTickInactiveDoesNothing(t *testing.T) {
	driver := &fakeDriver{}
	s := New(newTestRepo(), driver)
	ctx := context.Background()

	// Выключен — тик игнорируется даже с выбранной кривой.
	s.Configure("frame_id")
	if _, driven := s.Tick(ctx, 0.5); driven {
		t.Fatal("disabled synchronizer must not drive")
	}

	// Включён, но кривая не выбрана.
	s.Configure("")
	s.SetEnabled(true)
	if s.IsActive() {
		t.Fatal("empty curve name must keep state inactive")
	}
	if _, driven := s.Tick(ctx, 0.5); driven {
		t.Fatal("inactive synchronizer must not drive")
	}
	if len(driver.seeks) != 0 || len(driver.pauseCalls) != 0 {
		t.Fatalf("driver was touched: %v %v", driver.seeks, driver.pauseCalls)
	}
}

func TestTickSamplesAndDrives(t *testing.T) {
	driver := &fakeDriver{}
	s := New(newTestRepo(), driver)
	s.Configure("frame_id")
	s.SetEnabled(true)

	v, driven := s.Tick(context.Background(), 0.5)
	if !driven {
		t.Fatal("expected drive on active tick")
	}
	if v != 15.0 {
		t.Fatalf("resolved value = %v, want 15", v)
	}
	if len(driver.seeks) != 1 || driver.seeks[0] != 15.0 {
		t.Fatalf("seeks = %v", driver.seeks)
	}
	if last, ok := s.LastValue(); !ok || last != 15.0 {
		t.Fatalf("LastValue = %v, %v", last, ok)
	}
}

func TestDrivePausesOnce(t *testing.T) {
	driver := &fakeDriver{}
	s := New(newTestRepo(), driver)
	ctx := context.Background()

	if err := s.Drive(ctx, 10); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if err := s.Drive(ctx, 11); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	// Пауза — однократный переход, а не действие на каждом тике.
	if len(driver.pauseCalls) != 1 || driver.pauseCalls[0] != true {
		t.Fatalf("pause calls = %v, want single pause(true)", driver.pauseCalls)
	}
	if len(driver.seeks) != 2 {
		t.Fatalf("seeks = %v", driver.seeks)
	}
}

func TestDrivePauseFailureSkipsSeek(t *testing.T) {
	driver := &fakeDriver{failPause: true}
	s := New(newTestRepo(), driver)
	if err := s.Drive(context.Background(), 10); err == nil {
		t.Fatal("expected pause error")
	}
	if len(driver.seeks) != 0 {
		t.Fatal("seek must not run when pause failed")
	}
}

func TestSampleUnknownAndEmptyCurve(t *testing.T) {
	s := New(newTestRepo(), &fakeDriver{})
	s.SetEnabled(true)

	s.Configure("no-such-curve")
	if _, ok := s.Sample(0.5); ok {
		t.Fatal("unknown curve must sample to nothing")
	}
	// Неудачная выборка не деактивирует синхронизатор.
	if !s.IsActive() {
		t.Fatal("failed sample must keep state active")
	}

	s.Configure("empty")
	if _, ok := s.Sample(0.5); ok {
		t.Fatal("empty curve must sample to nothing")
	}
}

func TestConfigureResetsLastValue(t *testing.T) {
	s := New(newTestRepo(), &fakeDriver{})
	s.SetEnabled(true)
	s.Configure("frame_id")
	if _, ok := s.Sample(0.5); !ok {
		t.Fatal("sample failed")
	}
	s.Configure("other")
	if _, ok := s.LastValue(); ok {
		t.Fatal("configure with new curve must reset last value")
	}
}

func TestDisableResetsLastValue(t *testing.T) {
	s := New(newTestRepo(), &fakeDriver{})
	s.SetEnabled(true)
	s.Configure("frame_id")
	s.Sample(0.5)
	s.SetEnabled(false)
	if _, ok := s.LastValue(); ok {
		t.Fatal("disable must destroy transient state")
	}
}

func TestSaveLoadState(t *testing.T) {
	s := New(newTestRepo(), &fakeDriver{})
	s.Apply(Options{
		VideoFile: "/data/lap3.mkv",
		CurveName: "frame_id",
		UseFrame:  true,
	})

	data, err := s.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if !strings.Contains(string(data), `video_file="/data/lap3.mkv"`) {
		t.Fatalf("unexpected fragment: %s", data)
	}

	restored := New(newTestRepo(), &fakeDriver{})
	if err := restored.LoadState(data); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got := restored.Snapshot(); got != s.Snapshot() {
		t.Fatalf("state mismatch: %+v vs %+v", got, s.Snapshot())
	}
}

func TestLoadStateFromParentDocument(t *testing.T) {
	s := New(newTestRepo(), &fakeDriver{})
	doc := `<plugin name="video"><config video_file="a.mp4" curve_name="c" use_frame="false"/></plugin>`
	if err := s.LoadState([]byte(doc)); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got := s.Snapshot(); got.VideoFile != "a.mp4" || got.CurveName != "c" || got.UseFrame {
		t.Fatalf("unexpected options: %+v", got)
	}
}

func TestLoadStateMissingConfigKeepsState(t *testing.T) {
	s := New(newTestRepo(), &fakeDriver{})
	s.Apply(Options{CurveName: "keep"})
	if err := s.LoadState([]byte(`<plugin name="video"></plugin>`)); err == nil {
		t.Fatal("expected error for missing <config>")
	}
	if got := s.Snapshot(); got.CurveName != "keep" {
		t.Fatalf("state must be untouched, got %+v", got)
	}
}
