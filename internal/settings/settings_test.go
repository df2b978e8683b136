package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.Get(KeyCurveName, "fallback"); got != "fallback" {
		t.Fatalf("Get on empty store = %q", got)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Set(KeyVideoFile, "/data/run42.mp4")
	s.Set(KeyCurveName, "odom/velocity/x")
	s.SetBool(KeyUseFrame, true)
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reloaded.Get(KeyVideoFile, ""); got != "/data/run42.mp4" {
		t.Fatalf("video file = %q", got)
	}
	if got := reloaded.Get(KeyCurveName, ""); got != "odom/velocity/x" {
		t.Fatalf("curve name = %q", got)
	}
	if !reloaded.GetBool(KeyUseFrame, false) {
		t.Fatal("use_frame must survive reload")
	}
}

func TestGetBoolMalformedFallsBack(t *testing.T) {
	s, _ := Open("")
	s.Set(KeyUseFrame, "not-a-bool")
	if s.GetBool(KeyUseFrame, true) != true {
		t.Fatal("malformed bool must fall back to default")
	}
}

func TestBootstrapFromEnv(t *testing.T) {
	s, _ := Open("")

	t.Setenv("VIDEO_PATH", "")
	t.Setenv("VIDEO_REFERENCE_CURVE", "curve")
	if s.BootstrapFromEnv() {
		t.Fatal("bootstrap must require both variables")
	}

	t.Setenv("VIDEO_PATH", filepath.Join(string(os.PathSeparator), "videos", "lap3.mkv"))
	if !s.BootstrapFromEnv() {
		t.Fatal("bootstrap must apply when both variables are set")
	}
	if got := s.Get(KeyCurveName, ""); got != "curve" {
		t.Fatalf("curve name = %q", got)
	}
	if got := s.Get(KeyLoadDirectory, ""); got != filepath.Join(string(os.PathSeparator), "videos") {
		t.Fatalf("load directory = %q", got)
	}
}
