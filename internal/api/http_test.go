package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pv/curvesync-go/internal/series"
	"github.com/pv/curvesync-go/internal/settings"
	"github.com/pv/curvesync-go/internal/syncer"
)

func newTestServer(t *testing.T) (*httptest.Server, *Manager, *series.Repository) {
	t.Helper()
	repo := series.NewRepository()
	sync := syncer.New(repo, &fakeDriver{})
	sync.Apply(syncer.Options{VideoFile: "run.mp4", CurveName: "frame_id"})
	sync.SetEnabled(true)
	st, err := settings.Open("")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	manager := NewManager(sync, repo, nil, st, nil, nil, Defaults{Step: time.Second, Speed: 1})
	streamer := NewStateStreamer()
	srv := NewServer(manager, streamer)
	ts := httptest.NewServer(srv.mux)
	t.Cleanup(ts.Close)
	return ts, manager, repo
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	ts, _, repo := newTestServer(t)
	from := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	repo.Append("frame_id", series.Sample{X: float64(from.Unix()), Y: 1})
	repo.Append("frame_id", series.Sample{X: float64(from.Add(time.Hour).Unix()), Y: 100})

	body := `{"from":"` + from.Format(time.RFC3339) + `","to":"` + from.Add(time.Hour).Format(time.RFC3339) + `","step":"1s","speed":10}`
	resp, payload := postJSON(t, ts.URL+"/api/v1/job", body)
	if resp.StatusCode != http.StatusOK || payload["status"] != "running" {
		t.Fatalf("start: %d %v", resp.StatusCode, payload)
	}

	// Повторный запуск при активной задаче — конфликт.
	resp, _ = postJSON(t, ts.URL+"/api/v1/job", body)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start status = %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, ts.URL+"/api/v1/job/pause", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status = %d", resp.StatusCode)
	}
	resp, status := getJSON(t, ts.URL+"/api/v1/job")
	if resp.StatusCode != http.StatusOK || status["status"] != "paused" {
		t.Fatalf("job status: %v", status)
	}
	if status["id"] == "" || status["id"] == nil {
		t.Fatalf("job id missing: %v", status)
	}

	resp, _ = postJSON(t, ts.URL+"/api/v1/job/resume", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status = %d", resp.StatusCode)
	}
	resp, _ = postJSON(t, ts.URL+"/api/v1/job/stop", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d", resp.StatusCode)
	}
}

func TestSeekWithoutJobBecomesPending(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, payload := postJSON(t, ts.URL+"/api/v1/job/seek", `{"ts":"2026-04-01T12:30:00Z"}`)
	if resp.StatusCode != http.StatusOK || payload["status"] != "pending" {
		t.Fatalf("seek: %d %v", resp.StatusCode, payload)
	}
}

func TestSyncEndpoints(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, payload := getJSON(t, ts.URL+"/api/v1/sync")
	if resp.StatusCode != http.StatusOK || payload["curve_name"] != "frame_id" {
		t.Fatalf("sync status: %v", payload)
	}
	if payload["active"] != true {
		t.Fatalf("sync must be active: %v", payload)
	}

	resp, payload = postJSON(t, ts.URL+"/api/v1/sync/configure", `{"video_file":"other.mp4","curve_name":"other","use_frame":true}`)
	if resp.StatusCode != http.StatusOK || payload["curve_name"] != "other" {
		t.Fatalf("configure: %v", payload)
	}

	resp, payload = postJSON(t, ts.URL+"/api/v1/sync/disable", "")
	if resp.StatusCode != http.StatusOK || payload["active"] != false {
		t.Fatalf("disable: %v", payload)
	}
	resp, payload = postJSON(t, ts.URL+"/api/v1/sync/enable", "")
	if resp.StatusCode != http.StatusOK || payload["active"] != true {
		t.Fatalf("enable: %v", payload)
	}
}

func TestSyncStateRoundTripOverHTTP(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/sync/state")
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if !strings.Contains(string(data), `video_file="run.mp4"`) {
		t.Fatalf("state fragment: %s", data)
	}

	loaded := `<root><config video_file="saved.mp4" curve_name="saved" use_frame="true"/></root>`
	postResp, payload := postJSONRaw(t, ts.URL+"/api/v1/sync/state", loaded)
	if postResp.StatusCode != http.StatusOK || payload["curve_name"] != "saved" {
		t.Fatalf("load state: %d %v", postResp.StatusCode, payload)
	}

	// Документ без <config> — ошибка, конфигурация не меняется.
	postResp, _ = postJSONRaw(t, ts.URL+"/api/v1/sync/state", `<root><other/></root>`)
	if postResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing config status = %d", postResp.StatusCode)
	}
	_, payload = getJSON(t, ts.URL+"/api/v1/sync")
	if payload["curve_name"] != "saved" {
		t.Fatalf("config changed after failed load: %v", payload)
	}
}

func TestCurvesAndRange(t *testing.T) {
	ts, _, repo := newTestServer(t)
	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	repo.Append("frame_id", series.Sample{X: float64(from.Unix()), Y: 1})
	repo.Append("frame_id", series.Sample{X: float64(from.Add(time.Minute).Unix()), Y: 2})

	resp, payload := getJSON(t, ts.URL+"/api/v1/curves")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("curves status = %d", resp.StatusCode)
	}
	curves, _ := payload["curves"].([]any)
	if len(curves) != 1 || curves[0] != "frame_id" {
		t.Fatalf("curves = %v", payload)
	}

	resp, payload = getJSON(t, ts.URL+"/api/v1/range")
	if resp.StatusCode != http.StatusOK || payload["from"] != from.Format(time.RFC3339) {
		t.Fatalf("range: %d %v", resp.StatusCode, payload)
	}
}

func TestRulesEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/rules")
	if err != nil {
		t.Fatalf("GET rules: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(data), "<SubstitutionRules>") {
		t.Fatalf("default rules missing: %s", data)
	}

	valid := `<SubstitutionRules><RosType name="t"><rule pattern="a" alias="b" substitution="c"/></RosType></SubstitutionRules>`
	postResp, payload := postJSONRaw(t, ts.URL+"/api/v1/rules", valid)
	if postResp.StatusCode != http.StatusOK {
		t.Fatalf("save rules: %d %v", postResp.StatusCode, payload)
	}
	resp, _ = http.Get(ts.URL + "/api/v1/rules")
	data, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(data), `name="t"`) {
		t.Fatalf("saved rules not returned: %s", data)
	}

	postResp, _ = postJSONRaw(t, ts.URL+"/api/v1/rules", `<Wrong/>`)
	if postResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid rules status = %d", postResp.StatusCode)
	}
}

func TestRangeWithoutDataIsNotFound(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, _ := getJSON(t, ts.URL+"/api/v1/range")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, _ := postJSON(t, ts.URL+"/api/v1/job", `{"from":"2026-04-01T00:00:00Z","to":"2026-04-01T01:00:00Z","step":"1s","bogus":1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func postJSONRaw(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/xml", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}
