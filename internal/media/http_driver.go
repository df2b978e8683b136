package media

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// HTTPDriver управляет проигрывателем через его HTTP API (GET /pause, /seek).
type HTTPDriver struct {
	BaseURL string
	Player  string // имя проигрывателя, если API обслуживает несколько
	Mode    SeekMode
	HTTP    *http.Client
	Logger  *log.Logger

	mu            sync.Mutex
	paused        bool
	totalDuration time.Duration
	totalCalls    int64
}

func (d *HTTPDriver) IsPaused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// Pause переводит запрос в /pause?value=true|false.
func (d *HTTPDriver) Pause(ctx context.Context, paused bool) error {
	params := url.Values{}
	params.Set("value", strconv.FormatBool(paused))
	if err := d.call(ctx, "/pause", params); err != nil {
		return err
	}
	d.mu.Lock()
	d.paused = paused
	d.mu.Unlock()
	return nil
}

// Seek переводит запрос в /seek?position=... либо /seek?frame=...
func (d *HTTPDriver) Seek(ctx context.Context, value float64) error {
	params := url.Values{}
	key := "position"
	if d.Mode == SeekByFrame {
		key = "frame"
	}
	params.Set(key, strconv.FormatFloat(value, 'f', -1, 64))
	return d.call(ctx, "/seek", params)
}

func (d *HTTPDriver) call(ctx context.Context, path string, params url.Values) error {
	if d == nil {
		return fmt.Errorf("http driver: nil receiver")
	}
	if d.BaseURL == "" {
		return fmt.Errorf("http driver: BaseURL is empty")
	}
	httpClient := d.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	endpoint, err := joinURL(d.BaseURL, path)
	if err != nil {
		return err
	}
	if d.Player != "" {
		params.Set("player", d.Player)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("http driver: new request: %w", err)
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Printf("player error: %v (elapsed %s)", err, time.Since(start))
		}
		return fmt.Errorf("http driver: do request: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	if d.Logger != nil {
		d.mu.Lock()
		d.totalDuration += elapsed
		d.totalCalls++
		avg := time.Duration(int64(d.totalDuration) / d.totalCalls)
		d.Logger.Printf("player %s %s -> %s (%s, avg %s over %d calls)",
			path, req.URL.RawQuery, resp.Status, elapsed, avg, d.totalCalls)
		d.mu.Unlock()
	}

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if d.Logger != nil {
			d.Logger.Printf("player error body: %s", strings.TrimSpace(string(body)))
		}
		return fmt.Errorf("http driver: %s failed: status=%s body=%s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func joinURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("http driver: parse base URL: %w", err)
	}
	joined, err := url.JoinPath(u.String(), path)
	if err != nil {
		return "", fmt.Errorf("http driver: join path: %w", err)
	}
	return joined, nil
}
