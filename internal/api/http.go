package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pv/curvesync-go/internal/syncer"
)

// Server реализует HTTP API управления синхронизатором и проигрыванием.
type Server struct {
	manager  *Manager
	mux      *http.ServeMux
	streamer *StateStreamer
}

// NewServer создаёт HTTP сервер с зарегистрированными хендлерами.
func NewServer(manager *Manager, streamer *StateStreamer) *Server {
	s := &Server{
		manager:  manager,
		mux:      http.NewServeMux(),
		streamer: streamer,
	}
	s.routes()
	return s
}

// Listen запускает сервер и блокируется до остановки.
func (s *Server) Listen(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	apiRoutes := []struct {
		path    string
		handler http.Handler
	}{
		{"/api/v1/curves", http.HandlerFunc(s.handleCurves)},
		{"/api/v1/range", http.HandlerFunc(s.handleRange)},
		{"/api/v1/job", http.HandlerFunc(s.handleJob)},
		{"/api/v1/job/range", http.HandlerFunc(s.handleSetRange)},
		{"/api/v1/job/start", http.HandlerFunc(s.handleStartPending)},
		{"/api/v1/job/pause", http.HandlerFunc(s.wrapSimpleWithLog("pause", s.manager.Pause))},
		{"/api/v1/job/resume", http.HandlerFunc(s.wrapSimpleWithLog("resume", s.manager.Resume))},
		{"/api/v1/job/stop", http.HandlerFunc(s.wrapSimpleWithLog("stop", s.manager.Stop))},
		{"/api/v1/job/step/forward", http.HandlerFunc(s.wrapSimpleWithLog("step_forward", s.manager.StepForward))},
		{"/api/v1/job/step/backward", http.HandlerFunc(s.wrapSimpleWithLog("step_backward", s.manager.StepBackward))},
		{"/api/v1/job/seek", http.HandlerFunc(s.handleSeek)},
		{"/api/v1/job/state", http.HandlerFunc(s.handleState)},
		{"/api/v1/sync", http.HandlerFunc(s.handleSync)},
		{"/api/v1/sync/enable", http.HandlerFunc(s.handleSyncEnable)},
		{"/api/v1/sync/disable", http.HandlerFunc(s.handleSyncDisable)},
		{"/api/v1/sync/configure", http.HandlerFunc(s.handleSyncConfigure)},
		{"/api/v1/sync/state", http.HandlerFunc(s.handleSyncState)},
		{"/api/v1/rules", http.HandlerFunc(s.handleRules)},
		{"/api/v1/ws/state", http.HandlerFunc(s.handleWSState)},
	}
	for _, route := range apiRoutes {
		s.mux.Handle(route.path, s.withCORS(route.handler))
	}
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		req, from, to, step, ok := s.decodeStart(w, r)
		if !ok {
			return
		}
		log.Printf("[http] job start from=%s to=%s step=%s speed=%f", from.Format(time.RFC3339), to.Format(time.RFC3339), step, req.Speed)
		if err := s.manager.Start(r.Context(), from, to, step, req.Speed); err != nil {
			code := http.StatusBadRequest
			if err.Error() == "job is already active" {
				code = http.StatusConflict
			}
			writeError(w, code, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.manager.Status())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleCurves возвращает список доступных кривых.
func (s *Server) handleCurves(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	names, err := s.manager.Curves(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"curves": names})
}

// handleSetRange сохраняет параметры диапазона без старта задачи.
func (s *Server) handleSetRange(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		req, from, to, step, ok := s.decodeStart(w, r)
		if !ok {
			return
		}
		if req.Speed <= 0 {
			req.Speed = 1
		}
		log.Printf("[http] set range from=%s to=%s step=%s speed=%f", from.Format(time.RFC3339), to.Format(time.RFC3339), step, req.Speed)
		s.manager.SetRange(from, to, step, req.Speed)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case http.MethodGet:
		s.handleRange(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleStartPending запускает задачу из отложенного диапазона.
func (s *Server) handleStartPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.manager.StartPending(r.Context()); err != nil {
		code := http.StatusBadRequest
		if err.Error() == "job is already active" {
			code = http.StatusConflict
		}
		writeError(w, code, err)
		return
	}
	log.Printf("[http] start pending")
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req seekRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ts, err := time.Parse(time.RFC3339, req.TS)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid ts: %w", err))
		return
	}
	log.Printf("[http] command seek ts=%s", ts.Format(time.RFC3339))
	if err := s.manager.Seek(ts); err != nil {
		if err.Error() == "no active job" || err.Error() == "job is already finished" {
			log.Printf("[http] set pending seek ts=%s (pending: %v)", ts.Format(time.RFC3339), err)
			s.manager.SetPendingSeek(ts)
			writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.State())
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	min, max, err := s.manager.Range(r.Context())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if min.IsZero() || max.IsZero() {
		writeError(w, http.StatusNotFound, fmt.Errorf("no data range found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"from": min.Format(time.RFC3339),
		"to":   max.Format(time.RFC3339),
	})
}

// handleSync возвращает конфигурацию и активность синхронизатора.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.SyncStatus())
}

func (s *Server) handleSyncEnable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log.Printf("[http] sync enable")
	s.manager.EnableSync()
	writeJSON(w, http.StatusOK, s.manager.SyncStatus())
}

func (s *Server) handleSyncDisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log.Printf("[http] sync disable")
	if err := s.manager.DisableSync(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.SyncStatus())
}

func (s *Server) handleSyncConfigure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req configureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	log.Printf("[http] sync configure curve=%q file=%q use_frame=%t", req.CurveName, req.VideoFile, req.UseFrame)
	s.manager.ConfigureSync(syncer.Options{
		VideoFile: req.VideoFile,
		CurveName: req.CurveName,
		UseFrame:  req.UseFrame,
	})
	writeJSON(w, http.StatusOK, s.manager.SyncStatus())
}

// handleSyncState отдаёт (GET) и принимает (POST) XML-фрагмент состояния.
func (s *Server) handleSyncState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.manager.SaveStateXML()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case http.MethodPost:
		defer r.Body.Close()
		data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.manager.LoadStateXML(data); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		log.Printf("[http] sync state loaded")
		writeJSON(w, http.StatusOK, s.manager.SyncStatus())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleRules отдаёт (GET) и принимает (POST) правила подстановки имён.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(s.manager.RulesText()))
	case http.MethodPost:
		defer r.Body.Close()
		data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.manager.SetRulesText(string(data)); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		log.Printf("[http] substitution rules updated")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleWSState(w http.ResponseWriter, r *http.Request) {
	if s.streamer == nil {
		http.Error(w, "websocket streamer not configured", http.StatusServiceUnavailable)
		return
	}
	s.streamer.ServeWS(w, r)
}

func (s *Server) decodeStart(w http.ResponseWriter, r *http.Request) (startRequest, time.Time, time.Time, time.Duration, bool) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return req, time.Time{}, time.Time{}, 0, false
	}
	from, err := time.Parse(time.RFC3339, req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid from: %w", err))
		return req, time.Time{}, time.Time{}, 0, false
	}
	to, err := time.Parse(time.RFC3339, req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid to: %w", err))
		return req, time.Time{}, time.Time{}, 0, false
	}
	step, err := time.ParseDuration(req.Step)
	if err != nil || step <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid step: %v", err))
		return req, time.Time{}, time.Time{}, 0, false
	}
	return req, from, to, step, true
}

func (s *Server) wrapSimpleWithLog(label string, fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		log.Printf("[http] command %s", label)
		if err := fn(); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type startRequest struct {
	From  string  `json:"from"`
	To    string  `json:"to"`
	Step  string  `json:"step"`
	Speed float64 `json:"speed,omitempty"`
}

type seekRequest struct {
	TS string `json:"ts"`
}

type configureRequest struct {
	VideoFile string `json:"video_file"`
	CurveName string `json:"curve_name"`
	UseFrame  bool   `json:"use_frame"`
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
