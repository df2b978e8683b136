package api

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pv/curvesync-go/internal/player"
)

type wsMessage struct {
	Type        string   `json:"type"`
	JobID       string   `json:"job_id,omitempty"`
	Status      string   `json:"status,omitempty"`
	StepID      int64    `json:"step_id,omitempty"`
	StepTs      string   `json:"step_ts,omitempty"`
	StepUnix    int64    `json:"step_unix,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	Driven      bool     `json:"driven,omitempty"`
	Paused      bool     `json:"paused,omitempty"`
	DrivenSteps int64    `json:"driven_steps,omitempty"`
}

// StateStreamer хранит последний тик проигрывания и рассылает обновления
// подключённым WebSocket-клиентам.
type StateStreamer struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	jobID       string
	status      string
	lastStep    player.StepInfo
	hasStep     bool
	drivenSteps int64
}

// NewStateStreamer создаёт пустой стример.
func NewStateStreamer() *StateStreamer {
	return &StateStreamer{clients: map[*wsClient]struct{}{}}
}

// Reset очищает состояние при старте новой задачи и уведомляет клиентов.
func (s *StateStreamer) Reset(jobID string) {
	s.mu.Lock()
	s.jobID = jobID
	s.status = "running"
	s.lastStep = player.StepInfo{}
	s.hasStep = false
	s.drivenSteps = 0
	s.broadcastLocked(wsMessage{Type: "reset", JobID: jobID})
	s.mu.Unlock()
}

// Publish рассылает очередной тик проигрывания.
func (s *StateStreamer) Publish(info player.StepInfo) {
	s.mu.Lock()
	s.lastStep = info
	s.hasStep = true
	if info.Driven {
		s.drivenSteps++
	}
	msg := wsMessage{
		Type:        "tick",
		JobID:       s.jobID,
		StepID:      info.StepID,
		StepTs:      formatTime(info.StepTs),
		StepUnix:    unixMs(info.StepTs),
		Driven:      info.Driven,
		Paused:      info.Paused,
		DrivenSteps: s.drivenSteps,
	}
	if info.Driven {
		v := info.Value
		msg.Value = &v
	}
	s.broadcastLocked(msg)
	s.mu.Unlock()
}

// PublishStatus рассылает смену статуса задачи (done/failed).
func (s *StateStreamer) PublishStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.broadcastLocked(wsMessage{Type: "status", JobID: s.jobID, Status: status})
	s.mu.Unlock()
}

// ServeWS обрабатывает подключение клиента WebSocket.
func (s *StateStreamer) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	conn, rw, err := websocketUpgrade(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	client := newWSClient(conn, rw)
	s.addClient(client)
	logDebugf("[ws] client connected: %s", conn.RemoteAddr())

	if err := client.writeJSON(s.snapshotMessage()); err != nil {
		s.removeClient(client)
		return
	}

	go client.writePump(func() {
		s.removeClient(client)
	})
}

func (s *StateStreamer) addClient(c *wsClient) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *StateStreamer) removeClient(c *wsClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
	logDebugf("[ws] client disconnected: %s", c.conn.RemoteAddr())
}

func (s *StateStreamer) snapshotMessage() wsMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg := wsMessage{
		Type:        "snapshot",
		JobID:       s.jobID,
		Status:      s.status,
		DrivenSteps: s.drivenSteps,
	}
	if s.hasStep {
		msg.StepID = s.lastStep.StepID
		msg.StepTs = formatTime(s.lastStep.StepTs)
		msg.StepUnix = unixMs(s.lastStep.StepTs)
		msg.Driven = s.lastStep.Driven
		msg.Paused = s.lastStep.Paused
		if s.lastStep.Driven {
			v := s.lastStep.Value
			msg.Value = &v
		}
	}
	return msg
}

func (s *StateStreamer) broadcastLocked(msg wsMessage) {
	if len(s.clients) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// Клиент не успевает читать — отрубаем.
			go s.removeClient(c)
		}
	}
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func unixMs(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.UTC().UnixMilli()
}

// --- WebSocket utils (минимальная реализация только для server-push) ---

const wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

func websocketUpgrade(w http.ResponseWriter, r *http.Request) (net.Conn, *bufio.ReadWriter, error) {
	if !headerContains(r.Header, "Connection", "Upgrade") || !headerContains(r.Header, "Upgrade", "websocket") {
		return nil, nil, errors.New("upgrade request expected")
	}
	key := strings.TrimSpace(r.Header.Get("Sec-WebSocket-Key"))
	if key == "" {
		return nil, nil, errors.New("missing Sec-WebSocket-Key")
	}
	accept := computeAcceptKey(key)

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("http hijacking not supported")
	}
	conn, rw, err := hijacker.Hijack()
	if err != nil {
		return nil, nil, err
	}
	if rw == nil {
		rw = bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	}

	response := fmt.Sprintf("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: %s\r\n\r\n", accept)
	if _, err := rw.WriteString(response); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := rw.Flush(); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, rw, nil
}

func computeAcceptKey(key string) string {
	h := sha1.Sum([]byte(key + wsGUID))
	return base64.StdEncoding.EncodeToString(h[:])
}

func headerContains(h http.Header, name, value string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), value) {
				return true
			}
		}
	}
	return false
}

type wsClient struct {
	conn net.Conn
	rw   *bufio.ReadWriter
	send chan []byte
	once sync.Once
}

func newWSClient(conn net.Conn, rw *bufio.ReadWriter) *wsClient {
	return &wsClient{
		conn: conn,
		rw:   rw,
		send: make(chan []byte, 32),
	}
}

func (c *wsClient) writeJSON(msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return writeTextFrame(c.rw, data)
}

func (c *wsClient) writePump(onClose func()) {
	defer onClose()
	for msg := range c.send {
		if err := writeTextFrame(c.rw, msg); err != nil {
			return
		}
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		_ = c.conn.Close()
		close(c.send)
	})
}

func writeTextFrame(w *bufio.ReadWriter, payload []byte) error {
	var header [10]byte
	header[0] = 0x81 // FIN + text frame
	var headerLen int
	switch {
	case len(payload) < 126:
		header[1] = byte(len(payload))
		headerLen = 2
	case len(payload) <= 0xFFFF:
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:], uint16(len(payload)))
		headerLen = 4
	default:
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(len(payload)))
		headerLen = 10
	}
	if _, err := w.Write(header[:headerLen]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return w.Flush()
}
