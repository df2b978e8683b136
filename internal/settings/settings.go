package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Ключи, которые использует синхронизатор.
const (
	KeyVideoFile     = "video.file"
	KeyCurveName     = "video.curve_name"
	KeyUseFrame      = "video.use_frame"
	KeyLoadDirectory = "video.load_directory"
	KeyRulesText     = "rules.text"
)

// Store — файловое key/value хранилище настроек (YAML).
// Значения читаются при включении синхронизатора и сохраняются при выключении.
type Store struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// Open загружает хранилище из файла. Отсутствующий файл — не ошибка:
// хранилище начинается пустым и будет создано при первом Save.
func Open(path string) (*Store, error) {
	s := &Store{
		path:   path,
		values: map[string]string{},
	}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	if s.values == nil {
		s.values = map[string]string{}
	}
	return s, nil
}

// Get возвращает значение ключа или def, если ключ не задан.
func (s *Store) Get(key, def string) string {
	if s == nil {
		return def
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// GetBool возвращает булево значение ключа.
func (s *Store) GetBool(key string, def bool) bool {
	raw := s.Get(key, strconv.FormatBool(def))
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// Set запоминает значение ключа. На диск попадает только после Save.
func (s *Store) Set(key, value string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

// SetBool запоминает булево значение ключа.
func (s *Store) SetBool(key string, value bool) {
	s.Set(key, strconv.FormatBool(value))
}

// Save записывает хранилище на диск. Для хранилища без пути — no-op.
func (s *Store) Save() error {
	if s == nil || s.path == "" {
		return nil
	}
	s.mu.Lock()
	data, err := yaml.Marshal(s.values)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("settings: mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", s.path, err)
	}
	return nil
}

// BootstrapFromEnv заполняет хранилище из переменных окружения
// VIDEO_PATH и VIDEO_REFERENCE_CURVE. Возвращает true, если обе заданы
// и значения применены.
func (s *Store) BootstrapFromEnv() bool {
	videoPath := os.Getenv("VIDEO_PATH")
	curve := os.Getenv("VIDEO_REFERENCE_CURVE")
	if videoPath == "" || curve == "" {
		return false
	}
	s.Set(KeyVideoFile, videoPath)
	s.Set(KeyCurveName, curve)
	s.Set(KeyLoadDirectory, filepath.Dir(videoPath))
	return true
}
