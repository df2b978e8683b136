package syncer

import (
	"context"
	"sync"

	"github.com/pv/curvesync-go/internal/media"
)

// Lookup — источник значений опорной кривой. Реализуется series.Repository.
type Lookup interface {
	ValueAt(name string, x float64) (float64, bool)
}

// Options — явная конфигурация синхронизатора, сохраняемая хостом.
type Options struct {
	VideoFile string
	CurveName string
	UseFrame  bool
}

// Synchronizer связывает опорную кривую с позицией проигрывателя.
// Два состояния: Inactive (выключен или кривая не выбрана) и Active.
// В Active каждый внешний тик выполняет выборку и перемотку; неудачная
// выборка — no-op для этого тика, не смена состояния.
type Synchronizer struct {
	mu      sync.Mutex
	repo    Lookup
	driver  media.Driver
	enabled bool
	opts    Options

	lastValue float64
	hasLast   bool
}

// New создаёт синхронизатор поверх источника кривых и драйвера проигрывателя.
func New(repo Lookup, driver media.Driver) *Synchronizer {
	return &Synchronizer{repo: repo, driver: driver}
}

// Configure выбирает опорную кривую. Существование кривой не проверяется:
// она может появиться позже, разрешение имени откладывается до выборки.
// Смена кривой сбрасывает последнее разрешённое значение.
func (s *Synchronizer) Configure(curveName string) {
	s.mu.Lock()
	if s.opts.CurveName != curveName {
		s.opts.CurveName = curveName
		s.hasLast = false
		s.lastValue = 0
	}
	s.mu.Unlock()
}

// Apply применяет конфигурацию целиком (при включении или загрузке состояния).
func (s *Synchronizer) Apply(opts Options) {
	s.mu.Lock()
	if s.opts.CurveName != opts.CurveName {
		s.hasLast = false
		s.lastValue = 0
	}
	s.opts = opts
	s.mu.Unlock()
}

// Snapshot возвращает текущую конфигурацию.
func (s *Synchronizer) Snapshot() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// SetEnabled включает или выключает синхронизатор.
// Выключение уничтожает переходное состояние (последнее значение).
func (s *Synchronizer) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	if !enabled {
		s.hasLast = false
		s.lastValue = 0
	}
	s.mu.Unlock()
}

// IsActive — предикат для вызывающей стороны: выборка и перемотка
// выполняются только в активном состоянии.
func (s *Synchronizer) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.opts.CurveName != ""
}

// LastValue возвращает последнее разрешённое значение, если оно было.
func (s *Synchronizer) LastValue() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastValue, s.hasLast
}

// Sample разрешает значение опорной кривой на момент t.
// Неизвестная или пустая кривая — ok=false, без ошибки: кривая могла
// ещё не загрузиться, это ожидаемая ситуация.
func (s *Synchronizer) Sample(t float64) (float64, bool) {
	s.mu.Lock()
	name := s.opts.CurveName
	s.mu.Unlock()
	if name == "" || s.repo == nil {
		return 0, false
	}
	v, ok := s.repo.ValueAt(name, t)
	if !ok {
		return 0, false
	}
	s.mu.Lock()
	s.lastValue = v
	s.hasLast = true
	s.mu.Unlock()
	return v, true
}

// Drive применяет разрешённое значение к проигрывателю.
// Перемотка на играющем проигрывателе запрещена, поэтому сначала пауза —
// но только если проигрыватель ещё не на паузе (однократный переход).
func (s *Synchronizer) Drive(ctx context.Context, value float64) error {
	if s.driver == nil {
		return nil
	}
	if !s.driver.IsPaused() {
		if err := s.driver.Pause(ctx, true); err != nil {
			return err
		}
	}
	return s.driver.Seek(ctx, value)
}

// Tick — входная точка для периодического обновления от хоста.
// Возвращает разрешённое значение и признак того, что перемотка выполнена.
func (s *Synchronizer) Tick(ctx context.Context, t float64) (float64, bool) {
	if !s.IsActive() {
		return 0, false
	}
	v, ok := s.Sample(t)
	if !ok {
		return 0, false
	}
	if err := s.Drive(ctx, v); err != nil {
		// Ошибка драйвера не меняет состояние: следующий тик попробует снова.
		return v, false
	}
	return v, true
}
