package media

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
)

// SeekMode задаёт интерпретацию значения позиционирования.
type SeekMode int

const (
	// SeekByTime — значение трактуется как секунды от начала потока.
	SeekByTime SeekMode = iota
	// SeekByFrame — значение трактуется как номер кадра.
	SeekByFrame
)

func (m SeekMode) String() string {
	if m == SeekByFrame {
		return "frame"
	}
	return "time"
}

// ParseSeekMode разбирает строковое представление режима ("time" | "frame").
func ParseSeekMode(s string) (SeekMode, error) {
	switch s {
	case "time", "":
		return SeekByTime, nil
	case "frame":
		return SeekByFrame, nil
	default:
		return SeekByTime, fmt.Errorf("media: unknown seek mode %q", s)
	}
}

// Driver управляет зависимым проигрывателем: пауза и перемотка.
type Driver interface {
	// IsPaused возвращает последнее скомандованное состояние паузы.
	IsPaused() bool
	// Pause ставит проигрыватель на паузу или снимает её.
	Pause(ctx context.Context, paused bool) error
	// Seek перематывает проигрыватель к позиции value (секунды или кадр — по режиму).
	Seek(ctx context.Context, value float64) error
}

// StdoutDriver печатает команды в writer. Используется как заглушка и в тестах.
type StdoutDriver struct {
	Writer io.Writer
	Mode   SeekMode

	mu     sync.Mutex
	paused bool
}

func (d *StdoutDriver) IsPaused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

func (d *StdoutDriver) Pause(_ context.Context, paused bool) error {
	if d.Writer == nil {
		return fmt.Errorf("stdout driver: writer is not set")
	}
	d.mu.Lock()
	d.paused = paused
	d.mu.Unlock()
	_, err := fmt.Fprintf(d.Writer, "PAUSE %t\n", paused)
	return err
}

func (d *StdoutDriver) Seek(_ context.Context, value float64) error {
	if d.Writer == nil {
		return fmt.Errorf("stdout driver: writer is not set")
	}
	_, err := fmt.Fprintf(d.Writer, "SEEK %s %s\n", d.Mode, strconv.FormatFloat(value, 'f', -1, 64))
	return err
}
