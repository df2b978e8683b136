package player

import "time"

// CommandType задаёт тип управляющей команды.
type CommandType int

const (
	CommandPause CommandType = iota + 1
	CommandResume
	CommandStop
	CommandStepForward
	CommandStepBackward
	CommandSeek
)

// Command передаёт управляющее сообщение в RunWithControl.
type Command struct {
	Type CommandType
	TS   time.Time
	Resp chan<- error
}

// Control объединяет канал управления и коллбек прогресса.
type Control struct {
	Commands <-chan Command
	OnStep   func(StepInfo)
}

// StepInfo описывает прогресс одного тика проигрывания.
type StepInfo struct {
	StepID int64
	StepTs time.Time
	Value  float64
	Driven bool
	Paused bool
}

// ErrStopped возвращается при остановке через команду Stop.
type ErrStopped struct{}

func (ErrStopped) Error() string { return "stopped" }
