package player

import (
	"context"
	"fmt"
	"time"
)

// Ticker выполняет один шаг синхронизации для эталонного времени.
type Ticker interface {
	Tick(ctx context.Context, x float64) (float64, bool)
}

// Params описывает настройки проигрывания эталонного времени.
type Params struct {
	From  time.Time
	To    time.Time
	Step  time.Duration
	Speed float64
}

// Service прогоняет эталонное время по заданному окну и на каждом
// шаге дёргает синхронизатор.
type Service struct {
	Sync Ticker
}

// Run запускает цикл проигрывания без внешнего управления.
func (s *Service) Run(ctx context.Context, params Params) error {
	return s.run(ctx, params, nil)
}

// RunWithControl запускает цикл проигрывания с возможностью паузы/шагов.
func (s *Service) RunWithControl(ctx context.Context, params Params, ctrl Control) error {
	return s.run(ctx, params, &ctrl)
}

func (s *Service) run(ctx context.Context, params Params, ctrl *Control) error {
	if s.Sync == nil {
		return fmt.Errorf("player: sync must be set")
	}
	if params.Step <= 0 {
		return fmt.Errorf("player: step must be > 0")
	}
	if !params.To.After(params.From) {
		return fmt.Errorf("player: invalid period: %s → %s", params.From, params.To)
	}

	stepTs := params.From
	var stepID int64
	paused := false
	stepOnce := false

	for !stepTs.After(params.To) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if ctrl != nil {
			if err := s.handleCommands(ctx, params, ctrl, &stepTs, &stepID, &paused, &stepOnce); err != nil {
				return err
			}
		}

		if paused {
			if ctrl != nil {
				if err := s.waitWhilePaused(ctx, params, ctrl, &stepTs, &stepID, &paused, &stepOnce); err != nil {
					return err
				}
			}
			continue
		}

		stepID++
		s.tick(ctx, ctrl, stepID, stepTs, false)

		if stepOnce {
			paused = true
			stepOnce = false
		}

		if err := waitNextStep(ctx, params.Step, params.Speed); err != nil {
			return err
		}
		stepTs = stepTs.Add(params.Step)
	}
	return nil
}

func (s *Service) tick(ctx context.Context, ctrl *Control, stepID int64, stepTs time.Time, paused bool) {
	x := float64(stepTs.UnixNano()) / 1e9
	value, driven := s.Sync.Tick(ctx, x)
	if ctrl != nil && ctrl.OnStep != nil {
		ctrl.OnStep(StepInfo{
			StepID: stepID,
			StepTs: stepTs,
			Value:  value,
			Driven: driven,
			Paused: paused,
		})
	}
}

func waitNextStep(ctx context.Context, step time.Duration, speed float64) error {
	if step <= 0 {
		return nil
	}
	if speed <= 0 {
		speed = 1
	}
	delay := time.Duration(float64(step) / speed)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) handleCommands(
	ctx context.Context,
	params Params,
	ctrl *Control,
	stepTs *time.Time,
	stepID *int64,
	paused *bool,
	stepOnce *bool,
) error {
	for {
		select {
		case cmd := <-ctrl.Commands:
			respErr := s.applyCommand(ctx, params, ctrl, cmd, stepTs, stepID, paused, stepOnce)
			if cmd.Resp != nil {
				select {
				case cmd.Resp <- respErr:
				default:
				}
			}
			if respErr != nil {
				return respErr
			}
		default:
			return nil
		}
	}
}

func (s *Service) waitWhilePaused(
	ctx context.Context,
	params Params,
	ctrl *Control,
	stepTs *time.Time,
	stepID *int64,
	paused *bool,
	stepOnce *bool,
) error {
	for *paused {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-ctrl.Commands:
			respErr := s.applyCommand(ctx, params, ctrl, cmd, stepTs, stepID, paused, stepOnce)
			if cmd.Resp != nil {
				select {
				case cmd.Resp <- respErr:
				default:
				}
			}
			if respErr != nil {
				return respErr
			}
		}
	}
	return nil
}

func (s *Service) applyCommand(
	ctx context.Context,
	params Params,
	ctrl *Control,
	cmd Command,
	stepTs *time.Time,
	stepID *int64,
	paused *bool,
	stepOnce *bool,
) error {
	switch cmd.Type {
	case CommandPause:
		*paused = true
	case CommandResume:
		*paused = false
	case CommandStop:
		return ErrStopped{}
	case CommandStepForward:
		*stepOnce = true
		*paused = false
	case CommandStepBackward:
		target := (*stepTs).Add(-params.Step)
		if target.Before(params.From) {
			target = params.From
		}
		*stepTs = target
		*stepID = stepNumber(params, target)
		*paused = true
		s.tick(ctx, ctrl, *stepID, target, true)
	case CommandSeek:
		if cmd.TS.IsZero() {
			return fmt.Errorf("seek: TS is required")
		}
		if cmd.TS.Before(params.From) || cmd.TS.After(params.To) {
			return fmt.Errorf("seek: target %s is outside range %s-%s", cmd.TS, params.From, params.To)
		}
		*stepTs = cmd.TS
		*stepID = stepNumber(params, cmd.TS)
		*paused = true
		s.tick(ctx, ctrl, *stepID, cmd.TS, true)
	}
	return nil
}

func stepNumber(params Params, ts time.Time) int64 {
	if !ts.After(params.From) {
		return 1
	}
	return int64(ts.Sub(params.From)/params.Step) + 1
}
