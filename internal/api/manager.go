package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pv/curvesync-go/internal/player"
	"github.com/pv/curvesync-go/internal/rules"
	"github.com/pv/curvesync-go/internal/series"
	"github.com/pv/curvesync-go/internal/settings"
	"github.com/pv/curvesync-go/internal/storage"
	"github.com/pv/curvesync-go/internal/syncer"
)

// Manager отвечает за одну задачу проигрывания эталонного времени
// и за включение/выключение синхронизатора.
type Manager struct {
	mu sync.Mutex

	player   *player.Service
	sync     *syncer.Synchronizer
	repo     *series.Repository
	store    storage.Storage
	settings *settings.Store
	streamer *StateStreamer
	curves   []string
	defaults Defaults

	job       *job
	jobCancel context.CancelFunc

	pendingParams *player.Params
	pendingSeek   *time.Time
	stateLoaded   bool
}

// Defaults — параметры, подставляемые при нулевых значениях запроса.
type Defaults struct {
	Step  time.Duration
	Speed float64
}

type job struct {
	id          string
	params      player.Params
	status      string
	startedAt   time.Time
	finishedAt  time.Time
	stepID      int64
	lastTs      time.Time
	lastValue   float64
	hasValue    bool
	drivenSteps int64
	err         error
	commands    chan player.Command
}

// NewManager создаёт менеджер. store и st могут быть nil: без хранилища
// данные должны попасть в репозиторий заранее, без настроек включение
// использует текущую конфигурацию синхронизатора.
func NewManager(sync *syncer.Synchronizer, repo *series.Repository, store storage.Storage, st *settings.Store, streamer *StateStreamer, curves []string, defaults Defaults) *Manager {
	return &Manager{
		player:   &player.Service{Sync: sync},
		sync:     sync,
		repo:     repo,
		store:    store,
		settings: st,
		streamer: streamer,
		curves:   append([]string(nil), curves...),
		defaults: defaults,
	}
}

// Start запускает новую задачу. Разрешён только один одновременный запуск.
func (m *Manager) Start(_ context.Context, from, to time.Time, step time.Duration, speed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(from, to, step, speed, nil)
}

func (m *Manager) startLocked(from, to time.Time, step time.Duration, speed float64, seek *time.Time) error {
	if m.job != nil && (m.job.status == "running" || m.job.status == "paused" || m.job.status == "stopping") {
		return fmt.Errorf("job is already active")
	}

	if step <= 0 {
		step = m.defaults.Step
		if step <= 0 {
			step = time.Second
		}
	}
	if speed <= 0 {
		speed = m.defaults.Speed
		if speed <= 0 {
			speed = 1
		}
	}

	ctrlCh := make(chan player.Command, 16)
	params := player.Params{
		From:  from,
		To:    to,
		Step:  step,
		Speed: speed,
	}

	// Держим задачу на фоновом контексте, чтобы она не завершалась сразу после ответа HTTP-хендлера.
	jobCtx, cancel := context.WithCancel(context.Background())
	m.jobCancel = cancel
	j := &job{
		id:        uuid.NewString(),
		params:    params,
		status:    "running",
		startedAt: time.Now(),
		commands:  ctrlCh,
	}
	m.job = j
	if m.streamer != nil {
		m.streamer.Reset(j.id)
	}
	if seek != nil {
		ctrlCh <- player.Command{Type: player.CommandSeek, TS: *seek}
		j.status = "paused"
	}

	go func() {
		err := m.prepareData(jobCtx, params)
		if err == nil {
			err = m.player.RunWithControl(jobCtx, params, player.Control{
				Commands: ctrlCh,
				OnStep:   m.onStep,
			})
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.job != nil {
			m.job.finishedAt = time.Now()
			switch {
			case errors.Is(err, player.ErrStopped{}):
				m.job.status = "done"
			case err != nil:
				m.job.status = "failed"
				m.job.err = err
			default:
				m.job.status = "done"
				m.job.err = nil
			}
			if m.streamer != nil {
				m.streamer.PublishStatus(m.job.status)
			}
		}
	}()
	return nil
}

// prepareData подгружает историю выбранных кривых в репозиторий.
func (m *Manager) prepareData(ctx context.Context, params player.Params) error {
	if m.store == nil {
		return nil
	}
	names := m.curves
	if len(names) == 0 {
		var err error
		names, err = m.store.Curves(ctx)
		if err != nil {
			return fmt.Errorf("api: list curves: %w", err)
		}
	}
	count, err := storage.LoadInto(ctx, m.store, m.repo, names, params.From, params.To)
	if err != nil {
		return err
	}
	log.Printf("[api] loaded %d points for %d curve(s)", count, len(names))
	return nil
}

func (m *Manager) onStep(info player.StepInfo) {
	m.mu.Lock()
	if m.job != nil {
		m.job.stepID = info.StepID
		m.job.lastTs = info.StepTs
		if info.Driven {
			m.job.lastValue = info.Value
			m.job.hasValue = true
			m.job.drivenSteps++
		}
	}
	m.mu.Unlock()
	if m.streamer != nil {
		m.streamer.Publish(info)
	}
}

// Pause ставит задачу на паузу.
func (m *Manager) Pause() error {
	if err := m.sendCommand(player.Command{Type: player.CommandPause}); err != nil {
		return err
	}
	m.setStatus("paused")
	return nil
}

// Resume возобновляет задачу.
func (m *Manager) Resume() error {
	if err := m.sendCommand(player.Command{Type: player.CommandResume}); err != nil {
		return err
	}
	m.setStatus("running")
	return nil
}

// Stop останавливает задачу.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.job == nil || (m.job.status != "running" && m.job.status != "paused") {
		m.mu.Unlock()
		return fmt.Errorf("no active job")
	}
	m.job.status = "stopping"
	m.mu.Unlock()
	return m.sendCommand(player.Command{Type: player.CommandStop})
}

// StepForward выполняет один шаг вперёд из паузы.
func (m *Manager) StepForward() error {
	return m.sendCommand(player.Command{Type: player.CommandStepForward})
}

// StepBackward выполняет один шаг назад и остаётся на паузе.
func (m *Manager) StepBackward() error {
	if err := m.sendCommand(player.Command{Type: player.CommandStepBackward}); err != nil {
		return err
	}
	m.setStatus("paused")
	return nil
}

// Seek перематывает эталонное время к конкретному моменту.
func (m *Manager) Seek(ts time.Time) error {
	if err := m.sendCommand(player.Command{Type: player.CommandSeek, TS: ts}); err != nil {
		return err
	}
	m.setStatus("paused")
	return nil
}

// SetRange сохраняет параметры диапазона без старта задачи.
func (m *Manager) SetRange(from, to time.Time, step time.Duration, speed float64) {
	m.mu.Lock()
	m.pendingParams = &player.Params{From: from, To: to, Step: step, Speed: speed}
	m.mu.Unlock()
}

// SetPendingSeek сохраняет отложенную перемотку: она будет применена
// первым шагом следующего запуска.
func (m *Manager) SetPendingSeek(ts time.Time) {
	m.mu.Lock()
	m.pendingSeek = &ts
	m.mu.Unlock()
}

// StartPending запускает задачу из отложенного диапазона.
func (m *Manager) StartPending(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingParams == nil {
		return fmt.Errorf("no pending range")
	}
	p := *m.pendingParams
	seek := m.pendingSeek
	if err := m.startLocked(p.From, p.To, p.Step, p.Speed, seek); err != nil {
		return err
	}
	m.pendingSeek = nil
	return nil
}

// EnableSync включает синхронизатор: конфигурация читается из настроек,
// если она не была восстановлена из сохранённого состояния.
func (m *Manager) EnableSync() {
	m.mu.Lock()
	stateLoaded := m.stateLoaded
	m.mu.Unlock()
	if !stateLoaded && m.settings != nil {
		m.sync.Apply(syncer.Options{
			VideoFile: m.settings.Get(settings.KeyVideoFile, ""),
			CurveName: m.settings.Get(settings.KeyCurveName, ""),
			UseFrame:  m.settings.GetBool(settings.KeyUseFrame, false),
		})
	}
	m.sync.SetEnabled(true)
}

// DisableSync выключает синхронизатор и сохраняет конфигурацию в настройки.
func (m *Manager) DisableSync() error {
	opts := m.sync.Snapshot()
	m.sync.SetEnabled(false)
	m.mu.Lock()
	m.stateLoaded = false
	m.mu.Unlock()
	if m.settings == nil {
		return nil
	}
	m.settings.Set(settings.KeyVideoFile, opts.VideoFile)
	m.settings.Set(settings.KeyCurveName, opts.CurveName)
	m.settings.SetBool(settings.KeyUseFrame, opts.UseFrame)
	return m.settings.Save()
}

// ConfigureSync меняет конфигурацию синхронизатора на лету.
func (m *Manager) ConfigureSync(opts syncer.Options) {
	m.sync.Apply(opts)
}

// SyncInfo — конфигурация и активность синхронизатора для API.
type SyncInfo struct {
	VideoFile string `json:"video_file"`
	CurveName string `json:"curve_name"`
	UseFrame  bool   `json:"use_frame"`
	Active    bool   `json:"active"`
}

// SyncStatus возвращает текущую конфигурацию синхронизатора.
func (m *Manager) SyncStatus() SyncInfo {
	opts := m.sync.Snapshot()
	return SyncInfo{
		VideoFile: opts.VideoFile,
		CurveName: opts.CurveName,
		UseFrame:  opts.UseFrame,
		Active:    m.sync.IsActive(),
	}
}

// SaveStateXML возвращает XML-фрагмент конфигурации.
func (m *Manager) SaveStateXML() ([]byte, error) {
	return m.sync.SaveState()
}

// LoadStateXML восстанавливает конфигурацию из XML. Удачная загрузка
// имеет приоритет над настройками при следующем включении.
func (m *Manager) LoadStateXML(data []byte) error {
	if err := m.sync.LoadState(data); err != nil {
		return err
	}
	m.mu.Lock()
	m.stateLoaded = true
	m.mu.Unlock()
	return nil
}

// RulesText возвращает текущие правила подстановки имён: сохранённые
// в настройках или набор по умолчанию.
func (m *Manager) RulesText() string {
	if m.settings == nil {
		return rules.Default
	}
	return m.settings.Get(settings.KeyRulesText, rules.Default)
}

// SetRulesText валидирует и сохраняет правила подстановки.
func (m *Manager) SetRulesText(text string) error {
	if err := rules.Validate([]byte(text)); err != nil {
		return err
	}
	if m.settings == nil {
		return fmt.Errorf("no settings store configured")
	}
	m.settings.Set(settings.KeyRulesText, text)
	return m.settings.Save()
}

// Curves возвращает список доступных кривых: загруженные в репозиторий
// плюс, при наличии хранилища, все кривые из него.
func (m *Manager) Curves(ctx context.Context) ([]string, error) {
	names := m.repo.Names()
	if m.store == nil {
		return names, nil
	}
	stored, err := m.store.Curves(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[n] = struct{}{}
	}
	for _, n := range stored {
		if _, ok := seen[n]; !ok {
			names = append(names, n)
		}
	}
	return names, nil
}

// Range возвращает общий диапазон данных по выбранным кривым.
func (m *Manager) Range(ctx context.Context) (time.Time, time.Time, error) {
	if m.store != nil {
		names := m.curves
		if len(names) == 0 {
			var err error
			names, err = m.store.Curves(ctx)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
		}
		return m.store.Range(ctx, names)
	}
	names := m.curves
	if len(names) == 0 {
		names = m.repo.Names()
	}
	min, max, ok := m.repo.Range(names)
	if !ok {
		return time.Time{}, time.Time{}, nil
	}
	return unixToTime(min), unixToTime(max), nil
}

func unixToTime(x float64) time.Time {
	return time.Unix(0, int64(x*float64(time.Second))).UTC()
}

// Status возвращает текущие метаданные задачи.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job == nil {
		return Status{Status: "idle"}
	}
	st := Status{
		ID:          m.job.id,
		Status:      m.job.status,
		From:        formatTime(m.job.params.From),
		To:          formatTime(m.job.params.To),
		Step:        m.job.params.Step.String(),
		Speed:       m.job.params.Speed,
		StartedAt:   m.job.startedAt,
		FinishedAt:  m.job.finishedAt,
		StepID:      m.job.stepID,
		LastTS:      m.job.lastTs,
		DrivenSteps: m.job.drivenSteps,
	}
	if m.job.hasValue {
		v := m.job.lastValue
		st.LastValue = &v
	}
	if m.job.err != nil {
		st.Error = m.job.err.Error()
	}
	return st
}

// State возвращает краткий срез состояния задачи.
func (m *Manager) State() StateMeta {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job == nil {
		return StateMeta{}
	}
	meta := StateMeta{
		ID:          m.job.id,
		Status:      m.job.status,
		StepID:      m.job.stepID,
		LastTS:      m.job.lastTs,
		DrivenSteps: m.job.drivenSteps,
	}
	if m.job.hasValue {
		v := m.job.lastValue
		meta.LastValue = &v
	}
	return meta
}

// Status описывает задачу целиком.
type Status struct {
	ID          string    `json:"id,omitempty"`
	Status      string    `json:"status"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	Step        string    `json:"step,omitempty"`
	Speed       float64   `json:"speed,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	StepID      int64     `json:"step_id"`
	LastTS      time.Time `json:"last_ts"`
	LastValue   *float64  `json:"last_value,omitempty"`
	DrivenSteps int64     `json:"driven_steps"`
	Error       string    `json:"error,omitempty"`
}

// StateMeta — краткий срез для опроса состояния.
type StateMeta struct {
	ID          string    `json:"id,omitempty"`
	Status      string    `json:"status"`
	StepID      int64     `json:"step_id"`
	LastTS      time.Time `json:"last_ts"`
	LastValue   *float64  `json:"last_value,omitempty"`
	DrivenSteps int64     `json:"driven_steps"`
}

func (m *Manager) sendCommand(cmd player.Command) error {
	m.mu.Lock()
	if m.job == nil {
		m.mu.Unlock()
		return fmt.Errorf("no active job")
	}
	if m.job.status == "done" || m.job.status == "failed" {
		m.mu.Unlock()
		return fmt.Errorf("job is already finished")
	}
	commands := m.job.commands
	m.mu.Unlock()
	if commands == nil {
		return fmt.Errorf("job is not controllable")
	}

	resp := make(chan error, 1)
	cmd.Resp = resp
	select {
	case commands <- cmd:
	default:
		return fmt.Errorf("failed to enqueue command")
	}
	// Ответа ждём без блокировки: обработка seek дергает onStep,
	// которому нужен тот же мьютекс.
	select {
	case err := <-resp:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("command timeout")
	}
}

func (m *Manager) setStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job != nil {
		m.job.status = status
	}
}
