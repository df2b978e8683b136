package series

import (
	"sort"
	"sync"
)

// Repository — потокобезопасное хранилище кривых по имени.
// Запись выполняет загрузчик данных, чтение — синхронизатор на каждом тике.
type Repository struct {
	mu     sync.RWMutex
	curves map[string]*TimeSeries
}

// NewRepository создаёт пустое хранилище.
func NewRepository() *Repository {
	return &Repository{curves: make(map[string]*TimeSeries)}
}

// Lookup возвращает кривую по имени.
func (r *Repository) Lookup(name string) (*TimeSeries, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.curves[name]
	return ts, ok
}

// Upsert заменяет кривую целиком.
func (r *Repository) Upsert(ts *TimeSeries) {
	if ts == nil {
		return
	}
	r.mu.Lock()
	r.curves[ts.Name()] = ts
	r.mu.Unlock()
}

// Append добавляет точку в кривую, создавая её при необходимости.
func (r *Repository) Append(name string, s Sample) {
	r.mu.Lock()
	ts, ok := r.curves[name]
	if !ok {
		ts = New(name)
		r.curves[name] = ts
	}
	ts.Append(s)
	r.mu.Unlock()
}

// ValueAt выполняет выборку значения кривой под блокировкой чтения,
// чтобы конкурентная дозагрузка точек не ломала интерполяцию.
// ok=false если кривая не найдена или пуста.
func (r *Repository) ValueAt(name string, x float64) (float64, bool) {
	if r == nil {
		return 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, exists := r.curves[name]
	if !exists {
		return 0, false
	}
	return ts.ValueAt(x)
}

// Names возвращает отсортированный список имён кривых.
func (r *Repository) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.curves))
	for name := range r.curves {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len возвращает количество кривых.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.curves)
}

// Range возвращает общий диапазон X по всем перечисленным кривым.
// Пустые и отсутствующие кривые пропускаются; ok=false если данных нет вовсе.
func (r *Repository) Range(names []string) (min, max float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		ts, exists := r.curves[name]
		if !exists {
			continue
		}
		lo, hi, has := ts.Range()
		if !has {
			continue
		}
		if !ok || lo < min {
			min = lo
		}
		if !ok || hi > max {
			max = hi
		}
		ok = true
	}
	return min, max, ok
}
