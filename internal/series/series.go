package series

import "sort"

// Sample — одна точка кривой: X (время в секундах) и Y (значение).
type Sample struct {
	X float64
	Y float64
}

// TimeSeries хранит упорядоченную по X последовательность точек одной кривой.
type TimeSeries struct {
	name    string
	samples []Sample
}

// New создаёт пустую кривую с указанным именем.
func New(name string) *TimeSeries {
	return &TimeSeries{name: name}
}

// FromSamples создаёт кривую из готового набора точек. Точки сортируются по X.
func FromSamples(name string, samples []Sample) *TimeSeries {
	ts := &TimeSeries{
		name:    name,
		samples: append([]Sample(nil), samples...),
	}
	sort.SliceStable(ts.samples, func(i, j int) bool { return ts.samples[i].X < ts.samples[j].X })
	return ts
}

// Name возвращает имя кривой.
func (ts *TimeSeries) Name() string { return ts.name }

// Len возвращает количество точек.
func (ts *TimeSeries) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.samples)
}

// At возвращает точку по индексу.
func (ts *TimeSeries) At(i int) Sample { return ts.samples[i] }

// Append добавляет точку, сохраняя порядок по X.
// Обычный случай — добавление в конец; вставка в середину делается сдвигом.
func (ts *TimeSeries) Append(s Sample) {
	n := len(ts.samples)
	if n == 0 || s.X >= ts.samples[n-1].X {
		ts.samples = append(ts.samples, s)
		return
	}
	idx := sort.Search(n, func(i int) bool { return ts.samples[i].X > s.X })
	ts.samples = append(ts.samples, Sample{})
	copy(ts.samples[idx+1:], ts.samples[idx:])
	ts.samples[idx] = s
}

// Range возвращает минимальный и максимальный X. Для пустой кривой ok=false.
func (ts *TimeSeries) Range() (min, max float64, ok bool) {
	if ts.Len() == 0 {
		return 0, 0, false
	}
	return ts.samples[0].X, ts.samples[len(ts.samples)-1].X, true
}

// ValueAt возвращает значение кривой в точке x.
// Внутри диапазона — линейная интерполяция между соседними точками,
// за границами — значение крайней точки (без экстраполяции).
// Для пустой кривой ok=false.
func (ts *TimeSeries) ValueAt(x float64) (float64, bool) {
	if ts == nil || len(ts.samples) == 0 {
		return 0, false
	}
	s := ts.samples
	if x <= s[0].X {
		return s[0].Y, true
	}
	last := s[len(s)-1]
	if x >= last.X {
		return last.Y, true
	}
	// Первая точка с X >= x; после проверок границ idx гарантированно в (0, len).
	idx := sort.Search(len(s), func(i int) bool { return s[i].X >= x })
	right := s[idx]
	if right.X == x {
		return right.Y, true
	}
	left := s[idx-1]
	if right.X == left.X {
		return right.Y, true
	}
	ratio := (x - left.X) / (right.X - left.X)
	return left.Y + (right.Y-left.Y)*ratio, true
}
