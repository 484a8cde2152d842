package metrics

import (
	"errors"
	"sync"
)

// ErrFrozen is returned by writes issued after the report was snapshotted.
var ErrFrozen = errors.New("metrics store is frozen")

// Store holds the metrics and notices of a single run.
type Store struct {
	values  map[string]any
	order   []string
	notices []string
	mu      sync.Mutex
	frozen  bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]any)}
}

// Set stores value under name, replacing any previous value.
// Numeric values are normalized to float64.
func (s *Store) Set(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrFrozen
	}
	s.put(name, normalize(value))
	return nil
}

// SetDefault stores 0 under name.
func (s *Store) SetDefault(name string) error {
	return s.Set(name, 0)
}

// Incr adds 1 to name.
func (s *Store) Incr(name string) error {
	return s.IncrBy(name, 1)
}

// IncrBy adds delta to name. An absent or non-numeric value counts as 0.
func (s *Store) IncrBy(name string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrFrozen
	}
	current, _ := s.values[name].(float64)
	s.put(name, current+delta)
	return nil
}

// Get returns the value stored under name.
func (s *Store) Get(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[name]
	return v, ok
}

// AddNotice appends a notice. Empty and duplicate notices are kept.
func (s *Store) AddNotice(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrFrozen
	}
	s.notices = append(s.notices, msg)
	return nil
}

// Notices returns a copy of the notices in insertion order.
func (s *Store) Notices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.notices...)
}

// Count returns the number of distinct metrics.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.order)
}

// Freeze rejects every later write.
func (s *Store) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frozen = true
}

// Frozen reports whether Freeze was called.
func (s *Store) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.frozen
}

// Snapshot copies the current state into a report for url. Slice and map
// values are copied too, so the report and the store never share them.
func (s *Store) Snapshot(url string) *Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[string]any, len(s.values))
	for k, v := range s.values {
		values[k] = cloneValue(v)
	}

	return &Report{
		URL:         url,
		Metrics:     values,
		MetricNames: append([]string(nil), s.order...),
		Notices:     append([]string{}, s.notices...),
	}
}

func (s *Store) put(name string, value any) {
	if _, exists := s.values[name]; !exists {
		s.order = append(s.order, name)
	}
	s.values[name] = value
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// cloneValue deep-copies the composite shapes metrics take. Other values are
// returned unchanged.
func cloneValue(v any) any {
	switch c := v.(type) {
	case []any:
		out := make([]any, len(c))
		for i, e := range c {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, e := range c {
			out[k] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), c...)
	case []float64:
		return append([]float64(nil), c...)
	case map[string]string:
		out := make(map[string]string, len(c))
		for k, e := range c {
			out[k] = e
		}
		return out
	case map[string]float64:
		out := make(map[string]float64, len(c))
		for k, e := range c {
			out[k] = e
		}
		return out
	default:
		return v
	}
}
