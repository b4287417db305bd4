package metrics

import (
	"errors"
	"path"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
)

var (
	mu       sync.RWMutex
	storage  tstorage.Storage
	counters = map[string]float64{}
)

type Point struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// InitMetrics opens the time series store under <workdir>/data/metrics
func InitMetrics(workdir string) error {
	mu.Lock()
	defer mu.Unlock()
	if storage != nil {
		return nil
	}
	s, err := tstorage.NewStorage(
		tstorage.WithDataPath(path.Join(workdir, "data", "metrics")),
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(30*24*time.Hour),
	)
	if err != nil {
		return err
	}
	storage = s
	return nil
}

func insert(name string, value float64) {
	if storage == nil {
		return
	}
	_ = storage.InsertRows([]tstorage.Row{{
		Metric:    name,
		DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: value},
	}})
}

// SetGauge records the current value of a gauge
func SetGauge(name string, value int64) {
	mu.RLock()
	defer mu.RUnlock()
	insert(name, float64(value))
}

// Incr adds delta to a process local counter and records the running total
func Incr(name string, delta float64) {
	mu.Lock()
	defer mu.Unlock()
	counters[name] += delta
	insert(name, counters[name])
}

// Counter returns the in-process value of a counter
func Counter(name string) float64 {
	mu.RLock()
	defer mu.RUnlock()
	return counters[name]
}

// Query returns the points of a metric recorded in the last `since`
func Query(name string, since time.Duration) ([]Point, error) {
	mu.RLock()
	defer mu.RUnlock()
	if storage == nil {
		return nil, errors.New("metrics not initialized")
	}
	end := time.Now().Unix() + 1
	points, err := storage.Select(name, nil, time.Now().Add(-since).Unix(), end)
	if errors.Is(err, tstorage.ErrNoDataPoints) {
		return []Point{}, nil
	}
	if err != nil {
		return nil, err
	}
	result := make([]Point, 0, len(points))
	for _, p := range points {
		result = append(result, Point{Timestamp: p.Timestamp, Value: p.Value})
	}
	return result, nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if storage == nil {
		return nil
	}
	err := storage.Close()
	storage = nil
	return err
}
