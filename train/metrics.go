package train

import (
	"encoding/json"
	"log/slog"
	"os"
	"slices"
	"sync"

	"golang.org/x/exp/maps"
)

// MetricSink receives scalar records per step. Sinks are fire-and-forget:
// the trainer never consumes a return value, and a failing sink must not
// abort the run.
type MetricSink interface {
	Log(step int, values map[string]float64)
}

// SlogSink writes records through the default structured logger with keys
// in sorted order, so log lines diff cleanly across runs.
type SlogSink struct{}

func (SlogSink) Log(step int, values map[string]float64) {
	keys := maps.Keys(values)
	slices.Sort(keys)

	attrs := make([]any, 0, 2*len(keys)+2)
	attrs = append(attrs, "step", step)
	for _, k := range keys {
		attrs = append(attrs, k, values[k])
	}
	slog.Info("metrics", attrs...)
}

// JSONLSink appends one JSON object per record to a file.
type JSONLSink struct {
	mu sync.Mutex
	f  *os.File
}

func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{f: f}, nil
}

func (s *JSONLSink) Log(step int, values map[string]float64) {
	record := make(map[string]any, len(values)+1)
	record["step"] = step
	for k, v := range values {
		record[k] = v
	}

	b, err := json.Marshal(record)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		slog.Debug("metric sink write failed", "error", err)
	}
}

func (s *JSONLSink) Close() error {
	return s.f.Close()
}

// MultiSink fans a record out to several sinks.
type MultiSink []MetricSink

func (m MultiSink) Log(step int, values map[string]float64) {
	for _, s := range m {
		s.Log(step, values)
	}
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) Log(int, map[string]float64) {}
