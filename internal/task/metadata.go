package task

import "time"

// Metadata is the structured document attached to a task for execution
// traces and metrics. It is always merged, never replaced.
type Metadata map[string]any

// Merge returns a new document with the keys of other laid over m.
// Nested objects present on both sides are merged recursively; every other
// value from other wins. Keys are never removed.
func (m Metadata) Merge(other Metadata) Metadata {
	if len(m) == 0 && len(other) == 0 {
		return m
	}
	out := m.Clone()
	if out == nil {
		out = make(Metadata, len(other))
	}
	for k, v := range other {
		if incoming, ok := asObject(v); ok {
			if existing, ok := asObject(out[k]); ok {
				out[k] = map[string]any(Metadata(existing).Merge(incoming))
				continue
			}
		}
		out[k] = cloneValue(v)
	}
	return out
}

// Clone returns a deep copy of the document.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// String returns the string stored under key.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// Float returns the number stored under key.
func (m Metadata) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int returns the number stored under key truncated to an int.
func (m Metadata) Int(key string) (int, bool) {
	f, ok := m.Float(key)
	return int(f), ok
}

// Map returns the nested object stored under key.
func (m Metadata) Map(key string) (Metadata, bool) {
	v, ok := asObject(m[key])
	return v, ok
}

// TraceStep is one entry of an execution trace.
type TraceStep struct {
	Node       string
	Status     string
	DurationMS int
	StartedAt  *time.Time
}

// ExecutionTrace reads the "execution_trace" list. Entries that are not
// objects are skipped.
func (m Metadata) ExecutionTrace() ([]TraceStep, bool) {
	raw, ok := m["execution_trace"].([]any)
	if !ok {
		return nil, false
	}
	steps := make([]TraceStep, 0, len(raw))
	for _, item := range raw {
		obj, ok := asObject(item)
		if !ok {
			continue
		}
		step := TraceStep{}
		step.Node, _ = obj.String("node")
		step.Status, _ = obj.String("status")
		step.DurationMS, _ = obj.Int("duration_ms")
		if ts, ok := obj.String("started_at"); ok {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				step.StartedAt = &parsed
			}
		}
		steps = append(steps, step)
	}
	return steps, true
}

// TokenUsage reads "metrics.total_tokens".
func (m Metadata) TokenUsage() (int, bool) {
	metrics, ok := m.Map("metrics")
	if !ok {
		return 0, false
	}
	return metrics.Int("total_tokens")
}

func asObject(v any) (Metadata, bool) {
	switch obj := v.(type) {
	case map[string]any:
		return Metadata(obj), true
	case Metadata:
		return obj, true
	default:
		return nil, false
	}
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(Metadata(val).Clone())
	case Metadata:
		return map[string]any(val.Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
