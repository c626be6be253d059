package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Static replays a fixed record for every input. It backs simulate-signal and
// tests.
type Static struct {
	record map[string]any
}

// NewStatic returns an inferrer that always answers with record.
func NewStatic(record map[string]any) *Static {
	return &Static{record: record}
}

// LoadStatic reads a JSON object from path.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return NewStatic(record), nil
}

// Infer returns a shallow copy of the fixture record.
func (s *Static) Infer(ctx context.Context, _ string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(s.record))
	for k, v := range s.record {
		out[k] = v
	}
	return out, nil
}

var _ Inferrer = (*Static)(nil)
