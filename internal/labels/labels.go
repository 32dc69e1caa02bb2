// Package labels maps model output indices to human-readable category names.
package labels

import (
	"encoding/json"
	"fmt"
	"os"
)

// IndexError reports a lookup outside the label range. It should be
// impossible after startup validation and is treated as an internal error.
type IndexError struct {
	Index int
	Size  int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("label index %d out of range [0, %d)", e.Index, e.Size)
}

// LabelMap is an ordered list of category names, index-aligned with the
// model output vector. Read-only after Load, safe for concurrent reads.
type LabelMap struct {
	names []string
}

// Load reads a JSON array of category names from path.
func Load(path string) (*LabelMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read label file: %w", err)
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("failed to parse label file %s: %w", path, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("label file %s contains no labels", path)
	}
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("label file %s has an empty name at index %d", path, i)
		}
	}

	return &LabelMap{names: names}, nil
}

func (m *LabelMap) NameFor(i int) (string, error) {
	if i < 0 || i >= len(m.names) {
		return "", &IndexError{Index: i, Size: len(m.names)}
	}
	return m.names[i], nil
}

func (m *LabelMap) Len() int {
	return len(m.names)
}

// Names returns a copy so callers cannot mutate the shared map.
func (m *LabelMap) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}
