package asset

import (
	"github.com/goccy/go-json"
)

// SourceMap wraps a raw source map produced by a generator. The core never
// inspects mappings; it only decides when and how the map is appended.
type SourceMap struct {
	fields map[string]any
}

func ParseSourceMap(data []byte) (*SourceMap, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return &SourceMap{fields: fields}, nil
}

func NewSourceMap(fields map[string]any) *SourceMap {
	return &SourceMap{fields: fields}
}

// Stringify serializes the map with file and sourceRoot filled in.
func (m *SourceMap) Stringify(file, sourceRoot string) ([]byte, error) {
	fields := make(map[string]any, len(m.fields)+2)
	for k, v := range m.fields {
		fields[k] = v
	}
	fields["file"] = file
	fields["sourceRoot"] = sourceRoot
	return json.Marshal(fields)
}
