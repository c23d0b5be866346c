package timeline

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// EncodeJSON writes tl as indented JSON.
func EncodeJSON(w io.Writer, tl Timeline) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tl); err != nil {
		return fmt.Errorf("encode timeline json: %w", err)
	}
	return nil
}

// EncodeYAML writes tl as YAML.
func EncodeYAML(w io.Writer, tl Timeline) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tl); err != nil {
		return fmt.Errorf("encode timeline yaml: %w", err)
	}
	return enc.Close()
}

// Marshal encodes tl for storage.
func Marshal(tl Timeline) ([]byte, error) {
	data, err := json.Marshal(tl)
	if err != nil {
		return nil, fmt.Errorf("marshal timeline: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a stored timeline.
func Unmarshal(data []byte) (Timeline, error) {
	var tl Timeline
	if err := json.Unmarshal(data, &tl); err != nil {
		return Timeline{}, fmt.Errorf("unmarshal timeline: %w", err)
	}
	return tl, nil
}

// DecodeYAML reads a timeline exported by EncodeYAML.
func DecodeYAML(r io.Reader) (Timeline, error) {
	var tl Timeline
	if err := yaml.NewDecoder(r).Decode(&tl); err != nil {
		return Timeline{}, fmt.Errorf("decode timeline yaml: %w", err)
	}
	return tl, nil
}
