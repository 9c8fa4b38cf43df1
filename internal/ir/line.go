package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/invopop/jsonschema"
)

// Line is wire geometry: one or more polylines of alternating x,y values.
// Nested records whether the caller sent an array of polylines, so the shape
// can be echoed back unchanged.
type Line struct {
	Polylines [][]float64
	Nested    bool
}

func FlatLine(coords ...float64) Line {
	return Line{Polylines: [][]float64{coords}}
}

func (l *Line) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*l = Line{}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("line: %w", err)
	}
	if len(raw) > 0 && bytes.HasPrefix(bytes.TrimSpace(raw[0]), []byte("[")) {
		var nested [][]float64
		if err := json.Unmarshal(trimmed, &nested); err != nil {
			return fmt.Errorf("line: %w", err)
		}
		*l = Line{Polylines: nested, Nested: true}
		return nil
	}
	var flat []float64
	if err := json.Unmarshal(trimmed, &flat); err != nil {
		return fmt.Errorf("line: %w", err)
	}
	*l = Line{Polylines: [][]float64{flat}}
	return nil
}

func (l Line) MarshalJSON() ([]byte, error) {
	if l.Nested || len(l.Polylines) != 1 {
		return json.Marshal(l.Polylines)
	}
	return json.Marshal(l.Polylines[0])
}

// Valid reports whether every polyline has an even number of at least four
// finite coordinates.
func (l Line) Valid() bool {
	if len(l.Polylines) == 0 {
		return false
	}
	for _, pl := range l.Polylines {
		if len(pl) < 4 || len(pl)%2 != 0 {
			return false
		}
		for _, v := range pl {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Scaled returns a copy with every coordinate multiplied by f.
func (l Line) Scaled(f float64) Line {
	out := Line{Nested: l.Nested, Polylines: make([][]float64, len(l.Polylines))}
	for i, pl := range l.Polylines {
		scaled := make([]float64, len(pl))
		for j, v := range pl {
			scaled[j] = v * f
		}
		out.Polylines[i] = scaled
	}
	return out
}

// JSONSchema describes the two accepted encodings.
func (Line) JSONSchema() *jsonschema.Schema {
	flat := &jsonschema.Schema{
		Type:        "array",
		Items:       &jsonschema.Schema{Type: "number"},
		Description: "x1,y1,x2,y2,... with an even count of at least four",
	}
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			flat,
			{Type: "array", Items: flat},
		},
	}
}
